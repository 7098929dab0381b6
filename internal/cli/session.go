package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"chat-client/internal/models"
)

// NewLoginCmd creates the login command.
func NewLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Remember the identity and token to use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, _ := cmd.Flags().GetInt("user-id")
			username, _ := cmd.Flags().GetString("username")
			fullName, _ := cmd.Flags().GetString("full-name")
			token, _ := cmd.Flags().GetString("token")

			e, err := setup(cmd.Context())
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer e.Close()

			id := models.Identity{UserID: userID, Username: username, FullName: fullName, Token: token}
			if err := e.client.Login(cmd.Context(), id); err != nil {
				return writeCommandError(cmd, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s (id %d)\n", displayName(id), userID)
			return nil
		},
	}
	cmd.Flags().Int("user-id", 0, "backend user id")
	cmd.Flags().String("username", "", "username")
	cmd.Flags().String("full-name", "", "full name")
	cmd.Flags().String("token", "", "bearer token")
	_ = cmd.MarkFlagRequired("user-id")
	_ = cmd.MarkFlagRequired("token")
	return cmd
}

// NewLogoutCmd creates the logout command.
func NewLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored identity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd.Context())
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer e.Close()

			if err := e.client.Logout(cmd.Context()); err != nil {
				return writeCommandError(cmd, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
}

func displayName(id models.Identity) string {
	switch {
	case id.FullName != "":
		return id.FullName
	case id.Username != "":
		return id.Username
	default:
		return fmt.Sprintf("user %d", id.UserID)
	}
}
