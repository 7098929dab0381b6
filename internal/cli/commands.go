package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"chat-client/internal/notifications"
)

// NewWatchCmd creates the watch command.
func NewWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follow unread direct messages until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := signedIn(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer e.Close()

			out := cmd.OutOrStdout()
			updates := make(chan notifications.State, 16)
			unsubscribe := e.client.Store().Subscribe(func(st notifications.State) {
				select {
				case updates <- st:
				default:
				}
			})
			defer unsubscribe()

			fmt.Fprintln(out, formatUnread(e.client.Store().Snapshot()))
			for {
				select {
				case <-cmd.Context().Done():
					return nil
				case st := <-updates:
					fmt.Fprintln(out, formatUnread(st))
				}
			}
		},
	}
}

// NewSearchCmd creates the search command.
func NewSearchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search <name>",
		Short: "Find users by name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := signedIn(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer e.Close()

			users, err := e.client.SearchUsers(cmd.Context(), args[0])
			if err != nil {
				return writeCommandError(cmd, err)
			}
			if len(users) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No users found")
				return nil
			}
			for _, u := range users {
				fmt.Fprintf(cmd.OutOrStdout(), "%-6d %s\n", u.ID, u.FullName)
			}
			return nil
		},
	}
}

// NewNotificationsCmd creates the notifications command.
func NewNotificationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notifications",
		Short: "List notifications, optionally marking them read",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			readID, _ := cmd.Flags().GetInt("read")
			readAll, _ := cmd.Flags().GetBool("read-all")

			e, err := signedIn(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer e.Close()

			ctx := cmd.Context()
			if _, err := e.client.ToggleBell(ctx); err != nil {
				return writeCommandError(cmd, err)
			}
			if readID > 0 {
				if err := e.client.MarkNotificationRead(ctx, readID); err != nil {
					return writeCommandError(cmd, err)
				}
			}
			if readAll {
				if err := e.client.MarkAllNotificationsRead(ctx); err != nil {
					return writeCommandError(cmd, err)
				}
			}

			st := e.client.Store().Snapshot()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%d unread\n", st.UnreadCount)
			now := time.Now()
			for _, n := range st.Notifications {
				fmt.Fprintln(out, formatNotification(n, now))
			}
			return nil
		},
	}
	cmd.Flags().Int("read", 0, "mark this notification read")
	cmd.Flags().Bool("read-all", false, "mark every notification read")
	return cmd
}

// NewConversationsCmd creates the conversations command.
func NewConversationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"ls"},
		Short:   "List chats and groups",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			startWith, _ := cmd.Flags().GetInt("start")
			remove, _ := cmd.Flags().GetString("delete")

			e, err := signedIn(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer e.Close()

			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			if startWith > 0 {
				ref, err := e.client.StartChat(ctx, startWith)
				if err != nil {
					return writeCommandError(cmd, err)
				}
				fmt.Fprintf(out, "Chat with user %d is %s\n", startWith, ref)
			}
			if remove != "" {
				ref, err := parseRef(remove)
				if err != nil {
					return writeCommandError(cmd, err)
				}
				if err := e.client.DeleteConversation(ctx, ref); err != nil {
					return writeCommandError(cmd, err)
				}
				fmt.Fprintf(out, "Deleted %s\n", ref)
			}

			_, list, err := e.client.ToggleMessages(ctx)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			if len(list) == 0 {
				fmt.Fprintln(out, "No conversations")
			}
			for _, c := range list {
				fmt.Fprintln(out, formatConversation(c))
			}
			return nil
		},
	}
	cmd.Flags().Int("start", 0, "start (or reuse) a chat with this user id")
	cmd.Flags().String("delete", "", "delete a conversation, e.g. chat:5")
	return cmd
}
