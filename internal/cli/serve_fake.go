package cli

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"chat-client/internal/fakebackend"
)

// NewServeFakeCmd creates the serve-fake command.
func NewServeFakeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve-fake",
		Short: "Run an in-memory backend for local development",
		Long: `Run an in-memory backend speaking the chat REST and websocket contract.

Users are given as id:username:Full Name:token, chats as userA:userB and
groups as name:owner:member,member.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, _ := cmd.Flags().GetString("addr")
			userSpecs, _ := cmd.Flags().GetStringArray("user")
			chatSpecs, _ := cmd.Flags().GetStringArray("chat")
			groupSpecs, _ := cmd.Flags().GetStringArray("group")

			users := make([]fakebackend.User, 0, len(userSpecs))
			for _, spec := range userSpecs {
				u, err := parseUser(spec)
				if err != nil {
					return writeCommandError(cmd, err)
				}
				users = append(users, u)
			}
			backend := fakebackend.New(users...)
			for _, spec := range chatSpecs {
				a, b, err := parsePair(spec)
				if err != nil {
					return writeCommandError(cmd, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "chat:%d between %d and %d\n", backend.AddChat(a, b), a, b)
			}
			for _, spec := range groupSpecs {
				name, owner, members, err := parseGroup(spec)
				if err != nil {
					return writeCommandError(cmd, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "group:%d %q\n", backend.AddGroup(name, owner, members...), name)
			}

			srv := &http.Server{Addr: addr, Handler: backend.Handler(), ReadHeaderTimeout: 5 * time.Second}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				backend.Hub().DropAll()
				_ = srv.Shutdown(ctx)
			}()

			log.Printf("fake backend listening addr=%s users=%d", addr, len(users))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return writeCommandError(cmd, err)
			}
			return nil
		},
	}
	cmd.Flags().String("addr", ":8083", "listen address")
	cmd.Flags().StringArray("user", nil, "user as id:username:Full Name:token (repeatable)")
	cmd.Flags().StringArray("chat", nil, "private chat as userA:userB (repeatable)")
	cmd.Flags().StringArray("group", nil, "group as name:owner:member,member (repeatable)")
	return cmd
}

func parseUser(spec string) (fakebackend.User, error) {
	parts := strings.SplitN(spec, ":", 4)
	if len(parts) != 4 {
		return fakebackend.User{}, fmt.Errorf("invalid user %q, want id:username:Full Name:token", spec)
	}
	id, err := strconv.Atoi(parts[0])
	if err != nil || id <= 0 {
		return fakebackend.User{}, fmt.Errorf("invalid user id in %q", spec)
	}
	return fakebackend.User{ID: id, Username: parts[1], FullName: parts[2], Token: parts[3]}, nil
}

func parsePair(spec string) (int, int, error) {
	left, right, ok := strings.Cut(spec, ":")
	a, errA := strconv.Atoi(left)
	b, errB := strconv.Atoi(right)
	if !ok || errA != nil || errB != nil {
		return 0, 0, fmt.Errorf("invalid chat %q, want userA:userB", spec)
	}
	return a, b, nil
}

func parseGroup(spec string) (string, int, []int, error) {
	parts := strings.SplitN(spec, ":", 3)
	if len(parts) < 2 {
		return "", 0, nil, fmt.Errorf("invalid group %q, want name:owner:member,member", spec)
	}
	owner, err := strconv.Atoi(parts[1])
	if err != nil {
		return "", 0, nil, fmt.Errorf("invalid group owner in %q", spec)
	}
	var members []int
	if len(parts) == 3 && parts[2] != "" {
		for _, field := range strings.Split(parts[2], ",") {
			id, err := strconv.Atoi(strings.TrimSpace(field))
			if err != nil {
				return "", 0, nil, fmt.Errorf("invalid group member %q in %q", field, spec)
			}
			members = append(members, id)
		}
	}
	return parts[0], owner, members, nil
}
