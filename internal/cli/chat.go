package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"chat-client/internal/conversation"
	"chat-client/internal/models"
)

// NewChatCmd creates the chat command.
func NewChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat <chat:ID|group:ID>",
		Short: "Open a conversation and send lines read from stdin",
		Long: `Open a conversation, print its history and follow new messages.

Every input line is sent as a message. Lines starting with / are commands:
  /image <path> [caption]   send an image
  /retry <local-id>         re-send a failed message
  /discard <local-id>       drop a failed message
  /edit <id> <text>         edit one of your messages
  /delete <id>              delete one of your messages
  /quit                     leave`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := parseRef(args[0])
			if err != nil {
				return writeCommandError(cmd, err)
			}
			e, err := signedIn(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer e.Close()

			me, _ := e.client.Identity()
			return e.client.WithConversation(cmd.Context(), ref, func(vm *conversation.ViewModel) error {
				p := newPrinter(cmd.OutOrStdout(), me.UserID)
				p.print(vm.Messages())
				defer vm.Subscribe(p.print)()
				return runChat(cmd.Context(), vm, cmd.InOrStdin(), cmd.ErrOrStderr())
			})
		},
	}
	return cmd
}

func runChat(ctx context.Context, vm *conversation.ViewModel, in io.Reader, errOut io.Writer) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := handleLine(ctx, vm, line)
			if err != nil {
				fmt.Fprintf(errOut, "Error: %v\n", err)
			}
			if quit {
				return nil
			}
		}
	}
}

func handleLine(ctx context.Context, vm *conversation.ViewModel, line string) (bool, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}
	if !strings.HasPrefix(line, "/") {
		_, err := vm.Send(ctx, models.OutgoingMessage{Text: line})
		return false, err
	}

	command, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)
	switch command {
	case "/quit":
		return true, nil
	case "/retry":
		_, err := vm.Retry(ctx, rest)
		return false, err
	case "/discard":
		return false, vm.Discard(rest)
	case "/delete":
		return false, vm.Delete(ctx, rest)
	case "/edit":
		id, text, _ := strings.Cut(rest, " ")
		return false, vm.Edit(ctx, id, strings.TrimSpace(text))
	case "/image":
		path, caption, _ := strings.Cut(rest, " ")
		attachment, err := readAttachment(path)
		if err != nil {
			return false, err
		}
		_, err = vm.Send(ctx, models.OutgoingMessage{Text: strings.TrimSpace(caption), Image: attachment})
		return false, err
	default:
		return false, fmt.Errorf("unknown command %s", command)
	}
}

func readAttachment(path string) (*models.Attachment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return &models.Attachment{
		Filename:    filepath.Base(path),
		ContentType: mime.TypeByExtension(filepath.Ext(path)),
		Data:        data,
	}, nil
}

// printer writes each message once per status it reaches.
type printer struct {
	out     io.Writer
	me      int
	mu      sync.Mutex
	printed map[string]models.DeliveryStatus
}

func newPrinter(out io.Writer, me int) *printer {
	return &printer{out: out, me: me, printed: make(map[string]models.DeliveryStatus)}
}

func (p *printer) print(list []models.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	for _, m := range list {
		key := m.ID
		if status, ok := p.printed[key]; ok && status == m.Status {
			continue
		}
		p.printed[key] = m.Status
		fmt.Fprintln(p.out, formatMessage(m, p.me, now))
	}
}
