package cli

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"chat-client/internal/models"
	"chat-client/internal/notifications"
)

// parseRef reads "chat:5", "group:3" or a bare chat id.
func parseRef(s string) (models.ConversationRef, error) {
	kind, idText, found := strings.Cut(s, ":")
	if !found {
		kind, idText = string(models.KindChat), s
	}
	id, err := strconv.Atoi(idText)
	if err != nil || id <= 0 {
		return models.ConversationRef{}, fmt.Errorf("invalid conversation %q", s)
	}
	switch models.ConversationKind(kind) {
	case models.KindChat:
		return models.ChatRef(id), nil
	case models.KindGroup:
		return models.GroupRef(id), nil
	default:
		return models.ConversationRef{}, fmt.Errorf("invalid conversation kind %q", kind)
	}
}

func formatMessage(m models.Message, me int, now time.Time) string {
	who := fmt.Sprintf("user %d", m.SenderID)
	if m.SenderID == me {
		who = "you"
	}
	when := "now"
	if !m.Timestamp.IsZero() {
		when = humanize.RelTime(m.Timestamp, now, "ago", "from now")
	}
	body := m.Text
	if m.ImageURL != "" {
		if body != "" {
			body += " "
		}
		body += "[image " + m.ImageURL + "]"
	}

	line := fmt.Sprintf("%-8s %s (%s): %s", m.ID, who, when, body)
	switch m.Status {
	case models.StatusPending:
		line += "  …sending"
	case models.StatusFailed:
		line += fmt.Sprintf("  !failed, /retry %s or /discard %s", m.LocalID, m.LocalID)
	}
	return line
}

func formatNotification(n models.Notification, now time.Time) string {
	mark := "*"
	if n.IsRead {
		mark = " "
	}
	return fmt.Sprintf("%s %-6d %s  %s", mark, n.ID, n.Message, humanize.RelTime(n.CreatedAt, now, "ago", "from now"))
}

func formatConversation(c models.Conversation) string {
	line := fmt.Sprintf("%-10s %s", c.Ref, c.DisplayName)
	if c.LastMessage != "" {
		line += "  " + strconv.Quote(c.LastMessage)
	}
	if c.UnreadCount > 0 {
		line += fmt.Sprintf("  (%s unread)", humanize.Comma(int64(c.UnreadCount)))
	}
	return line
}

func formatUnread(st notifications.State) string {
	if !st.HasNewDM {
		return "no unread direct messages"
	}
	parts := make([]string, 0, len(st.UnreadDMs))
	for id, n := range st.UnreadDMs {
		parts = append(parts, fmt.Sprintf("chat:%d=%d", id, n))
	}
	sort.Strings(parts)
	return fmt.Sprintf("%d unread direct message(s): %s", st.UnreadDMTotal(), strings.Join(parts, " "))
}
