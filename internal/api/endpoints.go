package api

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"

	"golang.org/x/sync/errgroup"

	"chat-client/internal/models"
)

func messagesPath(ref models.ConversationRef) string {
	return fmt.Sprintf("/%s/%d/messages", ref.Collection(), ref.ID)
}

// ListMessages fetches the full history of a conversation.
func (c *Client) ListMessages(ctx context.Context, ref models.ConversationRef) ([]models.Message, error) {
	var resp models.HistoryResponse
	if err := c.getJSON(ctx, "ListMessages", messagesPath(ref), &resp); err != nil {
		return nil, err
	}
	msgs := make([]models.Message, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		msgs = append(msgs, m.ToMessage())
	}
	return msgs, nil
}

// SendMessage posts a message as multipart form data.
func (c *Client) SendMessage(ctx context.Context, ref models.ConversationRef, out models.OutgoingMessage) (models.SentMessage, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if err := w.WriteField("chat_id", strconv.Itoa(ref.ID)); err != nil {
		return models.SentMessage{}, err
	}
	if err := w.WriteField("content", out.Text); err != nil {
		return models.SentMessage{}, err
	}
	if out.Image != nil {
		header := make(textproto.MIMEHeader)
		name := out.Image.Filename
		if name == "" {
			name = "image"
		}
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image_content"; filename=%q`, name))
		contentType := out.Image.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		header.Set("Content-Type", contentType)
		part, err := w.CreatePart(header)
		if err != nil {
			return models.SentMessage{}, err
		}
		if _, err := part.Write(out.Image.Data); err != nil {
			return models.SentMessage{}, err
		}
	}
	if err := w.Close(); err != nil {
		return models.SentMessage{}, err
	}

	var resp models.SendResponse
	if err := c.do(ctx, "SendMessage", http.MethodPost, messagesPath(ref), &body, w.FormDataContentType(), &resp); err != nil {
		return models.SentMessage{}, err
	}
	if !resp.Success {
		return models.SentMessage{}, fmt.Errorf("SendMessage: %w: %s", ErrRejected, resp.Error)
	}
	return resp.Data.ToSentMessage(), nil
}

// DeleteMessage removes a message.
func (c *Client) DeleteMessage(ctx context.Context, ref models.ConversationRef, messageID string) error {
	path := messagesPath(ref) + "/" + url.PathEscape(messageID)
	resp := models.SuccessResponse{Success: true}
	if err := c.sendJSON(ctx, "DeleteMessage", http.MethodDelete, path, nil, &resp); err != nil {
		return err
	}
	return rejected("DeleteMessage", resp)
}

// EditMessage replaces the text of a message.
func (c *Client) EditMessage(ctx context.Context, ref models.ConversationRef, messageID, text string) error {
	path := messagesPath(ref) + "/" + url.PathEscape(messageID)
	resp := models.SuccessResponse{Success: true}
	in := map[string]string{"content": text}
	if err := c.sendJSON(ctx, "EditMessage", http.MethodPatch, path, in, &resp); err != nil {
		return err
	}
	return rejected("EditMessage", resp)
}

// SearchUsers looks users up by name.
func (c *Client) SearchUsers(ctx context.Context, query string) ([]models.UserSummary, error) {
	var resp models.SearchResponse
	path := "/users/search?q=" + url.QueryEscape(query)
	if err := c.getJSON(ctx, "SearchUsers", path, &resp); err != nil {
		return nil, err
	}
	return resp.SearchResults, nil
}

// ListConversations fetches private chats and groups in parallel.
func (c *Client) ListConversations(ctx context.Context, me int) ([]models.Conversation, error) {
	var chats models.ChatListResponse
	var groups models.GroupListResponse

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.getJSON(gctx, "ListChats", "/chats", &chats)
	})
	g.Go(func() error {
		return c.getJSON(gctx, "ListGroups", "/groups", &groups)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	list := make([]models.Conversation, 0, len(chats.Chats)+len(groups.Groups))
	for _, chat := range chats.Chats {
		list = append(list, chat.ToConversation(me))
	}
	for _, group := range groups.Groups {
		list = append(list, group.ToConversation())
	}
	return list, nil
}

// StartChat creates or returns the private chat with friendID.
func (c *Client) StartChat(ctx context.Context, friendID int) (models.ConversationRef, error) {
	var resp models.StartChatResponse
	in := map[string]int{"friend_id": friendID}
	if err := c.sendJSON(ctx, "StartChat", http.MethodPost, "/chats/start", in, &resp); err != nil {
		return models.ConversationRef{}, err
	}
	return models.ChatRef(resp.ChatID), nil
}

// DeleteConversation hides the conversation for the current user.
func (c *Client) DeleteConversation(ctx context.Context, ref models.ConversationRef) error {
	path := fmt.Sprintf("/%s/%d", ref.Collection(), ref.ID)
	resp := models.SuccessResponse{Success: true}
	if err := c.sendJSON(ctx, "DeleteConversation", http.MethodDelete, path, nil, &resp); err != nil {
		return err
	}
	return rejected("DeleteConversation", resp)
}

// ListNotifications fetches the bell list and the server's unread count.
func (c *Client) ListNotifications(ctx context.Context) ([]models.Notification, int, error) {
	var resp models.NotificationListResponse
	if err := c.getJSON(ctx, "ListNotifications", "/notifications", &resp); err != nil {
		return nil, 0, err
	}
	return resp.Notifications, resp.UnreadCount, nil
}

// MarkNotificationRead marks one notification read.
func (c *Client) MarkNotificationRead(ctx context.Context, id int) error {
	resp := models.SuccessResponse{Success: true}
	path := fmt.Sprintf("/notifications/%d/read", id)
	if err := c.sendJSON(ctx, "MarkNotificationRead", http.MethodPost, path, nil, &resp); err != nil {
		return err
	}
	return rejected("MarkNotificationRead", resp)
}

// MarkAllNotificationsRead marks every notification read.
func (c *Client) MarkAllNotificationsRead(ctx context.Context) error {
	resp := models.SuccessResponse{Success: true}
	if err := c.sendJSON(ctx, "MarkAllNotificationsRead", http.MethodPost, "/notifications/read-all", nil, &resp); err != nil {
		return err
	}
	return rejected("MarkAllNotificationsRead", resp)
}

func rejected(op string, resp models.SuccessResponse) error {
	if resp.Success {
		return nil
	}
	return fmt.Errorf("%s: %w: %s", op, ErrRejected, resp.Error)
}
