package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
)

// ErrMalformedPayload is returned when a backend response or socket frame
// does not decode into its expected shape.
var ErrMalformedPayload = errors.New("malformed payload")

var validate = validator.New()

// Decode unmarshals data into dst and validates it.
func Decode(data []byte, dst any) error {
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return nil
}

// HistoryResponse is the body of GET /{chats|groups}/:id/messages.
type HistoryResponse struct {
	Messages []HistoryMessage `json:"messages" validate:"dive"`
}

// HistoryMessage is one message of a history fetch.
type HistoryMessage struct {
	ID      int    `json:"id" validate:"required"`
	Content string `json:"content"`
	Image   string `json:"image,omitempty"`
	User    struct {
		ID int `json:"id" validate:"required"`
	} `json:"user"`
	SentAt *time.Time `json:"sent_at"`
}

// ToMessage maps a history entry to a Message. A missing timestamp defaults to now.
func (h HistoryMessage) ToMessage() Message {
	return Message{
		ID:        strconv.Itoa(h.ID),
		Text:      h.Content,
		ImageURL:  h.Image,
		SenderID:  h.User.ID,
		Timestamp: timeOrNow(h.SentAt),
		Status:    StatusSent,
	}
}

// SendResponse is the body of POST /{chats|groups}/:id/messages.
type SendResponse struct {
	Success bool         `json:"success"`
	Error   string       `json:"error,omitempty"`
	Data    *SentPayload `json:"data" validate:"required_if=Success true"`
}

// SentPayload carries the stored message.
type SentPayload struct {
	ID        int        `json:"id" validate:"required"`
	Content   string     `json:"content"`
	Sender    int        `json:"sender" validate:"required"`
	Image     string     `json:"image,omitempty"`
	Timestamp *time.Time `json:"timestamp"`
}

// ToSentMessage maps the payload to a SentMessage.
func (p SentPayload) ToSentMessage() SentMessage {
	return SentMessage{
		ID:        strconv.Itoa(p.ID),
		Text:      p.Content,
		SenderID:  p.Sender,
		ImageURL:  p.Image,
		Timestamp: timeOrNow(p.Timestamp),
	}
}

// SuccessResponse is the body of DELETE/PATCH message and mark-read endpoints.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// SearchResponse is the body of GET /users/search.
type SearchResponse struct {
	SearchResults []UserSummary `json:"search_results" validate:"dive"`
}

// ChatListResponse is the body of GET /chats.
type ChatListResponse struct {
	Chats []ChatListEntry `json:"chats" validate:"dive"`
}

// ChatListEntry is one private chat of the list.
type ChatListEntry struct {
	ChatID         int       `json:"chat_id" validate:"required"`
	FriendID       int       `json:"friend_id" validate:"required"`
	FriendUsername string    `json:"friend_username,omitempty"`
	LastMessage    string    `json:"last_message,omitempty"`
	UnreadCount    int       `json:"unread_count,omitempty" validate:"gte=0"`
	CreatedAt      time.Time `json:"created_at"`
}

// ToConversation maps the entry for the given current user.
func (e ChatListEntry) ToConversation(me int) Conversation {
	name := e.FriendUsername
	if name == "" {
		name = "user " + strconv.Itoa(e.FriendID)
	}
	return Conversation{
		Ref:            ChatRef(e.ChatID),
		ParticipantIDs: []int{me, e.FriendID},
		DisplayName:    name,
		LastMessage:    e.LastMessage,
		UnreadCount:    e.UnreadCount,
		CreatedAt:      e.CreatedAt,
	}
}

// GroupListResponse is the body of GET /groups.
type GroupListResponse struct {
	Groups []GroupListEntry `json:"groups" validate:"dive"`
}

// GroupListEntry is one group of the list.
type GroupListEntry struct {
	ID        int       `json:"id" validate:"required"`
	Name      string    `json:"name"`
	OwnerID   int       `json:"owner_id"`
	MemberIDs []int     `json:"member_ids,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ToConversation maps the entry.
func (e GroupListEntry) ToConversation() Conversation {
	return Conversation{
		Ref:            GroupRef(e.ID),
		ParticipantIDs: e.MemberIDs,
		DisplayName:    e.Name,
		CreatedAt:      e.CreatedAt,
	}
}

// StartChatResponse is the body of POST /chats/start.
type StartChatResponse struct {
	ChatID int `json:"chat_id" validate:"required"`
}

// NotificationListResponse is the body of GET /notifications.
type NotificationListResponse struct {
	Notifications []Notification `json:"notifications" validate:"dive"`
	UnreadCount   int            `json:"unread_count" validate:"gte=0"`
}

// SocketFrame is the JSON frame exchanged on a conversation socket.
type SocketFrame struct {
	Message   string     `json:"message" validate:"required_without=Image"`
	Sender    int        `json:"sender" validate:"required"`
	ID        int        `json:"id" validate:"required"`
	Image     string     `json:"image,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// FrameFromMessage builds the frame re-broadcast after a confirmed send.
func FrameFromMessage(m Message) (SocketFrame, error) {
	id, err := strconv.Atoi(m.ID)
	if err != nil {
		return SocketFrame{}, fmt.Errorf("message %q has no server id: %w", m.ID, err)
	}
	ts := m.Timestamp
	return SocketFrame{
		Message:   m.Text,
		Sender:    m.SenderID,
		ID:        id,
		Image:     m.ImageURL,
		Timestamp: &ts,
	}, nil
}

// ToMessage maps an inbound frame to a Message.
func (f SocketFrame) ToMessage() Message {
	return Message{
		ID:        strconv.Itoa(f.ID),
		Text:      f.Message,
		ImageURL:  f.Image,
		SenderID:  f.Sender,
		Timestamp: timeOrNow(f.Timestamp),
		Status:    StatusSent,
	}
}

// DMSignal is the JSON frame pushed on the per-user socket.
type DMSignal struct {
	ChatID int `json:"chat_id" validate:"required"`
	Sender int `json:"sender" validate:"required"`
}

func timeOrNow(t *time.Time) time.Time {
	if t == nil || t.IsZero() {
		return time.Now().UTC()
	}
	return *t
}
