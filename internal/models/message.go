package models

import "time"

// DeliveryStatus tracks where a locally known message is in its send lifecycle.
type DeliveryStatus string

const (
	StatusPending DeliveryStatus = "pending"
	StatusSent    DeliveryStatus = "sent"
	StatusFailed  DeliveryStatus = "failed"
)

// Message represents one entry of a conversation's message list.
type Message struct {
	ID        string         `json:"id"`
	LocalID   string         `json:"local_id,omitempty"`
	Text      string         `json:"text"`
	ImageURL  string         `json:"image_url,omitempty"`
	SenderID  int            `json:"sender_id"`
	Timestamp time.Time      `json:"timestamp"`
	Status    DeliveryStatus `json:"status"`
}

// Provisional reports whether the message still carries its client placeholder id.
func (m Message) Provisional() bool {
	return m.LocalID != "" && m.ID == m.LocalID
}

// Attachment is an image uploaded together with a message.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// OutgoingMessage is what the user composed and asked to send.
type OutgoingMessage struct {
	Text  string
	Image *Attachment
}

// SentMessage is the backend's confirmation of a send.
type SentMessage struct {
	ID        string
	Text      string
	SenderID  int
	ImageURL  string
	Timestamp time.Time
}
