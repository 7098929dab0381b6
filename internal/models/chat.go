package models

import (
	"fmt"
	"time"
)

// ConversationKind distinguishes private chats from group chats.
type ConversationKind string

const (
	KindChat  ConversationKind = "chat"
	KindGroup ConversationKind = "group"
)

// ConversationRef addresses one conversation on the backend.
type ConversationRef struct {
	Kind ConversationKind
	ID   int
}

// ChatRef builds a reference to a private chat.
func ChatRef(id int) ConversationRef {
	return ConversationRef{Kind: KindChat, ID: id}
}

// GroupRef builds a reference to a group chat.
func GroupRef(id int) ConversationRef {
	return ConversationRef{Kind: KindGroup, ID: id}
}

// Collection is the REST and socket path segment for the kind.
func (r ConversationRef) Collection() string {
	if r.Kind == KindGroup {
		return "groups"
	}
	return "chats"
}

func (r ConversationRef) String() string {
	kind := r.Kind
	if kind == "" {
		kind = KindChat
	}
	return fmt.Sprintf("%s:%d", kind, r.ID)
}

// Conversation is a chat or group as listed for the current user.
type Conversation struct {
	Ref            ConversationRef
	ParticipantIDs []int
	DisplayName    string
	LastMessage    string
	UnreadCount    int
	CreatedAt      time.Time
}
