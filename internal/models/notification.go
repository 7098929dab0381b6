package models

import "time"

// Notification is a bell notification for the current user.
type Notification struct {
	ID        int       `json:"id" validate:"required"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	ActorID   int       `json:"actor_id"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}
