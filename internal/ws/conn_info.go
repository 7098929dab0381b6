package ws

import (
	"time"

	"chat-client/internal/observability"
)

// ConnInfo identifies one client socket for lifecycle events.
type ConnInfo struct {
	ConnID      string
	Kind        string
	ResourceID  int
	UserID      int
	DeviceID    string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

func (i ConnInfo) event(name, reason string) observability.WSEventInfo {
	var duration time.Duration
	if !i.ConnectedAt.IsZero() {
		duration = time.Since(i.ConnectedAt)
	}
	return observability.WSEventInfo{
		Kind:       i.Kind,
		ResourceID: i.ResourceID,
		Event:      name,
		ConnID:     i.ConnID,
		Duration:   duration,
		Reason:     reason,
		UserID:     i.UserID,
		DeviceID:   i.DeviceID,
	}
}
