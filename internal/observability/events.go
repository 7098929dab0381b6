package observability

import "time"

type EventEnvelope struct {
	EventType string      `json:"event_type"`
	EventName string      `json:"event_name"`
	Payload   interface{} `json:"payload"`
}

// WSEventInfo describes one websocket lifecycle event of this client.
type WSEventInfo struct {
	Kind       string
	ResourceID int
	Event      string
	ConnID     string
	Duration   time.Duration
	Reason     string
	UserID     int
	DeviceID   string
}

// WSEnvelope wraps info in the ws_events envelope.
func WSEnvelope(info WSEventInfo) EventEnvelope {
	return EventEnvelope{
		EventType: "ws_events",
		EventName: info.Event,
		Payload: map[string]interface{}{
			"ws": map[string]interface{}{
				"kind":        info.Kind,
				"resource_id": info.ResourceID,
				"event":       info.Event,
				"conn_id":     info.ConnID,
				"duration_ms": info.Duration.Milliseconds(),
				"reason":      info.Reason,
			},
			"identity": map[string]interface{}{
				"user_id":   info.UserID,
				"device_id": info.DeviceID,
			},
		},
	}
}

// WSRoutingKey is the broker routing key for socket events of kind.
func WSRoutingKey(kind string) string {
	switch kind {
	case "group":
		return "ws_events.groups"
	case "user":
		return "ws_events.users"
	default:
		return "ws_events.chats"
	}
}

func BuildHeaders(requestID, traceID string) map[string]string {
	headers := map[string]string{}
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if traceID != "" {
		headers["trace_id"] = traceID
	}
	return headers
}
