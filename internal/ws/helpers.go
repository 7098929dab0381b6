package ws

import (
	"context"
	"log"

	"github.com/google/uuid"

	"chat-client/internal/models"
	"chat-client/internal/observability"
)

func newConnID() string {
	return uuid.NewString()
}

func kindOf(ref models.ConversationRef) string {
	if ref.Kind == models.KindGroup {
		return "group"
	}
	return "chat"
}

// publish counts the event and hands it to the broker.
func publish(info ConnInfo, event, reason string) {
	observability.IncWSEvent(info.Kind, event)
	err := observability.PublishEvent(context.Background(), observability.WSRoutingKey(info.Kind),
		observability.WSEnvelope(info.event(event, reason)),
		observability.BuildHeaders(info.RequestID, info.TraceID))
	if err != nil {
		log.Printf("ws: publish %s failed conn=%s: %v", event, info.ConnID, err)
	}
}
