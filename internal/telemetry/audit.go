// Package telemetry reports client-side failures to the event broker.
package telemetry

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel/trace"

	"chat-client/internal/observability"
)

// Publisher is the broker surface the emitter needs.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error
	Close() error
}

// AuditEmitter publishes audit records for one client installation.
type AuditEmitter struct {
	publisher   Publisher
	routingKey  string
	service     string
	environment string
	now         func() time.Time
}

// AuditEnvelope is the record published for one audited event.
type AuditEnvelope struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	OccurredAt    string       `json:"occurred_at"`
	Service       string       `json:"service"`
	Environment   string       `json:"environment"`
	RequestID     string       `json:"request_id,omitempty"`
	TraceID       string       `json:"trace_id,omitempty"`
	UserID        *int         `json:"user_id,omitempty"`
	Payload       AuditPayload `json:"payload"`
}

// AuditPayload is what happened, and in which conversation.
type AuditPayload struct {
	Level        string `json:"level"`
	Text         string `json:"text"`
	Conversation string `json:"conversation,omitempty"`
}

func NewAuditEmitter(publisher Publisher, routingKey, service, environment string) *AuditEmitter {
	return &AuditEmitter{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
		now:         time.Now,
	}
}

// Emit publishes one audit record. requestID falls back to the request id
// carried by ctx; the trace id comes from the active span. A nil emitter is a
// no-op.
func (e *AuditEmitter) Emit(ctx context.Context, level, text, conversation, requestID string, userID int) {
	if e == nil || e.publisher == nil {
		return
	}
	if requestID == "" {
		requestID = observability.RequestIDFrom(ctx)
	}
	var traceID string
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		traceID = sc.TraceID().String()
	}

	envelope := e.envelope(level, text, conversation, requestID, traceID, userID)
	log.Printf("audit emit: level=%s request_id=%s user_id=%d conversation=%s text=%q", level, requestID, userID, conversation, text)
	if err := e.publisher.Publish(ctx, e.routingKey, envelope, observability.BuildHeaders(requestID, traceID)); err != nil {
		log.Printf("audit publish failed request_id=%s: %v", requestID, err)
	}
}

func (e *AuditEmitter) envelope(level, text, conversation, requestID, traceID string, userID int) AuditEnvelope {
	env := AuditEnvelope{
		SchemaVersion: 1,
		EventType:     "audit_log",
		OccurredAt:    e.now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		RequestID:     requestID,
		TraceID:       traceID,
		Payload: AuditPayload{
			Level:        level,
			Text:         text,
			Conversation: conversation,
		},
	}
	if userID != 0 {
		env.UserID = &userID
	}
	return env
}
