package telemetry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.opentelemetry.io/otel/trace"

	"chat-client/internal/mocks"
	"chat-client/internal/observability"
	"chat-client/internal/telemetry"
)

func TestEmitPublishesEnvelope(t *testing.T) {
	pub := new(mocks.PublisherMock)
	emitter := telemetry.NewAuditEmitter(pub, "audit.client", "chat-client", "test")

	pub.On("Publish", mock.Anything, "audit.client", mock.MatchedBy(func(env telemetry.AuditEnvelope) bool {
		return env.EventType == "audit_log" &&
			env.RequestID == "req-1" &&
			env.Payload.Level == "ERROR" &&
			env.Payload.Conversation == "chat:4" &&
			env.UserID != nil && *env.UserID == 7
	}), map[string]string{"x-request-id": "req-1"}).Return(nil).Once()

	emitter.Emit(context.Background(), "ERROR", "send failed", "chat:4", "req-1", 7)
	pub.AssertExpectations(t)
}

func TestEmitTakesIDsFromContext(t *testing.T) {
	pub := new(mocks.PublisherMock)
	emitter := telemetry.NewAuditEmitter(pub, "audit.client", "chat-client", "test")

	traceID := trace.TraceID{0x0a, 0x0b}
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  trace.SpanID{0x01},
	}))
	ctx = observability.WithRequestID(ctx, "req-ctx")

	pub.On("Publish", mock.Anything, "audit.client", mock.MatchedBy(func(env telemetry.AuditEnvelope) bool {
		return env.RequestID == "req-ctx" && env.TraceID == traceID.String()
	}), map[string]string{"x-request-id": "req-ctx", "trace_id": traceID.String()}).Return(nil).Once()

	emitter.Emit(ctx, "ERROR", "send failed", "group:2", "", 3)
	pub.AssertExpectations(t)
}

func TestEmitWithoutUser(t *testing.T) {
	pub := new(mocks.PublisherMock)
	emitter := telemetry.NewAuditEmitter(pub, "audit.client", "chat-client", "test")

	pub.On("Publish", mock.Anything, "audit.client", mock.MatchedBy(func(env telemetry.AuditEnvelope) bool {
		return env.UserID == nil && env.RequestID == ""
	}), map[string]string{}).Return(assert.AnError).Once()

	emitter.Emit(context.Background(), "INFO", "logout", "", "", 0)
	pub.AssertExpectations(t)
}

func TestNilEmitter(t *testing.T) {
	var emitter *telemetry.AuditEmitter
	emitter.Emit(context.Background(), "INFO", "ignored", "", "", 1)
}
