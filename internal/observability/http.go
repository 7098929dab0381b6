package observability

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

const (
	headerRequestID = "X-Request-Id"
	headerDeviceID  = "X-Device-Id"
)

type requestIDKey struct{}

// WithRequestID returns a context whose outgoing requests carry id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFrom returns the request id stored in ctx, if any.
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// EnsureRequestID returns ctx carrying a request id, minting one if needed.
func EnsureRequestID(ctx context.Context) (context.Context, string) {
	if id := RequestIDFrom(ctx); id != "" {
		return ctx, id
	}
	id := uuid.NewString()
	return WithRequestID(ctx, id), id
}

// TagRequest stamps an outgoing request with the request id of its context,
// or a fresh one, and the device id. It returns the request id.
func TagRequest(r *http.Request, deviceID string) string {
	requestID := r.Header.Get(headerRequestID)
	if requestID == "" {
		requestID = RequestIDFrom(r.Context())
	}
	if requestID == "" {
		requestID = uuid.NewString()
	}
	r.Header.Set(headerRequestID, requestID)
	if deviceID != "" {
		r.Header.Set(headerDeviceID, deviceID)
	}
	return requestID
}

// TagHeader is TagRequest for a bare header, as used by websocket dials.
func TagHeader(h http.Header, deviceID string) string {
	r := &http.Request{Header: h}
	return TagRequest(r, deviceID)
}
