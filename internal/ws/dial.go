package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"chat-client/internal/observability"
)

// ErrHandshakeRejected is returned when the backend refuses the upgrade with
// a 4xx status. Such dials are not retried.
var ErrHandshakeRejected = errors.New("websocket handshake rejected")

// Options configure how channels are dialed.
type Options struct {
	BaseURL  string
	Token    string
	UserID   int
	DeviceID string
	// Retries bounds the dial attempts after the first one.
	Retries int
	// InitialInterval is the first backoff delay. Zero uses 200ms.
	InitialInterval time.Duration
	Dialer          *websocket.Dialer
}

func (o Options) dialer() *websocket.Dialer {
	if o.Dialer != nil {
		return o.Dialer
	}
	return &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 10 * time.Second,
	}
}

func (o Options) backoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	if o.InitialInterval > 0 {
		b.InitialInterval = o.InitialInterval
	}
	b.MaxInterval = 5 * time.Second
	retries := o.Retries
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)
}

// dial opens the socket at path, retrying transient failures.
func dial(ctx context.Context, opts Options, path string, info ConnInfo) (*websocket.Conn, ConnInfo, error) {
	ctx, span := otel.Tracer("chat-client/ws").Start(ctx, "ws.handshake", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attribute.String("ws.kind", info.Kind), attribute.Int("ws.resource_id", info.ResourceID))

	url := strings.TrimRight(opts.BaseURL, "/") + path
	header := http.Header{}
	if opts.Token != "" {
		header.Set("Authorization", "Bearer "+opts.Token)
	}
	info.RequestID = observability.TagHeader(header, opts.DeviceID)
	info.TraceID = span.SpanContext().TraceID().String()

	d := opts.dialer()
	attempt := 0
	conn, err := backoff.RetryWithData(func() (*websocket.Conn, error) {
		attempt++
		conn, resp, err := d.DialContext(ctx, url, header)
		if err == nil {
			return conn, nil
		}
		if resp != nil && resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return nil, backoff.Permanent(fmt.Errorf("%w: %s: status %d", ErrHandshakeRejected, path, resp.StatusCode))
		}
		return nil, fmt.Errorf("dial %s (attempt %d): %w", path, attempt, err)
	}, opts.backoff(ctx))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, info, err
	}

	info.ConnID = newConnID()
	info.ConnectedAt = time.Now()
	return conn, info, nil
}
