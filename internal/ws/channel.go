// Package ws manages the client's websocket channels: one per open
// conversation plus the per-user direct message signal channel.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"chat-client/internal/models"
	"chat-client/internal/observability"
)

// ErrNotOpen is returned when writing to a channel that is not open.
var ErrNotOpen = errors.New("websocket channel not open")

const writeWait = 10 * time.Second

// State is the lifecycle state of a channel.
type State int

const (
	StateConnecting State = iota
	StateOpen
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown(" + strconv.Itoa(int(s)) + ")"
	}
}

// Channel is one live websocket connection. Inbound frames are handled on a
// single read goroutine.
type Channel struct {
	conn *websocket.Conn
	info ConnInfo

	mu      sync.Mutex
	state   State
	err     error
	closing bool

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

// OpenConversation dials the conversation socket for ref. onMessage receives
// every decoded frame not sent by opts.UserID. ctx bounds the dial and the
// lifetime of the channel.
func OpenConversation(ctx context.Context, opts Options, ref models.ConversationRef, onMessage func(models.Message)) (*Channel, error) {
	info := ConnInfo{Kind: kindOf(ref), ResourceID: ref.ID, UserID: opts.UserID, DeviceID: opts.DeviceID}
	path := fmt.Sprintf("/ws/%s/%d", ref.Collection(), ref.ID)
	return open(ctx, opts, path, info, func(payload []byte) {
		var frame models.SocketFrame
		if err := models.Decode(payload, &frame); err != nil {
			log.Printf("ws: dropping frame conn=%s %s: %v", info.ConnID, ref, err)
			observability.IncWSEvent(info.Kind, "malformed")
			return
		}
		if frame.Sender == opts.UserID {
			observability.IncWSEvent(info.Kind, "own_echo")
			return
		}
		onMessage(frame.ToMessage())
	})
}

// OpenUser dials the per-user channel. onSignal receives every direct
// message signal whose sender is not opts.UserID.
func OpenUser(ctx context.Context, opts Options, onSignal func(models.DMSignal)) (*Channel, error) {
	info := ConnInfo{Kind: "user", ResourceID: opts.UserID, UserID: opts.UserID, DeviceID: opts.DeviceID}
	path := fmt.Sprintf("/ws/users/%d", opts.UserID)
	return open(ctx, opts, path, info, func(payload []byte) {
		var signal models.DMSignal
		if err := models.Decode(payload, &signal); err != nil {
			log.Printf("ws: dropping user signal user=%d: %v", opts.UserID, err)
			observability.IncWSEvent(info.Kind, "malformed")
			return
		}
		if signal.Sender == opts.UserID {
			observability.IncWSEvent(info.Kind, "own_echo")
			return
		}
		onSignal(signal)
	})
}

func open(ctx context.Context, opts Options, path string, info ConnInfo, handle func([]byte)) (*Channel, error) {
	conn, info, err := dial(ctx, opts, path, info)
	if err != nil {
		log.Printf("ws: dial failed kind=%s id=%d: %v", info.Kind, info.ResourceID, err)
		return nil, err
	}
	c := &Channel{conn: conn, info: info, state: StateOpen, done: make(chan struct{})}

	observability.IncWSActive(info.Kind)
	publish(info, "ws_connect", "")

	go c.readLoop(handle)
	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-c.done:
		}
	}()
	return c, nil
}

func (c *Channel) readLoop(handle func([]byte)) {
	var reason string
	defer func() {
		c.conn.Close()
		observability.DecWSActive(c.info.Kind)
		publish(c.info, "ws_disconnect", reason)
		close(c.done)
	}()

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			reason = err.Error()
			c.readFailed(err)
			return
		}
		handle(payload)
	}
}

func (c *Channel) readFailed(err error) {
	c.mu.Lock()
	closing := c.closing
	if !closing && c.state == StateOpen {
		c.state = StateFailed
		c.err = err
	}
	c.mu.Unlock()
	if closing {
		return
	}
	log.Printf("ws: channel failed kind=%s id=%d conn=%s: %v", c.info.Kind, c.info.ResourceID, c.info.ConnID, err)
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		publish(c.info, "ws_error", err.Error())
	}
}

// Broadcast writes a confirmed message to the conversation socket.
func (c *Channel) Broadcast(ctx context.Context, msg models.Message) error {
	frame, err := models.FrameFromMessage(msg)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	if s := c.State(); s != StateOpen {
		return fmt.Errorf("%w: %s", ErrNotOpen, s)
	}

	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(deadline)
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		c.mu.Lock()
		if c.state == StateOpen && !c.closing {
			c.state = StateFailed
			c.err = err
		}
		c.mu.Unlock()
		publish(c.info, "ws_error", err.Error())
		return fmt.Errorf("broadcast: %w", err)
	}
	return nil
}

// Close sends a close frame and tears the connection down. It is safe to
// call more than once and from any goroutine, including a frame handler.
// Wait on Done for the read goroutine to exit.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closing = true
		if c.state == StateOpen || c.state == StateConnecting {
			c.state = StateClosed
		}
		c.mu.Unlock()

		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		c.conn.Close()
	})
	return nil
}

// Done is closed once the read goroutine has exited.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// State reports the current lifecycle state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err is the failure that moved the channel to StateFailed.
func (c *Channel) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Info returns the connection's identity.
func (c *Channel) Info() ConnInfo {
	return c.info
}
