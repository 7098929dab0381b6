// Package conversation holds the state of one open conversation: its message
// list, optimistic sends and the socket events merged into it.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"chat-client/internal/models"
	"chat-client/internal/observability"
)

var (
	// ErrClosed is returned for operations completing after Close.
	ErrClosed = errors.New("conversation closed")
	// ErrEmptyMessage is returned when neither text nor image was given.
	ErrEmptyMessage = errors.New("message has no text and no image")
	// ErrUnknownMessage is returned when an id is not in the list.
	ErrUnknownMessage = errors.New("message not found")
)

const localPrefix = "local-"

// Backend is the REST surface the view model needs.
type Backend interface {
	ListMessages(ctx context.Context, ref models.ConversationRef) ([]models.Message, error)
	SendMessage(ctx context.Context, ref models.ConversationRef, out models.OutgoingMessage) (models.SentMessage, error)
	DeleteMessage(ctx context.Context, ref models.ConversationRef, messageID string) error
	EditMessage(ctx context.Context, ref models.ConversationRef, messageID, text string) error
}

// Broadcaster re-broadcasts confirmed messages on the conversation socket.
type Broadcaster interface {
	Broadcast(ctx context.Context, msg models.Message) error
}

// UnreadClearer drops a conversation's unread direct-message count.
type UnreadClearer interface {
	ClearUnreadDM(conversationID int)
}

// Auditor records failed sends.
type Auditor interface {
	Emit(ctx context.Context, level, text, conversation, requestID string, userID int)
}

// Option configures a ViewModel.
type Option func(*ViewModel)

// WithUnreadClearer clears the conversation's unread entry on the first Load.
func WithUnreadClearer(c UnreadClearer) Option {
	return func(v *ViewModel) { v.unread = c }
}

// WithAuditor reports send failures to a.
func WithAuditor(a Auditor) Option {
	return func(v *ViewModel) { v.audit = a }
}

// ViewModel is the message list of one conversation as seen by user me.
type ViewModel struct {
	ref     models.ConversationRef
	me      int
	backend Backend
	unread  UnreadClearer
	audit   Auditor

	mu           sync.Mutex
	socket       Broadcaster
	messages     []models.Message
	queued       []models.Message
	outgoing     map[string]models.OutgoingMessage
	seen         map[string]bool
	loaded       bool
	unreadClear  bool
	closed       bool
	listeners    map[int]func([]models.Message)
	nextListener int
}

// New creates the view model for ref.
func New(ref models.ConversationRef, me int, backend Backend, opts ...Option) *ViewModel {
	v := &ViewModel{
		ref:       ref,
		me:        me,
		backend:   backend,
		outgoing:  make(map[string]models.OutgoingMessage),
		seen:      make(map[string]bool),
		listeners: make(map[int]func([]models.Message)),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Ref identifies the conversation.
func (v *ViewModel) Ref() models.ConversationRef {
	return v.ref
}

// Load fetches the history. Socket events received before it completes are
// appended after the history in arrival order. On failure the list holds only
// those queued events and the error is returned.
func (v *ViewModel) Load(ctx context.Context) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return ErrClosed
	}
	clearUnread := !v.unreadClear && v.unread != nil && v.ref.Kind != models.KindGroup
	v.unreadClear = true
	v.mu.Unlock()

	if clearUnread {
		v.unread.ClearUnreadDM(v.ref.ID)
	}

	history, err := v.backend.ListMessages(ctx, v.ref)
	if err != nil {
		log.Printf("conversation: history fetch failed %s: %v", v.ref, err)
	}

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return ErrClosed
	}
	// Sends made before the history arrived stay after it.
	local := v.messages
	merged := make([]models.Message, 0, len(history)+len(v.queued)+len(local))
	fetched := make(map[string]bool, len(history)+len(v.queued))
	for _, m := range append(history, v.queued...) {
		if fetched[m.ID] {
			continue
		}
		fetched[m.ID] = true
		v.seen[m.ID] = true
		merged = append(merged, m)
	}
	for _, m := range local {
		if !fetched[m.ID] {
			merged = append(merged, m)
		}
	}
	v.messages = merged
	v.queued = nil
	v.loaded = true
	snapshot, listeners := v.changedLocked()
	v.mu.Unlock()

	notify(snapshot, listeners)
	if err != nil {
		return fmt.Errorf("load %s: %w", v.ref, err)
	}
	return nil
}

// AttachSocket sets where confirmed sends are re-broadcast.
func (v *ViewModel) AttachSocket(b Broadcaster) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.socket = b
}

// HandleIncoming merges a socket event. Own messages and ids already in the
// list are ignored.
func (v *ViewModel) HandleIncoming(m models.Message) {
	v.mu.Lock()
	if v.closed || m.SenderID == v.me {
		v.mu.Unlock()
		return
	}
	if !v.loaded {
		for _, q := range v.queued {
			if q.ID == m.ID {
				v.mu.Unlock()
				return
			}
		}
		v.queued = append(v.queued, m)
		v.mu.Unlock()
		return
	}
	if v.seen[m.ID] {
		v.mu.Unlock()
		return
	}
	v.seen[m.ID] = true
	v.messages = append(v.messages, m)
	snapshot, listeners := v.changedLocked()
	v.mu.Unlock()

	notify(snapshot, listeners)
}

// Send appends a provisional message and posts it. Image-only messages are
// appended once the backend confirms them. A confirmed image is carried on the
// same entry as its text. The returned message is the
// confirmed entry on success or the failed entry otherwise.
func (v *ViewModel) Send(ctx context.Context, out models.OutgoingMessage) (models.Message, error) {
	if out.Text == "" && out.Image == nil {
		return models.Message{}, ErrEmptyMessage
	}

	localID := localPrefix + uuid.NewString()
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return models.Message{}, ErrClosed
	}
	var snapshot []models.Message
	var listeners []func([]models.Message)
	provisional := out.Text != ""
	if provisional {
		v.outgoing[localID] = out
		v.messages = append(v.messages, models.Message{
			ID:       localID,
			LocalID:  localID,
			Text:     out.Text,
			SenderID: v.me,
			Status:   models.StatusPending,
		})
		snapshot, listeners = v.changedLocked()
	}
	v.mu.Unlock()
	notify(snapshot, listeners)

	return v.deliver(ctx, localID, out, provisional)
}

// Retry re-sends a failed provisional message.
func (v *ViewModel) Retry(ctx context.Context, localID string) (models.Message, error) {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return models.Message{}, ErrClosed
	}
	idx := v.indexLocal(localID)
	out, ok := v.outgoing[localID]
	if idx < 0 || !ok || v.messages[idx].Status != models.StatusFailed {
		v.mu.Unlock()
		return models.Message{}, fmt.Errorf("retry %s: %w", localID, ErrUnknownMessage)
	}
	v.messages[idx].Status = models.StatusPending
	snapshot, listeners := v.changedLocked()
	v.mu.Unlock()
	notify(snapshot, listeners)

	return v.deliver(ctx, localID, out, true)
}

// Discard drops a failed provisional message.
func (v *ViewModel) Discard(localID string) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return ErrClosed
	}
	idx := v.indexLocal(localID)
	if idx < 0 || v.messages[idx].Status != models.StatusFailed {
		v.mu.Unlock()
		return fmt.Errorf("discard %s: %w", localID, ErrUnknownMessage)
	}
	v.messages = append(v.messages[:idx], v.messages[idx+1:]...)
	delete(v.outgoing, localID)
	snapshot, listeners := v.changedLocked()
	v.mu.Unlock()
	notify(snapshot, listeners)
	return nil
}

func (v *ViewModel) deliver(ctx context.Context, localID string, out models.OutgoingMessage, provisional bool) (models.Message, error) {
	ctx, requestID := observability.EnsureRequestID(ctx)
	sent, err := v.backend.SendMessage(ctx, v.ref, out)

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return models.Message{}, ErrClosed
	}

	if err != nil {
		observability.IncSend("failed")
		log.Printf("conversation: send failed %s local_id=%s request_id=%s: %v", v.ref, localID, requestID, err)
		var failed models.Message
		var snapshot []models.Message
		var listeners []func([]models.Message)
		if idx := v.indexLocal(localID); provisional && idx >= 0 {
			v.messages[idx].Status = models.StatusFailed
			failed = v.messages[idx]
			snapshot, listeners = v.changedLocked()
		}
		audit := v.audit
		v.mu.Unlock()
		notify(snapshot, listeners)
		if audit != nil {
			audit.Emit(ctx, "ERROR", "send failed: "+err.Error(), v.ref.String(), requestID, v.me)
		}
		return failed, fmt.Errorf("send %s: %w", v.ref, err)
	}

	observability.IncSend("sent")
	confirmed := models.Message{
		ID:        sent.ID,
		Text:      sent.Text,
		ImageURL:  sent.ImageURL,
		SenderID:  v.me,
		Timestamp: sent.Timestamp,
		Status:    models.StatusSent,
	}
	placed := false
	if provisional {
		if idx := v.indexLocal(localID); idx >= 0 {
			entry := &v.messages[idx]
			entry.ID = sent.ID
			entry.ImageURL = sent.ImageURL
			entry.Timestamp = sent.Timestamp
			entry.Status = models.StatusSent
			confirmed = *entry
			placed = true
		}
		delete(v.outgoing, localID)
	}
	// Text and image share one entry, the same shape history and peers see.
	if !placed && !v.seen[sent.ID] {
		v.messages = append(v.messages, confirmed)
	}
	v.seen[sent.ID] = true
	socket := v.socket
	snapshot, listeners := v.changedLocked()
	v.mu.Unlock()
	notify(snapshot, listeners)

	if socket != nil {
		if err := socket.Broadcast(ctx, confirmed); err != nil {
			log.Printf("conversation: re-broadcast failed %s id=%s: %v", v.ref, sent.ID, err)
		}
	}
	return confirmed, nil
}

// Delete removes a confirmed message on the backend, then locally.
func (v *ViewModel) Delete(ctx context.Context, messageID string) error {
	if err := v.checkConfirmed(messageID); err != nil {
		return err
	}
	if err := v.backend.DeleteMessage(ctx, v.ref, messageID); err != nil {
		return fmt.Errorf("delete %s/%s: %w", v.ref, messageID, err)
	}

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return ErrClosed
	}
	kept := v.messages[:0]
	for _, m := range v.messages {
		if m.ID != messageID {
			kept = append(kept, m)
		}
	}
	v.messages = kept
	snapshot, listeners := v.changedLocked()
	v.mu.Unlock()
	notify(snapshot, listeners)
	return nil
}

// Edit replaces the text of a confirmed message on the backend, then locally.
func (v *ViewModel) Edit(ctx context.Context, messageID, text string) error {
	if text == "" {
		return ErrEmptyMessage
	}
	if err := v.checkConfirmed(messageID); err != nil {
		return err
	}
	if err := v.backend.EditMessage(ctx, v.ref, messageID, text); err != nil {
		return fmt.Errorf("edit %s/%s: %w", v.ref, messageID, err)
	}

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return ErrClosed
	}
	for i := range v.messages {
		if v.messages[i].ID == messageID {
			v.messages[i].Text = text
			break
		}
	}
	snapshot, listeners := v.changedLocked()
	v.mu.Unlock()
	notify(snapshot, listeners)
	return nil
}

func (v *ViewModel) checkConfirmed(messageID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return ErrClosed
	}
	for _, m := range v.messages {
		if m.ID == messageID && !m.Provisional() {
			return nil
		}
	}
	return fmt.Errorf("%s: %w", messageID, ErrUnknownMessage)
}

// Messages returns a copy of the list.
func (v *ViewModel) Messages() []models.Message {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]models.Message(nil), v.messages...)
}

// Latest is the message the view stays pinned to.
func (v *ViewModel) Latest() (models.Message, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.messages) == 0 {
		return models.Message{}, false
	}
	return v.messages[len(v.messages)-1], true
}

// Subscribe registers fn for every list change and returns its cancel func.
func (v *ViewModel) Subscribe(fn func([]models.Message)) func() {
	v.mu.Lock()
	defer v.mu.Unlock()
	id := v.nextListener
	v.nextListener++
	v.listeners[id] = fn
	return func() {
		v.mu.Lock()
		defer v.mu.Unlock()
		delete(v.listeners, id)
	}
}

// Close discards every later completion.
func (v *ViewModel) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
	v.listeners = make(map[int]func([]models.Message))
}

// Closed reports whether Close was called.
func (v *ViewModel) Closed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.closed
}

func (v *ViewModel) indexLocal(localID string) int {
	for i, m := range v.messages {
		if m.LocalID == localID && m.ID == localID {
			return i
		}
	}
	return -1
}

func (v *ViewModel) changedLocked() ([]models.Message, []func([]models.Message)) {
	if len(v.listeners) == 0 {
		return nil, nil
	}
	snapshot := append([]models.Message(nil), v.messages...)
	listeners := make([]func([]models.Message), 0, len(v.listeners))
	for _, fn := range v.listeners {
		listeners = append(listeners, fn)
	}
	return snapshot, listeners
}

func notify(snapshot []models.Message, listeners []func([]models.Message)) {
	for _, fn := range listeners {
		fn(snapshot)
	}
}
