package ws

import (
	"context"
	"sync"

	"chat-client/internal/models"
)

// Manager keeps at most one channel per open conversation and one user
// channel.
type Manager struct {
	opts          Options
	conversations map[models.ConversationRef]*Channel
	user          *Channel
	mu            sync.Mutex
}

// NewManager creates a manager dialing with opts.
func NewManager(opts Options) *Manager {
	return &Manager{
		opts:          opts,
		conversations: make(map[models.ConversationRef]*Channel),
	}
}

// OpenConversation dials ref, replacing any channel already open for it.
func (m *Manager) OpenConversation(ctx context.Context, ref models.ConversationRef, onMessage func(models.Message)) (*Channel, error) {
	m.CloseConversation(ref)

	ch, err := OpenConversation(ctx, m.opts, ref, onMessage)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	prev := m.conversations[ref]
	m.conversations[ref] = ch
	m.mu.Unlock()
	if prev != nil {
		prev.Close()
	}

	go func() {
		<-ch.Done()
		m.mu.Lock()
		if m.conversations[ref] == ch {
			delete(m.conversations, ref)
		}
		m.mu.Unlock()
	}()
	return ch, nil
}

// Conversation returns the live channel for ref.
func (m *Manager) Conversation(ref models.ConversationRef) (*Channel, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.conversations[ref]
	return ch, ok
}

// CloseConversation closes the channel for ref if one is open.
func (m *Manager) CloseConversation(ref models.ConversationRef) {
	m.mu.Lock()
	ch := m.conversations[ref]
	delete(m.conversations, ref)
	m.mu.Unlock()
	if ch != nil {
		ch.Close()
	}
}

// OpenUser dials the per-user channel, replacing the previous one.
func (m *Manager) OpenUser(ctx context.Context, onSignal func(models.DMSignal)) (*Channel, error) {
	ch, err := OpenUser(ctx, m.opts, onSignal)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	prev := m.user
	m.user = ch
	m.mu.Unlock()
	if prev != nil {
		prev.Close()
	}
	return ch, nil
}

// User returns the per-user channel, or nil.
func (m *Manager) User() *Channel {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.user
}

// Len reports how many conversation channels are tracked.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.conversations)
}

// CloseAll closes every channel, as on logout.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	channels := make([]*Channel, 0, len(m.conversations)+1)
	for ref, ch := range m.conversations {
		channels = append(channels, ch)
		delete(m.conversations, ref)
	}
	if m.user != nil {
		channels = append(channels, m.user)
		m.user = nil
	}
	m.mu.Unlock()

	for _, ch := range channels {
		ch.Close()
	}
}
