package notifications

import (
	"sync"
	"time"

	"chat-client/internal/models"
)

// DMPreview is the latest direct-message signal seen for a conversation.
type DMPreview struct {
	SenderID   int
	ReceivedAt time.Time
}

// State is a point-in-time copy of the store.
type State struct {
	Notifications []models.Notification
	UnreadCount   int
	UnreadDMs     map[int]int
	DMPreviews    map[int]DMPreview
	HasNewDM      bool
	BellOpen      bool
	MessagesOpen  bool
}

// UnreadDMTotal sums the per-conversation counts.
func (s State) UnreadDMTotal() int {
	total := 0
	for _, n := range s.UnreadDMs {
		total += n
	}
	return total
}

// Store holds the process-wide unread and notification state. All mutation
// goes through its methods.
type Store struct {
	mu        sync.RWMutex
	state     State
	listeners map[int]func(State)
	nextID    int
	now       func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		state:     emptyState(),
		listeners: make(map[int]func(State)),
		now:       time.Now,
	}
}

func emptyState() State {
	return State{
		UnreadDMs:  make(map[int]int),
		DMPreviews: make(map[int]DMPreview),
	}
}

// RecordIncomingDM counts one more unread message for the conversation.
// Every call increments; duplicate deliveries over-report.
func (s *Store) RecordIncomingDM(conversationID, senderID int) {
	s.update(func(st *State) {
		st.UnreadDMs[conversationID]++
		st.DMPreviews[conversationID] = DMPreview{SenderID: senderID, ReceivedAt: s.now()}
		st.HasNewDM = true
	})
}

// ClearUnreadDM drops the conversation's entry.
func (s *Store) ClearUnreadDM(conversationID int) {
	s.update(func(st *State) {
		delete(st.UnreadDMs, conversationID)
		st.HasNewDM = len(st.UnreadDMs) > 0
	})
}

// ClearAllUnreadDMs resets every per-conversation count.
func (s *Store) ClearAllUnreadDMs() {
	s.update(func(st *State) {
		st.UnreadDMs = make(map[int]int)
		st.HasNewDM = false
	})
}

// SetNotifications replaces the bell list with a fresh fetch.
func (s *Store) SetNotifications(list []models.Notification, unread int) {
	if unread < 0 {
		unread = 0
	}
	s.update(func(st *State) {
		st.Notifications = append([]models.Notification(nil), list...)
		st.UnreadCount = unread
	})
}

// MarkOneRead flags one notification read. It reports whether the
// notification was found unread.
func (s *Store) MarkOneRead(notificationID int) bool {
	changed := false
	s.update(func(st *State) {
		for i := range st.Notifications {
			if st.Notifications[i].ID != notificationID || st.Notifications[i].IsRead {
				continue
			}
			st.Notifications[i].IsRead = true
			changed = true
			if st.UnreadCount > 0 {
				st.UnreadCount--
			}
			return
		}
	})
	return changed
}

// MarkAllRead flags every notification read.
func (s *Store) MarkAllRead() {
	s.update(func(st *State) {
		for i := range st.Notifications {
			st.Notifications[i].IsRead = true
		}
		st.UnreadCount = 0
	})
}

// ToggleBell flips the bell dropdown. Opening it closes the messages dropdown.
// It returns the new visibility.
func (s *Store) ToggleBell() bool {
	var open bool
	s.update(func(st *State) {
		st.BellOpen = !st.BellOpen
		if st.BellOpen {
			st.MessagesOpen = false
		}
		open = st.BellOpen
	})
	return open
}

// ToggleMessages flips the messages dropdown. Opening it closes the bell.
func (s *Store) ToggleMessages() bool {
	var open bool
	s.update(func(st *State) {
		st.MessagesOpen = !st.MessagesOpen
		if st.MessagesOpen {
			st.BellOpen = false
		}
		open = st.MessagesOpen
	})
	return open
}

// CloseDropdowns closes whichever dropdown is open.
func (s *Store) CloseDropdowns() {
	s.update(func(st *State) {
		st.BellOpen = false
		st.MessagesOpen = false
	})
}

// Reset returns the store to its initial state, as on logout.
func (s *Store) Reset() {
	s.update(func(st *State) {
		*st = emptyState()
	})
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.clone()
}

// Subscribe registers fn to receive a snapshot after every mutation.
func (s *Store) Subscribe(fn func(State)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Store) update(fn func(*State)) {
	s.mu.Lock()
	fn(&s.state)
	snapshot := s.state.clone()
	listeners := make([]func(State), 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	for _, l := range listeners {
		l(snapshot)
	}
}

func (st State) clone() State {
	out := st
	out.Notifications = append([]models.Notification(nil), st.Notifications...)
	out.UnreadDMs = make(map[int]int, len(st.UnreadDMs))
	for k, v := range st.UnreadDMs {
		out.UnreadDMs[k] = v
	}
	out.DMPreviews = make(map[int]DMPreview, len(st.DMPreviews))
	for k, v := range st.DMPreviews {
		out.DMPreviews[k] = v
	}
	return out
}
