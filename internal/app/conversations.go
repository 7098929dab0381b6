package app

import (
	"sync"
	"time"

	"chat-client/internal/models"
)

// directory is the conversation list as last fetched, kept current by the
// messages sent and received since.
type directory struct {
	mu   sync.Mutex
	list []models.Conversation
}

// replace swaps in a freshly fetched list. Live unread counts that the
// backend has not caught up with yet are kept.
func (d *directory) replace(list []models.Conversation, unread map[int]int) {
	fresh := make([]models.Conversation, len(list))
	copy(fresh, list)
	for i := range fresh {
		if fresh[i].Ref.Kind == models.KindGroup {
			continue
		}
		if n := unread[fresh[i].Ref.ID]; n > fresh[i].UnreadCount {
			fresh[i].UnreadCount = n
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.list = fresh
}

// add records a conversation created locally unless it is already listed.
func (d *directory) add(conv models.Conversation) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, c := range d.list {
		if c.Ref == conv.Ref {
			return
		}
	}
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = time.Now().UTC()
	}
	d.list = append(d.list, conv)
}

// update applies fn to the entry of ref and reports whether it was listed.
func (d *directory) update(ref models.ConversationRef, fn func(*models.Conversation)) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.list {
		if d.list[i].Ref == ref {
			fn(&d.list[i])
			return true
		}
	}
	return false
}

func (d *directory) remove(ref models.ConversationRef) {
	d.mu.Lock()
	defer d.mu.Unlock()
	kept := d.list[:0]
	for _, c := range d.list {
		if c.Ref != ref {
			kept = append(kept, c)
		}
	}
	d.list = kept
}

func (d *directory) reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.list = nil
}

func (d *directory) snapshot() []models.Conversation {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snapshotLocked()
}

func (d *directory) snapshotLocked() []models.Conversation {
	out := make([]models.Conversation, len(d.list))
	for i, c := range d.list {
		c.ParticipantIDs = append([]int(nil), c.ParticipantIDs...)
		out[i] = c
	}
	return out
}

// preview is the one-line summary of m shown in the conversation list.
func preview(m models.Message) string {
	if m.Text != "" {
		return m.Text
	}
	if m.ImageURL != "" {
		return "[image]"
	}
	return ""
}
