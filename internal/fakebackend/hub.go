package fakebackend

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/gorilla/websocket"
)

type roomKey struct {
	collection string
	id         int
}

type peer struct {
	conn   *websocket.Conn
	userID int
	mu     sync.Mutex
}

func (p *peer) write(payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn.WriteMessage(websocket.TextMessage, payload)
}

// Hub maintains active websocket rooms and per-user connections.
type Hub struct {
	rooms map[roomKey]map[*peer]bool
	users map[int]map[*peer]bool
	mu    sync.RWMutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		rooms: make(map[roomKey]map[*peer]bool),
		users: make(map[int]map[*peer]bool),
	}
}

func (h *Hub) addRoomPeer(key roomKey, p *peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[key]; !ok {
		h.rooms[key] = make(map[*peer]bool)
	}
	h.rooms[key][p] = true
}

func (h *Hub) removeRoomPeer(key roomKey, p *peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if peers, ok := h.rooms[key]; ok {
		delete(peers, p)
		if len(peers) == 0 {
			delete(h.rooms, key)
		}
	}
}

func (h *Hub) addUserPeer(p *peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.users[p.userID]; !ok {
		h.users[p.userID] = make(map[*peer]bool)
	}
	h.users[p.userID][p] = true
}

func (h *Hub) removeUserPeer(p *peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if peers, ok := h.users[p.userID]; ok {
		delete(peers, p)
		if len(peers) == 0 {
			delete(h.users, p.userID)
		}
	}
}

// relay sends a frame to every connection in the room, sender included.
func (h *Hub) relay(key roomKey, payload []byte) {
	for _, p := range h.roomPeers(key) {
		if err := p.write(payload); err != nil {
			log.Printf("websocket write error: %v", err)
			p.conn.Close()
			h.removeRoomPeer(key, p)
		}
	}
}

// notifyUser pushes a frame to every user-scoped connection of userID.
func (h *Hub) notifyUser(userID int, event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	h.mu.RLock()
	peers := make([]*peer, 0, len(h.users[userID]))
	for p := range h.users[userID] {
		peers = append(peers, p)
	}
	h.mu.RUnlock()

	for _, p := range peers {
		if err := p.write(payload); err != nil {
			log.Printf("websocket write error: %v", err)
			p.conn.Close()
			h.removeUserPeer(p)
		}
	}
}

func (h *Hub) roomPeers(key roomKey) []*peer {
	h.mu.RLock()
	defer h.mu.RUnlock()
	peers := make([]*peer, 0, len(h.rooms[key]))
	for p := range h.rooms[key] {
		peers = append(peers, p)
	}
	return peers
}

// RoomSize reports how many connections are in a conversation room.
func (h *Hub) RoomSize(collection string, id int) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomKey{collection: collection, id: id}])
}

// UserConnections reports how many user-scoped connections userID holds.
func (h *Hub) UserConnections(userID int) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID])
}

// DropAll closes every connection, simulating a backend restart.
func (h *Hub) DropAll() {
	h.mu.RLock()
	var peers []*peer
	for _, room := range h.rooms {
		for p := range room {
			peers = append(peers, p)
		}
	}
	for _, conns := range h.users {
		for p := range conns {
			peers = append(peers, p)
		}
	}
	h.mu.RUnlock()

	for _, p := range peers {
		p.conn.Close()
	}
}
