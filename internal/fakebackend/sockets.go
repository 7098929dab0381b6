package fakebackend

import (
	"net/http"
	"sort"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleConversationSocket upgrades a room connection. Every frame a member
// writes is relayed verbatim to the whole room, the writer included.
func (s *Server) handleConversationSocket(collection string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
			return
		}

		_, span := otel.Tracer("chat-fake-backend/ws").Start(c.Request.Context(), "ws.handshake")
		defer span.End()

		userID, ok := s.socketUser(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		s.mu.Lock()
		conv := s.lookup(collection, id)
		member := conv != nil && conv.isMember(userID)
		s.mu.Unlock()
		if conv == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		if !member {
			c.JSON(http.StatusForbidden, gin.H{"error": "not authorized for " + collection})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		key := roomKey{collection: collection, id: id}
		p := &peer{conn: conn, userID: userID}
		s.hub.addRoomPeer(key, p)

		go func() {
			defer func() {
				s.hub.removeRoomPeer(key, p)
				conn.Close()
			}()
			for {
				_, payload, err := conn.ReadMessage()
				if err != nil {
					return
				}
				s.hub.relay(key, payload)
			}
		}()
	}
}

// handleUserSocket upgrades the per-user signal connection. It is push only.
func (s *Server) handleUserSocket(c *gin.Context) {
	pathID, err := strconv.Atoi(c.Param("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	userID, ok := s.socketUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	if userID != pathID {
		c.JSON(http.StatusForbidden, gin.H{"error": "token does not match user"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	p := &peer{conn: conn, userID: userID}
	s.hub.addUserPeer(p)

	go func() {
		defer func() {
			s.hub.removeUserPeer(p)
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func sortedIDs(m map[int]*conversation) []int {
	ids := make([]int, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func sortedUserIDs(m map[int]User) []int {
	ids := make([]int, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
