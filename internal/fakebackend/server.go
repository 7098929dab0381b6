// Package fakebackend is an in-memory stand-in for the social backend's REST
// and websocket endpoints, used to exercise the client end to end.
package fakebackend

import (
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"chat-client/internal/models"
)

// User is an account known to the fake backend.
type User struct {
	ID       int
	Username string
	FullName string
	Token    string
}

type storedMessage struct {
	ID       int
	SenderID int
	Content  string
	Image    string
	SentAt   time.Time
}

type conversation struct {
	id      int
	name    string
	ownerID int
	members []int
	hidden  map[int]bool
	msgs    []storedMessage
	created time.Time
}

func (c *conversation) isMember(userID int) bool {
	for _, m := range c.members {
		if m == userID {
			return true
		}
	}
	return false
}

// Server is the fake backend.
type Server struct {
	mu            sync.Mutex
	users         map[int]User
	tokens        map[string]int
	chats         map[int]*conversation
	groups        map[int]*conversation
	notifications map[int][]models.Notification
	nextID        int
	failSends     int
	hub           *Hub
	engine        *gin.Engine
}

// New builds a fake backend with the given accounts.
func New(users ...User) *Server {
	gin.SetMode(gin.TestMode)
	s := &Server{
		users:         make(map[int]User),
		tokens:        make(map[string]int),
		chats:         make(map[int]*conversation),
		groups:        make(map[int]*conversation),
		notifications: make(map[int][]models.Notification),
		hub:           NewHub(),
	}
	for _, u := range users {
		s.users[u.ID] = u
		s.tokens[u.Token] = u.ID
	}
	s.engine = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("chat-fake-backend"))

	auth := s.authMiddleware()

	router.GET("/chats", auth, s.listChats)
	router.POST("/chats/start", auth, s.startChat)
	router.DELETE("/chats/:id", auth, s.deleteConversation(collectionChats))
	router.GET("/groups", auth, s.listGroups)
	router.DELETE("/groups/:id", auth, s.deleteConversation(collectionGroups))

	for _, collection := range []string{collectionChats, collectionGroups} {
		base := "/" + collection + "/:id/messages"
		router.GET(base, auth, s.listMessages(collection))
		router.POST(base, auth, s.postMessage(collection))
		router.DELETE(base+"/:message_id", auth, s.deleteMessage(collection))
		router.PATCH(base+"/:message_id", auth, s.editMessage(collection))
		router.GET("/ws/"+collection+"/:id", s.handleConversationSocket(collection))
	}
	router.GET("/ws/users/:user_id", s.handleUserSocket)

	router.GET("/users/search", auth, s.searchUsers)
	router.GET("/notifications", auth, s.listNotifications)
	router.POST("/notifications/read-all", auth, s.markAllRead)
	router.POST("/notifications/:id/read", auth, s.markRead)
	return router
}

// Handler returns the HTTP handler serving every endpoint.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Hub exposes the socket rooms for assertions.
func (s *Server) Hub() *Hub {
	return s.hub
}

// AddChat creates a private chat between a and b.
func (s *Server) AddChat(a, b int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	members := []int{a, b}
	sort.Ints(members)
	s.chats[s.nextID] = &conversation{id: s.nextID, members: members, hidden: map[int]bool{}, created: time.Now().UTC()}
	return s.nextID
}

// AddGroup creates a group owned by owner.
func (s *Server) AddGroup(name string, owner int, members ...int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	set := map[int]struct{}{owner: {}}
	for _, m := range members {
		set[m] = struct{}{}
	}
	ids := make([]int, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	s.groups[s.nextID] = &conversation{id: s.nextID, name: name, ownerID: owner, members: ids, hidden: map[int]bool{}, created: time.Now().UTC()}
	return s.nextID
}

// SeedMessage stores a message without any socket or notification side effect.
func (s *Server) SeedMessage(ref models.ConversationRef, senderID int, content string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv := s.lookup(ref.Collection(), ref.ID)
	if conv == nil {
		return 0
	}
	s.nextID++
	conv.msgs = append(conv.msgs, storedMessage{ID: s.nextID, SenderID: senderID, Content: content, SentAt: time.Now().UTC()})
	return s.nextID
}

// AddNotification queues a bell notification for userID.
func (s *Server) AddNotification(userID int, n models.Notification) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	n.ID = s.nextID
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	s.notifications[userID] = append(s.notifications[userID], n)
	return n.ID
}

// FailNextSends makes the next n message posts answer 500.
func (s *Server) FailNextSends(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failSends = n
}

// MessageCount returns how many messages a conversation holds.
func (s *Server) MessageCount(ref models.ConversationRef) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv := s.lookup(ref.Collection(), ref.ID)
	if conv == nil {
		return 0
	}
	return len(conv.msgs)
}

const (
	collectionChats  = "chats"
	collectionGroups = "groups"
)

func (s *Server) lookup(collection string, id int) *conversation {
	if collection == collectionGroups {
		return s.groups[id]
	}
	return s.chats[id]
}
