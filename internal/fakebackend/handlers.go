package fakebackend

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"chat-client/internal/models"
)

type historyUser struct {
	ID int `json:"id"`
}

type historyEntry struct {
	ID      int         `json:"id"`
	Content string      `json:"content"`
	Image   string      `json:"image,omitempty"`
	User    historyUser `json:"user"`
	SentAt  time.Time   `json:"sent_at"`
}

type sentEntry struct {
	ID        int       `json:"id"`
	Content   string    `json:"content"`
	Sender    int       `json:"sender"`
	Image     string    `json:"image,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// member resolves the :id conversation and checks the caller belongs to it.
func (s *Server) member(c *gin.Context, collection string) (*conversation, int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return nil, 0, false
	}
	userID := c.GetInt("userID")
	conv := s.lookup(collection, id)
	if conv == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": strings.TrimSuffix(collection, "s") + " not found"})
		return nil, 0, false
	}
	if !conv.isMember(userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a member"})
		return nil, 0, false
	}
	return conv, userID, true
}

func (s *Server) listMessages(collection string) gin.HandlerFunc {
	return func(c *gin.Context) {
		s.mu.Lock()
		defer s.mu.Unlock()
		conv, _, ok := s.member(c, collection)
		if !ok {
			return
		}
		resp := make([]historyEntry, 0, len(conv.msgs))
		for _, m := range conv.msgs {
			resp = append(resp, historyEntry{ID: m.ID, Content: m.Content, Image: m.Image, User: historyUser{ID: m.SenderID}, SentAt: m.SentAt})
		}
		c.JSON(http.StatusOK, gin.H{"messages": resp})
	}
}

func (s *Server) postMessage(collection string) gin.HandlerFunc {
	return func(c *gin.Context) {
		content := c.PostForm("content")
		var image string
		file, fileErr := c.FormFile("image_content")

		s.mu.Lock()
		conv, userID, ok := s.member(c, collection)
		if !ok {
			s.mu.Unlock()
			return
		}
		if s.failSends > 0 {
			s.failSends--
			s.mu.Unlock()
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save message"})
			return
		}
		if content == "" && fileErr != nil {
			s.mu.Unlock()
			c.JSON(http.StatusOK, gin.H{"success": false, "error": "empty message"})
			return
		}
		s.nextID++
		id := s.nextID
		if fileErr == nil {
			image = fmt.Sprintf("/media/%d-%s", id, file.Filename)
		}
		stored := storedMessage{ID: id, SenderID: userID, Content: content, Image: image, SentAt: time.Now().UTC()}
		conv.msgs = append(conv.msgs, stored)
		for _, m := range conv.members {
			delete(conv.hidden, m)
		}
		var recipients []int
		if collection == collectionChats {
			for _, m := range conv.members {
				if m != userID {
					recipients = append(recipients, m)
				}
			}
		}
		chatID := conv.id
		s.mu.Unlock()

		for _, r := range recipients {
			s.hub.notifyUser(r, models.DMSignal{ChatID: chatID, Sender: userID})
		}

		c.JSON(http.StatusCreated, gin.H{"success": true, "data": sentEntry{
			ID:        stored.ID,
			Content:   stored.Content,
			Sender:    stored.SenderID,
			Image:     stored.Image,
			Timestamp: stored.SentAt,
		}})
	}
}

func (s *Server) findMessage(conv *conversation, c *gin.Context) (int, bool) {
	messageID, err := strconv.Atoi(c.Param("message_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return 0, false
	}
	for i, m := range conv.msgs {
		if m.ID == messageID {
			return i, true
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
	return 0, false
}

func (s *Server) deleteMessage(collection string) gin.HandlerFunc {
	return func(c *gin.Context) {
		s.mu.Lock()
		defer s.mu.Unlock()
		conv, userID, ok := s.member(c, collection)
		if !ok {
			return
		}
		idx, ok := s.findMessage(conv, c)
		if !ok {
			return
		}
		if conv.msgs[idx].SenderID != userID {
			c.JSON(http.StatusOK, gin.H{"success": false, "error": "cannot delete another user's message"})
			return
		}
		conv.msgs = append(conv.msgs[:idx], conv.msgs[idx+1:]...)
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

func (s *Server) editMessage(collection string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Content string `json:"content" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		conv, userID, ok := s.member(c, collection)
		if !ok {
			return
		}
		idx, ok := s.findMessage(conv, c)
		if !ok {
			return
		}
		if conv.msgs[idx].SenderID != userID {
			c.JSON(http.StatusOK, gin.H{"success": false, "error": "cannot edit another user's message"})
			return
		}
		conv.msgs[idx].Content = req.Content
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

func (s *Server) listChats(c *gin.Context) {
	userID := c.GetInt("userID")

	type chatResponse struct {
		ChatID         int       `json:"chat_id"`
		FriendID       int       `json:"friend_id"`
		FriendUsername string    `json:"friend_username,omitempty"`
		LastMessage    string    `json:"last_message,omitempty"`
		CreatedAt      time.Time `json:"created_at"`
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	responses := make([]chatResponse, 0)
	for _, id := range sortedIDs(s.chats) {
		chat := s.chats[id]
		if !chat.isMember(userID) || chat.hidden[userID] {
			continue
		}
		friend := chat.members[0]
		if friend == userID && len(chat.members) > 1 {
			friend = chat.members[1]
		}
		resp := chatResponse{ChatID: chat.id, FriendID: friend, FriendUsername: s.users[friend].Username, CreatedAt: chat.created}
		if n := len(chat.msgs); n > 0 {
			resp.LastMessage = chat.msgs[n-1].Content
		}
		responses = append(responses, resp)
	}
	c.JSON(http.StatusOK, gin.H{"chats": responses})
}

func (s *Server) listGroups(c *gin.Context) {
	userID := c.GetInt("userID")

	type groupResponse struct {
		ID        int       `json:"id"`
		Name      string    `json:"name"`
		OwnerID   int       `json:"owner_id"`
		MemberIDs []int     `json:"member_ids"`
		CreatedAt time.Time `json:"created_at"`
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	responses := make([]groupResponse, 0)
	for _, id := range sortedIDs(s.groups) {
		group := s.groups[id]
		if !group.isMember(userID) || group.hidden[userID] {
			continue
		}
		responses = append(responses, groupResponse{
			ID:        group.id,
			Name:      group.name,
			OwnerID:   group.ownerID,
			MemberIDs: append([]int(nil), group.members...),
			CreatedAt: group.created,
		})
	}
	c.JSON(http.StatusOK, gin.H{"groups": responses})
}

func (s *Server) startChat(c *gin.Context) {
	var req struct {
		FriendID int `json:"friend_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	userID := c.GetInt("userID")
	if userID == req.FriendID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot chat with yourself"})
		return
	}

	s.mu.Lock()
	if _, ok := s.users[req.FriendID]; !ok {
		s.mu.Unlock()
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	for _, chat := range s.chats {
		if chat.isMember(userID) && chat.isMember(req.FriendID) {
			delete(chat.hidden, userID)
			s.mu.Unlock()
			c.JSON(http.StatusOK, gin.H{"chat_id": chat.id})
			return
		}
	}
	s.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{"chat_id": s.AddChat(userID, req.FriendID)})
}

func (s *Server) deleteConversation(collection string) gin.HandlerFunc {
	return func(c *gin.Context) {
		s.mu.Lock()
		defer s.mu.Unlock()
		conv, userID, ok := s.member(c, collection)
		if !ok {
			return
		}
		conv.hidden[userID] = true
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

func (s *Server) searchUsers(c *gin.Context) {
	query := strings.ToLower(strings.TrimSpace(c.Query("q")))
	userID := c.GetInt("userID")

	s.mu.Lock()
	defer s.mu.Unlock()
	results := make([]models.UserSummary, 0)
	if query == "" {
		c.JSON(http.StatusOK, gin.H{"search_results": results})
		return
	}
	for _, id := range sortedUserIDs(s.users) {
		u := s.users[id]
		if u.ID == userID {
			continue
		}
		if strings.Contains(strings.ToLower(u.FullName), query) || strings.Contains(strings.ToLower(u.Username), query) {
			results = append(results, models.UserSummary{ID: u.ID, FullName: u.FullName})
		}
	}
	c.JSON(http.StatusOK, gin.H{"search_results": results})
}

func (s *Server) listNotifications(c *gin.Context) {
	userID := c.GetInt("userID")

	s.mu.Lock()
	defer s.mu.Unlock()
	list := append([]models.Notification{}, s.notifications[userID]...)
	unread := 0
	for _, n := range list {
		if !n.IsRead {
			unread++
		}
	}
	c.JSON(http.StatusOK, gin.H{"notifications": list, "unread_count": unread})
}

func (s *Server) markRead(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	userID := c.GetInt("userID")

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.notifications[userID] {
		if s.notifications[userID][i].ID == id {
			s.notifications[userID][i].IsRead = true
			c.JSON(http.StatusOK, gin.H{"success": true})
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "notification not found"})
}

func (s *Server) markAllRead(c *gin.Context) {
	userID := c.GetInt("userID")

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.notifications[userID] {
		s.notifications[userID][i].IsRead = true
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
