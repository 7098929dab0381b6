package fakebackend

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-client/internal/models"
)

var (
	alice = User{ID: 1, Username: "alice", FullName: "Alice Smith", Token: "tok-alice"}
	bob   = User{ID: 2, Username: "bob", FullName: "Bob Jones", Token: "tok-bob"}
)

func do(t *testing.T, s *Server, method, path, token string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func postForm(t *testing.T, s *Server, path, token, content string) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	require.NoError(t, w.WriteField("content", content))
	require.NoError(t, w.Close())
	return do(t, s, http.MethodPost, path, token, &body, w.FormDataContentType())
}

func TestAuthRequired(t *testing.T) {
	s := New(alice)

	rec := do(t, s, http.MethodGet, "/chats", "", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, s, http.MethodGet, "/chats", "nope", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPostAndListMessages(t *testing.T) {
	s := New(alice, bob)
	chatID := s.AddChat(alice.ID, bob.ID)
	path := "/chats/" + itoa(chatID) + "/messages"

	rec := postForm(t, s, path, alice.Token, "hello")
	require.Equal(t, http.StatusCreated, rec.Code)

	var sent models.SendResponse
	require.NoError(t, models.Decode(rec.Body.Bytes(), &sent))
	require.True(t, sent.Success)
	assert.Equal(t, alice.ID, sent.Data.Sender)

	rec = do(t, s, http.MethodGet, path, bob.Token, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var history models.HistoryResponse
	require.NoError(t, models.Decode(rec.Body.Bytes(), &history))
	require.Len(t, history.Messages, 1)
	assert.Equal(t, "hello", history.Messages[0].Content)
}

func TestNonMemberForbidden(t *testing.T) {
	carol := User{ID: 3, Username: "carol", FullName: "Carol", Token: "tok-carol"}
	s := New(alice, bob, carol)
	chatID := s.AddChat(alice.ID, bob.ID)

	rec := do(t, s, http.MethodGet, "/chats/"+itoa(chatID)+"/messages", carol.Token, nil, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, s, http.MethodGet, "/groups/99/messages", carol.Token, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFailNextSends(t *testing.T) {
	s := New(alice, bob)
	chatID := s.AddChat(alice.ID, bob.ID)
	path := "/chats/" + itoa(chatID) + "/messages"
	s.FailNextSends(1)

	assert.Equal(t, http.StatusInternalServerError, postForm(t, s, path, alice.Token, "x").Code)
	assert.Equal(t, http.StatusCreated, postForm(t, s, path, alice.Token, "x").Code)
	assert.Equal(t, 1, s.MessageCount(models.ChatRef(chatID)))
}

func TestDeleteOnlyOwnMessage(t *testing.T) {
	s := New(alice, bob)
	chatID := s.AddChat(alice.ID, bob.ID)
	msgID := s.SeedMessage(models.ChatRef(chatID), alice.ID, "mine")
	path := "/chats/" + itoa(chatID) + "/messages/" + itoa(msgID)

	rec := do(t, s, http.MethodDelete, path, bob.Token, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":false`)

	rec = do(t, s, http.MethodDelete, path, alice.Token, nil, "")
	assert.Contains(t, rec.Body.String(), `"success":true`)
	assert.Equal(t, 0, s.MessageCount(models.ChatRef(chatID)))
}

func TestStartChatReusesExisting(t *testing.T) {
	s := New(alice, bob)
	existing := s.AddChat(alice.ID, bob.ID)

	rec := do(t, s, http.MethodPost, "/chats/start", alice.Token, bytes.NewBufferString(`{"friend_id":2}`), "application/json")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp models.StartChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, existing, resp.ChatID)

	rec = do(t, s, http.MethodPost, "/chats/start", alice.Token, bytes.NewBufferString(`{"friend_id":1}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteConversationHidesIt(t *testing.T) {
	s := New(alice, bob)
	chatID := s.AddChat(alice.ID, bob.ID)

	rec := do(t, s, http.MethodDelete, "/chats/"+itoa(chatID), alice.Token, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodGet, "/chats", alice.Token, nil, "")
	var list models.ChatListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Empty(t, list.Chats)

	rec = do(t, s, http.MethodGet, "/chats", bob.Token, nil, "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list.Chats, 1)
}

func TestSearchExcludesCaller(t *testing.T) {
	s := New(alice, bob)

	rec := do(t, s, http.MethodGet, "/users/search?q=o", bob.Token, nil, "")
	var resp models.SearchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.SearchResults)

	rec = do(t, s, http.MethodGet, "/users/search?q=bob", alice.Token, nil, "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []models.UserSummary{{ID: 2, FullName: "Bob Jones"}}, resp.SearchResults)
}

func TestNotificationsReadFlow(t *testing.T) {
	s := New(alice)
	first := s.AddNotification(alice.ID, models.Notification{Type: "like", Message: "bob liked your post"})
	s.AddNotification(alice.ID, models.Notification{Type: "comment", Message: "bob commented"})

	rec := do(t, s, http.MethodPost, "/notifications/"+itoa(first)+"/read", alice.Token, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodGet, "/notifications", alice.Token, nil, "")
	var resp models.NotificationListResponse
	require.NoError(t, models.Decode(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.UnreadCount)

	do(t, s, http.MethodPost, "/notifications/read-all", alice.Token, nil, "")
	rec = do(t, s, http.MethodGet, "/notifications", alice.Token, nil, "")
	require.NoError(t, models.Decode(rec.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.UnreadCount)
}

func dial(t *testing.T, srv *httptest.Server, path, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path + "?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestRoomRelaysToSender(t *testing.T) {
	s := New(alice, bob)
	groupID := s.AddGroup("crew", alice.ID, bob.ID)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	a := dial(t, srv, "/ws/groups/"+itoa(groupID), alice.Token)
	b := dial(t, srv, "/ws/groups/"+itoa(groupID), bob.Token)
	require.Eventually(t, func() bool { return s.Hub().RoomSize("groups", groupID) == 2 }, time.Second, 10*time.Millisecond)

	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte(`{"message":"hey","sender":1,"id":5}`)))

	for _, conn := range []*websocket.Conn{a, b} {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
		_, payload, err := conn.ReadMessage()
		require.NoError(t, err)
		assert.JSONEq(t, `{"message":"hey","sender":1,"id":5}`, string(payload))
	}
}

func TestPostSignalsOtherMember(t *testing.T) {
	s := New(alice, bob)
	chatID := s.AddChat(alice.ID, bob.ID)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn := dial(t, srv, "/ws/users/2", bob.Token)
	require.Eventually(t, func() bool { return s.Hub().UserConnections(bob.ID) == 1 }, time.Second, 10*time.Millisecond)

	postForm(t, s, "/chats/"+itoa(chatID)+"/messages", alice.Token, "ping")

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)
	var signal models.DMSignal
	require.NoError(t, models.Decode(payload, &signal))
	assert.Equal(t, models.DMSignal{ChatID: chatID, Sender: alice.ID}, signal)
}

func TestUserSocketRejectsOtherUser(t *testing.T) {
	s := New(alice, bob)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/users/2?token=" + alice.Token
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
