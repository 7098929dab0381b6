package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-client/internal/conversation"
	"chat-client/internal/fakebackend"
	"chat-client/internal/models"
	"chat-client/internal/session"
)

var (
	alice = fakebackend.User{ID: 1, Username: "alice", FullName: "Alice Smith", Token: "tok-alice"}
	bob   = fakebackend.User{ID: 2, Username: "bob", FullName: "Bob Jones", Token: "tok-bob"}
)

const waitFor = 2 * time.Second

func startBackend(t *testing.T) (*fakebackend.Server, Config) {
	t.Helper()
	backend := fakebackend.New(alice, bob)
	return backend, serve(t, backend.Handler())
}

func serve(t *testing.T, handler http.Handler) Config {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return Config{
		APIBaseURL:  srv.URL,
		WSBaseURL:   "ws" + strings.TrimPrefix(srv.URL, "http"),
		DialRetries: 1,
		HTTPTimeout: 5 * time.Second,
	}
}

func signIn(t *testing.T, cfg Config, u fakebackend.User) *Client {
	t.Helper()
	sessions, err := session.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { sessions.Close() })

	c := New(cfg, sessions)
	require.NoError(t, c.Login(context.Background(), models.Identity{UserID: u.ID, Username: u.Username, FullName: u.FullName, Token: u.Token}))
	t.Cleanup(c.Close)
	return c
}

func texts(vm *conversation.ViewModel) []string {
	var out []string
	for _, m := range vm.Messages() {
		out = append(out, m.Text)
	}
	return out
}

func TestTwoClientsExchangeMessages(t *testing.T) {
	backend, cfg := startBackend(t)
	ref := models.ChatRef(backend.AddChat(alice.ID, bob.ID))
	ctx := context.Background()

	a := signIn(t, cfg, alice)
	b := signIn(t, cfg, bob)

	aliceVM, err := a.OpenConversation(ctx, ref)
	require.NoError(t, err)
	bobVM, err := b.OpenConversation(ctx, ref)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return backend.Hub().RoomSize("chats", ref.ID) == 2 }, waitFor, 10*time.Millisecond)

	_, err = aliceVM.Send(ctx, models.OutgoingMessage{Text: "ping"})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(bobVM.Messages()) == 1 }, waitFor, 10*time.Millisecond)

	_, err = bobVM.Send(ctx, models.OutgoingMessage{Text: "pong"})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(aliceVM.Messages()) == 2 }, waitFor, 10*time.Millisecond)

	// Own echoes never double an entry.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, []string{"ping", "pong"}, texts(aliceVM))
	assert.Equal(t, []string{"ping", "pong"}, texts(bobVM))

	// Both conversations are open, so no unread signal was counted.
	assert.Zero(t, a.Store().Snapshot().UnreadDMTotal())
	assert.Zero(t, b.Store().Snapshot().UnreadDMTotal())
}

func TestUnreadCountedThenClearedOnOpen(t *testing.T) {
	backend, cfg := startBackend(t)
	ref := models.ChatRef(backend.AddChat(alice.ID, bob.ID))
	ctx := context.Background()

	a := signIn(t, cfg, alice)
	b := signIn(t, cfg, bob)
	require.Eventually(t, func() bool { return backend.Hub().UserConnections(bob.ID) == 1 }, waitFor, 10*time.Millisecond)

	err := a.WithConversation(ctx, ref, func(vm *conversation.ViewModel) error {
		for _, text := range []string{"one", "two", "three"} {
			if _, err := vm.Send(ctx, models.OutgoingMessage{Text: text}); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return b.Store().Snapshot().UnreadDMs[ref.ID] == 3 }, waitFor, 10*time.Millisecond)
	state := b.Store().Snapshot()
	assert.True(t, state.HasNewDM)
	assert.Equal(t, alice.ID, state.DMPreviews[ref.ID].SenderID)

	vm, err := b.OpenConversation(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two", "three"}, texts(vm))

	state = b.Store().Snapshot()
	assert.Zero(t, state.UnreadDMs[ref.ID])
	assert.False(t, state.HasNewDM)
}

func TestWithConversationClosesSocket(t *testing.T) {
	backend, cfg := startBackend(t)
	ref := models.GroupRef(backend.AddGroup("crew", alice.ID, bob.ID))
	a := signIn(t, cfg, alice)

	var opened *conversation.ViewModel
	err := a.WithConversation(context.Background(), ref, func(vm *conversation.ViewModel) error {
		opened = vm
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)
	assert.True(t, opened.Closed())
	_, ok := a.Conversation(ref)
	assert.False(t, ok)
	require.Eventually(t, func() bool { return backend.Hub().RoomSize("groups", ref.ID) == 0 }, waitFor, 10*time.Millisecond)
}

// slowGroupSockets delays every group socket upgrade by delay.
func slowGroupSockets(backend *fakebackend.Server, delay time.Duration) http.Handler {
	next := backend.Handler()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/ws/groups/") {
			time.Sleep(delay)
		}
		next.ServeHTTP(w, r)
	})
}

func trackedSockets(t *testing.T, c *Client) int {
	t.Helper()
	_, _, sockets, _, err := c.session()
	require.NoError(t, err)
	return sockets.Len()
}

func TestCloseDuringOpenReleasesSocket(t *testing.T) {
	backend := fakebackend.New(alice, bob)
	ref := models.GroupRef(backend.AddGroup("crew", alice.ID, bob.ID))
	cfg := serve(t, slowGroupSockets(backend, 300*time.Millisecond))
	a := signIn(t, cfg, alice)

	started := time.Now()
	done := make(chan error, 1)
	go func() {
		_, err := a.OpenConversation(context.Background(), ref)
		done <- err
	}()
	time.Sleep(100 * time.Millisecond)
	a.CloseConversation(ref)

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(waitFor):
		t.Fatal("open did not return after close")
	}
	_, ok := a.Conversation(ref)
	assert.False(t, ok)

	// Let the delayed upgrade land before checking the room.
	time.Sleep(time.Until(started.Add(400 * time.Millisecond)))
	require.Eventually(t, func() bool { return backend.Hub().RoomSize("groups", ref.ID) == 0 }, waitFor, 10*time.Millisecond)
	require.Eventually(t, func() bool { return trackedSockets(t, a) == 0 }, waitFor, 10*time.Millisecond)
}

func TestCancelledOpenClosesConversation(t *testing.T) {
	backend := fakebackend.New(alice, bob)
	ref := models.GroupRef(backend.AddGroup("crew", alice.ID, bob.ID))
	cfg := serve(t, slowGroupSockets(backend, 300*time.Millisecond))
	a := signIn(t, cfg, alice)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	vm, err := a.OpenConversation(ctx, ref)
	require.Error(t, err)
	require.NotNil(t, vm)
	assert.True(t, vm.Closed())
	_, ok := a.Conversation(ref)
	assert.False(t, ok)

	time.Sleep(400 * time.Millisecond)
	require.Eventually(t, func() bool { return backend.Hub().RoomSize("groups", ref.ID) == 0 }, waitFor, 10*time.Millisecond)
	require.Eventually(t, func() bool { return trackedSockets(t, a) == 0 }, waitFor, 10*time.Millisecond)
}

func find(t *testing.T, list []models.Conversation, ref models.ConversationRef) models.Conversation {
	t.Helper()
	for _, conv := range list {
		if conv.Ref == ref {
			return conv
		}
	}
	t.Fatalf("%s not listed", ref)
	return models.Conversation{}
}

func TestConversationListFollowsMessages(t *testing.T) {
	backend, cfg := startBackend(t)
	ref := models.ChatRef(backend.AddChat(alice.ID, bob.ID))
	ctx := context.Background()

	a := signIn(t, cfg, alice)
	b := signIn(t, cfg, bob)
	require.Eventually(t, func() bool { return backend.Hub().UserConnections(bob.ID) == 1 }, waitFor, 10*time.Millisecond)

	_, err := a.ListConversations(ctx)
	require.NoError(t, err)
	list, err := b.ListConversations(ctx)
	require.NoError(t, err)
	assert.Zero(t, find(t, list, ref).UnreadCount)

	aliceVM, err := a.OpenConversation(ctx, ref)
	require.NoError(t, err)
	_, err = aliceVM.Send(ctx, models.OutgoingMessage{Text: "ping"})
	require.NoError(t, err)
	assert.Equal(t, "ping", find(t, a.Conversations(), ref).LastMessage)

	require.Eventually(t, func() bool { return find(t, b.Conversations(), ref).UnreadCount == 1 }, waitFor, 10*time.Millisecond)

	bobVM, err := b.OpenConversation(ctx, ref)
	require.NoError(t, err)
	conv := find(t, b.Conversations(), ref)
	assert.Zero(t, conv.UnreadCount)
	assert.Equal(t, "ping", conv.LastMessage)
	require.Eventually(t, func() bool { return backend.Hub().RoomSize("chats", ref.ID) == 2 }, waitFor, 10*time.Millisecond)

	_, err = aliceVM.Send(ctx, models.OutgoingMessage{Text: "second"})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(bobVM.Messages()) == 2 }, waitFor, 10*time.Millisecond)
	require.Eventually(t, func() bool { return find(t, b.Conversations(), ref).LastMessage == "second" }, waitFor, 10*time.Millisecond)
	assert.Zero(t, find(t, b.Conversations(), ref).UnreadCount)

	require.NoError(t, a.DeleteConversation(ctx, ref))
	assert.Empty(t, a.Conversations())
}

func TestStartChatAddsConversation(t *testing.T) {
	_, cfg := startBackend(t)
	a := signIn(t, cfg, alice)

	ref, err := a.StartChat(context.Background(), bob.ID)
	require.NoError(t, err)
	conv := find(t, a.Conversations(), ref)
	assert.Equal(t, []int{alice.ID, bob.ID}, conv.ParticipantIDs)

	again, err := a.StartChat(context.Background(), bob.ID)
	require.NoError(t, err)
	assert.Equal(t, ref, again)
	assert.Len(t, a.Conversations(), 1)
}

func TestDeleteConversationTearsDown(t *testing.T) {
	backend, cfg := startBackend(t)
	ref := models.ChatRef(backend.AddChat(alice.ID, bob.ID))
	ctx := context.Background()
	a := signIn(t, cfg, alice)

	vm, err := a.OpenConversation(ctx, ref)
	require.NoError(t, err)
	a.Store().RecordIncomingDM(ref.ID, bob.ID)

	require.NoError(t, a.DeleteConversation(ctx, ref))
	assert.True(t, vm.Closed())
	assert.Zero(t, a.Store().Snapshot().UnreadDMs[ref.ID])

	list, err := a.ListConversations(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestBellDropdownFetchesAndMarksRead(t *testing.T) {
	backend, cfg := startBackend(t)
	first := backend.AddNotification(alice.ID, models.Notification{Type: "like", Message: "bob liked your post"})
	backend.AddNotification(alice.ID, models.Notification{Type: "comment", Message: "bob commented"})
	ctx := context.Background()
	a := signIn(t, cfg, alice)

	open, err := a.ToggleBell(ctx)
	require.NoError(t, err)
	assert.True(t, open)
	state := a.Store().Snapshot()
	assert.Len(t, state.Notifications, 2)
	assert.Equal(t, 2, state.UnreadCount)

	open, _, err = a.ToggleMessages(ctx)
	require.NoError(t, err)
	assert.True(t, open)
	assert.False(t, a.Store().Snapshot().BellOpen)

	require.NoError(t, a.MarkNotificationRead(ctx, first))
	assert.Equal(t, 1, a.Store().Snapshot().UnreadCount)
	require.NoError(t, a.MarkAllNotificationsRead(ctx))
	assert.Zero(t, a.Store().Snapshot().UnreadCount)
}

func TestLogoutResetsEverything(t *testing.T) {
	backend, cfg := startBackend(t)
	ref := models.ChatRef(backend.AddChat(alice.ID, bob.ID))
	ctx := context.Background()

	sessions, err := session.Open(":memory:")
	require.NoError(t, err)
	defer sessions.Close()
	a := New(cfg, sessions)
	require.NoError(t, a.Login(ctx, models.Identity{UserID: alice.ID, Username: alice.Username, Token: alice.Token}))

	vm, err := a.OpenConversation(ctx, ref)
	require.NoError(t, err)
	a.Store().RecordIncomingDM(9, bob.ID)

	require.NoError(t, a.Logout(ctx))
	assert.True(t, vm.Closed())
	assert.Zero(t, a.Store().Snapshot().UnreadDMTotal())
	_, signedIn := a.Identity()
	assert.False(t, signedIn)
	require.Eventually(t, func() bool {
		return backend.Hub().RoomSize("chats", ref.ID) == 0 && backend.Hub().UserConnections(alice.ID) == 0
	}, waitFor, 10*time.Millisecond)

	_, err = sessions.Load(ctx)
	require.ErrorIs(t, err, session.ErrNoSession)
	_, err = a.ListConversations(ctx)
	require.ErrorIs(t, err, ErrNotSignedIn)
}

func TestResumeUsesPersistedIdentity(t *testing.T) {
	_, cfg := startBackend(t)
	ctx := context.Background()
	sessions, err := session.Open(":memory:")
	require.NoError(t, err)
	defer sessions.Close()
	require.NoError(t, sessions.Save(ctx, models.Identity{UserID: bob.ID, Username: bob.Username, Token: bob.Token}))

	c := New(cfg, sessions)
	defer c.Close()
	require.NoError(t, c.Resume(ctx))
	id, ok := c.Identity()
	require.True(t, ok)
	assert.Equal(t, bob.ID, id.UserID)

	users, err := c.SearchUsers(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []models.UserSummary{{ID: alice.ID, FullName: alice.FullName}}, users)
}

func TestComposerMentionsViaBackendSearch(t *testing.T) {
	_, cfg := startBackend(t)
	a := signIn(t, cfg, alice)

	composer, err := a.NewComposer()
	require.NoError(t, err)
	composer.Input("hey @Bob")
	applied, err := composer.Lookup(context.Background())
	require.NoError(t, err)
	require.True(t, applied)

	snap := composer.State()
	require.Len(t, snap.Query.Candidates, 1)
	require.NoError(t, composer.Select(snap.Query.Candidates[0]))
	assert.Equal(t, "hey @Bob Jones ", composer.Plain())
	assert.Equal(t, []int{bob.ID}, composer.MentionedUserIDs())
}

func TestLoginRequiresToken(t *testing.T) {
	_, cfg := startBackend(t)
	sessions, err := session.Open(":memory:")
	require.NoError(t, err)
	defer sessions.Close()
	c := New(cfg, sessions)
	require.Error(t, c.Login(context.Background(), models.Identity{UserID: 1}))
}
