package ws

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-client/internal/models"
)

func itoaTest(n int) string {
	return strconv.Itoa(n)
}

func TestManagerOneChannelPerConversation(t *testing.T) {
	backend, base := startBackend(t)
	chatID := backend.AddChat(alice.ID, bob.ID)
	ref := models.ChatRef(chatID)
	m := NewManager(optsFor(base, alice))
	defer m.CloseAll()

	first, err := m.OpenConversation(context.Background(), ref, func(models.Message) {})
	require.NoError(t, err)
	second, err := m.OpenConversation(context.Background(), ref, func(models.Message) {})
	require.NoError(t, err)

	<-first.Done()
	assert.Equal(t, StateClosed, first.State())
	got, ok := m.Conversation(ref)
	require.True(t, ok)
	assert.Same(t, second, got)
	assert.Equal(t, 1, m.Len())
	require.Eventually(t, func() bool { return backend.Hub().RoomSize("chats", chatID) == 1 }, time.Second, 10*time.Millisecond)
}

func TestManagerCloseAll(t *testing.T) {
	backend, base := startBackend(t)
	chatRef := models.ChatRef(backend.AddChat(alice.ID, bob.ID))
	groupRef := models.GroupRef(backend.AddGroup("crew", alice.ID))
	m := NewManager(optsFor(base, alice))

	chat, err := m.OpenConversation(context.Background(), chatRef, func(models.Message) {})
	require.NoError(t, err)
	group, err := m.OpenConversation(context.Background(), groupRef, func(models.Message) {})
	require.NoError(t, err)
	user, err := m.OpenUser(context.Background(), func(models.DMSignal) {})
	require.NoError(t, err)
	assert.Same(t, user, m.User())

	m.CloseAll()
	for _, ch := range []*Channel{chat, group, user} {
		<-ch.Done()
		assert.Equal(t, StateClosed, ch.State())
	}
	assert.Equal(t, 0, m.Len())
	assert.Nil(t, m.User())
	require.Eventually(t, func() bool { return backend.Hub().UserConnections(alice.ID) == 0 }, time.Second, 10*time.Millisecond)
}

func TestManagerForgetsFailedChannel(t *testing.T) {
	backend, base := startBackend(t)
	chatID := backend.AddChat(alice.ID, bob.ID)
	ref := models.ChatRef(chatID)
	m := NewManager(optsFor(base, alice))
	defer m.CloseAll()

	_, err := m.OpenConversation(context.Background(), ref, func(models.Message) {})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return backend.Hub().RoomSize("chats", chatID) == 1 }, time.Second, 10*time.Millisecond)

	backend.Hub().DropAll()
	require.Eventually(t, func() bool { return m.Len() == 0 }, time.Second, 10*time.Millisecond)

	_, ok := m.Conversation(ref)
	assert.False(t, ok)
}
