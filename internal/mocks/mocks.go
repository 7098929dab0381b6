package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"chat-client/internal/models"
)

type BackendMock struct {
	mock.Mock
}

func (m *BackendMock) ListMessages(ctx context.Context, ref models.ConversationRef) ([]models.Message, error) {
	args := m.Called(ctx, ref)
	var list []models.Message
	if val := args.Get(0); val != nil {
		list = val.([]models.Message)
	}
	return list, args.Error(1)
}

func (m *BackendMock) SendMessage(ctx context.Context, ref models.ConversationRef, out models.OutgoingMessage) (models.SentMessage, error) {
	args := m.Called(ctx, ref, out)
	var sent models.SentMessage
	if val := args.Get(0); val != nil {
		sent = val.(models.SentMessage)
	}
	return sent, args.Error(1)
}

func (m *BackendMock) DeleteMessage(ctx context.Context, ref models.ConversationRef, messageID string) error {
	args := m.Called(ctx, ref, messageID)
	return args.Error(0)
}

func (m *BackendMock) EditMessage(ctx context.Context, ref models.ConversationRef, messageID, text string) error {
	args := m.Called(ctx, ref, messageID, text)
	return args.Error(0)
}

type BroadcasterMock struct {
	mock.Mock
}

func (m *BroadcasterMock) Broadcast(ctx context.Context, msg models.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

type UnreadClearerMock struct {
	mock.Mock
}

func (m *UnreadClearerMock) ClearUnreadDM(conversationID int) {
	m.Called(conversationID)
}

type AuditorMock struct {
	mock.Mock
}

func (m *AuditorMock) Emit(ctx context.Context, level, text, conversation, requestID string, userID int) {
	m.Called(ctx, level, text, conversation, requestID, userID)
}

type SearcherMock struct {
	mock.Mock
}

func (m *SearcherMock) SearchUsers(ctx context.Context, query string) ([]models.UserSummary, error) {
	args := m.Called(ctx, query)
	var list []models.UserSummary
	if val := args.Get(0); val != nil {
		list = val.([]models.UserSummary)
	}
	return list, args.Error(1)
}
