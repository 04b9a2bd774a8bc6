package service

import (
	"context"
	"io"

	"agromind/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
)

type mockMessageStore struct {
	mock.Mock
}

func (m *mockMessageStore) CreateMessage(ctx context.Context, groupID string, draft models.MessageDraft) (*models.Message, error) {
	args := m.Called(ctx, groupID, draft)
	if msg := args.Get(0); msg != nil {
		return msg.(*models.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockMessageStore) ListMessages(ctx context.Context, groupID string, limit int) ([]*models.Message, error) {
	args := m.Called(ctx, groupID, limit)
	if msgs := args.Get(0); msgs != nil {
		return msgs.([]*models.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockMessageStore) PinMessage(ctx context.Context, id string) (*models.Message, error) {
	args := m.Called(ctx, id)
	if msg := args.Get(0); msg != nil {
		return msg.(*models.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(groupID string, kind models.EventKind, msg *models.Message) int {
	args := m.Called(groupID, kind, msg)
	return args.Int(0)
}

type mockGroupStore struct {
	mock.Mock
}

func (m *mockGroupStore) CreateGroup(ctx context.Context, name, description string) (*models.Group, error) {
	args := m.Called(ctx, name, description)
	if g := args.Get(0); g != nil {
		return g.(*models.Group), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockGroupStore) ListGroups(ctx context.Context) ([]*models.Group, error) {
	args := m.Called(ctx)
	if gs := args.Get(0); gs != nil {
		return gs.([]*models.Group), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockUserStore struct {
	mock.Mock
}

func (m *mockUserStore) GetOrCreateUserByPhone(ctx context.Context, phone, name, lang string) (*models.User, bool, error) {
	args := m.Called(ctx, phone, name, lang)
	if u := args.Get(0); u != nil {
		return u.(*models.User), args.Bool(1), args.Error(2)
	}
	return nil, args.Bool(1), args.Error(2)
}

type mockRetentionStore struct {
	mock.Mock
}

func (m *mockRetentionStore) CleanupOldMessages(ctx context.Context, retentionDays int) (int64, error) {
	args := m.Called(ctx, retentionDays)
	return args.Get(0).(int64), args.Error(1)
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
