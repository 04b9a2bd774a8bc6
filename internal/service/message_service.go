package service

import (
	"context"

	"agromind/internal/constants"
	"agromind/internal/errors"
	"agromind/internal/metrics"
	"agromind/internal/models"
	"agromind/internal/tracing"
	"agromind/internal/validation"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// MessageStore persists messages
type MessageStore interface {
	CreateMessage(ctx context.Context, groupID string, draft models.MessageDraft) (*models.Message, error)
	ListMessages(ctx context.Context, groupID string, limit int) ([]*models.Message, error)
	PinMessage(ctx context.Context, id string) (*models.Message, error)
}

// Publisher fans a message change out to live connections. Publish must not
// block.
type Publisher interface {
	Publish(groupID string, kind models.EventKind, msg *models.Message) int
}

// MessageService validates message operations, writes them to the store and
// publishes the result.
type MessageService struct {
	store     MessageStore
	publisher Publisher
	logger    *logrus.Logger
}

func NewMessageService(store MessageStore, publisher Publisher, logger *logrus.Logger) *MessageService {
	return &MessageService{store: store, publisher: publisher, logger: logger}
}

// CreateMessage stores a message in groupID and publishes it as created.
// The group only has to be well-formed.
func (s *MessageService) CreateMessage(ctx context.Context, groupID string, draft models.MessageDraft) (*models.Message, error) {
	ctx, span := tracing.StartSpan(ctx, "message.create", attribute.String(LogFieldGroupID, groupID))
	defer span.End()

	if err := validateDraft(groupID, draft); err != nil {
		return nil, err
	}
	if draft.Language == "" {
		draft.Language = constants.DefaultMessageLanguage
	}

	msg, err := s.store.CreateMessage(ctx, groupID, draft)
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, err
	}

	delivered := s.publisher.Publish(groupID, models.EventCreated, msg)
	metrics.IncrementCounter(metrics.MessagesCreated, nil, "Messages created")

	s.logger.WithFields(logrus.Fields{
		LogFieldGroupID:   groupID,
		LogFieldMessageID: msg.ID,
		LogFieldCount:     delivered,
	}).Debug("Message created")

	return msg, nil
}

// ListMessages returns the group's messages, pinned first then newest first.
// Limits outside 1..500 use the default of 500.
func (s *MessageService) ListMessages(ctx context.Context, groupID string, limit int) ([]*models.Message, error) {
	if err := validation.ValidateGroupID(groupID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > constants.MaxMessageListLimit {
		limit = constants.DefaultMessageListLimit
	}

	return s.store.ListMessages(ctx, groupID, limit)
}

// PinMessage flags a message as pinned and publishes it. Pinning twice is
// harmless and publishes again.
func (s *MessageService) PinMessage(ctx context.Context, id string) (*models.Message, error) {
	ctx, span := tracing.StartSpan(ctx, "message.pin", attribute.String(LogFieldMessageID, id))
	defer span.End()

	if err := validation.ValidateMessageID(id); err != nil {
		return nil, err
	}

	msg, err := s.store.PinMessage(ctx, id)
	if err != nil {
		if !errors.IsNotFound(err) {
			tracing.RecordError(ctx, err)
		}
		return nil, err
	}

	s.publisher.Publish(msg.GroupID, models.EventPinned, msg)
	metrics.IncrementCounter(metrics.MessagesPinned, nil, "Messages pinned")

	s.logger.WithFields(logrus.Fields{
		LogFieldGroupID:   msg.GroupID,
		LogFieldMessageID: msg.ID,
	}).Debug("Message pinned")

	return msg, nil
}

func validateDraft(groupID string, draft models.MessageDraft) error {
	if err := validation.ValidateGroupID(groupID); err != nil {
		return err
	}
	if err := validation.ValidateMessageText(draft.Text); err != nil {
		return err
	}
	if err := validation.ValidateAuthorName(draft.AuthorName); err != nil {
		return err
	}
	if err := validation.ValidateLanguage(draft.Language); err != nil {
		return err
	}
	if draft.ParentID != nil && *draft.ParentID != "" {
		if err := validation.ValidateMessageID(*draft.ParentID); err != nil {
			return errors.NewValidationError("parentId", *draft.ParentID, "invalid parent reference")
		}
	}
	return nil
}
