package database

import (
	"context"
	"time"

	"edulink/internal/models"
)

// UserRepository is the relay's view of the user directory. Lookups of a
// missing user fail with a relayerr.CodeNotFound error.
type UserRepository interface {
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	FindByIDs(ctx context.Context, ids []string) ([]*models.User, error)
}

// MessageRepository is the message store the relay persists through. A
// message counts as sent only once CreateMessage returns nil.
type MessageRepository interface {
	CreateMessage(ctx context.Context, m *models.Message) error
	GetMessageByID(ctx context.Context, id string) (*models.Message, error)
	UpdateMessageContent(ctx context.Context, id, content string, editedAt time.Time) error
	SoftDeleteMessage(ctx context.Context, id string) error
	// MarkMessagesRead flips the listed messages to read for readerID where
	// readerID is the receiver, and returns the rows that actually changed.
	// Already-read messages are skipped, which makes the operation idempotent.
	MarkMessagesRead(ctx context.Context, ids []string, readerID string, at time.Time) ([]*models.Message, error)
	AddDelivered(ctx context.Context, id, userID string) error
	ListThreadMessages(ctx context.Context, threadKey string, limit int) ([]*models.Message, error)
}

type Database interface {
	UserRepository
	MessageRepository
	Close() error
}
