package repository

import (
	"context"
	"errors"

	chat "chatsync/internal/pkg/chat/application/domain"
)

// ErrDuplicate is returned by InsertMessage when a row with the same id
// already exists, e.g. when a queued insert is retried after it succeeded.
var ErrDuplicate = errors.New("repository: duplicate message id")

// ChatRepository is the request/response half of the backend contract.
// Implementations must be safe for concurrent use.
type ChatRepository interface {
	// SelectMessages returns every row of the conversation. No ordering is
	// promised; callers sort locally.
	SelectMessages(ctx context.Context, conversationID string) ([]chat.Message, error)
	// InsertMessage stores m and returns the row as persisted.
	InsertMessage(ctx context.Context, m chat.Message) (*chat.Message, error)
	// DeleteMessage removes the row with the given id from the conversation.
	// Deleting a missing row, or a row of another conversation, is a no-op.
	DeleteMessage(ctx context.Context, conversationID, messageID string) error
}

// ProfileRepository resolves sender profiles.
type ProfileRepository interface {
	// FindProfile returns the profile of userID. ok is false when no row exists.
	FindProfile(ctx context.Context, userID string) (profile chat.Profile, ok bool, err error)
}
