package chat

import "errors"

// Validation errors raised before any request reaches the backend.
var (
	ErrEmptyMessage        = errors.New("chat: empty message")
	ErrMessageTooLong      = errors.New("chat: message too long")
	ErrUnauthenticated     = errors.New("chat: no signed-in sender")
	ErrMissingConversation = errors.New("chat: conversation id is required")
	ErrMissingMessageID    = errors.New("chat: message id is required")
)

// IsValidation reports whether err is one of the validation errors above.
func IsValidation(err error) bool {
	return errors.Is(err, ErrEmptyMessage) ||
		errors.Is(err, ErrMessageTooLong) ||
		errors.Is(err, ErrUnauthenticated) ||
		errors.Is(err, ErrMissingConversation) ||
		errors.Is(err, ErrMissingMessageID)
}
