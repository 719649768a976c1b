package usecase

import (
	"context"
	"fmt"
	"time"

	chat "chatsync/internal/pkg/chat/application/domain"
	repository "chatsync/internal/pkg/chat/persistence/repository/port"
)

// SendMessageInput carries the data needed to send a new message.
type SendMessageInput struct {
	ConversationID string
	SenderID       string
	Content        string
}

// Dispatcher hands a validated message to the backend. Implementations
// either insert it right away or queue the insert for a worker.
type Dispatcher interface {
	Dispatch(ctx context.Context, m chat.Message) (*chat.Message, error)
}

// DirectDispatcher inserts through the repository.
type DirectDispatcher struct {
	Repo repository.ChatRepository
}

func NewDirectDispatcher(repo repository.ChatRepository) *DirectDispatcher {
	return &DirectDispatcher{Repo: repo}
}

func (d *DirectDispatcher) Dispatch(ctx context.Context, m chat.Message) (*chat.Message, error) {
	return d.Repo.InsertMessage(ctx, m)
}

// SendMessageUseCase validates a draft and dispatches exactly one insert.
// Validate is split out so callers can reject a draft synchronously and
// deliver it in the background.
type SendMessageUseCase struct {
	Dispatcher Dispatcher
	Now        func() time.Time
}

func NewSendMessageUseCase(d Dispatcher) *SendMessageUseCase {
	return &SendMessageUseCase{Dispatcher: d, Now: time.Now}
}

// Validate builds the message to insert, with a client-assigned id.
func (uc *SendMessageUseCase) Validate(in SendMessageInput) (*chat.Message, error) {
	now := time.Now
	if uc.Now != nil {
		now = uc.Now
	}
	return chat.NewMessage(in.ConversationID, in.SenderID, in.Content, now())
}

// Deliver dispatches an already validated message.
func (uc *SendMessageUseCase) Deliver(ctx context.Context, m chat.Message) (*chat.Message, error) {
	out, err := uc.Dispatcher.Dispatch(ctx, m)
	if err != nil {
		// keep the cause matchable: workers treat repository.ErrDuplicate as done
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return out, nil
}

// Execute validates and delivers in one call.
func (uc *SendMessageUseCase) Execute(ctx context.Context, in SendMessageInput) (*chat.Message, error) {
	msg, err := uc.Validate(in)
	if err != nil {
		return nil, err
	}
	return uc.Deliver(ctx, *msg)
}
