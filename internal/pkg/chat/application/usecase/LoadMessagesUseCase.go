package usecase

import (
	"context"
	"fmt"

	chat "chatsync/internal/pkg/chat/application/domain"
	repository "chatsync/internal/pkg/chat/persistence/repository/port"
)

// LoadMessagesInput names the conversation to fetch.
type LoadMessagesInput struct {
	ConversationID string
}

// LoadMessagesUseCase fetches every message of a conversation.
// The store gives no ordering guarantee, so the result is sorted newest first.
type LoadMessagesUseCase struct {
	Repo repository.ChatRepository
}

func NewLoadMessagesUseCase(repo repository.ChatRepository) *LoadMessagesUseCase {
	return &LoadMessagesUseCase{Repo: repo}
}

func (uc *LoadMessagesUseCase) Execute(ctx context.Context, in LoadMessagesInput) ([]chat.Message, error) {
	if in.ConversationID == "" {
		return nil, chat.ErrMissingConversation
	}
	msgs, err := uc.Repo.SelectMessages(ctx, in.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	chat.SortNewestFirst(msgs)
	return msgs, nil
}
