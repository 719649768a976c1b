package usecase

import (
	"context"
	"fmt"
	"strings"

	chat "chatsync/internal/pkg/chat/application/domain"
	repository "chatsync/internal/pkg/chat/persistence/repository/port"
)

type DeleteMessageInput struct {
	ConversationID string
	MessageID      string
}

// DeleteMessageUseCase issues one remove request for a message.
type DeleteMessageUseCase struct {
	Repo repository.ChatRepository
}

func NewDeleteMessageUseCase(repo repository.ChatRepository) *DeleteMessageUseCase {
	return &DeleteMessageUseCase{Repo: repo}
}

func (uc *DeleteMessageUseCase) Execute(ctx context.Context, in DeleteMessageInput) error {
	if strings.TrimSpace(in.ConversationID) == "" {
		return chat.ErrMissingConversation
	}
	if strings.TrimSpace(in.MessageID) == "" {
		return chat.ErrMissingMessageID
	}
	if err := uc.Repo.DeleteMessage(ctx, in.ConversationID, in.MessageID); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}
