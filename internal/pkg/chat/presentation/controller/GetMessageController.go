package controller

import (
	"context"
	"net/http"

	"chatsync/internal/pkg/chat/application/usecase"
	repository "chatsync/internal/pkg/chat/persistence/repository/port"

	"github.com/gin-gonic/gin"
)

// GetMessageController handles fetching every message of a chat (one controller per endpoint)
type GetMessageController struct {
	UC *usecase.LoadMessagesUseCase
}

func NewGetMessageController(repo repository.ChatRepository) *GetMessageController {
	return &GetMessageController{UC: usecase.NewLoadMessagesUseCase(repo)}
}

func (h *GetMessageController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		chatID, ok := uuidParam(c, "chatId")
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		msgs, err := h.UC.Execute(ctx, usecase.LoadMessagesInput{ConversationID: chatID})
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}

		// newest first, same order the view renders
		c.JSON(http.StatusOK, gin.H{
			"messages": msgs,
			"count":    len(msgs),
		})
	}
}
