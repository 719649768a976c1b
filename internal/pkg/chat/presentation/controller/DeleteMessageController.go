package controller

import (
	"context"
	"net/http"

	"chatsync/internal/pkg/chat/application/usecase"
	repository "chatsync/internal/pkg/chat/persistence/repository/port"

	"github.com/gin-gonic/gin"
)

// DeleteMessageController removes one message of the chat in the path; the
// change feed tells subscribers.
type DeleteMessageController struct {
	UC *usecase.DeleteMessageUseCase
}

func NewDeleteMessageController(repo repository.ChatRepository) *DeleteMessageController {
	return &DeleteMessageController{UC: usecase.NewDeleteMessageUseCase(repo)}
}

func (h *DeleteMessageController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		chatID, ok := uuidParam(c, "chatId")
		if !ok {
			return
		}
		messageID, ok := uuidParam(c, "messageId")
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		err := h.UC.Execute(ctx, usecase.DeleteMessageInput{ConversationID: chatID, MessageID: messageID})
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	}
}
