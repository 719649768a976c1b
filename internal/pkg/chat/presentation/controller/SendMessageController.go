package controller

import (
	"context"
	"errors"
	"net/http"

	"chatsync/internal/pkg/chat/application/usecase"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// SendMessageController handles the send-message endpoint only (one controller per endpoint).
// With a queue dispatcher the insert happens on a worker and the endpoint
// answers 202; otherwise the row is inserted before answering 201.
type SendMessageController struct {
	UC     *usecase.SendMessageUseCase
	Queued bool
}

func NewSendMessageController(d usecase.Dispatcher, queued bool) *SendMessageController {
	return &SendMessageController{UC: usecase.NewSendMessageUseCase(d), Queued: queued}
}

// sendMessageRequest is the DTO for the HTTP request body.
// ID is optional; clients set it to recognise the echo of their own insert.
type sendMessageRequest struct {
	ID       string `json:"id"`
	SenderID string `json:"sender_id" binding:"required"`
	Content  string `json:"content"`
}

// Handle returns a gin handler that sends one message into a chat
func (h *SendMessageController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		chatID, ok := uuidParam(c, "chatId")
		if !ok {
			return
		}

		var req sendMessageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if _, err := uuid.Parse(req.SenderID); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "sender_id must be a uuid"})
			return
		}

		msg, err := h.UC.Validate(usecase.SendMessageInput{
			ConversationID: chatID,
			SenderID:       req.SenderID,
			Content:        req.Content,
		})
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		if req.ID != "" {
			if _, err := uuid.Parse(req.ID); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "id must be a uuid"})
				return
			}
			msg.ID = req.ID
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		out, err := h.UC.Deliver(ctx, *msg)
		if err != nil {
			status := statusFor(err)
			if h.Queued && errors.Is(err, usecase.ErrPersistence) {
				status = http.StatusServiceUnavailable
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}

		if h.Queued {
			c.JSON(http.StatusAccepted, gin.H{"status": "queued", "message": out})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"status": "created", "message": out})
	}
}
