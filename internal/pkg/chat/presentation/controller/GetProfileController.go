package controller

import (
	"context"
	"net/http"

	"chatsync/internal/pkg/chat/application/usecase"
	repository "chatsync/internal/pkg/chat/persistence/repository/port"

	"github.com/gin-gonic/gin"
)

// GetProfileController serves the avatar of one user.
type GetProfileController struct {
	UC *usecase.ResolveAvatarsUseCase
}

func NewGetProfileController(profiles repository.ProfileRepository) *GetProfileController {
	return &GetProfileController{UC: usecase.NewResolveAvatarsUseCase(profiles)}
}

func (h *GetProfileController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := uuidParam(c, "userId")
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		avatars, err := h.UC.Execute(ctx, usecase.ResolveAvatarsInput{SenderIDs: []string{userID}})
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		avatar, ok := avatars[userID]
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "profile not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"user_id": userID, "avatar": avatar})
	}
}
