package controller

import (
	"errors"
	"net/http"
	"time"

	chat "chatsync/internal/pkg/chat/application/domain"
	"chatsync/internal/pkg/chat/application/usecase"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const requestTimeout = 3 * time.Second

// statusFor maps use case errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case chat.IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, usecase.ErrPersistence):
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

// uuidParam returns the path parameter name in canonical uuid form. It
// answers 400 and returns false when the parameter is missing or malformed.
func uuidParam(c *gin.Context, name string) (string, bool) {
	raw := c.Param(name)
	if raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " is required"})
		return "", false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " must be a uuid"})
		return "", false
	}
	return id.String(), true
}
