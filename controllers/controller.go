package controllers

import (
	"errors"
	"net/http"

	"agendazap/channels"

	"github.com/gin-gonic/gin"
	"github.com/jinzhu/gorm"
)

func RespondError(c *gin.Context, msg string, code int) {
	c.JSON(code, gin.H{"error": msg})
}

func RespondSuccess(c *gin.Context, payload any) {
	c.JSON(200, payload)
}

// RespondServiceError maps the subsystem error taxonomy onto HTTP statuses:
// registry misses and malformed payloads are 4xx, blocked deletions 409,
// stalled connections get the retry affordance, everything else is 500.
func RespondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		RespondError(c, "not found", http.StatusNotFound)
	case errors.Is(err, channels.ErrUnsupportedChannelType):
		RespondError(c, err.Error(), http.StatusBadRequest)
	case errors.Is(err, channels.ErrMissingRequiredData):
		RespondError(c, err.Error(), http.StatusBadRequest)
	case errors.Is(err, channels.ErrConflictActiveConversations):
		RespondError(c, err.Error(), http.StatusConflict)
	case errors.Is(err, channels.ErrConnectionStalled):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "retry": true})
	default:
		RespondError(c, err.Error(), http.StatusInternalServerError)
	}
}
