package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"social-realtime/internal/middleware"
	"social-realtime/internal/model"
	"social-realtime/internal/presence"
)

// Presence is the part of presence.Service the HTTP surface calls into.
type Presence interface {
	Route(ctx context.Context, recipientID string, d model.Delivery) presence.Outcome
	Signal(ctx context.Context, userID, event string, payload any) int
	Status(userID string) presence.Status
	OnlineUsers() []string
}

func requireUser(c *gin.Context) (string, bool) {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication token"})
		return "", false
	}
	return userID, true
}
