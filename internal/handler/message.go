package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"social-realtime/internal/model"
)

const (
	EventMessageSeen    = "messageSeen"
	EventMessageDeleted = "messageDeleted"
)

type MessageHandler struct {
	Presence Presence
	Clock    clockwork.Clock
}

type sendMessageBody struct {
	Receiver string `json:"receiver"`
	Message  string `json:"message"`
}

// Send routes a chat message from the authenticated user. The message is
// persisted by the caller; this only makes it live or queues it.
func (h *MessageHandler) Send(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	var body sendMessageBody
	if err := c.ShouldBindJSON(&body); err != nil || strings.TrimSpace(body.Receiver) == "" || body.Message == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	msg := model.ChatMessage{
		ID:        uuid.NewString(),
		Sender:    userID,
		Recipient: body.Receiver,
		Body:      body.Message,
		CreatedAt: h.Clock.Now().UnixMilli(),
	}
	outcome := h.Presence.Route(c.Request.Context(), body.Receiver, model.MessageDelivery(msg))
	c.JSON(http.StatusCreated, gin.H{"message": msg, "delivery": outcome})
}

// Seen tells the original sender, if online, that their message was read.
func (h *MessageHandler) Seen(c *gin.Context) {
	if _, ok := requireUser(c); !ok {
		return
	}

	var body struct {
		Sender string `json:"sender"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Sender == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	n := h.Presence.Signal(c.Request.Context(), body.Sender, EventMessageSeen, gin.H{"messageId": c.Param("id")})
	c.JSON(http.StatusOK, gin.H{"notified": n})
}

// Deleted tells the receiver, if online, to drop a message from view.
func (h *MessageHandler) Deleted(c *gin.Context) {
	if _, ok := requireUser(c); !ok {
		return
	}

	var body struct {
		Receiver string `json:"receiver"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Receiver == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	n := h.Presence.Signal(c.Request.Context(), body.Receiver, EventMessageDeleted, gin.H{"messageId": c.Param("id")})
	c.JSON(http.StatusOK, gin.H{"notified": n})
}
