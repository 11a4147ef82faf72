package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"social-realtime/internal/model"
)

type NotificationHandler struct {
	Presence Presence
	Clock    clockwork.Clock
}

type createNotificationBody struct {
	Recipient string                 `json:"recipient"`
	Kind      model.NotificationKind `json:"kind"`
	Message   string                 `json:"message"`
	Reference *model.Reference       `json:"reference"`
}

func (h *NotificationHandler) Create(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	var body createNotificationBody
	if err := c.ShouldBindJSON(&body); err != nil || body.Recipient == "" || !body.Kind.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if body.Reference != nil && (body.Reference.Kind == "" || body.Reference.ID == "") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid reference"})
		return
	}

	// Users are not notified about their own activity.
	if body.Recipient == userID {
		c.JSON(http.StatusOK, gin.H{"delivery": "skipped"})
		return
	}

	n := model.Notification{
		ID:        uuid.NewString(),
		Recipient: body.Recipient,
		Sender:    userID,
		Kind:      body.Kind,
		Message:   body.Message,
		Reference: body.Reference,
		CreatedAt: h.Clock.Now().UnixMilli(),
	}
	outcome := h.Presence.Route(c.Request.Context(), body.Recipient, model.NotificationDelivery(n))
	c.JSON(http.StatusCreated, gin.H{"notification": n, "delivery": outcome})
}
