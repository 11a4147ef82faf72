package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type PresenceHandler struct {
	Presence Presence
}

func (h *PresenceHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"users": h.Presence.OnlineUsers()})
}

func (h *PresenceHandler) Get(c *gin.Context) {
	c.JSON(http.StatusOK, h.Presence.Status(c.Param("userId")))
}
