package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"social-realtime/internal/auth"
	"social-realtime/internal/handler"
	"social-realtime/internal/middleware"
)

type Deps struct {
	Presence handler.Presence
	// Realtime serves the Socket.IO endpoint.
	Realtime    http.Handler
	TokenConfig auth.TokenConfig
	Logger      *zap.Logger
	Clock       clockwork.Clock
	// RateLimitPerMinute bounds /v1 requests per client IP. Zero disables it.
	RateLimitPerMinute int
}

func NewRouter(deps Deps) *gin.Engine {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(log))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"ok": true})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if deps.Realtime != nil {
		r.GET("/socket.io/", gin.WrapH(deps.Realtime))
	}

	protected := r.Group("/v1")
	if deps.RateLimitPerMinute > 0 {
		limiter := middleware.NewRateLimiterWithClock(deps.RateLimitPerMinute, time.Minute, clock)
		protected.Use(middleware.RateLimitMiddleware(limiter))
	}
	protected.Use(middleware.RequireAuth(deps.TokenConfig))

	messageHandler := &handler.MessageHandler{Presence: deps.Presence, Clock: clock}
	protected.POST("/messages", messageHandler.Send)
	protected.POST("/messages/:id/seen", messageHandler.Seen)
	protected.POST("/messages/:id/deleted", messageHandler.Deleted)

	notificationHandler := &handler.NotificationHandler{Presence: deps.Presence, Clock: clock}
	protected.POST("/notifications", notificationHandler.Create)

	presenceHandler := &handler.PresenceHandler{Presence: deps.Presence}
	protected.GET("/presence", presenceHandler.List)
	protected.GET("/presence/:userId", presenceHandler.Get)

	return r
}
