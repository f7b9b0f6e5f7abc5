package routes

import (
	"time"

	"task-tracker/internal/api/handlers"
	"task-tracker/internal/api/middleware"
	"task-tracker/internal/config"
	"task-tracker/internal/websocket"

	"github.com/gin-gonic/gin"
)

// Dependencies are the collaborators the HTTP surface is built from. A nil
// RateLimiter disables request limiting.
type Dependencies struct {
	Hub           *websocket.Hub
	Handshaker    *websocket.Handshaker
	Verifier      websocket.TokenVerifier
	Notifications handlers.NotificationService
	RateLimiter   middleware.RateLimiter
	HealthChecks  map[string]handlers.Pinger
}

type Router struct {
	engine              *gin.Engine
	wsHandler           *handlers.WSHandler
	notificationHandler *handlers.NotificationHandler
	taskEventHandler    *handlers.TaskEventHandler
	healthChecks        map[string]handlers.Pinger
	internalToken       string
	rateLimitMW         *middleware.RateLimitMiddleware
	authMW              *middleware.AuthMiddleware
}

func NewRouter(cfg *config.Config, deps Dependencies) *Router {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	engine.Use(gin.Recovery())
	engine.Use(middleware.CORS(cfg.WebSocket.AllowedOrigins))
	engine.Use(middleware.LogApi())

	return &Router{
		engine:              engine,
		wsHandler:           handlers.NewWSHandler(deps.Hub, deps.Handshaker),
		notificationHandler: handlers.NewNotificationHandler(deps.Notifications),
		taskEventHandler:    handlers.NewTaskEventHandler(deps.Hub),
		healthChecks:        deps.HealthChecks,
		internalToken:       cfg.Internal.APIToken,
		rateLimitMW:         middleware.NewRateLimitMiddleware(deps.RateLimiter),
		authMW:              middleware.NewAuthMiddleware(deps.Verifier, cfg.WebSocket.TokenCookie),
	}
}

func (r *Router) SetupRoutes() {
	r.engine.GET("/healthz", handlers.Health(r.healthChecks))

	// The upgrade does its own origin and cookie checks.
	r.engine.GET("/ws", r.wsHandler.HandleWebSocket)

	api := r.engine.Group("/api/v1")
	api.GET("/ws", r.wsHandler.HandleWebSocket)

	auth := api.Group("/")
	auth.Use(r.authMW.RequireAuth())
	{
		notifications := auth.Group("/notifications")
		notifications.Use(r.rateLimitMW.RateLimit(100, time.Minute))
		{
			notifications.GET("/unread", r.notificationHandler.GetUnread)
			notifications.GET("", r.notificationHandler.GetAll)
			notifications.PATCH("/read-all", r.notificationHandler.MarkAllAsRead)
			notifications.PATCH("/:id/read", r.notificationHandler.MarkAsRead)
			notifications.DELETE("/:id", r.notificationHandler.Delete)
		}
	}

	// Service-to-service surface for the task API and operators. It bypasses
	// the room gate, so user tokens are never enough.
	internal := r.engine.Group("/internal")
	internal.Use(middleware.RequireServiceToken(r.internalToken))
	{
		internal.POST("/tasks/:id/events", r.taskEventHandler.PostEvent)
		internal.POST("/notifications", r.notificationHandler.Create)
		internal.GET("/ws/stats", r.wsHandler.GetStats)
	}
}

func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}
