package handlers

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/mossy-p/signal-relay/internal/middleware"
)

// Limiters throttle the routes that cost real work per request
type Limiters struct {
	Create *middleware.RateLimiter
	Join   *middleware.RateLimiter
}

// NewRouter wires every route
func NewRouter(h *Handler, limiters Limiters, log *slog.Logger) *gin.Engine {
	if h.cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID(), middleware.RequestLogger(log))

	// Global CORS middleware (runs before routing)
	router.Use(middleware.OriginFilter(h.cfg.AllowedOrigins))

	router.GET("/health", h.Health)
	router.GET("/metrics", gin.WrapH(h.metrics.Handler()))

	apiKey := middleware.APIKey(h.cfg.APIKey)

	api := router.Group("/api")
	{
		api.POST("/room", apiKey, limiters.Create.Middleware(), h.CreateRoom)
		api.GET("/room/:room", h.GetRoom)
		api.GET("/ice-servers", h.ICEServers)

		api.POST("/admin/login", h.AdminLogin)

		admin := api.Group("/admin", middleware.AdminAuth(h.cfg.JWTSecret))
		{
			admin.GET("/rooms", h.AdminRooms)
			admin.GET("/metrics", h.AdminMetrics)
			admin.GET("/logs", h.AdminLogs)
		}
	}

	// WebSocket signaling endpoint
	router.GET("/ws/:room", apiKey, limiters.Join.Middleware(), h.HandleSignaling)

	return router
}
