package handlers

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mossy-p/signal-relay/internal/logging"
	"github.com/mossy-p/signal-relay/internal/middleware"
	"github.com/mossy-p/signal-relay/internal/models"
)

// LoginRequest represents the admin login request body
type LoginRequest struct {
	Token string `json:"token" binding:"required"`
}

// LoginResponse represents the login response
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AdminLogin exchanges the static admin token for a short-lived JWT
func (h *Handler) AdminLogin(c *gin.Context) {
	if h.cfg.AdminToken == "" {
		c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{Error: "admin_disabled", Message: "ADMIN_TOKEN is not configured"})
		return
	}

	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid_request", Message: "Invalid request body"})
		return
	}

	if subtle.ConstantTimeCompare([]byte(req.Token), []byte(h.cfg.AdminToken)) != 1 {
		h.log.Warn("admin.login_failed", "ip", c.ClientIP())
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "unauthorized", Message: "Invalid admin token"})
		return
	}

	now := time.Now()
	token, err := middleware.IssueAdminToken(h.cfg.JWTSecret, middleware.AdminTokenTTL, now)
	if err != nil {
		h.log.Error("admin.token_failed", "err", err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "internal_error", Message: "Failed to generate token"})
		return
	}

	h.log.Info("admin.login", "ip", c.ClientIP())
	c.JSON(http.StatusOK, LoginResponse{Token: token, ExpiresAt: now.Add(middleware.AdminTokenTTL).UTC()})
}

func (h *Handler) AdminRooms(c *gin.Context) {
	snaps := h.registry.Rooms()
	infos := make([]models.RoomInfo, 0, len(snaps))
	for _, s := range snaps {
		infos = append(infos, models.RoomInfo{
			ID:               s.Key.RoomID,
			AppID:            s.Key.Scope,
			Peers:            s.Peers,
			Subscribers:      s.Subscribers,
			Capacity:         s.Capacity,
			PasswordRequired: s.PasswordRequired,
			CreatedAt:        s.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, models.AdminRoomsResponse{
		Rooms:      infos,
		TotalRooms: len(infos),
		MaxRooms:   h.registry.MaxRooms(),
	})
}

func (h *Handler) AdminMetrics(c *gin.Context) {
	activeRooms, activeConns := h.registry.Stats()
	c.JSON(http.StatusOK, models.MetricsResponse{
		ActiveRooms:       activeRooms,
		ActiveConnections: activeConns,
		RoomsCreated:      h.metrics.RoomsCreated(),
		Connections:       h.metrics.Connections(),
		UptimeSeconds:     uint64(h.metrics.Uptime() / time.Second),
	})
}

// AdminLogs returns the tail of LOG_FILE, or nothing when logging to stdout
func (h *Handler) AdminLogs(c *gin.Context) {
	lines := []string{}
	if h.cfg.Log.File != "" {
		tail, err := logging.Tail(h.cfg.Log.File, logging.DefaultTailLines)
		if err != nil {
			h.log.Warn("admin.logs_failed", "err", err)
		} else {
			lines = tail
		}
	}
	c.JSON(http.StatusOK, models.LogsResponse{Logs: lines})
}
