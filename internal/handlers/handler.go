package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"regexp"

	"github.com/gin-gonic/gin"

	"github.com/mossy-p/signal-relay/config"
	"github.com/mossy-p/signal-relay/internal/metrics"
	"github.com/mossy-p/signal-relay/internal/models"
	"github.com/mossy-p/signal-relay/internal/rooms"
	"github.com/mossy-p/signal-relay/internal/session"
)

var roomIDPattern = regexp.MustCompile(`^[A-Za-z0-9-]{4,32}$`)

var errInvalidRoomID = &rooms.Error{Code: "invalid_room_id", Message: "Room id must be 4-32 letters, digits or hyphens"}

// Handler serves the REST and WebSocket endpoints
type Handler struct {
	registry *rooms.Registry
	sessions *session.Manager
	metrics  *metrics.Metrics
	cfg      *config.Config
	log      *slog.Logger
}

func New(cfg *config.Config, registry *rooms.Registry, sessions *session.Manager, m *metrics.Metrics, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{registry: registry, sessions: sessions, metrics: m, cfg: cfg, log: log}
}

// roomKey validates the :room path parameter and scopes it by appId
func roomKey(c *gin.Context) (rooms.Key, bool) {
	id := c.Param("room")
	if !roomIDPattern.MatchString(id) {
		writeError(c, errInvalidRoomID)
		return rooms.Key{}, false
	}
	return rooms.NewKey(c.Query("appId"), id), true
}

// writeError maps registry errors onto status codes. Anything that is not a
// *rooms.Error is reported as an internal error without its message.
func writeError(c *gin.Context, err error) {
	var e *rooms.Error
	if !errors.As(err, &e) {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "internal_error", Message: "Internal server error"})
		return
	}
	c.JSON(statusFor(e), models.ErrorResponse{Error: e.Code, Message: e.Message})
}

func statusFor(e *rooms.Error) int {
	switch e {
	case rooms.ErrNotFound:
		return http.StatusNotFound
	case rooms.ErrTooManyRooms:
		return http.StatusTooManyRequests
	case rooms.ErrSlugExhausted:
		return http.StatusInternalServerError
	case rooms.ErrPasswordRequired, rooms.ErrInvalidPassword:
		return http.StatusUnauthorized
	case rooms.ErrRoomFull:
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}
