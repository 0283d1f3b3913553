package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mossy-p/signal-relay/internal/models"
	"github.com/mossy-p/signal-relay/internal/rooms"
)

// CreateRoom mints a room with a fresh slug
func (h *Handler) CreateRoom(c *gin.Context) {
	var req models.CreateRoomRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid_request", Message: err.Error()})
		return
	}

	room, err := h.registry.Create(req.AppID, req.MaxPeers, req.Password)
	if err != nil {
		h.log.Warn("room.create_failed", "app_id", rooms.NewKey(req.AppID, "").Scope, "err", err)
		writeError(c, err)
		return
	}

	key := room.Key()
	h.log.Info("room.created",
		"room_id", key.RoomID,
		"app_id", key.Scope,
		"max_peers", room.MaxPeers(),
		"password", room.HasPassword(),
		"total_rooms", h.registry.Len(),
	)

	c.JSON(http.StatusOK, models.CreateRoomResponse{
		Room:     key.RoomID,
		Password: req.Password,
	})
}

// GetRoom reports whether a room exists and can be joined
func (h *Handler) GetRoom(c *gin.Context) {
	key, ok := roomKey(c)
	if !ok {
		return
	}

	snap, err := h.registry.Lookup(key)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.RoomStatusResponse{
		Exists:           true,
		Peers:            snap.Peers,
		Capacity:         snap.Capacity,
		Full:             snap.Full(),
		PasswordRequired: snap.PasswordRequired,
	})
}

// ICEServers returns the STUN/TURN servers clients should use
func (h *Handler) ICEServers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"iceServers": h.cfg.ICEServers})
}

// Health is the liveness probe
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
