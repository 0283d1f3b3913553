package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/mossy-p/signal-relay/internal/rooms"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin checking is handled by middleware
		return true
	},
}

// HandleSignaling upgrades the request and runs a signaling session for it.
// Malformed and unknown rooms are refused over HTTP; every other admission
// failure is reported to the client as an error frame after the upgrade.
func (h *Handler) HandleSignaling(c *gin.Context) {
	key, ok := roomKey(c)
	if !ok {
		return
	}
	if _, err := h.registry.Lookup(key); err != nil {
		writeError(c, err)
		return
	}

	admitErr := h.registry.Admit(key, c.Query("password"))

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("ws.upgrade_failed", "room_id", key.RoomID, "err", err)
		return
	}

	var rejection *rooms.Error
	if errors.As(admitErr, &rejection) {
		h.log.Info("peer.rejected", "room_id", key.RoomID, "app_id", key.Scope, "code", rejection.Code)
		h.sessions.Reject(conn, rejection)
		return
	}

	// The request context is derived from the server's base context, so
	// shutting the server down ends every session.
	_ = h.sessions.Serve(c.Request.Context(), conn, key)
}
