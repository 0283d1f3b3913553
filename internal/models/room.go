package models

import "time"

// CreateRoomRequest carries the optional room settings. Fields may arrive as
// query parameters or as a JSON body.
type CreateRoomRequest struct {
	AppID    string `json:"appId" form:"appId"`
	MaxPeers int    `json:"max_peers" form:"max_peers" binding:"omitempty,min=1"`
	Password string `json:"password" form:"password"`
}

// CreateRoomResponse is the response for creating a room
type CreateRoomResponse struct {
	Room     string `json:"room"`
	Password string `json:"password,omitempty"`
}

// RoomStatusResponse answers "can I join this room?"
type RoomStatusResponse struct {
	Exists           bool `json:"exists"`
	Peers            int  `json:"peers"`
	Capacity         int  `json:"capacity"`
	Full             bool `json:"full"`
	PasswordRequired bool `json:"password_required"`
}

// RoomInfo is one row of the admin room listing
type RoomInfo struct {
	ID               string    `json:"id"`
	AppID            string    `json:"app_id"`
	Peers            int       `json:"peers"`
	Subscribers      int       `json:"subscribers"`
	Capacity         int       `json:"capacity"`
	PasswordRequired bool      `json:"password_required"`
	CreatedAt        time.Time `json:"created_at"`
}

type AdminRoomsResponse struct {
	Rooms      []RoomInfo `json:"rooms"`
	TotalRooms int        `json:"total_rooms"`
	MaxRooms   int        `json:"max_rooms"`
}

type MetricsResponse struct {
	ActiveRooms       int    `json:"active_rooms"`
	ActiveConnections int    `json:"active_connections"`
	RoomsCreated      uint64 `json:"rooms_created"`
	Connections       uint64 `json:"connections"`
	UptimeSeconds     uint64 `json:"uptime_seconds"`
}

type LogsResponse struct {
	Logs []string `json:"logs"`
}

// ErrorResponse is the body of every non-2xx REST response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
