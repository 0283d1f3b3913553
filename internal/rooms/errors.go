package rooms

// Error is an admission error. Code is the machine-readable value reported to
// clients in REST bodies and websocket error frames.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Message }

var (
	ErrNotFound              = &Error{Code: "room_not_found", Message: "Room not found"}
	ErrRoomFull              = &Error{Code: "room_full", Message: "Room is at maximum capacity"}
	ErrPasswordRequired      = &Error{Code: "password_required", Message: "This room requires a password"}
	ErrInvalidPassword       = &Error{Code: "invalid_password", Message: "Incorrect password"}
	ErrInvalidPasswordFormat = &Error{Code: "invalid_password_format", Message: "Password must be 4-12 alphanumeric characters"}
	ErrTooManyRooms          = &Error{Code: "max_rooms_reached", Message: "Maximum number of global rooms reached"}
	ErrSlugExhausted         = &Error{Code: "slug_generation_failed", Message: "Failed to generate unique room ID"}
	ErrPeerExists            = &Error{Code: "peer_exists", Message: "Peer id already in use in this room"}
)
