package session

import "github.com/mossy-p/signal-relay/internal/models"

// Deliverable is the targeting policy: it reports whether a message taken
// from the room hub is forwarded to the peer self. Peers never see their own
// messages, directed payloads only reach their target, and heartbeat frames
// never cross between clients.
func Deliverable(msg models.SignalMessage, self string) bool {
	if msg.Payload == nil || msg.From == self {
		return false
	}
	switch p := msg.Payload.(type) {
	case models.Ping, models.Pong:
		return false
	case models.Directed:
		return p.Target() == self
	}
	return true
}
