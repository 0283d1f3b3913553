package rooms

import (
	"time"

	"github.com/mossy-p/signal-relay/internal/hub"
)

// DefaultScope is used when a request does not name an application scope
const DefaultScope = "public"

// Key identifies a room within an application scope
type Key struct {
	Scope  string
	RoomID string
}

// NewKey builds a key, substituting DefaultScope for an empty scope
func NewKey(scope, roomID string) Key {
	if scope == "" {
		scope = DefaultScope
	}
	return Key{Scope: scope, RoomID: roomID}
}

func (k Key) String() string { return k.Scope + "/" + k.RoomID }

// Room is the state of one room. Its peer set is guarded by the lock of the
// registry shard that owns it; everything else is immutable after creation.
type Room struct {
	key          Key
	hub          *hub.Hub
	maxPeers     int
	passwordHash []byte
	createdAt    time.Time

	peers      map[string]struct{}
	emptySince time.Time
}

func (r *Room) Key() Key             { return r.key }
func (r *Room) Hub() *hub.Hub        { return r.hub }
func (r *Room) MaxPeers() int        { return r.maxPeers }
func (r *Room) CreatedAt() time.Time { return r.createdAt }
func (r *Room) HasPassword() bool    { return len(r.passwordHash) > 0 }

// Snapshot is a point-in-time copy of a room's observable state. Subscribers
// counts peers still receiving relayed traffic; it trails Peers while a
// lagged or closing session is being torn down.
type Snapshot struct {
	Key              Key
	Peers            int
	Subscribers      int
	Capacity         int
	PasswordRequired bool
	CreatedAt        time.Time
}

// Full reports whether no further peer can register
func (s Snapshot) Full() bool { return s.Peers >= s.Capacity }

// snapshot must be called with the owning shard's lock held
func (r *Room) snapshot() Snapshot {
	return Snapshot{
		Key:              r.key,
		Peers:            len(r.peers),
		Subscribers:      r.hub.Subscribers(),
		Capacity:         r.maxPeers,
		PasswordRequired: r.HasPassword(),
		CreatedAt:        r.createdAt,
	}
}

// ValidPassword reports whether p is 4-12 ASCII letters or digits
func ValidPassword(p string) bool {
	if len(p) < 4 || len(p) > 12 {
		return false
	}
	for i := 0; i < len(p); i++ {
		c := p[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		default:
			return false
		}
	}
	return true
}
