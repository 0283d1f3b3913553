package rooms

// RemovalReason says why a room left the registry
type RemovalReason string

const (
	// RemovedEmpty is used when the last peer's session tore the room down
	RemovedEmpty RemovalReason = "empty"
	// RemovedStale is used when the reaper evicted an idle room
	RemovedStale RemovalReason = "stale"
)

// Observer receives registry events after the registry has released its
// locks. Implementations must not block.
type Observer interface {
	RoomCreated(s Snapshot)
	RoomRemoved(key Key, reason RemovalReason)
	PeerJoined(key Key, peers int)
	PeerLeft(key Key, peers int)
}

// Observers fans events out to several observers
type Observers []Observer

func (o Observers) RoomCreated(s Snapshot) {
	for _, ob := range o {
		ob.RoomCreated(s)
	}
}

func (o Observers) RoomRemoved(key Key, reason RemovalReason) {
	for _, ob := range o {
		ob.RoomRemoved(key, reason)
	}
}

func (o Observers) PeerJoined(key Key, peers int) {
	for _, ob := range o {
		ob.PeerJoined(key, peers)
	}
}

func (o Observers) PeerLeft(key Key, peers int) {
	for _, ob := range o {
		ob.PeerLeft(key, peers)
	}
}
