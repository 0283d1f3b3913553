// Package rooms owns the room registry: creation, admission, peer
// registration and eviction of rooms keyed by (scope, room id).
package rooms

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/crypto/bcrypt"

	"github.com/mossy-p/signal-relay/internal/hub"
	"github.com/mossy-p/signal-relay/internal/ids"
)

const (
	DefaultMaxPeersPerRoom = 6
	DefaultMaxRooms        = 500

	shardCount = 32
)

// Options configures a Registry. Zero values select the defaults.
type Options struct {
	MaxRooms        int
	MaxPeersPerRoom int
	HubBuffer       int
	PasswordCost    int
	IDs             *ids.Generator
	Observer        Observer
	Now             func() time.Time
}

// Registry is a sharded concurrent map from Key to Room. Operations on rooms
// in different shards never contend; a shard's write lock is the per-room
// mutation gate.
type Registry struct {
	shards [shardCount]shard
	count  atomic.Int64

	maxRooms     int
	maxPeers     int
	hubBuffer    int
	passwordCost int
	ids          *ids.Generator
	observer     Observer
	now          func() time.Time
}

type shard struct {
	mu    sync.RWMutex
	rooms map[Key]*Room
}

// New creates an empty registry
func New(opts Options) *Registry {
	r := &Registry{
		maxRooms:     opts.MaxRooms,
		maxPeers:     opts.MaxPeersPerRoom,
		hubBuffer:    opts.HubBuffer,
		passwordCost: opts.PasswordCost,
		ids:          opts.IDs,
		observer:     opts.Observer,
		now:          opts.Now,
	}
	if r.maxRooms <= 0 {
		r.maxRooms = DefaultMaxRooms
	}
	if r.maxPeers <= 0 {
		r.maxPeers = DefaultMaxPeersPerRoom
	}
	if r.hubBuffer <= 0 {
		r.hubBuffer = hub.DefaultBuffer
	}
	if r.passwordCost == 0 {
		r.passwordCost = bcrypt.DefaultCost
	}
	if r.ids == nil {
		r.ids = ids.New()
	}
	if r.observer == nil {
		r.observer = Observers(nil)
	}
	if r.now == nil {
		r.now = time.Now
	}
	for i := range r.shards {
		r.shards[i].rooms = make(map[Key]*Room)
	}
	return r
}

// MaxRooms is the global room ceiling
func (r *Registry) MaxRooms() int { return r.maxRooms }

// MaxPeersPerRoom is the per-room capacity ceiling
func (r *Registry) MaxPeersPerRoom() int { return r.maxPeers }

func (r *Registry) shardFor(key Key) *shard {
	h := xxhash.Sum64String(key.Scope + "\x00" + key.RoomID)
	return &r.shards[h%shardCount]
}

// Create mints a new room in scope. maxPeers <= 0 selects the per-room
// ceiling; larger requests are capped to it. An empty password creates an
// open room.
func (r *Registry) Create(scope string, maxPeers int, password string) (*Room, error) {
	if password != "" && !ValidPassword(password) {
		return nil, ErrInvalidPasswordFormat
	}
	if !r.reserve() {
		return nil, ErrTooManyRooms
	}

	capacity := maxPeers
	if capacity <= 0 || capacity > r.maxPeers {
		capacity = r.maxPeers
	}

	var hash []byte
	if password != "" {
		var err error
		hash, err = bcrypt.GenerateFromPassword([]byte(password), r.passwordCost)
		if err != nil {
			r.count.Add(-1)
			return nil, fmt.Errorf("hash room password: %w", err)
		}
	}

	now := r.now()
	h := hub.New(r.hubBuffer)
	var room *Room
	_, err := r.ids.RoomSlug(func(slug string) bool {
		candidate := &Room{
			key:          NewKey(scope, slug),
			hub:          h,
			maxPeers:     capacity,
			passwordHash: hash,
			createdAt:    now,
			peers:        make(map[string]struct{}),
			emptySince:   now,
		}
		if !r.insertIfAbsent(candidate) {
			return false
		}
		room = candidate
		return true
	})
	if err != nil {
		r.count.Add(-1)
		if errors.Is(err, ids.ErrSlugExhausted) {
			return nil, ErrSlugExhausted
		}
		return nil, fmt.Errorf("generate room slug: %w", err)
	}

	r.observer.RoomCreated(Snapshot{
		Key:              room.key,
		Capacity:         room.maxPeers,
		PasswordRequired: room.HasPassword(),
		CreatedAt:        room.createdAt,
	})
	return room, nil
}

// reserve claims one slot under the global ceiling
func (r *Registry) reserve() bool {
	for {
		n := r.count.Load()
		if n >= int64(r.maxRooms) {
			return false
		}
		if r.count.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

func (r *Registry) insertIfAbsent(room *Room) bool {
	s := r.shardFor(room.key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rooms[room.key]; exists {
		return false
	}
	s.rooms[room.key] = room
	return true
}

// Lookup returns a snapshot of the room at key
func (r *Registry) Lookup(key Key) (Snapshot, error) {
	s := r.shardFor(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[key]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	return room.snapshot(), nil
}

// Admit is the advisory pre-upgrade check. It evaluates a snapshot of the
// room, so a nil result does not guarantee Register will succeed.
func (r *Registry) Admit(key Key, password string) error {
	s := r.shardFor(key)
	s.mu.RLock()
	room, ok := s.rooms[key]
	var peers int
	if ok {
		peers = len(room.peers)
	}
	s.mu.RUnlock()

	if !ok {
		return ErrNotFound
	}
	if room.HasPassword() {
		if password == "" {
			return ErrPasswordRequired
		}
		if bcrypt.CompareHashAndPassword(room.passwordHash, []byte(password)) != nil {
			return ErrInvalidPassword
		}
	}
	if peers >= room.maxPeers {
		return ErrRoomFull
	}
	return nil
}

// Register adds peerID to the room. The capacity check and the insert happen
// under the same lock, so concurrent registrations can never exceed the
// room's capacity.
func (r *Registry) Register(key Key, peerID string) (*Room, error) {
	s := r.shardFor(key)
	s.mu.Lock()
	room, ok := s.rooms[key]
	if !ok {
		s.mu.Unlock()
		return nil, ErrNotFound
	}
	if _, taken := room.peers[peerID]; taken {
		s.mu.Unlock()
		return nil, ErrPeerExists
	}
	if len(room.peers) >= room.maxPeers {
		s.mu.Unlock()
		return nil, ErrRoomFull
	}
	room.peers[peerID] = struct{}{}
	n := len(room.peers)
	s.mu.Unlock()

	r.observer.PeerJoined(key, n)
	return room, nil
}

// Deregister removes peerID from the room if both exist
func (r *Registry) Deregister(key Key, peerID string) {
	s := r.shardFor(key)
	s.mu.Lock()
	room, ok := s.rooms[key]
	if !ok {
		s.mu.Unlock()
		return
	}
	if _, present := room.peers[peerID]; !present {
		s.mu.Unlock()
		return
	}
	delete(room.peers, peerID)
	n := len(room.peers)
	if n == 0 {
		room.emptySince = r.now()
	}
	s.mu.Unlock()

	r.observer.PeerLeft(key, n)
}

// RemoveIfEmpty deletes room if it is still registered and has no peers.
// A different room that has since taken the same key is left alone.
func (r *Registry) RemoveIfEmpty(room *Room) bool {
	s := r.shardFor(room.key)
	s.mu.Lock()
	current, ok := s.rooms[room.key]
	if !ok || current != room || len(room.peers) > 0 {
		s.mu.Unlock()
		return false
	}
	delete(s.rooms, room.key)
	s.mu.Unlock()

	r.removed(room, RemovedEmpty)
	return true
}

// Sweep evicts rooms that have been empty for longer than idle, measured
// from the moment they last became empty. Candidates are collected under read
// locks and re-checked before deletion, so a peer registering concurrently
// keeps its room.
func (r *Registry) Sweep(idle time.Duration) []Key {
	now := r.now()
	var candidates []*Room
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.RLock()
		for _, room := range s.rooms {
			if len(room.peers) == 0 && now.Sub(room.emptySince) > idle {
				candidates = append(candidates, room)
			}
		}
		s.mu.RUnlock()
	}

	var evicted []Key
	for _, room := range candidates {
		s := r.shardFor(room.key)
		s.mu.Lock()
		current, ok := s.rooms[room.key]
		stale := ok && current == room && len(room.peers) == 0 && now.Sub(room.emptySince) > idle
		if stale {
			delete(s.rooms, room.key)
		}
		s.mu.Unlock()

		if stale {
			r.removed(room, RemovedStale)
			evicted = append(evicted, room.key)
		}
	}
	return evicted
}

func (r *Registry) removed(room *Room, reason RemovalReason) {
	r.count.Add(-1)
	room.hub.Close()
	r.observer.RoomRemoved(room.key, reason)
}

// Len returns the number of rooms
func (r *Registry) Len() int { return int(r.count.Load()) }

// Rooms returns snapshots of every room ordered by scope then room id
func (r *Registry) Rooms() []Snapshot {
	var out []Snapshot
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.RLock()
		for _, room := range s.rooms {
			out = append(out, room.snapshot())
		}
		s.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Key.Scope != out[j].Key.Scope {
			return out[i].Key.Scope < out[j].Key.Scope
		}
		return out[i].Key.RoomID < out[j].Key.RoomID
	})
	return out
}

// Stats returns the number of rooms and connected peers
func (r *Registry) Stats() (rooms, peers int) {
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.RLock()
		rooms += len(s.rooms)
		for _, room := range s.rooms {
			peers += len(room.peers)
		}
		s.mu.RUnlock()
	}
	return rooms, peers
}
