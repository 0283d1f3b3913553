package redis

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mossy-p/signal-relay/internal/rooms"
)

const (
	DefaultTTL = 24 * time.Hour

	queueSize    = 256
	writeTimeout = 2 * time.Second
)

type eventKind int

const (
	eventCreated eventKind = iota
	eventRemoved
	eventPeers
)

type event struct {
	kind     eventKind
	snapshot rooms.Snapshot
	peers    int
	reason   rooms.RemovalReason
}

// Directory implements rooms.Observer. Events are queued and written by Run;
// when the queue is full they are dropped rather than slowing the registry.
type Directory struct {
	client *redis.Client
	log    *slog.Logger
	ttl    time.Duration
	events chan event
}

func NewDirectory(client *redis.Client, log *slog.Logger, ttl time.Duration) *Directory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = slog.Default()
	}
	return &Directory{client: client, log: log, ttl: ttl, events: make(chan event, queueSize)}
}

// RoomKey is the hash holding one room's presence record
func RoomKey(key rooms.Key) string {
	return "room:" + key.Scope + ":" + key.RoomID
}

// ScopeKey is the set of room ids present in a scope
func ScopeKey(scope string) string {
	return "rooms:" + scope
}

func (d *Directory) RoomCreated(s rooms.Snapshot) {
	d.enqueue(event{kind: eventCreated, snapshot: s})
}

func (d *Directory) RoomRemoved(key rooms.Key, reason rooms.RemovalReason) {
	d.enqueue(event{kind: eventRemoved, snapshot: rooms.Snapshot{Key: key}, reason: reason})
}

func (d *Directory) PeerJoined(key rooms.Key, peers int) {
	d.enqueue(event{kind: eventPeers, snapshot: rooms.Snapshot{Key: key}, peers: peers})
}

func (d *Directory) PeerLeft(key rooms.Key, peers int) {
	d.enqueue(event{kind: eventPeers, snapshot: rooms.Snapshot{Key: key}, peers: peers})
}

func (d *Directory) enqueue(ev event) {
	select {
	case d.events <- ev:
	default:
		d.log.Warn("redis.directory_dropped", "room_id", ev.snapshot.Key.RoomID)
	}
}

// Run writes queued events until ctx is cancelled
func (d *Directory) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-d.events:
			if err := d.apply(ctx, ev); err != nil {
				d.log.Warn("redis.directory_write_failed", "room_id", ev.snapshot.Key.RoomID, "err", err)
			}
		}
	}
}

func (d *Directory) apply(ctx context.Context, ev event) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	key := ev.snapshot.Key
	roomKey := RoomKey(key)

	switch ev.kind {
	case eventCreated:
		_, err := d.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, roomKey,
				"capacity", ev.snapshot.Capacity,
				"peers", ev.snapshot.Peers,
				"password_required", strconv.FormatBool(ev.snapshot.PasswordRequired),
				"created_at", ev.snapshot.CreatedAt.UTC().Format(time.RFC3339),
			)
			pipe.Expire(ctx, roomKey, d.ttl)
			pipe.SAdd(ctx, ScopeKey(key.Scope), key.RoomID)
			pipe.Expire(ctx, ScopeKey(key.Scope), d.ttl)
			return nil
		})
		return err

	case eventRemoved:
		_, err := d.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, roomKey)
			pipe.SRem(ctx, ScopeKey(key.Scope), key.RoomID)
			return nil
		})
		return err

	case eventPeers:
		exists, err := d.client.Exists(ctx, roomKey).Result()
		if err != nil || exists == 0 {
			return err
		}
		_, err = d.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, roomKey, "peers", ev.peers)
			pipe.Expire(ctx, roomKey, d.ttl)
			return nil
		})
		return err
	}
	return nil
}
