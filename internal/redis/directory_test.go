package redis

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mossy-p/signal-relay/config"
	"github.com/mossy-p/signal-relay/internal/rooms"
)

func newDirectory(t *testing.T) (*miniredis.Miniredis, *Directory) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	dir := NewDirectory(client, slog.New(slog.NewTextHandler(io.Discard, nil)), time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go dir.Run(ctx)
	return mr, dir
}

func TestDirectory_MirrorsRoomLifecycle(t *testing.T) {
	mr, dir := newDirectory(t)
	key := rooms.NewKey("", "abc123")
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	dir.RoomCreated(rooms.Snapshot{Key: key, Capacity: 4, PasswordRequired: true, CreatedAt: created})
	require.Eventually(t, func() bool { return mr.Exists(RoomKey(key)) }, time.Second, 5*time.Millisecond)

	assert.Equal(t, "4", mr.HGet(RoomKey(key), "capacity"))
	assert.Equal(t, "0", mr.HGet(RoomKey(key), "peers"))
	assert.Equal(t, "true", mr.HGet(RoomKey(key), "password_required"))
	assert.Equal(t, "2026-03-01T12:00:00Z", mr.HGet(RoomKey(key), "created_at"))
	assert.Equal(t, time.Hour, mr.TTL(RoomKey(key)))
	ok, err := mr.IsMember(ScopeKey("public"), "abc123")
	require.NoError(t, err)
	assert.True(t, ok)

	dir.PeerJoined(key, 2)
	require.Eventually(t, func() bool { return mr.HGet(RoomKey(key), "peers") == "2" }, time.Second, 5*time.Millisecond)

	dir.RoomRemoved(key, rooms.RemovedEmpty)
	require.Eventually(t, func() bool { return !mr.Exists(RoomKey(key)) }, time.Second, 5*time.Millisecond)
	ok, err = mr.IsMember(ScopeKey("public"), "abc123")
	if err == nil {
		assert.False(t, ok)
	}
}

func TestDirectory_PeerUpdateForUnknownRoomIsIgnored(t *testing.T) {
	mr, dir := newDirectory(t)
	key := rooms.NewKey("app", "zzz999")

	dir.PeerLeft(key, 0)
	dir.RoomCreated(rooms.Snapshot{Key: rooms.NewKey("app", "marker")})
	require.Eventually(t, func() bool { return mr.Exists(RoomKey(rooms.NewKey("app", "marker"))) }, time.Second, 5*time.Millisecond)

	assert.False(t, mr.Exists(RoomKey(key)))
}

func TestConnect(t *testing.T) {
	mr := miniredis.RunT(t)
	host, port, err := net.SplitHostPort(mr.Addr())
	require.NoError(t, err)

	client, err := Connect(context.Background(), config.RedisConfig{Host: host, Port: port})
	require.NoError(t, err)
	require.NoError(t, client.Close())

	mr.Close()
	_, err = Connect(context.Background(), config.RedisConfig{Host: host, Port: port})
	assert.Error(t, err)
}
