package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mossy-p/signal-relay/internal/models"
	"github.com/mossy-p/signal-relay/internal/rooms"
)

func TestMetrics_TracksRegistryEvents(t *testing.T) {
	m := New()
	key := rooms.NewKey("", "abc123")

	m.RoomCreated(rooms.Snapshot{Key: key})
	m.PeerJoined(key, 1)
	m.PeerJoined(key, 2)
	m.PeerLeft(key, 1)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.activeRooms))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.activeConnections))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.connections))
	assert.EqualValues(t, 1, m.RoomsCreated())
	assert.EqualValues(t, 2, m.Connections())

	m.RoomRemoved(key, rooms.RemovedStale)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.activeRooms))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.roomsRemoved.WithLabelValues("stale")))
}

func TestMetrics_SessionCounters(t *testing.T) {
	m := New()
	m.MessageRelayed(models.SignalTypeOffer)
	m.MessageRelayed(models.SignalTypeOffer)
	m.MessageDropped("decode")
	m.SessionEnded("heartbeat_timeout")
	m.RateLimited()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.messagesRelayed.WithLabelValues("offer")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.messagesDropped.WithLabelValues("decode")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessionsEnded.WithLabelValues("heartbeat_timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rateLimited))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.RoomCreated(rooms.Snapshot{})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "signal_relay_rooms_created_total 1")
	assert.Contains(t, string(body), "signal_relay_active_rooms 1")
}
