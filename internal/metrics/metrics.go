// Package metrics exports relay statistics to Prometheus and keeps the
// cumulative counters shown on the admin metrics endpoint.
package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mossy-p/signal-relay/internal/models"
	"github.com/mossy-p/signal-relay/internal/rooms"
)

const namespace = "signal_relay"

// Metrics implements rooms.Observer and session.Recorder
type Metrics struct {
	registry *prometheus.Registry
	start    time.Time

	activeRooms       prometheus.Gauge
	activeConnections prometheus.Gauge
	roomsCreated      prometheus.Counter
	roomsRemoved      *prometheus.CounterVec
	connections       prometheus.Counter
	messagesRelayed   *prometheus.CounterVec
	messagesDropped   *prometheus.CounterVec
	sessionsEnded     *prometheus.CounterVec
	rateLimited       prometheus.Counter

	roomsCreatedTotal atomic.Uint64
	connectionsTotal  atomic.Uint64
}

// New registers the collectors on a private registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		start:    time.Now(),
		activeRooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "active_rooms",
			Help: "Rooms currently held in the registry.",
		}),
		activeConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "active_connections",
			Help: "Peers currently registered in a room.",
		}),
		roomsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "rooms_created_total",
			Help: "Rooms created since start.",
		}),
		roomsRemoved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "rooms_removed_total",
			Help: "Rooms removed, by reason.",
		}, []string{"reason"}),
		connections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "connections_total",
			Help: "Peers admitted to a room since start.",
		}),
		messagesRelayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "messages_relayed_total",
			Help: "Frames written to peers, by type.",
		}, []string{"type"}),
		messagesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "messages_dropped_total",
			Help: "Client frames discarded, by reason.",
		}, []string{"reason"}),
		sessionsEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "sessions_ended_total",
			Help: "Sessions torn down, by reason.",
		}, []string{"reason"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "rate_limited_total",
			Help: "Room creation requests rejected by the rate limiter.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.activeRooms,
		m.activeConnections,
		m.roomsCreated,
		m.roomsRemoved,
		m.connections,
		m.messagesRelayed,
		m.messagesDropped,
		m.sessionsEnded,
		m.rateLimited,
	)
	return m
}

// Handler serves the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) RoomsCreated() uint64 { return m.roomsCreatedTotal.Load() }
func (m *Metrics) Connections() uint64  { return m.connectionsTotal.Load() }
func (m *Metrics) Uptime() time.Duration { return time.Since(m.start) }

func (m *Metrics) RoomCreated(rooms.Snapshot) {
	m.roomsCreatedTotal.Add(1)
	m.roomsCreated.Inc()
	m.activeRooms.Inc()
}

func (m *Metrics) RoomRemoved(_ rooms.Key, reason rooms.RemovalReason) {
	m.activeRooms.Dec()
	m.roomsRemoved.WithLabelValues(string(reason)).Inc()
}

func (m *Metrics) PeerJoined(rooms.Key, int) {
	m.connectionsTotal.Add(1)
	m.connections.Inc()
	m.activeConnections.Inc()
}

func (m *Metrics) PeerLeft(rooms.Key, int) {
	m.activeConnections.Dec()
}

func (m *Metrics) MessageRelayed(t models.SignalType) {
	m.messagesRelayed.WithLabelValues(string(t)).Inc()
}

func (m *Metrics) MessageDropped(reason string) {
	m.messagesDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) SessionEnded(reason string) {
	m.sessionsEnded.WithLabelValues(reason).Inc()
}

// RateLimited counts a rejected room creation
func (m *Metrics) RateLimited() {
	m.rateLimited.Inc()
}
