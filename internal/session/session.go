// Package session runs one peer's websocket connection inside a room.
//
// A session owns two duties over the same socket. The outbound duty is the
// only writer once the peer is welcomed: it relays hub traffic and drives the
// ping/pong heartbeat. The inbound duty is the only reader: it stamps and
// publishes client frames and records pongs. The duties share the last-pong
// timestamp and a one-shot timeout signal; whichever ends first takes the
// socket down with it, which ends the other.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mossy-p/signal-relay/internal/hub"
	"github.com/mossy-p/signal-relay/internal/ids"
	"github.com/mossy-p/signal-relay/internal/models"
	"github.com/mossy-p/signal-relay/internal/rooms"
)

const (
	DefaultHeartbeatInterval = 15 * time.Second
	DefaultHeartbeatTimeout  = 30 * time.Second
	DefaultLeaveSettle       = 50 * time.Millisecond
	DefaultWriteWait         = 10 * time.Second

	// DefaultMaxMessageSize is enough for SDP blobs
	DefaultMaxMessageSize = 64 * 1024

	maxPeerIDAttempts = 10
)

// End reasons reported to the Recorder and in logs
const (
	EndClientClosed     = "client_closed"
	EndHeartbeatTimeout = "heartbeat_timeout"
	EndLagged           = "lagged"
	EndSendFailed       = "send_failed"
	EndRoomClosed       = "room_closed"
)

var errHeartbeatTimeout = errors.New("heartbeat timeout")

// Conn is the part of *websocket.Conn a session uses
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadLimit(limit int64)
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Rooms is the part of the room registry a session uses
type Rooms interface {
	Register(key rooms.Key, peerID string) (*rooms.Room, error)
	Deregister(key rooms.Key, peerID string)
	RemoveIfEmpty(room *rooms.Room) bool
	Lookup(key rooms.Key) (rooms.Snapshot, error)
}

// Recorder receives per-session statistics. Implementations must not block.
type Recorder interface {
	MessageRelayed(t models.SignalType)
	MessageDropped(reason string)
	SessionEnded(reason string)
}

type nopRecorder struct{}

func (nopRecorder) MessageRelayed(models.SignalType) {}
func (nopRecorder) MessageDropped(string)            {}
func (nopRecorder) SessionEnded(string)              {}

// Config holds the session timings
type Config struct {
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
	LeaveSettle       time.Duration
	WriteWait         time.Duration
	MaxMessageSize    int64
}

// DefaultConfig returns the production timings
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval: DefaultHeartbeatInterval,
		HeartbeatTimeout:  DefaultHeartbeatTimeout,
		LeaveSettle:       DefaultLeaveSettle,
		WriteWait:         DefaultWriteWait,
		MaxMessageSize:    DefaultMaxMessageSize,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = d.HeartbeatInterval
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = d.HeartbeatTimeout
	}
	if c.LeaveSettle < 0 {
		c.LeaveSettle = 0
	}
	if c.WriteWait <= 0 {
		c.WriteWait = d.WriteWait
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = d.MaxMessageSize
	}
	return c
}

// Manager starts sessions against a registry
type Manager struct {
	rooms    Rooms
	ids      *ids.Generator
	cfg      Config
	log      *slog.Logger
	recorder Recorder
}

func NewManager(r Rooms, gen *ids.Generator, cfg Config, log *slog.Logger, rec Recorder) *Manager {
	if gen == nil {
		gen = ids.New()
	}
	if log == nil {
		log = slog.Default()
	}
	if rec == nil {
		rec = nopRecorder{}
	}
	return &Manager{rooms: r, ids: gen, cfg: cfg.withDefaults(), log: log, recorder: rec}
}

// Reject tells the client why it cannot join, then closes the socket
func (m *Manager) Reject(conn Conn, reason *rooms.Error) {
	defer conn.Close()

	s := &Session{conn: conn, cfg: m.cfg}
	if err := s.send(models.NewServerMessage(models.Error{Code: reason.Code, Message: reason.Message})); err != nil {
		m.log.Debug("reject.send_failed", "code", reason.Code, "err", err)
		return
	}
	deadline := time.Now().Add(m.cfg.WriteWait)
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason.Code), deadline)
}

// State is the lifecycle stage of a session
type State int32

const (
	StateJoining State = iota
	StateActive
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateJoining:
		return "joining"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Session is one peer's connection to a room
type Session struct {
	conn     Conn
	key      rooms.Key
	room     *rooms.Room
	peerID   string
	cfg      Config
	log      *slog.Logger
	recorder Recorder

	state atomic.Int32

	mu       sync.Mutex
	lastPong time.Time

	timeout     chan struct{}
	timeoutOnce sync.Once
}

// Serve runs a session on conn until the peer disconnects, stops answering
// pings, or the socket fails. It always closes conn before returning. The
// returned error is the reason the peer could not join, or nil once the peer
// was welcomed.
func (m *Manager) Serve(ctx context.Context, conn Conn, key rooms.Key) error {
	s := &Session{
		conn:     conn,
		key:      key,
		cfg:      m.cfg,
		recorder: m.recorder,
		timeout:  make(chan struct{}),
	}
	s.state.Store(int32(StateJoining))

	room, peerID, err := m.register(key)
	if err != nil {
		var rejection *rooms.Error
		if errors.As(err, &rejection) {
			m.log.Warn("peer.rejected", "room_id", key.RoomID, "app_id", key.Scope, "code", rejection.Code)
			m.Reject(conn, rejection)
		} else {
			m.log.Error("peer.register_failed", "room_id", key.RoomID, "app_id", key.Scope, "err", err)
			conn.Close()
		}
		s.state.Store(int32(StateClosed))
		return err
	}

	s.room = room
	s.peerID = peerID
	s.log = m.log.With("peer_id", peerID, "room_id", key.RoomID, "app_id", key.Scope)
	s.run(ctx, m.rooms)
	return nil
}

// register mints a peer id that is unused within the room and registers it
func (m *Manager) register(key rooms.Key) (*rooms.Room, string, error) {
	for i := 0; i < maxPeerIDAttempts; i++ {
		peerID, err := m.ids.PeerID()
		if err != nil {
			return nil, "", fmt.Errorf("generate peer id: %w", err)
		}
		room, err := m.rooms.Register(key, peerID)
		if errors.Is(err, rooms.ErrPeerExists) {
			continue
		}
		if err != nil {
			return nil, "", err
		}
		return room, peerID, nil
	}
	return nil, "", rooms.ErrPeerExists
}

func (s *Session) run(ctx context.Context, registry Rooms) {
	s.log.Info("peer.joining")
	s.touch()

	roomHub := s.room.Hub()
	sub := roomHub.SubscribeAs(s.peerID)
	s.conn.SetReadLimit(s.cfg.MaxMessageSize)

	reason := EndClientClosed
	welcome := models.NewServerMessage(models.Welcome{Version: models.ProtocolVersion, PeerID: s.peerID})
	if err := s.send(welcome); err != nil {
		s.log.Warn("peer.welcome_failed", "err", err)
		reason = EndSendFailed
		s.conn.Close()
	} else {
		s.setState(StateActive)
		roomHub.Publish(models.SignalMessage{From: s.peerID, Payload: models.Join{PeerID: s.peerID}})

		abort, cancel := context.WithCancel(ctx)
		outDone := make(chan error, 1)
		go func() {
			outDone <- s.outbound(abort, sub)
		}()

		inErr := s.inbound(roomHub)

		s.setState(StateClosing)
		cancel()
		s.conn.Close()
		outErr := <-outDone
		reason = endReason(inErr, outErr)
	}

	s.setState(StateClosing)
	sub.Unsubscribe()
	registry.Deregister(s.key, s.peerID)
	roomHub.Publish(models.SignalMessage{From: s.peerID, Payload: models.Leave{PeerID: s.peerID}})
	s.recorder.SessionEnded(reason)

	if s.cfg.LeaveSettle > 0 {
		timer := time.NewTimer(s.cfg.LeaveSettle)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
		}
	}

	if registry.RemoveIfEmpty(s.room) {
		s.log.Info("room.ended", "reason", reason)
	} else {
		remaining := 0
		if snap, err := registry.Lookup(s.key); err == nil {
			remaining = snap.Peers
		}
		s.log.Info("peer.left", "reason", reason, "remaining_peers", remaining)
	}
	s.setState(StateClosed)
}

func (s *Session) setState(next State) {
	if prev := State(s.state.Swap(int32(next))); prev != next {
		s.log.Debug("session.state", "from", prev, "to", next)
	}
}

func endReason(inErr, outErr error) string {
	switch {
	case errors.Is(inErr, errHeartbeatTimeout), errors.Is(outErr, errHeartbeatTimeout):
		return EndHeartbeatTimeout
	case errors.Is(outErr, hub.ErrLagged):
		return EndLagged
	case errors.Is(outErr, hub.ErrClosed):
		return EndRoomClosed
	case outErr != nil:
		return EndSendFailed
	default:
		return EndClientClosed
	}
}

// outbound relays hub traffic and runs the heartbeat. It closes the socket on
// the way out so the inbound duty cannot outlive it.
func (s *Session) outbound(ctx context.Context, sub *hub.Subscription) error {
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()
	defer s.conn.Close()

	ping := models.NewServerMessage(models.Ping{})
	for {
		select {
		case <-ctx.Done():
			return nil

		case <-ticker.C:
			if err := s.send(ping); err != nil {
				return fmt.Errorf("send ping: %w", err)
			}
			if elapsed := s.sinceLastPong(); elapsed > s.cfg.HeartbeatTimeout {
				s.log.Warn("heartbeat.timeout", "since_last_pong", elapsed)
				s.timeoutOnce.Do(func() { close(s.timeout) })
				return errHeartbeatTimeout
			}

		case <-sub.Done():
			if err := sub.Err(); errors.Is(err, hub.ErrLagged) {
				s.log.Warn("peer.lagged")
			}
			return sub.Err()

		case msg := <-sub.Messages():
			if err := sub.Err(); err != nil {
				return err
			}
			if !Deliverable(msg, s.peerID) {
				continue
			}
			if err := s.send(msg); err != nil {
				return fmt.Errorf("relay %s: %w", msg.Type(), err)
			}
			s.recorder.MessageRelayed(msg.Type())
		}
	}
}

// inbound reads client frames until the socket fails or closes
func (s *Session) inbound(roomHub *hub.Hub) error {
	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.timeout:
				s.log.Info("heartbeat.disconnect")
				return errHeartbeatTimeout
			default:
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				s.log.Debug("peer.read_failed", "err", err)
			}
			return nil
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var msg models.SignalMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.log.Debug("message.dropped", "err", err)
			s.recorder.MessageDropped("decode")
			continue
		}

		switch p := msg.Payload.(type) {
		case models.Pong:
			s.touch()
			continue
		case models.Hello:
			s.log.Info("client.hello", "client_version", p.Version, "client_name", p.Client)
			continue
		}

		msg.From = s.peerID
		roomHub.Publish(msg)
	}
}

func (s *Session) send(msg models.SignalMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait)); err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastPong = time.Now()
	s.mu.Unlock()
}

func (s *Session) sinceLastPong() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastPong)
}
