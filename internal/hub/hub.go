// Package hub implements the per-room fan-out channel. Publishing never
// blocks; a subscriber whose queue overflows is cut off and observes
// ErrLagged instead of receiving a partial stream.
package hub

import (
	"context"
	"errors"
	"sync"

	"github.com/mossy-p/signal-relay/internal/models"
)

// DefaultBuffer is the number of pending messages a subscriber may hold
const DefaultBuffer = 32

var (
	ErrLagged = errors.New("subscriber fell behind and missed messages")
	ErrClosed = errors.New("hub closed")
)

// Hub distributes published messages to every current subscriber
type Hub struct {
	buffer int

	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	closed bool
}

// New creates a hub whose subscribers buffer up to buffer messages
func New(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{buffer: buffer, subs: make(map[*Subscription]struct{})}
}

// Subscription is one subscriber's view of the hub
type Subscription struct {
	hub   *Hub
	owner string
	ch    chan models.SignalMessage
	done chan struct{}

	once sync.Once
	err  error
}

// Subscribe registers a new subscriber. Subscribing to a closed hub returns a
// subscription that is already terminated with ErrClosed.
func (h *Hub) Subscribe() *Subscription {
	return h.SubscribeAs("")
}

// SubscribeAs registers a subscriber on behalf of peer owner. Messages whose
// From is owner are not queued for it, so a peer's own traffic never counts
// against its buffer.
func (h *Hub) SubscribeAs(owner string) *Subscription {
	s := &Subscription{
		hub:   h,
		owner: owner,
		ch:    make(chan models.SignalMessage, h.buffer),
		done:  make(chan struct{}),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		s.terminate(ErrClosed)
		return s
	}
	h.subs[s] = struct{}{}
	return s
}

// Publish delivers msg to every subscriber except its sender without
// waiting. It returns the number of subscribers that accepted the message.
func (h *Hub) Publish(msg models.SignalMessage) int {
	var lagged []*Subscription
	delivered := 0

	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return 0
	}
	for s := range h.subs {
		if s.owner != "" && s.owner == msg.From {
			continue
		}
		select {
		case <-s.done:
			continue
		default:
		}
		select {
		case s.ch <- msg:
			delivered++
		default:
			lagged = append(lagged, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range lagged {
		s.terminate(ErrLagged)
		h.remove(s)
	}
	return delivered
}

// Subscribers returns the number of live subscriptions
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close terminates every subscription with ErrClosed
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	subs := h.subs
	h.subs = make(map[*Subscription]struct{})
	h.mu.Unlock()

	for s := range subs {
		s.terminate(ErrClosed)
	}
}

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	delete(h.subs, s)
	h.mu.Unlock()
}

// recv returns the next message. Once the subscription has terminated it
// returns the terminal error (ErrLagged, ErrClosed) even if messages are still
// queued. ctx cancellation returns ctx.Err().
func (s *Subscription) recv(ctx context.Context) (models.SignalMessage, error) {
	select {
	case <-s.done:
		return models.SignalMessage{}, s.err
	default:
	}

	select {
	case <-s.done:
		return models.SignalMessage{}, s.err
	case msg := <-s.ch:
		return msg, nil
	case <-ctx.Done():
		return models.SignalMessage{}, ctx.Err()
	}
}

// Messages exposes the queue for use in a select. A value received after
// Done has closed must be discarded by the caller.
func (s *Subscription) Messages() <-chan models.SignalMessage { return s.ch }

// Done is closed when the subscription terminates
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Err returns the terminal error, or nil while the subscription is live
func (s *Subscription) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// Unsubscribe detaches the subscription from its hub. Safe to call more than
// once.
func (s *Subscription) Unsubscribe() {
	s.terminate(ErrClosed)
	s.hub.remove(s)
}

func (s *Subscription) terminate(err error) {
	s.once.Do(func() {
		s.err = err
		close(s.done)
	})
}
