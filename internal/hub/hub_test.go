package hub

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mossy-p/signal-relay/internal/models"
)

func join(id string) models.SignalMessage {
	return models.SignalMessage{From: id, Payload: models.Join{PeerID: id}}
}

func receive(t *testing.T, s *Subscription) models.SignalMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, err := s.recv(ctx)
	require.NoError(t, err)
	return msg
}

func TestHub_PublishFansOut(t *testing.T) {
	h := New(DefaultBuffer)
	a := h.Subscribe()
	b := h.Subscribe()

	n := h.Publish(join("p1"))
	assert.Equal(t, 2, n)
	assert.Equal(t, join("p1"), receive(t, a))
	assert.Equal(t, join("p1"), receive(t, b))
}

func TestHub_PublishWithoutSubscribers(t *testing.T) {
	h := New(DefaultBuffer)
	assert.Equal(t, 0, h.Publish(join("p1")))

	s := h.Subscribe()
	h.Publish(join("p2"))
	assert.Equal(t, join("p2"), receive(t, s))
}

func TestHub_PreservesPublishOrder(t *testing.T) {
	h := New(DefaultBuffer)
	s := h.Subscribe()
	for i := 0; i < DefaultBuffer; i++ {
		h.Publish(models.SignalMessage{From: "p1", Payload: models.Offer{To: "p2", SDP: string(rune('a' + i))}})
	}
	for i := 0; i < DefaultBuffer; i++ {
		msg := receive(t, s)
		assert.Equal(t, string(rune('a'+i)), msg.Payload.(models.Offer).SDP)
	}
}

func TestHub_OverflowIsTerminal(t *testing.T) {
	h := New(2)
	slow := h.Subscribe()
	fast := h.Subscribe()

	for i := 0; i < 3; i++ {
		h.Publish(join("p1"))
		if i < 2 {
			receive(t, fast)
		}
	}

	_, err := slow.recv(context.Background())
	assert.ErrorIs(t, err, ErrLagged)
	assert.ErrorIs(t, slow.Err(), ErrLagged)
	assert.Equal(t, 1, h.Subscribers())

	// the other subscriber is unaffected
	assert.Equal(t, join("p1"), receive(t, fast))
	assert.NoError(t, fast.Err())
}

func TestHub_PublishNeverBlocks(t *testing.T) {
	h := New(1)
	h.Subscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			h.Publish(join("p1"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
}

func TestHub_Unsubscribe(t *testing.T) {
	h := New(DefaultBuffer)
	s := h.Subscribe()
	s.Unsubscribe()
	s.Unsubscribe()

	assert.Equal(t, 0, h.Subscribers())
	assert.Equal(t, 0, h.Publish(join("p1")))
	_, err := s.recv(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestHub_Close(t *testing.T) {
	h := New(DefaultBuffer)
	s := h.Subscribe()
	h.Close()

	select {
	case <-s.Done():
	default:
		t.Fatal("subscription not terminated by Close")
	}
	assert.ErrorIs(t, s.Err(), ErrClosed)
	assert.ErrorIs(t, h.Subscribe().Err(), ErrClosed)
	assert.Equal(t, 0, h.Publish(join("p1")))
}

func TestHub_RecvHonoursContext(t *testing.T) {
	h := New(DefaultBuffer)
	s := h.Subscribe()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.recv(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHub_ConcurrentPublishers(t *testing.T) {
	h := New(1000)
	s := h.Subscribe()

	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				h.Publish(join("p"))
			}
		}()
	}
	wg.Wait()

	for i := 0; i < 400; i++ {
		receive(t, s)
	}
	assert.NoError(t, s.Err())
}

func TestHub_SenderIsNotQueuedItsOwnMessages(t *testing.T) {
	h := New(4)
	sender := h.SubscribeAs("p1")
	other := h.SubscribeAs("p2")

	// far more than the buffer, none of it lands in the sender's queue
	ice := models.SignalMessage{From: "p1", Payload: models.ICE{To: "p3", Candidate: "c"}}
	assert.Equal(t, 1, h.Publish(ice))
	for i := 0; i < 20; i++ {
		h.Publish(ice)
	}
	assert.NoError(t, sender.Err())
	assert.ErrorIs(t, other.Err(), ErrLagged)
	assert.Equal(t, 1, h.Subscribers())

	h.Publish(join("p4"))
	assert.Equal(t, join("p4"), receive(t, sender))
}
