package ids

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// zeroReader always yields zero bytes, so every draw is "aaaa..."
type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}

func TestRoomSlug_Format(t *testing.T) {
	g := New()
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		slug, err := g.RoomSlug(func(s string) bool {
			if seen[s] {
				return false
			}
			seen[s] = true
			return true
		})
		require.NoError(t, err)
		assert.True(t, Valid(slug, RoomSlugLength), slug)
	}
	assert.Len(t, seen, 200)
}

func TestRoomSlug_ExhaustedAfterTenCollisions(t *testing.T) {
	g := NewWithReader(zeroReader{})
	attempts := 0
	_, err := g.RoomSlug(func(s string) bool {
		attempts++
		assert.Equal(t, "aaaaaa", s)
		return false
	})
	assert.ErrorIs(t, err, ErrSlugExhausted)
	assert.Equal(t, MaxSlugAttempts, attempts)
}

func TestRoomSlug_RetriesUntilClaimed(t *testing.T) {
	g := New()
	attempts := 0
	slug, err := g.RoomSlug(func(string) bool {
		attempts++
		return attempts == 3
	})
	require.NoError(t, err)
	assert.Len(t, slug, RoomSlugLength)
	assert.Equal(t, 3, attempts)
}

func TestPeerID(t *testing.T) {
	id, err := New().PeerID()
	require.NoError(t, err)
	assert.True(t, Valid(id, PeerIDLength), id)
}

func TestValid(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want bool
	}{
		{"abc123", 6, true},
		{"ABC123", 6, false},
		{"abc-12", 6, false},
		{"abc12", 6, false},
		{"", 0, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Valid(tt.in, tt.n), tt.in)
	}
}
