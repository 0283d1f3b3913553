// Package ids mints the short identifiers used for rooms and peers.
package ids

import (
	"crypto/rand"
	"errors"
	"io"
)

const (
	// Alphabet is the character set of every generated identifier
	Alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

	RoomSlugLength = 6
	PeerIDLength   = 8

	// MaxSlugAttempts bounds the collision retries of RoomSlug
	MaxSlugAttempts = 10
)

var ErrSlugExhausted = errors.New("no unique room slug found")

// Generator draws identifiers from a random source
type Generator struct {
	random io.Reader
}

// New returns a Generator backed by crypto/rand
func New() *Generator {
	return &Generator{random: rand.Reader}
}

// NewWithReader returns a Generator drawing from r
func NewWithReader(r io.Reader) *Generator {
	return &Generator{random: r}
}

// RoomSlug draws candidates until claim accepts one. claim reports whether
// the candidate was free and is now taken by the caller.
func (g *Generator) RoomSlug(claim func(slug string) bool) (string, error) {
	for i := 0; i < MaxSlugAttempts; i++ {
		slug, err := g.draw(RoomSlugLength)
		if err != nil {
			return "", err
		}
		if claim(slug) {
			return slug, nil
		}
	}
	return "", ErrSlugExhausted
}

// PeerID draws a peer identifier. Uniqueness within a room is checked by the
// registry at registration time.
func (g *Generator) PeerID() (string, error) {
	return g.draw(PeerIDLength)
}

// Valid reports whether s has length n and only uses Alphabet
func Valid(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}

// draw samples n characters without modulo bias: bytes at or above the
// largest multiple of len(Alphabet) are discarded.
func (g *Generator) draw(n int) (string, error) {
	const limit = 256 - 256%len(Alphabet)

	out := make([]byte, 0, n)
	buf := make([]byte, n)
	for len(out) < n {
		if _, err := io.ReadFull(g.random, buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, Alphabet[int(b)%len(Alphabet)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}
