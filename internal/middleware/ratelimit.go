package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	DefaultRateBurst       = 5
	DefaultRateEvery       = 12 * time.Second
	DefaultCleanupInterval = time.Minute
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a per-client-IP token bucket. A client may spend burst
// tokens at once and earns one back every refill period.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor

	every     time.Duration
	burst     int
	onLimited func()
	now       func() time.Time
}

// NewRateLimiter creates a limiter; onLimited, if set, is called for every
// rejected request.
func NewRateLimiter(every time.Duration, burst int, onLimited func()) *RateLimiter {
	if every <= 0 {
		every = DefaultRateEvery
	}
	if burst <= 0 {
		burst = DefaultRateBurst
	}
	return &RateLimiter{
		visitors:  make(map[string]*visitor),
		every:     every,
		burst:     burst,
		onLimited: onLimited,
		now:       time.Now,
	}
}

// Allow spends one token for ip and reports whether one was available
func (l *RateLimiter) Allow(ip string) bool {
	now := l.now()

	l.mu.Lock()
	v, ok := l.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rate.Every(l.every), l.burst)}
		l.visitors[ip] = v
	}
	v.lastSeen = now
	l.mu.Unlock()

	return v.limiter.AllowN(now, 1)
}

// Len is the number of clients currently tracked
func (l *RateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.visitors)
}

// Evict forgets clients whose bucket has fully refilled. Forgetting them is
// indistinguishable from keeping them.
func (l *RateLimiter) Evict() int {
	refill := l.every * time.Duration(l.burst)
	cutoff := l.now().Add(-refill)

	l.mu.Lock()
	defer l.mu.Unlock()

	evicted := 0
	for ip, v := range l.visitors {
		if !v.lastSeen.After(cutoff) {
			delete(l.visitors, ip)
			evicted++
		}
	}
	return evicted
}

// Cleanup calls Evict every interval until ctx is cancelled
func (l *RateLimiter) Cleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Evict()
		}
	}
}

// Middleware rejects requests over the limit with 429
func (l *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if l.Allow(c.ClientIP()) {
			c.Next()
			return
		}

		if l.onLimited != nil {
			l.onLimited()
		}
		c.Header("Retry-After", formatSeconds(l.every))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error":   "rate_limited",
			"message": "Too many requests, slow down",
		})
	}
}

func formatSeconds(d time.Duration) string {
	secs := int(d.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
