package middleware

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(mw...)
	ok := func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true, "role": c.GetString("role")}) }
	r.GET("/x", ok)
	r.POST("/x", ok)
	return r
}

func do(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAdminAuth(t *testing.T) {
	const secret = "s3cret"
	valid, err := IssueAdminToken(secret, time.Hour, time.Now())
	require.NoError(t, err)
	expired, err := IssueAdminToken(secret, time.Hour, time.Now().Add(-2*time.Hour))
	require.NoError(t, err)
	otherKey, err := IssueAdminToken("other", time.Hour, time.Now())
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"garbage token", "Bearer nope", http.StatusUnauthorized},
		{"expired", "Bearer " + expired, http.StatusUnauthorized},
		{"wrong secret", "Bearer " + otherKey, http.StatusUnauthorized},
		{"valid", "Bearer " + valid, http.StatusOK},
	}

	r := newRouter(AdminAuth(secret))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/x", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := do(r, req)
			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusOK {
				assert.Contains(t, w.Body.String(), `"role":"admin"`)
			} else {
				assert.Contains(t, w.Body.String(), `"error":"unauthorized"`)
			}
		})
	}
}

func TestParseAdminToken_RejectsOtherRoles(t *testing.T) {
	now := time.Now()
	token, err := IssueAdminToken("k", time.Minute, now)
	require.NoError(t, err)

	claims, err := ParseAdminToken("k", token)
	require.NoError(t, err)
	assert.Equal(t, AdminRole, claims.Role)
	assert.WithinDuration(t, now.Add(time.Minute), claims.ExpiresAt.Time, time.Second)

	user := jwt.NewWithClaims(jwt.SigningMethodHS256, AdminClaims{
		Role:             "user",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute))},
	})
	signed, err := user.SignedString([]byte("k"))
	require.NoError(t, err)
	_, err = ParseAdminToken("k", signed)
	assert.Error(t, err)
}

func TestAPIKey(t *testing.T) {
	r := newRouter(APIKey("k1"))

	tests := []struct {
		name   string
		target string
		header string
		status int
	}{
		{"none", "/x", "", http.StatusUnauthorized},
		{"wrong header", "/x", "k2", http.StatusUnauthorized},
		{"header", "/x", "k1", http.StatusOK},
		{"query", "/x?apiKey=k1", "", http.StatusOK},
		{"wrong query", "/x?apiKey=nope", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				req.Header.Set(APIKeyHeader, tt.header)
			}
			w := do(r, req)
			assert.Equal(t, tt.status, w.Code)
		})
	}

	open := newRouter(APIKey(""))
	w := do(open, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimiter_BurstThenRefill(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewRateLimiter(12*time.Second, 5, nil)
	l.now = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		assert.True(t, l.Allow("1.2.3.4"), "request %d", i)
	}
	assert.False(t, l.Allow("1.2.3.4"))
	assert.True(t, l.Allow("5.6.7.8"), "other clients have their own bucket")

	now = now.Add(12 * time.Second)
	assert.True(t, l.Allow("1.2.3.4"))
	assert.False(t, l.Allow("1.2.3.4"))
}

func TestRateLimiter_Evict(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewRateLimiter(time.Second, 2, nil)
	l.now = func() time.Time { return now }

	l.Allow("a")
	now = now.Add(time.Second)
	l.Allow("b")
	require.Equal(t, 2, l.Len())

	now = now.Add(time.Second)
	assert.Equal(t, 1, l.Evict())
	assert.Equal(t, 1, l.Len())

	now = now.Add(time.Hour)
	assert.Equal(t, 1, l.Evict())
	assert.Equal(t, 0, l.Len())
}

func TestRateLimiter_Middleware(t *testing.T) {
	limited := 0
	l := NewRateLimiter(time.Hour, 2, func() { limited++ })
	r := newRouter(l.Middleware())

	for i := 0; i < 2; i++ {
		w := do(r, httptest.NewRequest(http.MethodPost, "/x", nil))
		require.Equal(t, http.StatusOK, w.Code)
	}
	w := do(r, httptest.NewRequest(http.MethodPost, "/x", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "3600", w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), `"error":"rate_limited"`)
	assert.Equal(t, 1, limited)
}

func TestRateLimiter_CleanupStopsWithContext(t *testing.T) {
	l := NewRateLimiter(time.Millisecond, 1, nil)
	l.Allow("a")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.Cleanup(ctx, 5*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return l.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cleanup did not stop")
	}
}

func TestOriginFilter(t *testing.T) {
	r := newRouter(OriginFilter([]string{"https://app.example"}))

	t.Run("allowed origin gets cors headers", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set("Origin", "https://app.example")
		w := do(r, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "https://app.example", w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("unknown origin is forbidden", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set("Origin", "https://evil.example")
		w := do(r, req)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("no origin passes", func(t *testing.T) {
		w := do(r, httptest.NewRequest(http.MethodGet, "/x", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("preflight is answered", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/x", nil)
		req.Header.Set("Origin", "https://app.example")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		w := do(r, req)
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "https://app.example", w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("wildcard", func(t *testing.T) {
		open := newRouter(OriginFilter([]string{"*"}))
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set("Origin", "https://anywhere.example")
		w := do(open, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestRequestIDAndLogger(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))
	r := newRouter(RequestID(), RequestLogger(log))

	w := do(r, httptest.NewRequest(http.MethodGet, "/x", nil))
	id := w.Header().Get(RequestIDHeader)
	assert.Len(t, id, 36)
	assert.Contains(t, buf.String(), "http.request")
	assert.Contains(t, buf.String(), "request_id="+id)

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w = do(r, req)
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
	assert.True(t, strings.Contains(buf.String(), "status=200"))
}
