package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T, rate int, interval time.Duration) (*RateLimiter, *time.Time) {
	t.Helper()
	rl := NewRateLimiter(rate, interval)
	t.Cleanup(rl.Stop)
	now := time.Date(2025, 1, 1, 7, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	return rl, &now
}

func TestRateLimiter_BurstThenReject(t *testing.T) {
	rl, _ := newTestLimiter(t, 3, time.Minute)

	for i := range 3 {
		_, ok := rl.take("10.0.0.1")
		require.True(t, ok, "request %d", i)
	}
	wait, ok := rl.take("10.0.0.1")
	assert.False(t, ok)
	assert.Equal(t, 20*time.Second, wait)

	_, ok = rl.take("10.0.0.2")
	assert.True(t, ok, "other clients keep their own bucket")
}

func TestRateLimiter_RefillsGradually(t *testing.T) {
	rl, now := newTestLimiter(t, 2, time.Minute)

	rl.take("ip")
	rl.take("ip")
	_, ok := rl.take("ip")
	require.False(t, ok)

	*now = now.Add(30 * time.Second)
	_, ok = rl.take("ip")
	assert.True(t, ok)
	_, ok = rl.take("ip")
	assert.False(t, ok)
}

func TestRateLimiter_CleanupDropsIdle(t *testing.T) {
	rl, now := newTestLimiter(t, 1, time.Minute)
	rl.take("ip")

	*now = now.Add(visitorTTL + time.Second)
	rl.cleanup()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.Empty(t, rl.visitors)
}

func TestRateLimiter_MiddlewareSetsRetryAfter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl, _ := newTestLimiter(t, 1, time.Minute)

	r := gin.New()
	r.Use(rl.Middleware())
	r.POST("/login", func(c *gin.Context) { c.Status(http.StatusOK) })

	first := httptest.NewRecorder()
	r.ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/login", nil))
	assert.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	r.ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/login", nil))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "60", second.Header().Get("Retry-After"))
}
