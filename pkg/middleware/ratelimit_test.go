package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterRefills(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(&RateLimitConfig{RequestsPerWindow: 2, WindowDuration: time.Minute})
	rl.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		allowed, err := rl.Allow(ctx, "ip:10.0.0.1")
		require.NoError(t, err)
		assert.True(t, allowed)
	}
	allowed, _ := rl.Allow(ctx, "ip:10.0.0.1")
	assert.False(t, allowed)

	allowed, _ = rl.Allow(ctx, "ip:10.0.0.2")
	assert.True(t, allowed, "keys are independent")

	now = now.Add(30 * time.Second)
	allowed, _ = rl.Allow(ctx, "ip:10.0.0.1")
	assert.True(t, allowed)

	now = now.Add(5 * time.Minute)
	rl.Cleanup()
	assert.Empty(t, rl.buckets)
}

func TestRateLimitMiddleware(t *testing.T) {
	rl := NewRateLimiter(&RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Minute})
	handler := RateLimit(rl, "login", false)(ok)

	send := func() *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
		r.RemoteAddr = "192.0.2.10:4312"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		return w
	}

	assert.Equal(t, http.StatusOK, send().Code)
	w := send()
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
}

func TestDistributedRateLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	rl := NewDistributedRateLimiter(client, &RateLimitConfig{RequestsPerWindow: 2, WindowDuration: time.Minute}, "")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		allowed, err := rl.Allow(ctx, "login:192.0.2.10")
		require.NoError(t, err)
		assert.True(t, allowed)
	}
	allowed, err := rl.Allow(ctx, "login:192.0.2.10")
	require.NoError(t, err)
	assert.False(t, allowed)

	ttl, err := rl.TTL(ctx, "login:192.0.2.10")
	require.NoError(t, err)
	assert.Equal(t, time.Minute, ttl)

	mr.FastForward(time.Minute + time.Second)
	allowed, err = rl.Allow(ctx, "login:192.0.2.10")
	require.NoError(t, err)
	assert.True(t, allowed)

	require.NoError(t, rl.Reset(ctx, "login:192.0.2.10"))
	assert.False(t, mr.Exists("campus:ratelimit:login:192.0.2.10"))
}

func TestDistributedRateLimiterFailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	rl := NewDistributedRateLimiter(client, nil, "")
	handler := RateLimit(rl, "login", false)(ok)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
