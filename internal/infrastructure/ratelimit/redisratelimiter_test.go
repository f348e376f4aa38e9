package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisRateLimiter_Allow(t *testing.T) {
	limiter := NewRedisRateLimiter(setupTestRedis(t))
	ctx := context.Background()
	rule := Rule{Limit: 5, Window: time.Minute}

	for i := 0; i < 5; i++ {
		allowed, err := limiter.Allow(ctx, "login:1.2.3.4", rule)
		require.NoError(t, err)
		assert.True(t, allowed, "attempt %d should be allowed", i+1)
	}

	allowed, err := limiter.Allow(ctx, "login:1.2.3.4", rule)
	require.NoError(t, err)
	assert.False(t, allowed, "6th attempt should be denied")

	allowed, err = limiter.Allow(ctx, "login:5.6.7.8", rule)
	require.NoError(t, err)
	assert.True(t, allowed, "keys are independent")
}

func TestRedisRateLimiter_WindowSlides(t *testing.T) {
	limiter := NewRedisRateLimiter(setupTestRedis(t))
	ctx := context.Background()
	rule := Rule{Limit: 2, Window: time.Minute}

	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		allowed, err := limiter.Allow(ctx, "k", rule)
		require.NoError(t, err)
		assert.True(t, allowed)
	}
	allowed, err := limiter.Allow(ctx, "k", rule)
	require.NoError(t, err)
	assert.False(t, allowed)

	now = now.Add(61 * time.Second)
	allowed, err = limiter.Allow(ctx, "k", rule)
	require.NoError(t, err)
	assert.True(t, allowed, "old attempts fall out of the window")

	n, err := limiter.Count(ctx, "k", rule)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestRedisRateLimiter_Reset(t *testing.T) {
	limiter := NewRedisRateLimiter(setupTestRedis(t))
	ctx := context.Background()
	rule := Rule{Limit: 1, Window: time.Hour}

	_, err := limiter.Allow(ctx, "k", rule)
	require.NoError(t, err)
	allowed, err := limiter.Allow(ctx, "k", rule)
	require.NoError(t, err)
	assert.False(t, allowed)

	require.NoError(t, limiter.Reset(ctx, "k"))
	allowed, err = limiter.Allow(ctx, "k", rule)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestRedisRateLimiter_DisabledRule(t *testing.T) {
	limiter := NewRedisRateLimiter(setupTestRedis(t))
	for i := 0; i < 10; i++ {
		allowed, err := limiter.Allow(context.Background(), "k", Rule{})
		require.NoError(t, err)
		assert.True(t, allowed)
	}
}
