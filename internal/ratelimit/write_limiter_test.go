package ratelimit

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/journeys/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupLimiter(t *testing.T, rate float64, burst int) (*WriteLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return newWriteLimiter(client, rate, burst), mr
}

func TestWriteLimiterExhaustsBurst(t *testing.T) {
	limiter, mr := setupLimiter(t, 0.01, 2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := limiter.AllowUser(ctx, 7)
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d", i)
	}

	res, err := limiter.AllowUser(ctx, 7)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 2, res.Limit)
	assert.Positive(t, res.RetryAfter)
	assert.True(t, mr.Exists("journeys:ratelimit:writes:7"))

	other, err := limiter.AllowUser(ctx, 8)
	require.NoError(t, err)
	assert.True(t, other.Allowed)
}

func TestNilWriteLimiterAllows(t *testing.T) {
	var limiter *WriteLimiter
	res, err := limiter.AllowUser(context.Background(), 7)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestNewWriteLimiterConfig(t *testing.T) {
	log := zap.NewNop()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	limiter, err := NewWriteLimiter(config.Config{}, client, log)
	require.NoError(t, err)
	assert.Nil(t, limiter)

	_, err = NewWriteLimiter(config.Config{RateLimit: config.RateLimitConfig{Enabled: true}}, client, log)
	assert.ErrorIs(t, err, ErrInvalidLimit)

	enabled := config.Config{RateLimit: config.RateLimitConfig{Enabled: true, WriteRate: 1, WriteBurst: 1}}
	limiter, err = NewWriteLimiter(enabled, nil, log)
	require.NoError(t, err)
	assert.Nil(t, limiter)

	limiter, err = NewWriteLimiter(enabled, client, log)
	require.NoError(t, err)
	assert.True(t, limiter.Enabled())
}

func TestTokenBucketRejectsBadInput(t *testing.T) {
	var bucket *TokenBucket
	_, err := bucket.Allow(context.Background(), "k", 1, 1)
	assert.ErrorIs(t, err, ErrNotConfigured)

	mr := miniredis.RunT(t)
	bucket = NewTokenBucket(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	_, err = bucket.Allow(context.Background(), "k", 0, 1)
	assert.ErrorIs(t, err, ErrInvalidLimit)
	_, err = bucket.Allow(context.Background(), "", 1, 1)
	assert.Error(t, err)
}
