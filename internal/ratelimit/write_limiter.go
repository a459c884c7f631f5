package ratelimit

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/journeys/internal/config"
	"go.uber.org/zap"
)

const keyJourneyWrites = "journeys:ratelimit:writes:%s"

// WriteLimiter throttles journey mutations per user.
type WriteLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
}

// NewWriteLimiter returns nil when rate limiting is disabled or redis is absent.
func NewWriteLimiter(cfg config.Config, client *redis.Client, log *zap.Logger) (*WriteLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}
	if limitCfg.WriteRate <= 0 || limitCfg.WriteBurst <= 0 {
		return nil, ErrInvalidLimit
	}
	if client == nil {
		log.Warn("rate limiting requested without redis, journey writes are not throttled")
		return nil, nil
	}
	return newWriteLimiter(client, limitCfg.WriteRate, limitCfg.WriteBurst), nil
}

func newWriteLimiter(client redis.Scripter, rate float64, burst int) *WriteLimiter {
	return &WriteLimiter{
		bucket: NewTokenBucket(client),
		rate:   rate,
		burst:  burst,
	}
}

func (l *WriteLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

func (l *WriteLimiter) AllowUser(ctx context.Context, userID snowflake.ID) (Result, error) {
	if !l.Enabled() {
		return Result{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyJourneyWrites, userID), l.rate, l.burst)
}
