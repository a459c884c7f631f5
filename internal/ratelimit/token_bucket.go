package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// KEYS[1] bucket hash. ARGV: refill rate per second, burst.
// Returns {allowed, tokens left, ms until the next token}.
const tokenBucketScript = `
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])

local t = redis.call("TIME")
local now_ms = t[1] * 1000 + math.floor(t[2] / 1000)

local state = redis.call("HMGET", KEYS[1], "tk", "at")
local tokens = tonumber(state[1]) or burst
local last = tonumber(state[2]) or now_ms

local elapsed = math.max(0, now_ms - last)
tokens = math.min(burst, tokens + elapsed * rate / 1000)

local allowed = 0
local wait_ms = 0
if tokens >= 1 then
  allowed = 1
  tokens = tokens - 1
else
  wait_ms = math.ceil((1 - tokens) * 1000 / rate)
end

redis.call("HSET", KEYS[1], "tk", tostring(tokens), "at", now_ms)
redis.call("PEXPIRE", KEYS[1], math.ceil(burst * 2000 / rate) + 1000)

return {allowed, tostring(tokens), wait_ms}
`

var (
	ErrNotConfigured = errors.New("rate limiter not configured")
	ErrInvalidLimit  = errors.New("rate limiter rate and burst must be positive")
)

// TokenBucket refills continuously at rate tokens per second up to burst.
// State lives in a redis hash so every instance shares the same bucket.
type TokenBucket struct {
	client redis.Scripter
	script *redis.Script
}

type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

func NewTokenBucket(client redis.Scripter) *TokenBucket {
	if client == nil {
		return nil
	}
	return &TokenBucket{
		client: client,
		script: redis.NewScript(tokenBucketScript),
	}
}

func (t *TokenBucket) Allow(ctx context.Context, key string, rate float64, burst int) (Result, error) {
	if t == nil || t.client == nil {
		return Result{}, ErrNotConfigured
	}
	if key == "" {
		return Result{}, errors.New("rate limiter key is empty")
	}
	if rate <= 0 || burst <= 0 {
		return Result{}, ErrInvalidLimit
	}

	res, err := t.script.Run(ctx, t.client, []string{key}, rate, burst).Slice()
	if err != nil {
		return Result{}, err
	}
	if len(res) != 3 {
		return Result{}, fmt.Errorf("rate limit script returned %d values", len(res))
	}

	left := parseNumber(res[1])
	return Result{
		Allowed:    parseNumber(res[0]) == 1,
		Limit:      burst,
		Remaining:  int(math.Floor(left)),
		RetryAfter: time.Duration(parseNumber(res[2])) * time.Millisecond,
	}, nil
}

// Lua numbers are truncated to integers on the way out, so fractional
// token counts travel as strings.
func parseNumber(v any) float64 {
	switch val := v.(type) {
	case int64:
		return float64(val)
	case string:
		f, _ := strconv.ParseFloat(val, 64)
		return f
	}
	return 0
}
