package guard

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// tokenBucketScript refills and consumes a bucket atomically.
// KEYS[1] = bucket key
// ARGV[1] = refill rate (tokens per second)
// ARGV[2] = capacity
// ARGV[3] = now (unix seconds, fractional)
// ARGV[4] = idle expiry (seconds)
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local state = redis.call("HMGET", key, "tokens", "last_refill")
local tokens = tonumber(state[1])
local last_refill = tonumber(state[2])

if not tokens or not last_refill then
    tokens = capacity
    last_refill = now
end

local elapsed = now - last_refill
if elapsed > 0 then
    tokens = math.min(capacity, tokens + elapsed * rate)
    last_refill = now
end

local allowed = 0
if tokens >= 1 then
    tokens = tokens - 1
    allowed = 1
end

redis.call("HSET", key, "tokens", tokens, "last_refill", last_refill)
redis.call("EXPIRE", key, ttl)

return allowed
`)

// RedisLimiter shares buckets across processes.
type RedisLimiter struct {
	client redis.UniversalClient
	prefix string
	rate   float64
	burst  int
	clock  func() time.Time
}

// NewRedisLimiter creates a limiter storing buckets under prefix.
func NewRedisLimiter(client redis.UniversalClient, prefix string, cfg Config) *RedisLimiter {
	if prefix == "" {
		prefix = "spine:limiter"
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = cfg.RatePerMinute
	}
	return &RedisLimiter{
		client: client,
		prefix: prefix,
		rate:   float64(cfg.RatePerMinute) / 60.0,
		burst:  burst,
		clock:  time.Now,
	}
}

// Allow runs the bucket script for key.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := float64(l.clock().UnixMicro()) / 1e6
	ttl := int64(visitorTTL / time.Second)
	if l.rate > 0 {
		if full := int64(float64(l.burst)/l.rate) + 1; full > ttl {
			ttl = full
		}
	}

	allowed, err := tokenBucketScript.Run(ctx, l.client, []string{l.prefix + ":" + key}, l.rate, l.burst, now, ttl).Int64()
	if err != nil {
		return false, fmt.Errorf("redis limiter: %w", err)
	}
	return allowed == 1, nil
}
