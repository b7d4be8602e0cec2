package confirm

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Ayejay3194/Auth-spine-sub014/internal/domain"
)

// redisConsumeScript redeems a pending confirmation atomically.
// KEYS[1] = pending key
// ARGV[1] = expected binding
// ARGV[2] = now, unix milliseconds
// Returns 1 on success, 0 when unknown, -1 on binding mismatch, -2 when expired.
var redisConsumeScript = redis.NewScript(`
local state = redis.call("HMGET", KEYS[1], "binding", "expires_at")
if not state[1] then
    return 0
end
if tonumber(state[2]) <= tonumber(ARGV[2]) then
    redis.call("DEL", KEYS[1])
    return -2
end
if state[1] ~= ARGV[1] then
    return -1
end
redis.call("DEL", KEYS[1])
return 1
`)

// expiryGrace keeps expired entries around long enough to report them as
// expired rather than unknown.
const expiryGrace = time.Minute

// RedisStore keeps pending confirmations in Redis so any replica can redeem them.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	clock  func() time.Time
}

// NewRedisStore creates a store on client. Keys are "<prefix>:<token>".
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "spine:confirm"
	}
	return &RedisStore{client: client, prefix: prefix, clock: time.Now}
}

// WithClock overrides the clock; intended for tests.
func (s *RedisStore) WithClock(clock func() time.Time) *RedisStore {
	s.clock = clock
	return s
}

func (s *RedisStore) key(token string) string {
	return fmt.Sprintf("%s:%s", s.prefix, token)
}

// Put records p with a Redis TTL slightly past its expiry.
func (s *RedisStore) Put(ctx context.Context, p Pending) error {
	ttl := p.ExpiresAt.Sub(s.clock())
	if ttl <= 0 {
		return domain.ErrConfirmationExpired
	}
	key := s.key(p.Token)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, "binding", p.Binding.String(), "expires_at", p.ExpiresAt.UnixMilli())
	pipe.PExpire(ctx, key, ttl+expiryGrace)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis put confirmation: %w", err)
	}
	return nil
}

// Consume redeems token for b.
func (s *RedisStore) Consume(ctx context.Context, token string, b Binding) error {
	res, err := redisConsumeScript.Run(ctx, s.client, []string{s.key(token)}, b.String(), s.clock().UnixMilli()).Int()
	if err != nil {
		return fmt.Errorf("redis consume confirmation: %w", err)
	}
	switch res {
	case 1:
		return nil
	case -2:
		return domain.ErrConfirmationExpired
	default:
		return domain.ErrConfirmationInvalid
	}
}
