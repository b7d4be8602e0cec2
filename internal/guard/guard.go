// Package guard throttles requests per actor before any classification work
// is done.
package guard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Ayejay3194/Auth-spine-sub014/internal/domain"
)

// Config holds rate limits. A RatePerMinute of zero disables limiting.
type Config struct {
	RatePerMinute int
	Burst         int
}

// Limiter reports whether one more request for key is allowed now.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Guard applies a Limiter per tenant and user.
type Guard struct {
	limiter Limiter
	logger  *zap.Logger
}

// New creates a Guard. A nil limiter allows everything.
func New(limiter Limiter, logger *zap.Logger) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guard{limiter: limiter, logger: logger.Named("guard")}
}

// Key is the bucket key for an actor.
func Key(actor domain.ActorContext) string {
	return actor.TenantID + ":" + actor.UserID
}

// Allow returns ErrRateLimited when the actor has exhausted its bucket.
// A limiter backend error is logged and the request is let through.
func (g *Guard) Allow(ctx context.Context, actor domain.ActorContext) error {
	if g == nil || g.limiter == nil {
		return nil
	}
	ok, err := g.limiter.Allow(ctx, Key(actor))
	if err != nil {
		g.logger.Warn("rate limiter unavailable", zap.String("key", Key(actor)), zap.Error(err))
		return nil
	}
	if !ok {
		return domain.NewEngineError(domain.ErrRateLimited.Code,
			fmt.Sprintf("too many requests for user %s in tenant %s", actor.UserID, actor.TenantID))
	}
	return nil
}

// visitorTTL is how long an idle bucket is kept in memory.
const visitorTTL = 3 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// MemoryLimiter is an in-process token bucket per key. Idle buckets are
// swept on access, so it starts no goroutines.
type MemoryLimiter struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	limit     rate.Limit
	burst     int
	clock     func() time.Time
	lastSweep time.Time
}

// NewMemoryLimiter creates a limiter refilling cfg.RatePerMinute tokens per
// minute. Burst defaults to the per-minute rate.
func NewMemoryLimiter(cfg Config) *MemoryLimiter {
	burst := cfg.Burst
	if burst <= 0 {
		burst = cfg.RatePerMinute
	}
	return &MemoryLimiter{
		visitors: make(map[string]*visitor),
		limit:    rate.Limit(float64(cfg.RatePerMinute) / 60.0),
		burst:    burst,
		clock:    time.Now,
	}
}

// WithClock overrides the clock; intended for tests.
func (l *MemoryLimiter) WithClock(clock func() time.Time) *MemoryLimiter {
	l.clock = clock
	return l
}

// Allow consumes one token for key.
func (l *MemoryLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	if now.Sub(l.lastSweep) > visitorTTL {
		for k, v := range l.visitors {
			if now.Sub(v.lastSeen) > visitorTTL {
				delete(l.visitors, k)
			}
		}
		l.lastSweep = now
	}

	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1), nil
}

// Len returns the number of live buckets.
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.visitors)
}
