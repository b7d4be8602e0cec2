package confirm

import (
	"context"
	"sync"
	"time"

	"github.com/Ayejay3194/Auth-spine-sub014/internal/domain"
)

// MemoryStore keeps pending confirmations in process. Expired entries are
// swept on every Put.
type MemoryStore struct {
	mu      sync.Mutex
	pending map[string]Pending
	clock   func() time.Time
}

// NewMemoryStore creates an empty store using the wall clock.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		pending: make(map[string]Pending),
		clock:   time.Now,
	}
}

// WithClock overrides the clock; intended for tests.
func (s *MemoryStore) WithClock(clock func() time.Time) *MemoryStore {
	s.clock = clock
	return s
}

// Put records p, replacing any entry with the same token.
func (s *MemoryStore) Put(ctx context.Context, p Pending) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	for tok, old := range s.pending {
		if !now.Before(old.ExpiresAt) {
			delete(s.pending, tok)
		}
	}
	s.pending[p.Token] = p
	return nil
}

// Consume redeems token for b.
func (s *MemoryStore) Consume(ctx context.Context, token string, b Binding) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pending[token]
	if !ok {
		return domain.ErrConfirmationInvalid
	}
	if !s.clock().Before(p.ExpiresAt) {
		delete(s.pending, token)
		return domain.ErrConfirmationExpired
	}
	if p.Binding != b {
		return domain.ErrConfirmationInvalid
	}
	delete(s.pending, token)
	return nil
}

// Len returns the number of stored entries, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
