package audit

import (
	"context"
	"sync"

	"github.com/Ayejay3194/Auth-spine-sub014/internal/domain"
)

// MemoryStore is an in-process Store. Events are deep-copied on the way in and
// out so callers cannot mutate the stored chain.
type MemoryStore struct {
	mu     sync.RWMutex
	events map[string][]domain.AuditEvent
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{events: make(map[string][]domain.AuditEvent)}
}

func (s *MemoryStore) Tail(ctx context.Context, tenantID string) (Tail, error) {
	if err := ctx.Err(); err != nil {
		return Tail{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tailLocked(tenantID), nil
}

func (s *MemoryStore) tailLocked(tenantID string) Tail {
	evs := s.events[tenantID]
	if len(evs) == 0 {
		return Tail{}
	}
	last := evs[len(evs)-1]
	return Tail{Seq: last.Seq, Hash: last.Hash}
}

func (s *MemoryStore) Append(ctx context.Context, ev domain.AuditEvent, expected Tail) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tailLocked(ev.TenantID) != expected {
		return domain.ErrChainIntegrity
	}
	s.events[ev.TenantID] = append(s.events[ev.TenantID], cloneEvent(ev))
	return nil
}

func (s *MemoryStore) List(ctx context.Context, tenantID string) ([]domain.AuditEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	evs := s.events[tenantID]
	out := make([]domain.AuditEvent, len(evs))
	for i, ev := range evs {
		out[i] = cloneEvent(ev)
	}
	return out, nil
}

func cloneEvent(ev domain.AuditEvent) domain.AuditEvent {
	ev.Details = cloneMap(ev.Details)
	return ev
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		switch vv := v.(type) {
		case map[string]any:
			out[k] = cloneMap(vv)
		case []any:
			cp := make([]any, len(vv))
			copy(cp, vv)
			out[k] = cp
		default:
			out[k] = v
		}
	}
	return out
}
