package audit

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/Ayejay3194/Auth-spine-sub014/internal/domain"
)

func event(tenant string, n int) domain.AuditEvent {
	return domain.AuditEvent{
		TenantID:    tenant,
		ActorUserID: "u1",
		Role:        domain.RoleOwner,
		Type:        domain.EventActionAllowed,
		Details:     map[string]any{"action": "booking.create", "n": n},
	}
}

func seed(t *testing.T, c *Chain, tenant string, n int) []domain.AuditEvent {
	t.Helper()
	out := make([]domain.AuditEvent, 0, n)
	for i := 0; i < n; i++ {
		ev, err := c.Append(context.Background(), event(tenant, i))
		require.NoError(t, err)
		out = append(out, ev)
	}
	return out
}

func TestGenesisIsPerTenant(t *testing.T) {
	assert.Len(t, Genesis("t1"), 64)
	assert.NotEqual(t, Genesis("t1"), Genesis("t2"))
	assert.Equal(t, Genesis("t1"), Genesis("t1"))
}

func TestAppendLinksEvents(t *testing.T) {
	fixed := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	c := NewChain(NewMemoryStore(), nil).WithClock(func() time.Time { return fixed })

	evs := seed(t, c, "t1", 3)
	assert.Equal(t, Genesis("t1"), evs[0].PrevHash)
	for i, ev := range evs {
		assert.Equal(t, int64(i+1), ev.Seq)
		assert.NotEmpty(t, ev.ID)
		assert.Equal(t, "2026-10-16T12:00:00Z", ev.TsISO)
		if i > 0 {
			assert.Equal(t, evs[i-1].Hash, ev.PrevHash)
		}
	}

	idx, err := c.VerifyTenant(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, -1, idx)
}

func TestAppendRequiresTenant(t *testing.T) {
	c := NewChain(NewMemoryStore(), nil)
	_, err := c.Append(context.Background(), domain.AuditEvent{Type: domain.EventToolFailed})
	assert.ErrorIs(t, err, domain.ErrInvalidActor)
}

func TestVerifyDetectsReorderAndDeletion(t *testing.T) {
	c := NewChain(NewMemoryStore(), nil)
	evs := seed(t, c, "t1", 5)

	swapped := append([]domain.AuditEvent(nil), evs...)
	swapped[1], swapped[2] = swapped[2], swapped[1]
	idx, err := Verify("t1", swapped)
	assert.Equal(t, 1, idx)
	assert.ErrorIs(t, err, domain.ErrChainBroken)

	deleted := append(append([]domain.AuditEvent(nil), evs[:2]...), evs[3:]...)
	idx, _ = Verify("t1", deleted)
	assert.Equal(t, 2, idx)

	// Another tenant's events never verify under this tenant's genesis.
	idx, _ = Verify("t2", evs)
	assert.Equal(t, 0, idx)
}

func TestTamperDetectedFromMutatedEventOnward(t *testing.T) {
	c := NewChain(NewMemoryStore(), nil)
	evs := seed(t, c, "t1", 12)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("mutation at k breaks verification at k and not before", prop.ForAll(
		func(k int, value string, rehash bool) bool {
			tampered := make([]domain.AuditEvent, len(evs))
			for i, ev := range evs {
				tampered[i] = cloneEvent(ev)
			}
			tampered[k].Details["action"] = "tampered:" + value
			if rehash {
				// An attacker recomputing the mutated event's own hash moves
				// the break to the next link, never earlier.
				h, err := Hash(tampered[k], tampered[k].PrevHash)
				if err != nil {
					return false
				}
				tampered[k].Hash = h
			}

			for j := range tampered {
				idx, _ := Verify("t1", tampered[:j+1])
				switch {
				case j < k && idx != -1:
					return false
				case j >= k && !rehash && idx != k:
					return false
				case j > k && rehash && idx != k+1:
					return false
				}
			}
			return true
		},
		gen.IntRange(0, len(evs)-1),
		gen.AlphaString(),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

// spyStore records which tenants it was asked about.
type spyStore struct {
	*MemoryStore
	mu    sync.Mutex
	calls []string
}

func (s *spyStore) Tail(ctx context.Context, tenantID string) (Tail, error) {
	s.mu.Lock()
	s.calls = append(s.calls, tenantID)
	s.mu.Unlock()
	return s.MemoryStore.Tail(ctx, tenantID)
}

func TestTenantIsolation(t *testing.T) {
	spy := &spyStore{MemoryStore: NewMemoryStore()}
	c := NewChain(spy, nil)

	seed(t, c, "tenant-b", 2)
	before, err := spy.Tail(context.Background(), "tenant-b")
	require.NoError(t, err)

	spy.calls = nil
	seed(t, c, "tenant-a", 5)

	assert.Equal(t, []string{"tenant-a", "tenant-a", "tenant-a", "tenant-a", "tenant-a"}, spy.calls)
	after, err := spy.MemoryStore.Tail(context.Background(), "tenant-b")
	require.NoError(t, err)
	assert.Equal(t, before, after)

	a, _ := c.List(context.Background(), "tenant-a")
	assert.Equal(t, Genesis("tenant-a"), a[0].PrevHash)
}

func TestConcurrentAppendsSerializePerTenant(t *testing.T) {
	c := NewChain(NewMemoryStore(), nil)
	ctx := context.Background()

	var g errgroup.Group
	for _, tenant := range []string{"t1", "t2", "t3"} {
		for i := 0; i < 25; i++ {
			tenant, i := tenant, i
			g.Go(func() error {
				_, err := c.Append(ctx, event(tenant, i))
				return err
			})
		}
	}
	require.NoError(t, g.Wait())

	for _, tenant := range []string{"t1", "t2", "t3"} {
		evs, err := c.List(ctx, tenant)
		require.NoError(t, err)
		assert.Len(t, evs, 25)
		idx, err := Verify(tenant, evs)
		require.NoError(t, err, tenant)
		assert.Equal(t, -1, idx)
	}
}

// staleStore reports a tail that is one event behind, as if another writer
// appended between the read and the write.
type staleStore struct {
	*MemoryStore
}

func (s *staleStore) Tail(ctx context.Context, tenantID string) (Tail, error) {
	evs, err := s.MemoryStore.List(ctx, tenantID)
	if err != nil || len(evs) < 2 {
		return s.MemoryStore.Tail(ctx, tenantID)
	}
	prev := evs[len(evs)-2]
	return Tail{Seq: prev.Seq, Hash: prev.Hash}, nil
}

func TestMovedTailIsChainIntegrityFailure(t *testing.T) {
	mem := NewMemoryStore()
	seed(t, NewChain(mem, nil), "t1", 2)

	var observed error
	c := NewChain(&staleStore{MemoryStore: mem}, nil).WithObserver(func(_ string, _ domain.AuditEventType, err error) {
		observed = err
	})
	_, err := c.Append(context.Background(), event("t1", 99))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrChainIntegrity)
	assert.ErrorIs(t, observed, domain.ErrChainIntegrity)

	evs, _ := mem.List(context.Background(), "t1")
	assert.Len(t, evs, 2, "the chain is never re-based")
}

func TestListReturnsCopies(t *testing.T) {
	c := NewChain(NewMemoryStore(), nil)
	seed(t, c, "t1", 1)

	evs, _ := c.List(context.Background(), "t1")
	evs[0].Details["action"] = "changed"

	idx, err := c.VerifyTenant(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, -1, idx, fmt.Sprintf("stored chain mutated through List: %v", evs[0].Details))
}
