// Package audit implements the per-tenant, append-only audit hash chain.
package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Ayejay3194/Auth-spine-sub014/internal/domain"
)

// Tail is the position of a tenant's last event. The zero Tail means the
// tenant has no events yet.
type Tail struct {
	Seq  int64
	Hash string
}

// Store persists audit events. Implementations must re-check expected inside
// the same transaction as the insert and return ErrChainIntegrity if the
// tenant's tail moved.
type Store interface {
	Tail(ctx context.Context, tenantID string) (Tail, error)
	Append(ctx context.Context, ev domain.AuditEvent, expected Tail) error
	List(ctx context.Context, tenantID string) ([]domain.AuditEvent, error)
}

// AppendObserver is notified after every append attempt.
type AppendObserver func(tenantID string, eventType domain.AuditEventType, err error)

// Chain appends events to a Store. Appends for one tenant are serialized;
// different tenants never contend.
type Chain struct {
	store    Store
	logger   *zap.Logger
	clock    func() time.Time
	newID    func() string
	observer AppendObserver

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewChain creates a Chain over store. A nil logger disables logging.
func NewChain(store Store, logger *zap.Logger) *Chain {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chain{
		store:  store,
		logger: logger.Named("audit"),
		clock:  time.Now,
		newID:  uuid.NewString,
		locks:  make(map[string]*sync.Mutex),
	}
}

// WithClock overrides the timestamp source.
func (c *Chain) WithClock(clock func() time.Time) *Chain {
	c.clock = clock
	return c
}

// WithObserver registers a callback for append outcomes.
func (c *Chain) WithObserver(fn AppendObserver) *Chain {
	c.observer = fn
	return c
}

func (c *Chain) tenantLock(tenantID string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[tenantID]
	if !ok {
		l = &sync.Mutex{}
		c.locks[tenantID] = l
	}
	return l
}

// Append fills in ID, Seq, TsISO, PrevHash and Hash and writes the event.
// The caller supplies tenant, actor, role, type and details. A tail that moved
// underneath the append is reported as ErrChainIntegrity and never re-based.
func (c *Chain) Append(ctx context.Context, ev domain.AuditEvent) (domain.AuditEvent, error) {
	if ev.TenantID == "" {
		return domain.AuditEvent{}, domain.NewEngineError(domain.ErrInvalidActor.Code, "audit event without tenant")
	}

	lock := c.tenantLock(ev.TenantID)
	lock.Lock()
	defer lock.Unlock()

	out, err := c.appendLocked(ctx, ev)
	if c.observer != nil {
		c.observer(ev.TenantID, ev.Type, err)
	}
	if err != nil {
		c.logger.Error("audit append failed",
			zap.String("tenant", ev.TenantID),
			zap.String("type", string(ev.Type)),
			zap.Error(err))
		return domain.AuditEvent{}, err
	}
	c.logger.Debug("audit event appended",
		zap.String("tenant", out.TenantID),
		zap.Int64("seq", out.Seq),
		zap.String("type", string(out.Type)))
	return out, nil
}

func (c *Chain) appendLocked(ctx context.Context, ev domain.AuditEvent) (domain.AuditEvent, error) {
	tail, err := c.store.Tail(ctx, ev.TenantID)
	if err != nil {
		return domain.AuditEvent{}, fmt.Errorf("read audit tail: %w", err)
	}

	prev := tail.Hash
	if tail.Seq == 0 {
		prev = Genesis(ev.TenantID)
	}

	if ev.ID == "" {
		ev.ID = c.newID()
	}
	if ev.TsISO == "" {
		ev.TsISO = c.clock().UTC().Format(time.RFC3339Nano)
	}
	if ev.Details == nil {
		ev.Details = map[string]any{}
	}
	ev.Seq = tail.Seq + 1
	ev.PrevHash = prev
	ev.Hash, err = Hash(ev, prev)
	if err != nil {
		return domain.AuditEvent{}, err
	}

	if err := c.store.Append(ctx, ev, tail); err != nil {
		return domain.AuditEvent{}, err
	}
	return ev, nil
}

// List returns a tenant's events in sequence order.
func (c *Chain) List(ctx context.Context, tenantID string) ([]domain.AuditEvent, error) {
	return c.store.List(ctx, tenantID)
}

// VerifyTenant loads a tenant's events and verifies them.
func (c *Chain) VerifyTenant(ctx context.Context, tenantID string) (int, error) {
	events, err := c.store.List(ctx, tenantID)
	if err != nil {
		return -1, fmt.Errorf("list audit events: %w", err)
	}
	return Verify(tenantID, events)
}
