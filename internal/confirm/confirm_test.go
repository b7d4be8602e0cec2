package confirm

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ayejay3194/Auth-spine-sub014/internal/domain"
)

func testActor() domain.ActorContext {
	return domain.ActorContext{UserID: "u1", Role: domain.RoleStaff, TenantID: "t1"}
}

func mustBinding(t *testing.T, action string, input map[string]any) Binding {
	t.Helper()
	b, err := NewBinding(testActor(), action, input)
	require.NoError(t, err)
	return b
}

func TestInputHashIsCanonical(t *testing.T) {
	a, err := InputHash(map[string]any{"amount_cents": 10000, "client_email": "alex@example.com"})
	require.NoError(t, err)
	b, err := InputHash(map[string]any{"client_email": "alex@example.com", "amount_cents": 10000.0})
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := InputHash(map[string]any{"client_email": "alex@example.com", "amount_cents": 10001})
	require.NoError(t, err)
	assert.NotEqual(t, a, c)

	empty, err := InputHash(nil)
	require.NoError(t, err)
	assert.Len(t, empty, 64)
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	s := NewMemoryStore().WithClock(func() time.Time { return now })
	b := mustBinding(t, "payments.invoice_create", map[string]any{"amount_cents": 100})

	require.NoError(t, s.Put(ctx, Pending{Token: "tok", Binding: b, ExpiresAt: now.Add(DefaultTTL)}))

	other := b
	other.InputHash = "different"
	assert.ErrorIs(t, s.Consume(ctx, "tok", other), domain.ErrConfirmationInvalid)
	assert.ErrorIs(t, s.Consume(ctx, "nope", b), domain.ErrConfirmationInvalid)

	// A mismatch leaves the token redeemable.
	require.NoError(t, s.Consume(ctx, "tok", b))
	// Single use.
	assert.ErrorIs(t, s.Consume(ctx, "tok", b), domain.ErrConfirmationInvalid)
}

func TestMemoryStoreExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	s := NewMemoryStore().WithClock(func() time.Time { return now })
	b := mustBinding(t, "payments.refund", nil)

	require.NoError(t, s.Put(ctx, Pending{Token: "old", Binding: b, ExpiresAt: now.Add(time.Minute)}))
	now = now.Add(2 * time.Minute)
	assert.ErrorIs(t, s.Consume(ctx, "old", b), domain.ErrConfirmationExpired)
	assert.Equal(t, 0, s.Len())

	require.NoError(t, s.Put(ctx, Pending{Token: "a", Binding: b, ExpiresAt: now.Add(time.Minute)}))
	now = now.Add(time.Hour)
	require.NoError(t, s.Put(ctx, Pending{Token: "b", Binding: b, ExpiresAt: now.Add(time.Minute)}))
	assert.Equal(t, 1, s.Len(), "expired entries are swept on put")
}

func TestMemoryStoreHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := NewMemoryStore()
	assert.ErrorIs(t, s.Put(ctx, Pending{Token: "x"}), context.Canceled)
	assert.ErrorIs(t, s.Consume(ctx, "x", Binding{}), context.Canceled)
}

// TestRedisStore_Integration requires a running Redis.
// We skip if connection fails.
func TestRedisStore_Integration(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer client.Close()
	ctx := context.Background()
	if _, err := client.Ping(ctx).Result(); err != nil {
		t.Skip("Skipping Redis integration test: redis not available")
	}

	now := time.Now()
	s := NewRedisStore(client, "spine:test:"+uuid.NewString()).WithClock(func() time.Time { return now })
	b := mustBinding(t, "payments.invoice_create", map[string]any{"amount_cents": 100})

	require.NoError(t, s.Put(ctx, Pending{Token: "tok", Binding: b, ExpiresAt: now.Add(DefaultTTL)}))
	other := b
	other.Action = "payments.refund"
	assert.ErrorIs(t, s.Consume(ctx, "tok", other), domain.ErrConfirmationInvalid)
	require.NoError(t, s.Consume(ctx, "tok", b))
	assert.ErrorIs(t, s.Consume(ctx, "tok", b), domain.ErrConfirmationInvalid)

	require.NoError(t, s.Put(ctx, Pending{Token: "exp", Binding: b, ExpiresAt: now.Add(time.Second)}))
	now = now.Add(2 * time.Second)
	assert.ErrorIs(t, s.Consume(ctx, "exp", b), domain.ErrConfirmationExpired)
}
