package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStorage_Tenants(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStorage()

	tenant := &Tenant{
		ID:     "t-1",
		Slug:   "Acme",
		Name:   "Acme Corp",
		Status: TenantActive,
		Plan:   "pro",
	}
	require.NoError(t, store.CreateTenant(ctx, tenant))

	t.Run("get by id", func(t *testing.T) {
		got, err := store.GetTenant(ctx, "t-1")
		require.NoError(t, err)
		assert.Equal(t, "Acme Corp", got.Name)
		assert.Equal(t, TenantActive, got.Status)
	})

	t.Run("slug lookup is case insensitive", func(t *testing.T) {
		got, err := store.GetTenantBySlug(ctx, "acme")
		require.NoError(t, err)
		assert.Equal(t, "t-1", got.ID)
	})

	t.Run("missing tenant returns ErrNotFound", func(t *testing.T) {
		_, err := store.GetTenant(ctx, "nope")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("status update is a soft transition, not a delete", func(t *testing.T) {
		require.NoError(t, store.UpdateTenantStatus(ctx, "t-1", TenantCancelled))
		got, err := store.GetTenant(ctx, "t-1")
		require.NoError(t, err)
		assert.Equal(t, TenantCancelled, got.Status)
	})

	t.Run("returned tenant is a copy", func(t *testing.T) {
		got, err := store.GetTenant(ctx, "t-1")
		require.NoError(t, err)
		got.Name = "mutated"

		again, err := store.GetTenant(ctx, "t-1")
		require.NoError(t, err)
		assert.Equal(t, "Acme Corp", again.Name)
	})
}

func TestMemoryStorage_APIKeys(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStorage()

	tenantID := "t-1"
	expires := time.Now().Add(time.Hour)
	key := &APIKey{
		ID:          "k-1",
		TenantID:    &tenantID,
		Salt:        []byte("salt"),
		Hash:        []byte("hash"),
		Permissions: []string{"leads:*"},
		Active:      true,
		ExpiresAt:   &expires,
	}
	require.NoError(t, store.CreateAPIKey(ctx, key))

	got, err := store.GetAPIKey(ctx, "k-1")
	require.NoError(t, err)
	assert.Equal(t, &tenantID, got.TenantID)
	assert.True(t, got.Active)

	require.NoError(t, store.RevokeAPIKey(ctx, "k-1"))
	got, err = store.GetAPIKey(ctx, "k-1")
	require.NoError(t, err)
	assert.False(t, got.Active)

	assert.ErrorIs(t, store.RevokeAPIKey(ctx, "nope"), ErrNotFound)
}

func TestMemoryStorage_Memberships(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStorage()

	require.NoError(t, store.CreateUser(ctx, &User{ID: "u-1", Email: "Dev@Example.com"}))
	require.NoError(t, store.AddMembership(ctx, &Membership{UserID: "u-1", TenantID: "t-1", Role: "admin"}))

	ok, err := store.UserHasAccessToTenant(ctx, "u-1", "t-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.UserHasAccessToTenant(ctx, "u-1", "t-2")
	require.NoError(t, err)
	assert.False(t, ok)

	user, err := store.GetUserByEmail(ctx, "dev@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u-1", user.ID)
}

func TestMemoryStorage_WebhookEvents(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStorage()

	_, err := store.GetWebhookEvent(ctx, "stripe", "evt_1")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.RecordWebhookEvent(ctx, &WebhookEvent{
		Provider:  "stripe",
		EventID:   "evt_1",
		EventType: "payment_intent.succeeded",
		Status:    "completed",
	}))

	got, err := store.GetWebhookEvent(ctx, "stripe", "evt_1")
	require.NoError(t, err)
	assert.Equal(t, "completed", got.Status)
	assert.False(t, got.ProcessedAt.IsZero())

	// Same event id under a different provider is a distinct row
	_, err = store.GetWebhookEvent(ctx, "github", "evt_1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStorage_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStorage()
	require.NoError(t, store.CreateTenant(ctx, &Tenant{ID: "t-1", Slug: "acme", Status: TenantActive}))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = store.GetTenant(ctx, "t-1")
		}()
		go func() {
			defer wg.Done()
			_ = store.UpdateTenantStatus(ctx, "t-1", TenantActive)
		}()
	}
	wg.Wait()
}
