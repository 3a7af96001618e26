package webhook

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenantgate/internal/storage"
)

func TestMemoryLedger(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger()

	seen, err := ledger.Seen(ctx, ProviderStripe, "evt_1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, ledger.Record(ctx, ProviderStripe, "evt_1", "checkout.session.completed", nil))

	seen, err = ledger.Seen(ctx, ProviderStripe, "evt_1")
	require.NoError(t, err)
	assert.True(t, seen)

	// Same id under another provider is a distinct entry
	seen, err = ledger.Seen(ctx, ProviderGitHub, "evt_1")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestMemoryLedger_Sweep(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger()

	now := time.Now()
	ledger.now = func() time.Time { return now }

	require.NoError(t, ledger.Record(ctx, ProviderStripe, "old", "push", nil))

	now = now.Add(25 * time.Hour)
	require.NoError(t, ledger.Record(ctx, ProviderStripe, "fresh", "push", nil))

	removed := ledger.Sweep(24 * time.Hour)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, ledger.Len())

	seen, err := ledger.Seen(ctx, ProviderStripe, "fresh")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestStorageLedger(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	ledger := NewStorageLedger(store)

	seen, err := ledger.Seen(ctx, ProviderGitHub, "d-1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, ledger.Record(ctx, ProviderGitHub, "d-1", "push", []byte(`{"ref":"refs/heads/main"}`)))

	seen, err = ledger.Seen(ctx, ProviderGitHub, "d-1")
	require.NoError(t, err)
	assert.True(t, seen)

	event, err := store.GetWebhookEvent(ctx, ProviderGitHub, "d-1")
	require.NoError(t, err)
	assert.Equal(t, "push", event.EventType)
	assert.Equal(t, "processed", event.Status)
}
