package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewClientFromRedis(rdb), mr
}

func TestAdmitSlidingWindow(t *testing.T) {
	ctx := context.Background()
	client, _ := testClient(t)

	admitted := 0
	for i := 0; i < 5; i++ {
		allowed, total, _, err := client.AdmitSlidingWindow(ctx, "tenant-a", 3, time.Minute)
		require.NoError(t, err)
		if allowed {
			admitted++
		}
		assert.LessOrEqual(t, total, 3)
	}
	assert.Equal(t, 3, admitted)
}

func TestAdmitSlidingWindow_RejectionNotRecorded(t *testing.T) {
	ctx := context.Background()
	client, _ := testClient(t)

	window := 100 * time.Millisecond

	for i := 0; i < 2; i++ {
		allowed, _, _, err := client.AdmitSlidingWindow(ctx, "k", 2, window)
		require.NoError(t, err)
		require.True(t, allowed)
	}

	// Rejected attempts must not add members to the window set
	for i := 0; i < 4; i++ {
		allowed, total, _, err := client.AdmitSlidingWindow(ctx, "k", 2, window)
		require.NoError(t, err)
		assert.False(t, allowed)
		assert.Equal(t, 2, total)
	}

	time.Sleep(window + 50*time.Millisecond)

	allowed, total, _, err := client.AdmitSlidingWindow(ctx, "k", 2, window)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, 1, total)
}

func TestAdmitSlidingWindow_IndependentKeys(t *testing.T) {
	ctx := context.Background()
	client, _ := testClient(t)

	allowed, _, _, err := client.AdmitSlidingWindow(ctx, "a", 1, time.Minute)
	require.NoError(t, err)
	require.True(t, allowed)

	allowed, _, _, err = client.AdmitSlidingWindow(ctx, "a", 1, time.Minute)
	require.NoError(t, err)
	require.False(t, allowed)

	allowed, _, _, err = client.AdmitSlidingWindow(ctx, "b", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestWebhookLedger(t *testing.T) {
	ctx := context.Background()
	client, _ := testClient(t)

	seen, err := client.SeenWebhookEvent(ctx, "stripe", "evt_1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, client.RecordWebhookEvent(ctx, "stripe", "evt_1", []byte(`{}`), time.Hour))

	seen, err = client.SeenWebhookEvent(ctx, "stripe", "evt_1")
	require.NoError(t, err)
	assert.True(t, seen)

	// The same event id under another provider is a different ledger entry
	seen, err = client.SeenWebhookEvent(ctx, "github", "evt_1")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestWebhookLedger_Retention(t *testing.T) {
	ctx := context.Background()
	client, mr := testClient(t)

	require.NoError(t, client.RecordWebhookEvent(ctx, "github", "d-1", nil, time.Minute))

	mr.FastForward(2 * time.Minute)

	seen, err := client.SeenWebhookEvent(ctx, "github", "d-1")
	require.NoError(t, err)
	assert.False(t, seen)
}
