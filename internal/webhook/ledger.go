package webhook

import (
	"context"
	"sync"
	"time"

	"tenantgate/internal/redis"
	"tenantgate/internal/storage"
)

// Ledger records processed event ids per provider. Seen and Record are called
// under the gateway's per-event lock, so implementations only need to be safe
// for concurrent use across different events.
type Ledger interface {
	Seen(ctx context.Context, provider, eventID string) (bool, error)
	Record(ctx context.Context, provider, eventID, eventType string, payload []byte) error
}

type ledgerEntry struct {
	recordedAt time.Time
}

// MemoryLedger is an in-process ledger for single-node deployments.
type MemoryLedger struct {
	mu      sync.RWMutex
	entries map[string]ledgerEntry
	now     func() time.Time
}

// NewMemoryLedger creates an empty ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		entries: make(map[string]ledgerEntry),
		now:     time.Now,
	}
}

func ledgerKey(provider, eventID string) string {
	return provider + "\x00" + eventID
}

func (l *MemoryLedger) Seen(_ context.Context, provider, eventID string) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.entries[ledgerKey(provider, eventID)]
	return ok, nil
}

func (l *MemoryLedger) Record(_ context.Context, provider, eventID, _ string, _ []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[ledgerKey(provider, eventID)] = ledgerEntry{recordedAt: l.now()}
	return nil
}

// Sweep drops entries older than retention and returns how many were removed.
// Webhook senders stop retrying long before a sane retention elapses, so
// dropping old entries never reopens a replay window that matters.
func (l *MemoryLedger) Sweep(retention time.Duration) int {
	cutoff := l.now().Add(-retention)

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, entry := range l.entries {
		if entry.recordedAt.Before(cutoff) {
			delete(l.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of recorded events.
func (l *MemoryLedger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// RedisLedger shares the ledger across processes; entries expire via TTL.
type RedisLedger struct {
	client    *redis.Client
	retention time.Duration
}

// NewRedisLedger wraps a redis client as a ledger. retention bounds how long
// processed event ids are remembered.
func NewRedisLedger(client *redis.Client, retention time.Duration) *RedisLedger {
	return &RedisLedger{client: client, retention: retention}
}

func (l *RedisLedger) Seen(ctx context.Context, provider, eventID string) (bool, error) {
	return l.client.SeenWebhookEvent(ctx, provider, eventID)
}

func (l *RedisLedger) Record(ctx context.Context, provider, eventID, _ string, payload []byte) error {
	return l.client.RecordWebhookEvent(ctx, provider, eventID, payload, l.retention)
}

// StorageLedger persists the ledger in the primary store, keeping processed
// events visible for audit alongside the rest of the data.
type StorageLedger struct {
	store storage.Storage
}

// NewStorageLedger wraps a storage backend as a ledger.
func NewStorageLedger(store storage.Storage) *StorageLedger {
	return &StorageLedger{store: store}
}

func (l *StorageLedger) Seen(ctx context.Context, provider, eventID string) (bool, error) {
	_, err := l.store.GetWebhookEvent(ctx, provider, eventID)
	if err == storage.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (l *StorageLedger) Record(ctx context.Context, provider, eventID, eventType string, payload []byte) error {
	return l.store.RecordWebhookEvent(ctx, &storage.WebhookEvent{
		Provider:    provider,
		EventID:     eventID,
		EventType:   eventType,
		Status:      "processed",
		Payload:     payload,
		ProcessedAt: time.Now(),
	})
}

var (
	_ Ledger = (*MemoryLedger)(nil)
	_ Ledger = (*RedisLedger)(nil)
	_ Ledger = (*StorageLedger)(nil)
)
