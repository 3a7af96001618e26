package ratelimit

import (
	"context"
	"time"

	"tenantgate/internal/redis"
)

// RedisStore is a Store backed by redis for multi-process deployments. The
// check-and-append runs as a single Lua script, so admissions on one key are
// linearized by redis itself; stale keys expire via TTL and need no reaper.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps a redis client as a window store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Admit(ctx context.Context, key string, limit int, window time.Duration) (*Decision, error) {
	allowed, total, resetMs, err := s.client.AdmitSlidingWindow(ctx, key, limit, window)
	if err != nil {
		return nil, err
	}

	remaining := limit - total
	if remaining < 0 {
		remaining = 0
	}

	return &Decision{
		Allowed:   allowed,
		Limit:     limit,
		Remaining: remaining,
		ResetTime: time.UnixMilli(resetMs),
		Total:     total,
	}, nil
}

func (s *RedisStore) Close() error { return nil }

var _ Store = (*RedisStore)(nil)
