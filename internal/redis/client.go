// Package redis wraps the go-redis client with the operations the admission
// pipeline needs: an atomic sliding-window check and the webhook ledger.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Client is a thin wrapper around go-redis.
type Client struct {
	rdb *redis.Client
}

// Config holds redis connection settings.
type Config struct {
	Address  string
	Password string
	DB       int
	PoolSize int
}

// NewClient connects to redis and verifies the connection.
func NewClient(config *Config) (*Client, error) {
	if config == nil {
		return nil, fmt.Errorf("redis config is required")
	}
	if config.Address == "" {
		config.Address = "localhost:6379"
	}
	if config.PoolSize == 0 {
		config.PoolSize = 10
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     config.Address,
		Password: config.Password,
		DB:       config.DB,
		PoolSize: config.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// NewClientFromRedis wraps an existing go-redis client (used by tests with
// miniredis).
func NewClientFromRedis(rdb *redis.Client) *Client {
	return &Client{rdb: rdb}
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

func (c *Client) Health(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// admitScript purges expired entries, reads the rolling reset boundary, and
// appends the request only when under the limit, all in one atomic step so
// concurrent checks on the same key are linearized by redis. Rejected
// attempts are not recorded.
var admitScript = redis.NewScript(`
local key = KEYS[1]
local resetKey = KEYS[2]
local seqKey = KEYS[3]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, 0, now - window)
local count = redis.call('ZCARD', key)

local reset = tonumber(redis.call('GET', resetKey) or '0')
if reset <= now then
	reset = now + window
	redis.call('SET', resetKey, reset, 'PX', window * 2)
end

if count >= max then
	return {0, count, reset}
end

local seq = redis.call('INCR', seqKey)
redis.call('PEXPIRE', seqKey, window * 2)
redis.call('ZADD', key, now, tostring(now) .. '-' .. tostring(seq))
redis.call('PEXPIRE', key, window * 2)
return {1, count + 1, reset}
`)

// AdmitSlidingWindow runs one sliding-window admission check. Returns whether
// the request was admitted, the number of requests now in the window, and the
// reset boundary in unix milliseconds.
func (c *Client) AdmitSlidingWindow(ctx context.Context, key string, limit int, window time.Duration) (bool, int, int64, error) {
	nowMs := time.Now().UnixMilli()
	keys := []string{
		"ratelimit:" + key,
		"ratelimit:" + key + ":reset",
		"ratelimit:" + key + ":seq",
	}

	result, err := admitScript.Run(ctx, c.rdb, keys, nowMs, window.Milliseconds(), limit).Result()
	if err != nil {
		return false, 0, 0, fmt.Errorf("rate limit check failed: %w", err)
	}

	values, ok := result.([]interface{})
	if !ok || len(values) != 3 {
		return false, 0, 0, fmt.Errorf("unexpected rate limit script reply: %v", result)
	}

	allowed := values[0].(int64) == 1
	total := int(values[1].(int64))
	resetMs := values[2].(int64)
	return allowed, total, resetMs, nil
}

// SeenWebhookEvent reports whether the ledger already holds the event.
func (c *Client) SeenWebhookEvent(ctx context.Context, provider, eventID string) (bool, error) {
	n, err := c.rdb.Exists(ctx, webhookLedgerKey(provider, eventID)).Result()
	if err != nil {
		return false, fmt.Errorf("ledger lookup failed: %w", err)
	}
	return n > 0, nil
}

// RecordWebhookEvent marks the event processed. retention bounds ledger
// growth; webhook senders stop retrying long before it elapses.
func (c *Client) RecordWebhookEvent(ctx context.Context, provider, eventID string, payload []byte, retention time.Duration) error {
	err := c.rdb.Set(ctx, webhookLedgerKey(provider, eventID), payload, retention).Err()
	if err != nil {
		return fmt.Errorf("ledger write failed: %w", err)
	}
	return nil
}

func webhookLedgerKey(provider, eventID string) string {
	return fmt.Sprintf("webhook:%s:%s", provider, eventID)
}
