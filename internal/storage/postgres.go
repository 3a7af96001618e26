package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStorage is a pgx-backed Storage implementation for multi-process
// deployments.
type PostgresStorage struct {
	pool *pgxpool.Pool
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS tenants (
	id TEXT PRIMARY KEY,
	slug TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	status TEXT NOT NULL,
	plan TEXT NOT NULL DEFAULT '',
	plan_limits JSONB NOT NULL DEFAULT '{}',
	settings JSONB NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS api_keys (
	id TEXT PRIMARY KEY,
	tenant_id TEXT REFERENCES tenants(id),
	name TEXT NOT NULL DEFAULT '',
	salt BYTEA NOT NULL,
	hash BYTEA NOT NULL,
	permissions JSONB NOT NULL DEFAULT '[]',
	active BOOLEAN NOT NULL DEFAULT TRUE,
	expires_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	email TEXT NOT NULL UNIQUE,
	password_hash BYTEA NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS memberships (
	user_id TEXT NOT NULL REFERENCES users(id),
	tenant_id TEXT NOT NULL REFERENCES tenants(id),
	role TEXT NOT NULL DEFAULT 'member',
	PRIMARY KEY (user_id, tenant_id)
);

CREATE TABLE IF NOT EXISTS webhook_events (
	provider TEXT NOT NULL,
	event_id TEXT NOT NULL,
	event_type TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	payload BYTEA,
	processed_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (provider, event_id)
);
`

// NewPostgresStorage connects to the given database and applies the schema.
func NewPostgresStorage(ctx context.Context, url string) (*PostgresStorage, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to apply postgres schema: %w", err)
	}

	return &PostgresStorage{pool: pool}, nil
}

func (s *PostgresStorage) CreateTenant(ctx context.Context, tenant *Tenant) error {
	now := time.Now()
	if tenant.CreatedAt.IsZero() {
		tenant.CreatedAt = now
	}
	tenant.UpdatedAt = now

	limits, err := json.Marshal(tenant.PlanLimits)
	if err != nil {
		return err
	}
	settings, err := json.Marshal(tenant.Settings)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO tenants (id, slug, name, status, plan, plan_limits, settings, created_at, updated_at)
		 VALUES ($1, lower($2), $3, $4, $5, $6, $7, $8, $9)`,
		tenant.ID, tenant.Slug, tenant.Name, string(tenant.Status), tenant.Plan,
		limits, settings, tenant.CreatedAt, tenant.UpdatedAt)
	return err
}

func (s *PostgresStorage) getTenant(ctx context.Context, query, arg string) (*Tenant, error) {
	var tenant Tenant
	var status string
	var limits, settings []byte

	err := s.pool.QueryRow(ctx, query, arg).
		Scan(&tenant.ID, &tenant.Slug, &tenant.Name, &status, &tenant.Plan,
			&limits, &settings, &tenant.CreatedAt, &tenant.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	tenant.Status = TenantStatus(status)
	if err := json.Unmarshal(limits, &tenant.PlanLimits); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(settings, &tenant.Settings); err != nil {
		return nil, err
	}
	return &tenant, nil
}

func (s *PostgresStorage) GetTenant(ctx context.Context, id string) (*Tenant, error) {
	return s.getTenant(ctx,
		`SELECT id, slug, name, status, plan, plan_limits, settings, created_at, updated_at
		 FROM tenants WHERE id = $1`, id)
}

func (s *PostgresStorage) GetTenantBySlug(ctx context.Context, slug string) (*Tenant, error) {
	return s.getTenant(ctx,
		`SELECT id, slug, name, status, plan, plan_limits, settings, created_at, updated_at
		 FROM tenants WHERE slug = lower($1)`, slug)
}

func (s *PostgresStorage) UpdateTenantStatus(ctx context.Context, id string, status TenantStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE tenants SET status = $1, updated_at = now() WHERE id = $2`,
		string(status), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStorage) CreateAPIKey(ctx context.Context, key *APIKey) error {
	if key.CreatedAt.IsZero() {
		key.CreatedAt = time.Now()
	}
	permissions, err := json.Marshal(key.Permissions)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, tenant_id, name, salt, hash, permissions, active, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		key.ID, key.TenantID, key.Name, key.Salt, key.Hash, permissions,
		key.Active, key.ExpiresAt, key.CreatedAt)
	return err
}

func (s *PostgresStorage) GetAPIKey(ctx context.Context, id string) (*APIKey, error) {
	var key APIKey
	var permissions []byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, tenant_id, name, salt, hash, permissions, active, expires_at, created_at
		 FROM api_keys WHERE id = $1`, id).
		Scan(&key.ID, &key.TenantID, &key.Name, &key.Salt, &key.Hash, &permissions,
			&key.Active, &key.ExpiresAt, &key.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(permissions, &key.Permissions); err != nil {
		return nil, err
	}
	return &key, nil
}

func (s *PostgresStorage) RevokeAPIKey(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE api_keys SET active = FALSE WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStorage) CreateUser(ctx context.Context, user *User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, email, password_hash, created_at) VALUES ($1, lower($2), $3, $4)`,
		user.ID, user.Email, user.PasswordHash, user.CreatedAt)
	return err
}

func (s *PostgresStorage) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	var user User
	err := s.pool.QueryRow(ctx,
		`SELECT id, email, password_hash, created_at FROM users WHERE email = lower($1)`, email).
		Scan(&user.ID, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *PostgresStorage) AddMembership(ctx context.Context, m *Membership) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO memberships (user_id, tenant_id, role) VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, tenant_id) DO UPDATE SET role = EXCLUDED.role`,
		m.UserID, m.TenantID, m.Role)
	return err
}

func (s *PostgresStorage) UserHasAccessToTenant(ctx context.Context, userID, tenantID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM memberships WHERE user_id = $1 AND tenant_id = $2)`,
		userID, tenantID).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (s *PostgresStorage) GetWebhookEvent(ctx context.Context, provider, eventID string) (*WebhookEvent, error) {
	var event WebhookEvent
	err := s.pool.QueryRow(ctx,
		`SELECT provider, event_id, event_type, status, payload, processed_at
		 FROM webhook_events WHERE provider = $1 AND event_id = $2`, provider, eventID).
		Scan(&event.Provider, &event.EventID, &event.EventType, &event.Status,
			&event.Payload, &event.ProcessedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (s *PostgresStorage) RecordWebhookEvent(ctx context.Context, event *WebhookEvent) error {
	if event.ProcessedAt.IsZero() {
		event.ProcessedAt = time.Now()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO webhook_events (provider, event_id, event_type, status, payload, processed_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (provider, event_id) DO NOTHING`,
		event.Provider, event.EventID, event.EventType, event.Status, event.Payload, event.ProcessedAt)
	return err
}

func (s *PostgresStorage) Health(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStorage) Close() error {
	s.pool.Close()
	return nil
}

var _ Storage = (*PostgresStorage)(nil)
