package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStorage is a file-backed Storage implementation for single-node
// deployments.
type SQLiteStorage struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS tenants (
	id TEXT PRIMARY KEY,
	slug TEXT NOT NULL UNIQUE COLLATE NOCASE,
	name TEXT NOT NULL,
	status TEXT NOT NULL,
	plan TEXT NOT NULL DEFAULT '',
	plan_limits TEXT NOT NULL DEFAULT '{}',
	settings TEXT NOT NULL DEFAULT '{}',
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS api_keys (
	id TEXT PRIMARY KEY,
	tenant_id TEXT REFERENCES tenants(id),
	name TEXT NOT NULL DEFAULT '',
	salt BLOB NOT NULL,
	hash BLOB NOT NULL,
	permissions TEXT NOT NULL DEFAULT '[]',
	active INTEGER NOT NULL DEFAULT 1,
	expires_at TIMESTAMP,
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	email TEXT NOT NULL UNIQUE COLLATE NOCASE,
	password_hash BLOB NOT NULL,
	created_at TIMESTAMP NOT NULL
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
	payload BLOB,
	processed_at TIMESTAMP NOT NULL,
	PRIMARY KEY (provider, event_id)
);
`

// NewSQLiteStorage opens (and if necessary creates) the database at path.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply sqlite schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func (s *SQLiteStorage) CreateTenant(ctx context.Context, tenant *Tenant) error {
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

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tenants (id, slug, name, status, plan, plan_limits, settings, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tenant.ID, tenant.Slug, tenant.Name, string(tenant.Status), tenant.Plan,
		string(limits), string(settings), tenant.CreatedAt, tenant.UpdatedAt)
	return err
}

func (s *SQLiteStorage) scanTenant(row *sql.Row) (*Tenant, error) {
	var tenant Tenant
	var status, limits, settings string

	err := row.Scan(&tenant.ID, &tenant.Slug, &tenant.Name, &status, &tenant.Plan,
		&limits, &settings, &tenant.CreatedAt, &tenant.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	tenant.Status = TenantStatus(status)
	if err := json.Unmarshal([]byte(limits), &tenant.PlanLimits); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(settings), &tenant.Settings); err != nil {
		return nil, err
	}
	return &tenant, nil
}

const tenantColumns = `id, slug, name, status, plan, plan_limits, settings, created_at, updated_at`

func (s *SQLiteStorage) GetTenant(ctx context.Context, id string) (*Tenant, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = ?`, id)
	return s.scanTenant(row)
}

func (s *SQLiteStorage) GetTenantBySlug(ctx context.Context, slug string) (*Tenant, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE slug = ?`, slug)
	return s.scanTenant(row)
}

func (s *SQLiteStorage) UpdateTenantStatus(ctx context.Context, id string, status TenantStatus) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE tenants SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now(), id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStorage) CreateAPIKey(ctx context.Context, key *APIKey) error {
	if key.CreatedAt.IsZero() {
		key.CreatedAt = time.Now()
	}
	permissions, err := json.Marshal(key.Permissions)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO api_keys (id, tenant_id, name, salt, hash, permissions, active, expires_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		key.ID, key.TenantID, key.Name, key.Salt, key.Hash, string(permissions),
		key.Active, key.ExpiresAt, key.CreatedAt)
	return err
}

func (s *SQLiteStorage) GetAPIKey(ctx context.Context, id string) (*APIKey, error) {
	var key APIKey
	var permissions string

	err := s.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, name, salt, hash, permissions, active, expires_at, created_at
		 FROM api_keys WHERE id = ?`, id).
		Scan(&key.ID, &key.TenantID, &key.Name, &key.Salt, &key.Hash, &permissions,
			&key.Active, &key.ExpiresAt, &key.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(permissions), &key.Permissions); err != nil {
		return nil, err
	}
	return &key, nil
}

func (s *SQLiteStorage) RevokeAPIKey(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE api_keys SET active = 0 WHERE id = ?`, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStorage) CreateUser(ctx context.Context, user *User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		user.ID, user.Email, user.PasswordHash, user.CreatedAt)
	return err
}

func (s *SQLiteStorage) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	var user User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, created_at FROM users WHERE email = ?`, email).
		Scan(&user.ID, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *SQLiteStorage) AddMembership(ctx context.Context, m *Membership) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO memberships (user_id, tenant_id, role) VALUES (?, ?, ?)`,
		m.UserID, m.TenantID, m.Role)
	return err
}

func (s *SQLiteStorage) UserHasAccessToTenant(ctx context.Context, userID, tenantID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM memberships WHERE user_id = ? AND tenant_id = ?`,
		userID, tenantID).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *SQLiteStorage) GetWebhookEvent(ctx context.Context, provider, eventID string) (*WebhookEvent, error) {
	var event WebhookEvent
	err := s.db.QueryRowContext(ctx,
		`SELECT provider, event_id, event_type, status, payload, processed_at
		 FROM webhook_events WHERE provider = ? AND event_id = ?`, provider, eventID).
		Scan(&event.Provider, &event.EventID, &event.EventType, &event.Status,
			&event.Payload, &event.ProcessedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (s *SQLiteStorage) RecordWebhookEvent(ctx context.Context, event *WebhookEvent) error {
	if event.ProcessedAt.IsZero() {
		event.ProcessedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO webhook_events (provider, event_id, event_type, status, payload, processed_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		event.Provider, event.EventID, event.EventType, event.Status, event.Payload, event.ProcessedAt)
	return err
}

func (s *SQLiteStorage) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

var _ Storage = (*SQLiteStorage)(nil)
