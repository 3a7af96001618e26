package storage

import "context"

// Storage is the backing store consumed by the admission pipeline. All
// blocking calls take a context so they share the enclosing request's
// deadline; the pipeline adds no timeout of its own.
type Storage interface {
	// Tenants
	CreateTenant(ctx context.Context, tenant *Tenant) error
	GetTenant(ctx context.Context, id string) (*Tenant, error)
	GetTenantBySlug(ctx context.Context, slug string) (*Tenant, error)
	UpdateTenantStatus(ctx context.Context, id string, status TenantStatus) error

	// API keys
	CreateAPIKey(ctx context.Context, key *APIKey) error
	GetAPIKey(ctx context.Context, id string) (*APIKey, error)
	RevokeAPIKey(ctx context.Context, id string) error

	// Users and memberships
	CreateUser(ctx context.Context, user *User) error
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	AddMembership(ctx context.Context, m *Membership) error
	UserHasAccessToTenant(ctx context.Context, userID, tenantID string) (bool, error)

	// Webhook ledger
	GetWebhookEvent(ctx context.Context, provider, eventID string) (*WebhookEvent, error)
	RecordWebhookEvent(ctx context.Context, event *WebhookEvent) error

	// Connection management
	Health(ctx context.Context) error
	Close() error
}

// ErrNotFound is returned by Get* methods when no row matches. Implementations
// return this sentinel rather than a backend-specific error so callers can
// translate it to a NotFound response.
var ErrNotFound = notFoundError{}

type notFoundError struct{}

func (notFoundError) Error() string { return "storage: not found" }
