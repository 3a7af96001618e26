package storage

import "time"

// TenantStatus is the lifecycle state of a tenant account.
type TenantStatus string

const (
	TenantActive    TenantStatus = "active"
	TenantTrial     TenantStatus = "trial"
	TenantSuspended TenantStatus = "suspended"
	TenantCancelled TenantStatus = "cancelled"
)

// Tenant is an isolated customer account. Tenants are soft-cancelled and
// never physically deleted.
type Tenant struct {
	ID         string            `json:"id"`
	Slug       string            `json:"slug"`
	Name       string            `json:"name"`
	Status     TenantStatus      `json:"status"`
	Plan       string            `json:"plan"`
	PlanLimits map[string]int    `json:"plan_limits,omitempty"`
	Settings   map[string]string `json:"settings,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// APIKey is a machine credential. TenantID is nil for the system-wide key
// record; tenant-scoped keys are bound to exactly one tenant.
type APIKey struct {
	ID          string     `json:"id"`
	TenantID    *string    `json:"tenant_id,omitempty"`
	Name        string     `json:"name"`
	Salt        []byte     `json:"-"`
	Hash        []byte     `json:"-"`
	Permissions []string   `json:"permissions"`
	Active      bool       `json:"active"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// User is a human account that may belong to several tenants.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Membership links a user to a tenant.
type Membership struct {
	UserID   string `json:"user_id"`
	TenantID string `json:"tenant_id"`
	Role     string `json:"role"`
}

// WebhookEvent is a ledger row recording a processed external event.
type WebhookEvent struct {
	Provider    string    `json:"provider"`
	EventID     string    `json:"event_id"`
	EventType   string    `json:"event_type"`
	Status      string    `json:"status"`
	Payload     []byte    `json:"payload,omitempty"`
	ProcessedAt time.Time `json:"processed_at"`
}
