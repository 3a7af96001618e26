package identity

import "time"

// Principal is the authenticated actor behind a request. It is a closed sum:
// exactly SessionPrincipal or APIKeyPrincipal, so access checks can match
// exhaustively instead of probing optional fields.
type Principal interface {
	// Describe returns a short identifier for logging.
	Describe() string

	sealed()
}

// SessionPrincipal is a human user authenticated via a session token.
type SessionPrincipal struct {
	UserID      string
	TenantClaim string // tenant id embedded in the token, may be empty
}

func (p SessionPrincipal) Describe() string { return "user:" + p.UserID }
func (p SessionPrincipal) sealed()          {}

// APIKeyPrincipal is a machine caller authenticated via an API key. A nil
// TenantID marks the system-wide key, which inherits whatever tenant the
// request resolved to.
type APIKeyPrincipal struct {
	KeyID       string
	TenantID    *string
	Permissions PermissionSet
	Active      bool
	ExpiresAt   *time.Time
}

func (p APIKeyPrincipal) Describe() string { return "key:" + p.KeyID }
func (p APIKeyPrincipal) sealed()          {}

// SystemWide reports whether the key is the shared system credential.
func (p APIKeyPrincipal) SystemWide() bool { return p.TenantID == nil }

// Expired reports whether the key is past its expiry.
func (p APIKeyPrincipal) Expired(now time.Time) bool {
	return p.ExpiresAt != nil && now.After(*p.ExpiresAt)
}
