// Package tenant resolves raw tenant identifiers against the store and
// enforces the tenant-active and principal-binding invariants.
package tenant

import (
	"context"
	"strings"

	"tenantgate/internal/common/errors"
	"tenantgate/internal/identity"
	"tenantgate/internal/storage"
)

// Resolver binds requests to tenants.
type Resolver struct {
	storage        storage.Storage
	bypassPrefixes []string
}

// NewResolver creates a resolver. bypassPrefixes are path prefixes that skip
// tenant resolution entirely (docs, registration, login, system endpoints).
func NewResolver(store storage.Storage, bypassPrefixes []string) *Resolver {
	return &Resolver{
		storage:        store,
		bypassPrefixes: bypassPrefixes,
	}
}

// Bypasses reports whether the path is an unauthenticated entry point.
func (r *Resolver) Bypasses(path string) bool {
	for _, prefix := range r.bypassPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// Resolve looks up the tenant behind an identifier. It fails NotFound for an
// unknown identifier and Forbidden for any tenant that is not active: a
// request never proceeds on a trial, suspended or cancelled tenant,
// regardless of how valid the caller's credential is.
func (r *Resolver) Resolve(ctx context.Context, ident *identity.TenantIdentifier) (*storage.Tenant, error) {
	var (
		t   *storage.Tenant
		err error
	)

	switch ident.Kind {
	case identity.KindID:
		t, err = r.storage.GetTenant(ctx, ident.Value)
	case identity.KindSlug:
		t, err = r.storage.GetTenantBySlug(ctx, ident.Value)
	default:
		return nil, errors.ValidationError("unknown tenant identifier kind")
	}

	if err == storage.ErrNotFound {
		return nil, errors.NotFoundError("tenant")
	}
	if err != nil {
		return nil, errors.InternalError("tenant lookup failed", err)
	}

	if t.Status != storage.TenantActive {
		return nil, errors.ForbiddenError("tenant is not active").
			WithContext("tenant_status", string(t.Status))
	}

	return t, nil
}

// ValidateAccess checks that the principal may act on the tenant.
//
// A tenant-scoped API key must be bound to exactly this tenant; the
// system-wide key inherits whatever tenant the request resolved to. A session
// principal must hold a membership. A request with no principal at all is
// unauthenticated.
func (r *Resolver) ValidateAccess(ctx context.Context, t *storage.Tenant, principal identity.Principal) error {
	switch p := principal.(type) {
	case identity.APIKeyPrincipal:
		if !p.SystemWide() && *p.TenantID != t.ID {
			return errors.ForbiddenError("api key is bound to another tenant")
		}
		if !p.Active {
			return errors.UnauthorizedError("api key is not active")
		}
		return nil

	case identity.SessionPrincipal:
		ok, err := r.storage.UserHasAccessToTenant(ctx, p.UserID, t.ID)
		if err != nil {
			return errors.InternalError("membership lookup failed", err)
		}
		if !ok {
			return errors.ForbiddenError("user has no access to this tenant")
		}
		return nil

	case nil:
		return errors.UnauthorizedError("authentication required")

	default:
		return errors.UnauthorizedError("authentication required")
	}
}
