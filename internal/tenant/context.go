package tenant

import (
	"context"

	"tenantgate/internal/common/logging"
	"tenantgate/internal/identity"
	"tenantgate/internal/storage"
)

type contextKey int

const (
	tenantKey contextKey = iota
	principalKey
)

// WithTenant attaches the resolved tenant to the request context. The tenant
// id is also placed under the logging context key so request-scoped loggers
// pick it up.
func WithTenant(ctx context.Context, t *storage.Tenant) context.Context {
	ctx = context.WithValue(ctx, tenantKey, t)
	return context.WithValue(ctx, logging.ContextKeyTenantID, t.ID)
}

// FromContext returns the tenant attached to the context, if any.
func FromContext(ctx context.Context) (*storage.Tenant, bool) {
	t, ok := ctx.Value(tenantKey).(*storage.Tenant)
	return t, ok
}

// WithPrincipal attaches the authenticated principal to the request context.
func WithPrincipal(ctx context.Context, p identity.Principal) context.Context {
	ctx = context.WithValue(ctx, principalKey, p)
	return context.WithValue(ctx, logging.ContextKeyPrincipal, p.Describe())
}

// PrincipalFromContext returns the principal attached to the context, if any.
func PrincipalFromContext(ctx context.Context) (identity.Principal, bool) {
	p, ok := ctx.Value(principalKey).(identity.Principal)
	return p, ok
}
