package middleware

import (
	"net/http"

	"tenantgate/internal/auth"
	"tenantgate/internal/common/errors"
	"tenantgate/internal/common/logging"
	"tenantgate/internal/identity"
	"tenantgate/internal/tenant"
)

// Admission is the API-path admission pipeline: authenticate the caller,
// resolve the tenant the request addresses, check the principal's binding to
// that tenant, and attach both to the request context. Paths on the bypass
// list skip all of it; they are the only unauthenticated entry points.
func Admission(authenticator *auth.Authenticator, extractor *identity.Extractor, resolver *tenant.Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if resolver.Bypasses(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()

			principal, err := authenticator.Authenticate(r)
			if err != nil {
				logging.WithContext(ctx).Warn("Authentication failed",
					logging.String("path", r.URL.Path),
					logging.Err(err),
				)
				errors.WriteJSON(w, err)
				return
			}

			ident, ok := extractor.Extract(r)
			if !ok {
				errors.WriteJSON(w, errors.ValidationError("tenant identifier required"))
				return
			}

			t, err := resolver.Resolve(ctx, ident)
			if err != nil {
				errors.WriteJSON(w, err)
				return
			}

			if err := resolver.ValidateAccess(ctx, t, principal); err != nil {
				logging.WithContext(ctx).Warn("Tenant access denied",
					logging.String("tenant_id", t.ID),
					logging.Err(err),
				)
				errors.WriteJSON(w, err)
				return
			}

			ctx = tenant.WithTenant(ctx, t)
			ctx = tenant.WithPrincipal(ctx, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
