package ratelimit

import (
	"net/http"
	"strconv"
	"time"

	"tenantgate/internal/common/errors"
	"tenantgate/internal/common/logging"
	"tenantgate/internal/identity"
	"tenantgate/internal/tenant"
)

// Middleware enforces per-class rate limits. It composes the window key from
// whatever identity the request context carries (tenant, user, api key) and
// always includes the client IP, then surfaces the decision as
// X-RateLimit-* response headers. A store failure admits the request: rate
// limiting protects capacity and must not turn an outage into a full outage.
func Middleware(limiter *Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			class := limiter.Classifier().Classify(r)
			key := BuildKey(class, keyPartsFromRequest(r))

			decision, err := limiter.Admit(r.Context(), key, class)
			if err != nil {
				logging.WithContext(r.Context()).Warn("Rate limit check failed, admitting request",
					logging.String("key", key),
					logging.Err(err),
				)
				next.ServeHTTP(w, r)
				return
			}

			now := time.Now()
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetTime.Unix(), 10))
			w.Header().Set("X-RateLimit-Type", class.Name)

			if !decision.Allowed {
				retryAfter := decision.RetryAfter(now)
				w.Header().Set("Retry-After", strconv.FormatInt(retryAfter, 10))
				errors.WriteJSON(w, errors.RateLimitError(decision.Limit, retryAfter))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func keyPartsFromRequest(r *http.Request) KeyParts {
	parts := KeyParts{RemoteIP: ClientIP(r)}

	if t, ok := tenant.FromContext(r.Context()); ok {
		parts.TenantID = t.ID
	}

	if principal, ok := tenant.PrincipalFromContext(r.Context()); ok {
		switch p := principal.(type) {
		case identity.SessionPrincipal:
			parts.UserID = p.UserID
		case identity.APIKeyPrincipal:
			parts.APIKeyID = p.KeyID
		}
	}

	return parts
}
