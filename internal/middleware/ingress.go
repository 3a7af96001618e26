package middleware

import (
	"net/http"

	"golang.org/x/time/rate"

	"tenantgate/internal/common/errors"
)

// Ingress applies a process-wide token-bucket limiter ahead of everything
// else. It is not fairness control, the sliding-window limiter does that per
// caller; this only sheds load when the process as a whole is flooded.
func Ingress(rps float64, burst int) func(http.Handler) http.Handler {
	limiter := rate.NewLimiter(rate.Limit(rps), burst)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				errors.WriteJSON(w, errors.RateLimitError(burst, 1))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
