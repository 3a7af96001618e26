package handlers

import (
	"net/http"

	"tenantgate/internal/common/errors"
	"tenantgate/internal/tenant"
)

// GetTenant echoes the tenant and principal the admission pipeline attached
// to the request context.
func (h *Handlers) GetTenant(w http.ResponseWriter, r *http.Request) {
	t, ok := tenant.FromContext(r.Context())
	if !ok {
		errors.WriteJSON(w, errors.InternalError("tenant missing from request context", nil))
		return
	}

	body := map[string]interface{}{
		"tenant": t,
	}
	if principal, ok := tenant.PrincipalFromContext(r.Context()); ok {
		body["principal"] = principal.Describe()
	}

	writeJSON(w, http.StatusOK, body)
}
