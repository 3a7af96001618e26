package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"tenantgate/internal/common/errors"
	"tenantgate/internal/webhook"
)

// HandleWebhook is the shared entry point for all provider endpoints. The
// provider name comes from the route; the gateway does everything else. A
// duplicate delivery is acknowledged with the same success shape as a fresh
// one so senders stop retrying.
func (h *Handlers) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	provider := mux.Vars(r)["provider"]

	result, err := h.gateway.Admit(r.Context(), provider, r)
	if err != nil {
		errors.WriteJSON(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"received": true,
		"outcome":  result.Outcome,
		"event_id": result.Event.ID,
	})
}
