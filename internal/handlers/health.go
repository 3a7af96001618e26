package handlers

import (
	"net/http"
	"time"
)

// Health reports service liveness and storage reachability.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	body := map[string]interface{}{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	}

	if err := h.storage.Health(r.Context()); err != nil {
		status = http.StatusServiceUnavailable
		body["status"] = "degraded"
		body["storage"] = "unreachable"
	}

	writeJSON(w, status, body)
}
