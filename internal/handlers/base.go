// Package handlers implements the HTTP endpoints: account registration and
// login, the tenant echo endpoint, API key management, health, and the
// per-provider webhook entry points.
package handlers

import (
	"encoding/json"
	"net/http"

	"tenantgate/internal/auth"
	"tenantgate/internal/common/logging"
	"tenantgate/internal/config"
	"tenantgate/internal/storage"
	"tenantgate/internal/webhook"
)

type Handlers struct {
	storage       storage.Storage
	config        *config.Config
	authenticator *auth.Authenticator
	gateway       *webhook.Gateway
}

func New(store storage.Storage, cfg *config.Config, authenticator *auth.Authenticator, gateway *webhook.Gateway) *Handlers {
	return &Handlers{
		storage:       store,
		config:        cfg,
		authenticator: authenticator,
		gateway:       gateway,
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.Error("Failed to encode response body", err)
	}
}

func decodeJSON(r *http.Request, dst interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}
