package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"tenantgate/internal/auth"
	"tenantgate/internal/common/errors"
	"tenantgate/internal/common/logging"
	"tenantgate/internal/identity"
	"tenantgate/internal/tenant"
)

type createKeyRequest struct {
	Name        string     `json:"name"`
	Permissions []string   `json:"permissions"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

type createKeyResponse struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Key       string     `json:"key"` // shown once, never stored
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// requireKeyManagement checks that the caller may manage API keys for the
// resolved tenant. Sessions hold full tenant rights via their membership;
// machine callers need an explicit keys permission.
func requireKeyManagement(r *http.Request, action string) error {
	principal, ok := tenant.PrincipalFromContext(r.Context())
	if !ok {
		return errors.UnauthorizedError("authentication required")
	}

	if p, ok := principal.(identity.APIKeyPrincipal); ok {
		if !p.Permissions.Allows("keys", action) {
			return errors.ForbiddenError("missing keys:" + action + " permission")
		}
	}
	return nil
}

// CreateKey mints an API key bound to the resolved tenant and returns the
// plaintext credential once.
func (h *Handlers) CreateKey(w http.ResponseWriter, r *http.Request) {
	if err := requireKeyManagement(r, "create"); err != nil {
		errors.WriteJSON(w, err)
		return
	}

	t, ok := tenant.FromContext(r.Context())
	if !ok {
		errors.WriteJSON(w, errors.InternalError("tenant missing from request context", nil))
		return
	}

	var req createKeyRequest
	if err := decodeJSON(r, &req); err != nil {
		errors.WriteJSON(w, errors.ValidationError("invalid request body"))
		return
	}
	if req.Name == "" {
		errors.WriteJSON(w, errors.ValidationError("name is required"))
		return
	}
	if req.ExpiresAt != nil && req.ExpiresAt.Before(time.Now()) {
		errors.WriteJSON(w, errors.ValidationError("expires_at is in the past"))
		return
	}

	record, plaintext, err := auth.MintAPIKey(&t.ID, req.Name, req.Permissions, req.ExpiresAt)
	if err != nil {
		errors.WriteJSON(w, err)
		return
	}
	if err := h.storage.CreateAPIKey(r.Context(), record); err != nil {
		errors.WriteJSON(w, errors.InternalError("failed to store api key", err))
		return
	}

	logging.WithContext(r.Context()).Info("API key created",
		logging.String("key_id", record.ID),
		logging.String("tenant_id", t.ID),
	)

	writeJSON(w, http.StatusCreated, createKeyResponse{
		ID:        record.ID,
		Name:      record.Name,
		Key:       plaintext,
		ExpiresAt: record.ExpiresAt,
	})
}

// RevokeKey deactivates an API key. Revocation is permanent; a revoked key
// id is never reactivated.
func (h *Handlers) RevokeKey(w http.ResponseWriter, r *http.Request) {
	if err := requireKeyManagement(r, "revoke"); err != nil {
		errors.WriteJSON(w, err)
		return
	}

	t, ok := tenant.FromContext(r.Context())
	if !ok {
		errors.WriteJSON(w, errors.InternalError("tenant missing from request context", nil))
		return
	}

	keyID := mux.Vars(r)["id"]

	record, err := h.storage.GetAPIKey(r.Context(), keyID)
	if err != nil {
		errors.WriteJSON(w, errors.NotFoundError("api key"))
		return
	}
	// A key of another tenant is indistinguishable from a missing one
	if record.TenantID == nil || *record.TenantID != t.ID {
		errors.WriteJSON(w, errors.NotFoundError("api key"))
		return
	}

	if err := h.storage.RevokeAPIKey(r.Context(), keyID); err != nil {
		errors.WriteJSON(w, errors.InternalError("failed to revoke api key", err))
		return
	}

	logging.WithContext(r.Context()).Info("API key revoked",
		logging.String("key_id", keyID),
		logging.String("tenant_id", t.ID),
	)

	w.WriteHeader(http.StatusNoContent)
}
