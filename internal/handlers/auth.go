package handlers

import (
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"tenantgate/internal/common/errors"
	"tenantgate/internal/common/logging"
	"tenantgate/internal/storage"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{1,61}[a-z0-9])?$`)

type registerRequest struct {
	TenantName string `json:"tenant_name"`
	Slug       string `json:"slug"`
	Email      string `json:"email"`
	Password   string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Token    string `json:"token"`
	UserID   string `json:"user_id"`
	TenantID string `json:"tenant_id,omitempty"`
}

// Register creates a tenant together with its first user and membership, then
// issues a session token bound to the new tenant.
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		errors.WriteJSON(w, errors.ValidationError("invalid request body"))
		return
	}

	req.Slug = strings.ToLower(strings.TrimSpace(req.Slug))
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	switch {
	case req.TenantName == "":
		errors.WriteJSON(w, errors.ValidationError("tenant_name is required"))
		return
	case !slugPattern.MatchString(req.Slug):
		errors.WriteJSON(w, errors.ValidationError("slug must be lowercase alphanumeric with hyphens"))
		return
	case !strings.Contains(req.Email, "@"):
		errors.WriteJSON(w, errors.ValidationError("a valid email is required"))
		return
	case len(req.Password) < 8:
		errors.WriteJSON(w, errors.ValidationError("password must be at least 8 characters"))
		return
	}

	ctx := r.Context()

	if _, err := h.storage.GetTenantBySlug(ctx, req.Slug); err == nil {
		errors.WriteJSON(w, errors.ValidationError("slug is already taken"))
		return
	} else if err != storage.ErrNotFound {
		errors.WriteJSON(w, errors.InternalError("tenant lookup failed", err))
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		errors.WriteJSON(w, errors.InternalError("failed to hash password", err))
		return
	}

	now := time.Now()
	t := &storage.Tenant{
		ID:        uuid.NewString(),
		Slug:      req.Slug,
		Name:      req.TenantName,
		Status:    storage.TenantActive,
		Plan:      "free",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.storage.CreateTenant(ctx, t); err != nil {
		errors.WriteJSON(w, errors.InternalError("failed to create tenant", err))
		return
	}

	user := &storage.User{
		ID:           uuid.NewString(),
		Email:        req.Email,
		PasswordHash: hash,
		CreatedAt:    now,
	}
	if err := h.storage.CreateUser(ctx, user); err != nil {
		errors.WriteJSON(w, errors.InternalError("failed to create user", err))
		return
	}

	membership := &storage.Membership{UserID: user.ID, TenantID: t.ID, Role: "owner"}
	if err := h.storage.AddMembership(ctx, membership); err != nil {
		errors.WriteJSON(w, errors.InternalError("failed to create membership", err))
		return
	}

	token, err := h.authenticator.IssueSessionToken(user.ID, t.ID)
	if err != nil {
		errors.WriteJSON(w, err)
		return
	}

	logging.WithContext(ctx).Info("Tenant registered",
		logging.String("tenant_id", t.ID),
		logging.String("slug", t.Slug),
	)

	writeJSON(w, http.StatusCreated, sessionResponse{Token: token, UserID: user.ID, TenantID: t.ID})
}

// Login verifies a user's password and issues a session token. The tenant
// claim is left empty; the tenant is chosen per request by header or
// subdomain.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		errors.WriteJSON(w, errors.ValidationError("invalid request body"))
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	user, err := h.storage.GetUserByEmail(r.Context(), req.Email)
	if err == storage.ErrNotFound {
		errors.WriteJSON(w, errors.UnauthorizedError("invalid credentials"))
		return
	}
	if err != nil {
		errors.WriteJSON(w, errors.InternalError("user lookup failed", err))
		return
	}

	if bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(req.Password)) != nil {
		errors.WriteJSON(w, errors.UnauthorizedError("invalid credentials"))
		return
	}

	token, err := h.authenticator.IssueSessionToken(user.ID, "")
	if err != nil {
		errors.WriteJSON(w, err)
		return
	}

	writeJSON(w, http.StatusOK, sessionResponse{Token: token, UserID: user.ID})
}
