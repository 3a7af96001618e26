package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenantgate/internal/auth"
	"tenantgate/internal/common/logging"
	"tenantgate/internal/identity"
	"tenantgate/internal/storage"
	"tenantgate/internal/tenant"
)

const testJWTSecret = "0123456789abcdef0123456789abcdef"

type admissionFixture struct {
	store         *storage.MemoryStorage
	authenticator *auth.Authenticator
	handler       http.Handler
	seenTenant    *storage.Tenant
}

func newAdmissionFixture(t *testing.T) *admissionFixture {
	t.Helper()
	ctx := context.Background()

	store := storage.NewMemoryStorage()
	require.NoError(t, store.CreateTenant(ctx, &storage.Tenant{
		ID: "11111111-1111-4111-8111-111111111111", Slug: "acme", Name: "Acme", Status: storage.TenantActive,
	}))
	require.NoError(t, store.CreateTenant(ctx, &storage.Tenant{
		ID: "22222222-2222-4222-8222-222222222222", Slug: "frozen", Name: "Frozen", Status: storage.TenantSuspended,
	}))
	require.NoError(t, store.CreateUser(ctx, &storage.User{ID: "user-1", Email: "a@acme.test"}))
	require.NoError(t, store.AddMembership(ctx, &storage.Membership{UserID: "user-1", TenantID: "11111111-1111-4111-8111-111111111111", Role: "admin"}))

	extractor := identity.NewExtractor(testJWTSecret)
	authenticator := auth.New(store, extractor, testJWTSecret, "")
	resolver := tenant.NewResolver(store, []string{"/health", "/api/auth/"})

	f := &admissionFixture{store: store, authenticator: authenticator}
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if resolved, ok := tenant.FromContext(r.Context()); ok {
			f.seenTenant = resolved
		}
		w.WriteHeader(http.StatusOK)
	})
	f.handler = Admission(authenticator, extractor, resolver)(inner)
	return f
}

func (f *admissionFixture) do(t *testing.T, configure func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(http.MethodGet, "/api/tenant", nil)
	if configure != nil {
		configure(r)
	}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, r)
	return w
}

func TestAdmission_SessionWithMembership(t *testing.T) {
	f := newAdmissionFixture(t)
	token, err := f.authenticator.IssueSessionToken("user-1", "")
	require.NoError(t, err)

	w := f.do(t, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
		r.Header.Set(identity.TenantHeader, "acme")
	})

	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, f.seenTenant)
	assert.Equal(t, "acme", f.seenTenant.Slug)
}

func TestAdmission_NoCredential(t *testing.T) {
	f := newAdmissionFixture(t)

	w := f.do(t, func(r *http.Request) {
		r.Header.Set(identity.TenantHeader, "acme")
	})

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdmission_MissingTenantIdentifier(t *testing.T) {
	f := newAdmissionFixture(t)
	token, err := f.authenticator.IssueSessionToken("user-1", "")
	require.NoError(t, err)

	w := f.do(t, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
		r.Host = "localhost:8080"
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdmission_UnknownTenant(t *testing.T) {
	f := newAdmissionFixture(t)
	token, err := f.authenticator.IssueSessionToken("user-1", "")
	require.NoError(t, err)

	w := f.do(t, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
		r.Header.Set(identity.TenantHeader, "ghost")
	})

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdmission_SuspendedTenant(t *testing.T) {
	f := newAdmissionFixture(t)
	token, err := f.authenticator.IssueSessionToken("user-1", "")
	require.NoError(t, err)

	w := f.do(t, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
		r.Header.Set(identity.TenantHeader, "frozen")
	})

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAdmission_NoMembership(t *testing.T) {
	f := newAdmissionFixture(t)
	token, err := f.authenticator.IssueSessionToken("user-2", "")
	require.NoError(t, err)

	w := f.do(t, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
		r.Header.Set(identity.TenantHeader, "acme")
	})

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAdmission_APIKeyBoundToOtherTenant(t *testing.T) {
	f := newAdmissionFixture(t)
	ctx := context.Background()

	other := "22222222-2222-4222-8222-222222222222"
	record, plaintext, err := auth.MintAPIKey(&other, "ci", []string{"*"}, nil)
	require.NoError(t, err)
	require.NoError(t, f.store.CreateAPIKey(ctx, record))

	w := f.do(t, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+plaintext)
		r.Header.Set(identity.TenantHeader, "acme")
	})

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAdmission_BypassPath(t *testing.T) {
	f := newAdmissionFixture(t)

	r := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, f.seenTenant)
}

func TestRequestID(t *testing.T) {
	var captured string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = r.Context().Value(logging.ContextKeyRequestID).(string)
	})
	handler := RequestID(inner)

	t.Run("generated when absent", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.NotEmpty(t, captured)
		assert.Equal(t, captured, w.Header().Get(RequestIDHeader))
	})

	t.Run("upstream id honored", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set(RequestIDHeader, "req-42")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		assert.Equal(t, "req-42", captured)
		assert.Equal(t, "req-42", w.Header().Get(RequestIDHeader))
	})
}

func TestIngress(t *testing.T) {
	handler := Ingress(1, 2)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 4)
	for i := 0; i < 4; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		codes = append(codes, w.Code)
	}

	// Burst of 2 admitted, the rest shed
	assert.Equal(t, http.StatusOK, codes[0])
	assert.Equal(t, http.StatusOK, codes[1])
	assert.Equal(t, http.StatusTooManyRequests, codes[2])
	assert.Equal(t, http.StatusTooManyRequests, codes[3])
}
