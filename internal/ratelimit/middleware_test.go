package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenantgate/internal/identity"
	"tenantgate/internal/storage"
	"tenantgate/internal/tenant"
)

func testLimiter(defaultMax int) *Limiter {
	classifier := NewClassifier(Class{Max: defaultMax, Window: time.Minute})
	classifier.AddRule("/api/auth/", []string{"POST"}, Class{Name: "auth", Max: 2, Window: time.Minute})
	classifier.AddRule("/webhooks/", nil, Class{Name: "webhook", Max: 600, Window: time.Minute})
	return NewLimiter(NewMemoryStore(), classifier, true)
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestClassifier_FirstMatchWins(t *testing.T) {
	classifier := NewClassifier(Class{Max: 100, Window: time.Minute})
	classifier.AddRule("/api/auth/", []string{"POST"}, Class{Name: "auth", Max: 10, Window: time.Minute})
	classifier.AddRule("/api/", nil, Class{Name: "api", Max: 50, Window: time.Minute})

	tests := []struct {
		method string
		path   string
		want   string
	}{
		{http.MethodPost, "/api/auth/login", "auth"},
		{http.MethodGet, "/api/auth/login", "api"}, // method mismatch falls through
		{http.MethodGet, "/api/tenant", "api"},
		{http.MethodGet, "/health", "default"},
	}

	for _, tt := range tests {
		r := httptest.NewRequest(tt.method, tt.path, nil)
		assert.Equal(t, tt.want, classifier.Classify(r).Name, "%s %s", tt.method, tt.path)
	}
}

func TestBuildKey(t *testing.T) {
	class := Class{Name: "default"}

	key := BuildKey(class, KeyParts{TenantID: "t1", UserID: "u1", RemoteIP: "10.0.0.1"})
	assert.Equal(t, "default|tenant:t1|user:u1|ip:10.0.0.1", key)

	key = BuildKey(class, KeyParts{TenantID: "t1", APIKeyID: "k1", RemoteIP: "10.0.0.1"})
	assert.Equal(t, "default|tenant:t1|key:k1|ip:10.0.0.1", key)

	// Anonymous requests fall back to the IP alone
	key = BuildKey(class, KeyParts{RemoteIP: "10.0.0.2"})
	assert.Equal(t, "default|ip:10.0.0.2", key)
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.0.2.7:4321"
	assert.Equal(t, "192.0.2.7", ClientIP(r))

	r.Header.Set("X-Real-IP", "198.51.100.1")
	assert.Equal(t, "198.51.100.1", ClientIP(r))

	r.Header.Set("X-Forwarded-For", "203.0.113.5, 198.51.100.1")
	assert.Equal(t, "203.0.113.5", ClientIP(r))
}

func TestMiddleware_SetsHeaders(t *testing.T) {
	handler := Middleware(testLimiter(5))(okHandler())

	r := httptest.NewRequest(http.MethodGet, "/api/tenant", nil)
	r.RemoteAddr = "192.0.2.1:1000"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "5", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "4", w.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "default", w.Header().Get("X-RateLimit-Type"))
	assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
}

func TestMiddleware_RejectsOverLimit(t *testing.T) {
	handler := Middleware(testLimiter(200))(okHandler())

	do := func() *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		r.RemoteAddr = "192.0.2.1:1000"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		return w
	}

	require.Equal(t, http.StatusOK, do().Code)
	require.Equal(t, http.StatusOK, do().Code)

	w := do()
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "rate_limited")
}

func TestMiddleware_KeysByTenantAndUser(t *testing.T) {
	handler := Middleware(testLimiter(1))(okHandler())

	do := func(tenantID, userID string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodGet, "/api/tenant", nil)
		r.RemoteAddr = "192.0.2.1:1000"
		ctx := tenant.WithTenant(r.Context(), &storage.Tenant{ID: tenantID})
		ctx = tenant.WithPrincipal(ctx, identity.SessionPrincipal{UserID: userID})
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r.WithContext(ctx))
		return w
	}

	require.Equal(t, http.StatusOK, do("t1", "u1").Code)
	assert.Equal(t, http.StatusTooManyRequests, do("t1", "u1").Code)

	// Same IP but a different user gets its own window
	assert.Equal(t, http.StatusOK, do("t1", "u2").Code)
	assert.Equal(t, http.StatusOK, do("t2", "u1").Code)
}

func TestMiddleware_FailOpenOnStoreError(t *testing.T) {
	classifier := NewClassifier(Class{Max: 1, Window: time.Minute})
	limiter := NewLimiter(failingStore{}, classifier, true)
	handler := Middleware(limiter)(okHandler())

	r := httptest.NewRequest(http.MethodGet, "/api/tenant", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLimiter_Disabled(t *testing.T) {
	classifier := NewClassifier(Class{Max: 1, Window: time.Minute})
	limiter := NewLimiter(NewMemoryStore(), classifier, false)

	for i := 0; i < 10; i++ {
		d, err := limiter.Admit(context.Background(), "k", classifier.defaultClass)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	}
}

type failingStore struct{}

func (failingStore) Admit(_ context.Context, _ string, _ int, _ time.Duration) (*Decision, error) {
	return nil, assert.AnError
}

func (failingStore) Close() error { return nil }
