package app

import (
	"net/http"

	"github.com/gorilla/mux"

	"tenantgate/internal/middleware"
	"tenantgate/internal/ratelimit"
)

// Routes builds the full router with the middleware chain. Ordering matters:
// the ingress limiter runs before anything allocates per-request state, rate
// limiting runs after admission so composite keys include the resolved
// identity, and webhook routes skip admission entirely because the signature
// is their credential.
func (a *App) Routes() http.Handler {
	router := mux.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.Logging)
	router.Use(middleware.Ingress(float64(a.Config.IngressRPS), a.Config.IngressBurst))

	router.HandleFunc("/health", a.Handlers.Health).Methods("GET")

	// Webhook ingestion: raw body straight to the gateway, rate limited by IP
	webhooks := router.PathPrefix("/webhooks").Subrouter()
	webhooks.Use(ratelimit.Middleware(a.Limiter))
	webhooks.HandleFunc("/{provider:stripe|github|mailer}", a.Handlers.HandleWebhook).Methods("POST")

	// Unauthenticated account endpoints
	authAPI := router.PathPrefix("/api/auth").Subrouter()
	authAPI.Use(ratelimit.Middleware(a.Limiter))
	authAPI.HandleFunc("/register", a.Handlers.Register).Methods("POST")
	authAPI.HandleFunc("/login", a.Handlers.Login).Methods("POST")

	// Tenant-scoped API
	api := router.PathPrefix("/api").Subrouter()
	api.Use(middleware.Admission(a.Authenticator, a.Extractor, a.Resolver))
	api.Use(ratelimit.Middleware(a.Limiter))
	api.HandleFunc("/tenant", a.Handlers.GetTenant).Methods("GET")
	api.HandleFunc("/keys", a.Handlers.CreateKey).Methods("POST")
	api.HandleFunc("/keys/{id}", a.Handlers.RevokeKey).Methods("DELETE")

	return router
}
