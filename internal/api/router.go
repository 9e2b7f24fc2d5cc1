package api

import (
	"net/http"

	mw "github.com/axwise/gateway/internal/api/middleware"
	"github.com/axwise/gateway/internal/api/response"
	"github.com/axwise/gateway/internal/forwarder"
	"github.com/go-chi/chi/v5"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	HealthHandler http.HandlerFunc

	TriggerAnalysis        http.HandlerFunc
	TriggerPersonaPipeline http.HandlerFunc
	JobStatusHandler       http.HandlerFunc
	ListJobsHandler        http.HandlerFunc

	// Forward-only proxies to the backend.
	StartSimulation http.HandlerFunc
	ListThemes      http.HandlerFunc
	ListPersonas    http.HandlerFunc
	ResearchChat    http.HandlerFunc

	CreateKeyHandler http.HandlerFunc
	ListKeysHandler  http.HandlerFunc
	RevokeKeyHandler http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// CORS preflight never carries credentials, so it is answered before auth.
	r.MethodFunc(http.MethodOptions, "/api/v1/*", forwarder.Preflight())

	// Public health check
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Post("/api/v1/analyses", orNotImplemented(deps.TriggerAnalysis))
		r.Post("/api/v1/persona-pipelines", orNotImplemented(deps.TriggerPersonaPipeline))
		r.Get("/api/v1/jobs", orNotImplemented(deps.ListJobsHandler))
		r.Get("/api/v1/jobs/{jobID}/status", orNotImplemented(deps.JobStatusHandler))

		r.Post("/api/v1/simulations", orNotImplemented(deps.StartSimulation))
		r.Get("/api/v1/themes", orNotImplemented(deps.ListThemes))
		r.Get("/api/v1/personas", orNotImplemented(deps.ListPersonas))
		r.Post("/api/v1/research/chat", orNotImplemented(deps.ResearchChat))

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope("admin"))

			r.Post("/api/v1/admin/keys", orNotImplemented(deps.CreateKeyHandler))
			r.Get("/api/v1/admin/keys", orNotImplemented(deps.ListKeysHandler))
			r.Delete("/api/v1/admin/keys/{keyID}", orNotImplemented(deps.RevokeKeyHandler))
		})
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
