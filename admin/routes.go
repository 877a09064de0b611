package admin

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/maxpert/regnode/registry"
	"github.com/maxpert/regnode/telemetry"
	"github.com/rs/zerolog/log"
)

// NewRouter builds the node's HTTP router
func NewRouter(handlers *Handlers) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/admin", func(r chi.Router) {
		r.Get("/health", handlers.handleHealth)
		r.With(AuthMiddleware).Get("/lifecycle", handlers.handleLifecycle)
	})

	r.Route("/v1", func(r chi.Router) {
		r.Get("/apps", handlers.handleListApps)
		r.Get("/apps/{app}", handlers.handleGetApp)
		r.With(AuthMiddleware).Post("/apps", handlers.handleRegister)
		r.With(AuthMiddleware).Delete("/apps/{app}/{instanceID}", handlers.handleCancel)

		// registry.PeerInstancesPath
		r.Get("/peer/instances", handlers.handlePeerSnapshot)
	})

	if metrics := telemetry.GetMetricsHandler(); metrics != nil {
		r.Handle("/metrics", metrics)
	}

	log.Info().Msg("HTTP endpoints enabled at /admin/*, /v1/apps and " + registry.PeerInstancesPath)
	return r
}
