package api

import (
	"net/http"

	"github.com/bcnelson/ipsync/internal/api/handler"
	"github.com/bcnelson/ipsync/internal/api/middleware"
	"github.com/bcnelson/ipsync/internal/metrics"
	"github.com/bcnelson/ipsync/internal/service"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// NewRouter creates a new HTTP router with all routes configured.
func NewRouter(
	syncService *service.SyncService,
	m *metrics.Metrics,
	apiToken string,
	logger zerolog.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Logging(logger))

	// Health check (no auth required)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", m.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(apiToken))

		syncHandler := handler.NewSyncHandler(syncService)
		r.Post("/sync", syncHandler.Sync)
		r.Post("/sync/trigger", syncHandler.Trigger)
		r.Get("/report", syncHandler.Report)
		r.Get("/pairings", syncHandler.ListPairings)
		r.Get("/pairings/{name}/plan", syncHandler.Plan)
	})

	return r
}
