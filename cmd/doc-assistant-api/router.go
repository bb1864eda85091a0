package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/spherical/doc-assistant/cmd/doc-assistant-api/handlers"
	"github.com/spherical/doc-assistant/cmd/doc-assistant-api/middleware"
	"github.com/spherical/doc-assistant/cmd/doc-assistant-api/web"
	"github.com/spherical/doc-assistant/internal/config"
	"github.com/spherical/doc-assistant/internal/observability"
	"github.com/spherical/doc-assistant/internal/session"
	"github.com/spherical/doc-assistant/pkg/docassist"
)

// NewRouter creates the main API router with all routes configured.
func NewRouter(logger *observability.Logger, cfg *config.Config, store *session.Store, assistant *docassist.Assistant) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.Server.AllowedOrigins))

	healthHandler := handlers.NewHealthHandler(cfg.Observability.ServiceName, store)
	sessionHandler := handlers.NewSessionHandler(logger, store, assistant, cfg.Server.MaxUploadBytes)

	r.Get("/", web.Index)
	r.Get("/health", healthHandler.Health)

	r.Route("/api/v1/sessions", func(r chi.Router) {
		r.Post("/", sessionHandler.Create)

		r.Route("/{sessionId}", func(r chi.Router) {
			r.Get("/", sessionHandler.Get)
			r.Delete("/", sessionHandler.Delete)
			r.Put("/document", sessionHandler.UploadDocument)
			r.Get("/analysis", sessionHandler.GetAnalysis)
			r.Post("/clear", sessionHandler.Clear)

			// Streamed responses; no request timeout
			r.Post("/analyze", sessionHandler.Analyze)
			r.Post("/messages", sessionHandler.PostMessage)
		})
	})

	return r
}
