package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)
		r.Get("/status", s.handleStatus)

		// Candidate catalog and controller diagnostics
		r.Get("/candidates", s.handleListCandidates)
		r.Get("/controllers", s.handleControllerStats)

		// Package install notifications (also arrive via MQTT)
		r.Post("/packages/events", s.handlePackageEvent)

		// Slot-scoped operations
		r.Route("/slots/{slot}", func(r chi.Router) {
			r.Put("/override", s.handleSetOverride)
			r.Delete("/override", s.handleClearOverride)
			r.Put("/enabled", s.handleSetSlotEnabled)
			r.Get("/features/{feature}", s.handleGetFeature)
			r.Get("/features/{feature}/registration", s.handleGetRegistration)
			r.Get("/features/{feature}/config", s.handleGetConfig)
			r.Put("/features/{feature}/config", s.handleSetConfig)
		})

		// WebSocket event stream
		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
