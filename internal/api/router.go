package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/gray-logic-influx/internal/auth"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		// WebSocket (auth via ticket, validated in handler)
		r.Get("/ws", s.handleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.With(s.requirePermission(auth.PermStatusRead)).Get("/status", s.handleStatus)
			r.With(s.requirePermission(auth.PermStatusRead)).Post("/auth/ws-ticket", s.handleWSTicket)

			r.With(s.requirePermission(auth.PermConfigRead)).Get("/audit", s.handleListAudit)

			r.Route("/rules", func(r chi.Router) {
				r.With(s.requirePermission(auth.PermConfigRead)).Get("/", s.handleListRules)
				r.With(s.requirePermission(auth.PermConfigRead)).Get("/{id}", s.handleGetRule)

				r.Group(func(r chi.Router) {
					r.Use(s.requirePermission(auth.PermConfigManage))
					r.Post("/", s.handleCreateRule)
					r.Put("/{id}", s.handleUpdateRule)
					r.Delete("/{id}", s.handleDeleteRule)
				})
			})

			r.Route("/imports", func(r chi.Router) {
				r.With(s.requirePermission(auth.PermConfigRead)).Get("/", s.handleListImports)
				r.With(s.requirePermission(auth.PermConfigRead)).Get("/{id}", s.handleGetImport)
				r.With(s.requirePermission(auth.PermImportTrigger)).Post("/{id}/poll", s.handlePollImport)

				r.Group(func(r chi.Router) {
					r.Use(s.requirePermission(auth.PermConfigManage))
					r.Post("/", s.handleCreateImport)
					r.Put("/{id}", s.handleUpdateImport)
					r.Delete("/{id}", s.handleDeleteImport)
				})
			})
		})
	})

	return r
}

// handleHealth returns the server health status. It answers 200 as long as
// the process serves requests; the bridge level is in the body.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"level":   s.status.State().Level,
		"version": s.version,
	})
}
