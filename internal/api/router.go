package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tapgate-io/tapgate/internal/auth"
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

	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Auth endpoints (no auth required)
		r.Post("/auth/login", s.handleLogin)

		// Reader WebSocket: authenticated with reader credentials by
		// the gateway, not with a JWT.
		r.Get("/readers/ws", s.handleReaderWS)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Get("/auth/me", s.handleMe)

			// Card endpoints. Listing and disablement are
			// owner-scoped inside the directory; the key endpoint is
			// gated on the key-issue permission.
			r.Route("/cards", func(r chi.Router) {
				r.Get("/", s.handleListCards)
				r.Patch("/{id}", s.handleUpdateCard)

				r.With(s.requirePermission(auth.PermKeyIssue)).
					Get("/{uid}/keys/{slot}", s.handleCardKey)
			})

			// Reader endpoints (provisioning, enrollment, attachments)
			r.Route("/readers", func(r chi.Router) {
				r.Use(s.requirePermission(auth.PermReaderManage))

				r.Get("/", s.handleListReaders)
				r.Post("/", s.handleCreateReader)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetReader)
					r.Patch("/", s.handleUpdateReader)
					r.Post("/enroll", s.handleEnrollReader)
					r.Post("/stop", s.handleStopReader)
					r.Post("/resources/{resourceID}", s.handleAttachResource)
					r.Delete("/resources/{resourceID}", s.handleDetachResource)
				})
			})

			// Resource endpoints
			r.Route("/resources", func(r chi.Router) {
				r.Get("/", s.handleListResources)

				r.With(s.requirePermission(auth.PermSystemConfig)).
					Post("/", s.handleCreateResource)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetResource)
					r.Get("/sessions", s.handleListSessions)
				})
			})

			// User endpoints
			r.Route("/users", func(r chi.Router) {
				r.Use(s.requirePermission(auth.PermUserManage))

				r.Get("/", s.handleListUsers)
				r.Post("/", s.handleCreateUser)
			})

			// Administrative action trail
			r.With(s.requirePermission(auth.PermSystemConfig)).
				Get("/audit", s.handleListAudit)
		})
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

// handleReaderWS delegates the reader WebSocket route to the gateway.
func (s *Server) handleReaderWS(w http.ResponseWriter, r *http.Request) {
	if s.gateway == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeInternal, "reader gateway not running")
		return
	}
	s.gateway.HandleWS(w, r)
}
