package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tapgate-io/tapgate/internal/audit"
	"github.com/tapgate-io/tapgate/internal/resource"
)

// createResourceRequest is the request body for POST /resources.
type createResourceRequest struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

// handleListResources lists all resources.
func (s *Server) handleListResources(w http.ResponseWriter, r *http.Request) {
	resources, err := s.resources.ListResources(r.Context())
	if err != nil {
		s.logger.Error("resource list failed", "error", err)
		writeInternalError(w, "failed to list resources")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"resources": resources,
		"count":     len(resources),
	})
}

// handleCreateResource registers a resource.
func (s *Server) handleCreateResource(w http.ResponseWriter, r *http.Request) {
	var req createResourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Name == "" {
		writeBadRequest(w, "name is required")
		return
	}

	res := &resource.Resource{
		ID:   req.ID,
		Name: req.Name,
	}
	if err := s.resources.CreateResource(r.Context(), res); err != nil {
		if errors.Is(err, resource.ErrResourceExists) {
			writeConflict(w, "resource ID already exists")
			return
		}
		s.logger.Error("resource create failed", "error", err)
		writeInternalError(w, "failed to create resource")
		return
	}

	s.recordAudit(r, audit.ActionCreate, audit.EntityResource, res.ID, map[string]any{
		"name": res.Name,
	})

	writeJSON(w, http.StatusCreated, res)
}

// handleGetResource returns one resource with its current usage state.
func (s *Server) handleGetResource(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	res, err := s.resources.GetResource(r.Context(), id)
	if err != nil {
		if errors.Is(err, resource.ErrResourceNotFound) {
			writeNotFound(w, "resource not found")
			return
		}
		s.logger.Error("resource lookup failed", "error", err)
		writeInternalError(w, "failed to load resource")
		return
	}

	inUse := true
	active, err := s.resources.GetActiveSession(r.Context(), id)
	if err != nil {
		if !errors.Is(err, resource.ErrNoActiveSession) {
			s.logger.Error("active session lookup failed", "error", err)
			writeInternalError(w, "failed to load usage state")
			return
		}
		inUse = false
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"resource":       res,
		"in_use":         inUse,
		"active_session": active,
	})
}

// handleListSessions returns a resource's usage sessions, newest first.
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := s.resources.GetResource(r.Context(), id); err != nil {
		if errors.Is(err, resource.ErrResourceNotFound) {
			writeNotFound(w, "resource not found")
			return
		}
		s.logger.Error("resource lookup failed", "error", err)
		writeInternalError(w, "failed to load resource")
		return
	}

	sessions, err := s.resources.ListSessions(r.Context(), id)
	if err != nil {
		s.logger.Error("session list failed", "error", err)
		writeInternalError(w, "failed to list sessions")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"count":    len(sessions),
	})
}
