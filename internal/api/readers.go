package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tapgate-io/tapgate/internal/audit"
	"github.com/tapgate-io/tapgate/internal/auth"
	"github.com/tapgate-io/tapgate/internal/reader"
	"github.com/tapgate-io/tapgate/internal/resource"
)

// createReaderRequest is the request body for POST /readers.
type createReaderRequest struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

// updateReaderRequest is the request body for PATCH /readers/{id}.
type updateReaderRequest struct {
	IsActive *bool `json:"is_active"`
}

// enrollRequest is the request body for POST /readers/{id}/enroll.
type enrollRequest struct {
	OwnerUserID string `json:"owner_user_id"`
	Label       string `json:"label,omitempty"`
}

// readerView is a reader plus its live connection status.
type readerView struct {
	reader.Reader
	Connected bool `json:"connected"`
}

// handleListReaders lists all provisioned readers with their live
// connection status.
func (s *Server) handleListReaders(w http.ResponseWriter, r *http.Request) {
	readers, err := s.readers.List(r.Context())
	if err != nil {
		s.logger.Error("reader list failed", "error", err)
		writeInternalError(w, "failed to list readers")
		return
	}

	views := make([]readerView, len(readers))
	for i, rd := range readers {
		views[i] = readerView{Reader: rd, Connected: s.connected(rd.ID)}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"readers": views,
		"count":   len(views),
	})
}

// handleCreateReader provisions a new reader. The response carries the
// provisioning token exactly once; only its hash is stored.
func (s *Server) handleCreateReader(w http.ResponseWriter, r *http.Request) {
	var req createReaderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Name == "" {
		writeBadRequest(w, "name is required")
		return
	}

	token, hash, err := reader.NewProvisioningToken()
	if err != nil {
		s.logger.Error("token generation failed", "error", err)
		writeInternalError(w, "failed to generate provisioning token")
		return
	}

	rd := &reader.Reader{
		ID:        req.ID,
		Name:      req.Name,
		TokenHash: hash,
		IsActive:  true,
	}
	if err := s.readers.Create(r.Context(), rd); err != nil {
		if errors.Is(err, reader.ErrReaderExists) {
			writeConflict(w, "reader ID already exists")
			return
		}
		s.logger.Error("reader create failed", "error", err)
		writeInternalError(w, "failed to create reader")
		return
	}

	s.recordAudit(r, audit.ActionCreate, audit.EntityReader, rd.ID, map[string]any{
		"name": rd.Name,
	})

	writeJSON(w, http.StatusCreated, map[string]any{
		"reader": rd,
		"token":  token,
	})
}

// handleGetReader returns one reader with its attached resources and
// connection status.
func (s *Server) handleGetReader(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rd, err := s.readers.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, reader.ErrReaderNotFound) {
			writeNotFound(w, "reader not found")
			return
		}
		s.logger.Error("reader lookup failed", "error", err)
		writeInternalError(w, "failed to load reader")
		return
	}

	attached, err := s.resources.GetAttachedResources(r.Context(), id)
	if err != nil {
		s.logger.Error("attachment lookup failed", "reader_id", id, "error", err)
		writeInternalError(w, "failed to load attachments")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"reader":    readerView{Reader: *rd, Connected: s.connected(id)},
		"resources": attached,
	})
}

// handleUpdateReader enables or disables a reader. A disabled reader
// cannot authenticate; its live connection, if any, keeps running
// until it drops.
func (s *Server) handleUpdateReader(w http.ResponseWriter, r *http.Request) {
	var req updateReaderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.IsActive == nil {
		writeBadRequest(w, "is_active is required")
		return
	}

	id := chi.URLParam(r, "id")
	if err := s.readers.SetActive(r.Context(), id, *req.IsActive); err != nil {
		if errors.Is(err, reader.ErrReaderNotFound) {
			writeNotFound(w, "reader not found")
			return
		}
		s.logger.Error("reader update failed", "error", err)
		writeInternalError(w, "failed to update reader")
		return
	}

	rd, err := s.readers.GetByID(r.Context(), id)
	if err != nil {
		s.logger.Error("reader reload failed", "error", err)
		writeInternalError(w, "failed to load reader")
		return
	}

	s.recordAudit(r, audit.ActionUpdate, audit.EntityReader, id, map[string]any{
		"is_active": *req.IsActive,
	})

	writeJSON(w, http.StatusOK, readerView{Reader: *rd, Connected: s.connected(id)})
}

// handleEnrollReader arms one-shot enrollment on a connected reader:
// the next card tapped there is registered to the given user.
func (s *Server) handleEnrollReader(w http.ResponseWriter, r *http.Request) {
	var req enrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.OwnerUserID == "" {
		writeBadRequest(w, "owner_user_id is required")
		return
	}

	if _, err := s.users.GetByID(r.Context(), req.OwnerUserID); err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			writeBadRequest(w, "owner_user_id does not exist")
			return
		}
		s.logger.Error("user lookup failed", "error", err)
		writeInternalError(w, "failed to verify owner")
		return
	}

	if s.gateway == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeInternal, "reader gateway not running")
		return
	}
	readerID := chi.URLParam(r, "id")
	if err := s.gateway.EnrollNext(readerID, req.OwnerUserID, req.Label); err != nil {
		if errors.Is(err, reader.ErrNoEnrollment) {
			writeConflict(w, "reader is not connected")
			return
		}
		s.logger.Error("enrollment arming failed", "error", err)
		writeInternalError(w, "failed to arm enrollment")
		return
	}

	s.recordAudit(r, audit.ActionEnroll, audit.EntityReader, readerID, map[string]any{
		"owner_user_id": req.OwnerUserID,
	})

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status": "armed",
	})
}

// handleStopReader ends the active sessions on a connected reader as
// if the card had been removed.
func (s *Server) handleStopReader(w http.ResponseWriter, r *http.Request) {
	if s.gateway == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeInternal, "reader gateway not running")
		return
	}

	readerID := chi.URLParam(r, "id")
	if err := s.gateway.StopSession(readerID); err != nil {
		if errors.Is(err, reader.ErrReaderNotFound) {
			writeConflict(w, "reader is not connected")
			return
		}
		s.logger.Error("stop command failed", "error", err)
		writeInternalError(w, "failed to stop sessions")
		return
	}

	s.recordAudit(r, audit.ActionStop, audit.EntityReader, readerID, nil)

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status": "stopping",
	})
}

// handleAttachResource attaches a resource to a reader. Attaching an
// already-attached pair is a no-op.
func (s *Server) handleAttachResource(w http.ResponseWriter, r *http.Request) {
	readerID := chi.URLParam(r, "id")
	resourceID := chi.URLParam(r, "resourceID")

	if _, err := s.readers.GetByID(r.Context(), readerID); err != nil {
		if errors.Is(err, reader.ErrReaderNotFound) {
			writeNotFound(w, "reader not found")
			return
		}
		s.logger.Error("reader lookup failed", "error", err)
		writeInternalError(w, "failed to load reader")
		return
	}
	if _, err := s.resources.GetResource(r.Context(), resourceID); err != nil {
		if errors.Is(err, resource.ErrResourceNotFound) {
			writeNotFound(w, "resource not found")
			return
		}
		s.logger.Error("resource lookup failed", "error", err)
		writeInternalError(w, "failed to load resource")
		return
	}

	if err := s.resources.Attach(r.Context(), readerID, resourceID); err != nil {
		s.logger.Error("attach failed", "error", err)
		writeInternalError(w, "failed to attach resource")
		return
	}

	s.recordAudit(r, audit.ActionAttach, audit.EntityReader, readerID, map[string]any{
		"resource_id": resourceID,
	})

	writeJSON(w, http.StatusNoContent, nil)
}

// handleDetachResource detaches a resource from a reader.
func (s *Server) handleDetachResource(w http.ResponseWriter, r *http.Request) {
	readerID := chi.URLParam(r, "id")
	resourceID := chi.URLParam(r, "resourceID")

	if err := s.resources.Detach(r.Context(), readerID, resourceID); err != nil {
		if errors.Is(err, resource.ErrNotAttached) {
			writeNotFound(w, "resource is not attached to this reader")
			return
		}
		s.logger.Error("detach failed", "error", err)
		writeInternalError(w, "failed to detach resource")
		return
	}

	s.recordAudit(r, audit.ActionDetach, audit.EntityReader, readerID, map[string]any{
		"resource_id": resourceID,
	})

	writeJSON(w, http.StatusNoContent, nil)
}

// connected reports a reader's live connection status, false when the
// gateway is not running.
func (s *Server) connected(readerID string) bool {
	return s.gateway != nil && s.gateway.Connected(readerID)
}
