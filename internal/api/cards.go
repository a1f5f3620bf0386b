package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tapgate-io/tapgate/internal/audit"
	"github.com/tapgate-io/tapgate/internal/auth"
	"github.com/tapgate-io/tapgate/internal/card"
	"github.com/tapgate-io/tapgate/internal/keys"
)

// updateCardRequest is the request body for PATCH /cards/{id}.
type updateCardRequest struct {
	IsDisabled *bool `json:"is_disabled"`
}

// handleListCards lists cards visible to the caller: their own, or
// every card when the caller's role bypasses owner scoping.
func (s *Server) handleListCards(w http.ResponseWriter, r *http.Request) {
	privileged := auth.IsPrivileged(callerRole(r))

	cards, err := s.cards.ListCards(r.Context(), callerID(r), privileged)
	if err != nil {
		s.logger.Error("card list failed", "error", err)
		writeInternalError(w, "failed to list cards")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"cards": cards,
		"count": len(cards),
	})
}

// handleUpdateCard toggles a card's disabled flag. Regular users may
// only touch cards they own; privileged roles may touch any card.
func (s *Server) handleUpdateCard(w http.ResponseWriter, r *http.Request) {
	var req updateCardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.IsDisabled == nil {
		writeBadRequest(w, "is_disabled is required")
		return
	}

	privileged := auth.IsPrivileged(callerRole(r))
	updated, err := s.cards.SetDisabled(r.Context(), chi.URLParam(r, "id"), callerID(r), privileged, *req.IsDisabled)
	if err != nil {
		switch {
		case errors.Is(err, card.ErrCardNotFound):
			writeNotFound(w, "card not found")
		case errors.Is(err, card.ErrForbidden):
			writeForbidden(w, "not your card")
		default:
			s.logger.Error("card update failed", "error", err)
			writeInternalError(w, "failed to update card")
		}
		return
	}

	s.recordAudit(r, audit.ActionUpdate, audit.EntityCard, updated.ID, map[string]any{
		"is_disabled": *req.IsDisabled,
	})

	writeJSON(w, http.StatusOK, updated)
}

// handleCardKey derives and returns the application key for one card
// and key slot, as lowercase hex. This is how keys are issued to
// readers for mutual authentication with the card; the route is gated
// on the key-issue permission and the key is never logged.
func (s *Server) handleCardKey(w http.ResponseWriter, r *http.Request) {
	uid, err := card.NormalizeUID(chi.URLParam(r, "uid"))
	if err != nil {
		writeBadRequest(w, "invalid card UID")
		return
	}

	slot, err := strconv.Atoi(chi.URLParam(r, "slot"))
	if err != nil {
		writeBadRequest(w, "slot must be an integer")
		return
	}

	key, err := s.keys.DeriveKey(uid, slot)
	if err != nil {
		switch {
		case errors.Is(err, keys.ErrInvalidSlot), errors.Is(err, keys.ErrInvalidUID):
			writeBadRequest(w, err.Error())
		default:
			s.logger.Error("key derivation failed", "card_uid", uid, "slot", slot)
			writeInternalError(w, "key derivation failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"card_uid": uid,
		"slot":     slot,
		"key":      key.Hex(),
	})
}
