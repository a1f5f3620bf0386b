package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/tapgate-io/tapgate/internal/audit"
	"github.com/tapgate-io/tapgate/internal/auth"
)

// minPasswordLength is the minimum accepted password length.
const minPasswordLength = 8

// createUserRequest is the request body for POST /users.
type createUserRequest struct {
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name,omitempty"`
	Password    string    `json:"password"`
	Role        auth.Role `json:"role"`
}

// handleListUsers lists all user accounts.
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.users.List(r.Context())
	if err != nil {
		s.logger.Error("user list failed", "error", err)
		writeInternalError(w, "failed to list users")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"users": users,
		"count": len(users),
	})
}

// handleCreateUser registers a new user account. Only the owner role
// may create other owner or admin accounts.
func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if !auth.IsValidUsername(req.Username) {
		writeBadRequest(w, "invalid username")
		return
	}
	if len(req.Password) < minPasswordLength {
		writeBadRequest(w, "password must be at least 8 characters")
		return
	}
	if req.Role == "" {
		req.Role = auth.RoleUser
	}
	if !auth.IsValidUserRole(req.Role) {
		writeBadRequest(w, "invalid role")
		return
	}
	if req.Role != auth.RoleUser && callerRole(r) != auth.RoleOwner {
		writeForbidden(w, "only the owner may create privileged accounts")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.logger.Error("password hashing failed", "error", err)
		writeInternalError(w, "failed to create user")
		return
	}

	user := &auth.User{
		Username:     req.Username,
		DisplayName:  req.DisplayName,
		PasswordHash: hash,
		Role:         req.Role,
		IsActive:     true,
	}
	if err := s.users.Create(r.Context(), user); err != nil {
		if errors.Is(err, auth.ErrUsernameExists) {
			writeConflict(w, "username already exists")
			return
		}
		s.logger.Error("user create failed", "error", err)
		writeInternalError(w, "failed to create user")
		return
	}

	s.recordAudit(r, audit.ActionCreate, audit.EntityUser, user.ID, map[string]any{
		"username": user.Username,
		"role":     string(user.Role),
	})

	writeJSON(w, http.StatusCreated, user)
}
