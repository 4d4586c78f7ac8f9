package api

import (
	"errors"
	"net/http"

	"github.com/opsimate/opsimate-core/internal/audit"
	"github.com/opsimate/opsimate-core/internal/auth"
)

// ─── Request/Response Types ────────────────────────────────────────

type createUserRequest struct {
	Email    string    `json:"email"`
	FullName string    `json:"fullName"`
	Password string    `json:"password"`
	Role     auth.Role `json:"role"`
}

type updateRoleRequest struct {
	Email   string    `json:"email"`
	NewRole auth.Role `json:"newRole"`
}

// ─── Handlers ──────────────────────────────────────────────────────

// handleListUsers returns all user accounts.
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.userRepo.List(r.Context())
	if err != nil {
		s.logger.Error("list users failed", "error", err)
		writeInternalError(w, "failed to list users")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"users": users,
		"count": len(users),
	})
}

// handleCreateUser creates a user account with the requested role.
func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if req.Role == "" {
		req.Role = auth.RoleViewer
	}
	if !auth.IsValidRole(req.Role) {
		writeValidationError(w, "invalid role: must be viewer, editor, or admin")
		return
	}

	user := s.newUser(w, req.Email, req.FullName, req.Password)
	if user == nil {
		return
	}
	user.Role = req.Role

	if err := s.userRepo.Create(r.Context(), user); err != nil {
		if errors.Is(err, auth.ErrEmailExists) {
			writeConflict(w, "email already registered")
			return
		}
		s.logger.Error("create user failed", "error", err)
		writeInternalError(w, "failed to create user")
		return
	}

	claims := claimsFromContext(r.Context())
	s.logger.Info("user created", "user_id", user.ID, "role", user.Role, "created_by", claims.Subject)
	s.auditLog(r, audit.ActionCreate, audit.ResourceUser, idString(user.ID), user.Email, map[string]any{
		"role": user.Role,
	})

	writeJSON(w, http.StatusCreated, user)
}

// handleUpdateUserRole changes another user's role. Callers cannot change
// their own role.
func (s *Server) handleUpdateUserRole(w http.ResponseWriter, r *http.Request) {
	var req updateRoleRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	email := auth.NormaliseEmail(req.Email)
	if email == "" {
		writeValidationError(w, "email is required")
		return
	}
	if !auth.IsValidRole(req.NewRole) {
		writeValidationError(w, "invalid role: must be viewer, editor, or admin")
		return
	}

	claims := claimsFromContext(r.Context())
	if auth.NormaliseEmail(claims.Email) == email {
		writeForbidden(w, "cannot change your own role")
		return
	}

	if err := s.userRepo.UpdateRole(r.Context(), email, req.NewRole); err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			writeNotFound(w, "user not found")
			return
		}
		s.logger.Error("update user role failed", "error", err)
		writeInternalError(w, "failed to update role")
		return
	}

	user, err := s.userRepo.GetByEmail(r.Context(), email)
	if err != nil {
		s.logger.Error("reload user failed", "error", err)
		writeInternalError(w, "failed to update role")
		return
	}

	s.logger.Info("user role updated", "user_id", user.ID, "role", user.Role, "updated_by", claims.Subject)
	s.auditLog(r, audit.ActionUpdate, audit.ResourceUser, idString(user.ID), user.Email, map[string]any{
		"role": user.Role,
	})

	writeJSON(w, http.StatusOK, user)
}

// handleDeleteUser deletes a user account. Callers cannot delete themselves.
func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt64(w, r, "id")
	if !ok {
		return
	}

	claims := claimsFromContext(r.Context())
	if claims.UserID() == id {
		writeForbidden(w, "cannot delete your own account")
		return
	}

	user, err := s.userRepo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			writeNotFound(w, "user not found")
			return
		}
		s.logger.Error("get user failed", "error", err)
		writeInternalError(w, "failed to delete user")
		return
	}

	if err := s.userRepo.Delete(r.Context(), id); err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			writeNotFound(w, "user not found")
			return
		}
		s.logger.Error("delete user failed", "error", err)
		writeInternalError(w, "failed to delete user")
		return
	}

	s.logger.Info("user deleted", "user_id", id, "deleted_by", claims.Subject)
	s.auditLog(r, audit.ActionDelete, audit.ResourceUser, idString(id), user.Email, nil)

	w.WriteHeader(http.StatusNoContent)
}
