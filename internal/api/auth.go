package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/opsimate/opsimate-core/internal/audit"
	"github.com/opsimate/opsimate-core/internal/auth"
)

// registerRequest is the request body for POST /users/register.
type registerRequest struct {
	Email    string `json:"email"`
	FullName string `json:"fullName"`
	Password string `json:"password"`
}

// loginRequest is the request body for POST /users/login.
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// authResponse is returned by register and login.
type authResponse struct {
	Token     string     `json:"token"`
	TokenType string     `json:"tokenType"`
	ExpiresIn int        `json:"expiresIn"`
	User      *auth.User `json:"user"`
}

// handleRegister creates the first account, which always becomes admin.
// Once any user exists registration is closed.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user := s.newUser(w, req.Email, req.FullName, req.Password)
	if user == nil {
		return
	}

	if err := s.userRepo.CreateFirstAdmin(r.Context(), user); err != nil {
		switch {
		case errors.Is(err, auth.ErrRegistrationClosed):
			writeForbidden(w, "registration is closed")
		case errors.Is(err, auth.ErrEmailExists):
			writeConflict(w, "email already registered")
		default:
			s.logger.Error("register failed", "error", err)
			writeInternalError(w, "failed to register")
		}
		return
	}

	s.logger.Info("first admin registered", "user_id", user.ID, "email", user.Email)
	s.auditLog(r, audit.ActionCreate, audit.ResourceUser, idString(user.ID), user.Email, map[string]any{
		"role":   user.Role,
		"source": "register",
	})

	s.writeToken(w, http.StatusCreated, user)
}

// handleLogin authenticates a user and returns an access token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeBadRequest(w, "email and password are required")
		return
	}

	user, err := auth.Authenticate(r.Context(), s.userRepo, auth.NormaliseEmail(req.Email), req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeUnauthorized(w, "invalid credentials")
			return
		}
		s.logger.Error("login failed", "error", err)
		writeInternalError(w, "authentication failed")
		return
	}

	s.logger.Info("user logged in", "user_id", user.ID)
	s.writeToken(w, http.StatusOK, user)
}

func (s *Server) writeToken(w http.ResponseWriter, status int, user *auth.User) {
	token, err := auth.GenerateAccessToken(user, s.jwtSecret, s.tokenTTL)
	if err != nil {
		s.logger.Error("token generation failed", "error", err)
		writeInternalError(w, "failed to generate token")
		return
	}

	writeJSON(w, status, authResponse{
		Token:     token,
		TokenType: "Bearer",
		ExpiresIn: int(s.tokenTTL.Seconds()),
		User:      user,
	})
}

// newUser validates account fields and hashes the password. On failure
// it writes the error response and returns nil.
func (s *Server) newUser(w http.ResponseWriter, email, fullName, password string) *auth.User {
	email = auth.NormaliseEmail(email)
	if !auth.IsValidEmail(email) {
		writeValidationError(w, "a valid email is required")
		return nil
	}
	if !auth.IsValidFullName(fullName) {
		writeValidationError(w, "fullName is required")
		return nil
	}
	if err := auth.ValidatePassword(password); err != nil {
		writeValidationError(w, err.Error())
		return nil
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		s.logger.Error("hash password failed", "error", err)
		writeInternalError(w, "failed to create user")
		return nil
	}

	return &auth.User{
		Email:        email,
		FullName:     strings.TrimSpace(fullName),
		PasswordHash: hash,
	}
}
