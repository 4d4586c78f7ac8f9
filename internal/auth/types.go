package auth

import (
	"errors"
	"net/mail"
	"strings"
	"time"
)

// Role represents an authorisation tier in the system.
type Role string

const (
	// RoleViewer can read dashboards, alerts, views and the audit log.
	RoleViewer Role = "viewer"

	// RoleEditor can additionally manage services, alerts and saved views.
	RoleEditor Role = "editor"

	// RoleAdmin has full control, including users, secrets and settings.
	RoleAdmin Role = "admin"
)

// ValidRoles is the set of assignable roles, lowest first.
var ValidRoles = []Role{RoleViewer, RoleEditor, RoleAdmin}

// IsValidRole returns true if r is one of ValidRoles.
func IsValidRole(r Role) bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// maxFullNameLength bounds the display name.
const maxFullNameLength = 128

// NormaliseEmail lower-cases and trims an email address.
func NormaliseEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IsValidEmail checks that email is a bare address (no display name).
func IsValidEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

// IsValidFullName checks the display name is present and not too long.
func IsValidFullName(name string) bool {
	name = strings.TrimSpace(name)
	return name != "" && len(name) <= maxFullNameLength
}

// User represents an authenticated human account.
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	FullName     string    `json:"fullName"`
	PasswordHash string    `json:"-"` // never serialised
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Sentinel errors for auth operations.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailExists        = errors.New("email already registered")
	ErrRegistrationClosed = errors.New("registration is closed")
	ErrWeakPassword       = errors.New("password too short")
	ErrMalformedHash      = errors.New("malformed password hash")
	ErrTokenInvalid       = errors.New("invalid token")
	ErrForbidden          = errors.New("insufficient permissions")
	ErrSelfModification   = errors.New("cannot modify own account in this way")
)
