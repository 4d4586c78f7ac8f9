// Package auth provides authentication and authorisation for OpsiMate Core.
//
// It implements a three-tier role model (viewer → editor → admin) with:
//   - Argon2id password hashing (OWASP 2025 recommendation)
//   - Stateless HS256 JWT access tokens
//   - Static role-permission mapping (compile-time, no database lookup)
//   - First-user bootstrap: the very first registered account becomes admin
package auth
