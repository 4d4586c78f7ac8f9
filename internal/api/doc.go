// Package api implements the HTTP REST API for OpsiMate Core.
//
// This package provides:
//   - Account endpoints: first-admin registration, login, user management
//   - Dashboard endpoints: services with attached alerts, alerts, saved views
//   - Administration endpoints: audit trail, secrets, settings
//   - Middleware stack (request ID, logging, recovery, CORS, JWT, RBAC)
//
// # Security
//
// Every route under /api/v1 except health, register and login requires a
// Bearer access token. Authorisation is permission based; see
// auth.HasPermission for the role mapping.
//
// # Auditing
//
// Mutating handlers enqueue an audit entry on a buffered channel. A single
// goroutine writes entries in order. When the channel is full the entry is
// dropped and a warning is logged; the request is never blocked.
package api
