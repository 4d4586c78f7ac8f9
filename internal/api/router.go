package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/opsimate/opsimate-core/internal/auth"
)

// healthCheckTimeout bounds the database check in GET /health.
const healthCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, ErrCodeRouteNotMatched, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllow, "method not allowed")
	})

	r.Route("/api/v1", func(r chi.Router) {
		// Public endpoints
		r.Get("/health", s.handleHealth)
		r.Post("/users/register", s.handleRegister)
		r.Post("/users/login", s.handleLogin)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Route("/users", func(r chi.Router) {
				r.Use(s.requirePermission(auth.PermUserManage))
				r.Get("/", s.handleListUsers)
				r.Post("/", s.handleCreateUser)
				r.Patch("/role", s.handleUpdateUserRole)
				r.Delete("/{id}", s.handleDeleteUser)
			})

			r.With(s.requirePermission(auth.PermAuditRead)).Get("/audit", s.handleListAuditLogs)

			r.Route("/services", func(r chi.Router) {
				r.With(s.requirePermission(auth.PermDashboardRead)).Get("/", s.handleListServices)
				r.With(s.requirePermission(auth.PermDashboardRead)).Get("/{id}", s.handleGetService)

				r.Group(func(r chi.Router) {
					r.Use(s.requirePermission(auth.PermServiceManage))
					r.Post("/", s.handleCreateService)
					r.Put("/{id}/tags", s.handleSetServiceTags)
					r.Delete("/{id}", s.handleDeleteService)
				})
			})

			r.With(s.requirePermission(auth.PermDashboardRead)).Get("/tags", s.handleListTags)

			r.Route("/alerts", func(r chi.Router) {
				r.With(s.requirePermission(auth.PermDashboardRead)).Get("/", s.handleListAlerts)

				r.Group(func(r chi.Router) {
					r.Use(s.requirePermission(auth.PermAlertManage))
					r.Post("/", s.handleUpsertAlert)
					r.Patch("/{id}/dismiss", s.handleDismissAlert)
					r.Patch("/{id}/undismiss", s.handleUndismissAlert)
					r.Delete("/{id}", s.handleDeleteAlert)
				})
			})

			r.Route("/views", func(r chi.Router) {
				r.Group(func(r chi.Router) {
					r.Use(s.requirePermission(auth.PermDashboardRead))
					r.Get("/", s.handleListViews)
					r.Get("/active", s.handleGetActiveView)
					r.Post("/active", s.handleSetActiveView)
					r.Get("/{id}", s.handleGetView)
				})

				r.Group(func(r chi.Router) {
					r.Use(s.requirePermission(auth.PermViewManage))
					r.Post("/", s.handleSaveView)
					r.Delete("/{id}", s.handleDeleteView)
				})
			})

			r.Route("/secrets", func(r chi.Router) {
				r.Use(s.requirePermission(auth.PermSecretManage))
				r.Get("/", s.handleListSecrets)
				r.Post("/", s.handleCreateSecret)
				r.Delete("/{id}", s.handleDeleteSecret)
			})

			r.With(s.requirePermission(auth.PermSettingsManage)).Get("/settings", s.handleGetSettings)
		})
	})

	return r
}

// handleHealth reports server and database health. It returns 503 when
// the database does not answer.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	status, code := "ok", http.StatusOK
	dbStatus := "ok"
	if err := s.db.HealthCheck(ctx); err != nil {
		s.logger.Warn("database health check failed", "error", err)
		status, code = "degraded", http.StatusServiceUnavailable
		dbStatus = "unavailable"
	}

	writeJSON(w, code, map[string]any{
		"status":  status,
		"version": s.version,
		"database": map[string]any{
			"status": dbStatus,
			"type":   s.db.Kind().String(),
		},
	})
}

// handleGetSettings reports the effective runtime configuration. Secrets
// and credentials are never included.
func (s *Server) handleGetSettings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"version": s.version,
		"server": map[string]any{
			"host": s.cfg.Server.Host,
			"port": s.cfg.Server.Port,
		},
		"database": map[string]any{
			"type": s.db.Kind().String(),
		},
		"vm": map[string]any{
			"tryWithSudo": s.cfg.TryWithSudo(),
		},
		"security": map[string]any{
			"accessTokenTtlMinutes": int(s.tokenTTL / time.Minute),
		},
	})
}

// pathInt64 parses a numeric URL parameter. On failure it writes a 400
// response and returns false.
func pathInt64(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		writeBadRequest(w, "invalid "+name)
		return 0, false
	}
	return id, true
}
