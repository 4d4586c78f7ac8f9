package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/opsimate/opsimate-core/internal/alert"
	"github.com/opsimate/opsimate-core/internal/audit"
)

// handleListAlerts returns all alerts, newest first.
func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := s.alertRepo.List(r.Context())
	if err != nil {
		s.logger.Error("list alerts failed", "error", err)
		writeInternalError(w, "failed to list alerts")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// handleUpsertAlert ingests an alert. An existing alert with the same ID
// is refreshed and keeps its dismissed flag.
func (s *Server) handleUpsertAlert(w http.ResponseWriter, r *http.Request) {
	var a alert.Alert
	if !decodeJSON(w, r, &a) {
		return
	}

	if err := s.alertRepo.Upsert(r.Context(), &a); err != nil {
		if errors.Is(err, alert.ErrInvalid) {
			writeValidationError(w, err.Error())
			return
		}
		s.logger.Error("upsert alert failed", "error", err)
		writeInternalError(w, "failed to store alert")
		return
	}

	stored, err := s.alertRepo.Get(r.Context(), a.ID)
	if err != nil {
		s.logger.Error("reload alert failed", "error", err)
		writeInternalError(w, "failed to store alert")
		return
	}

	writeJSON(w, http.StatusOK, stored)
}

func (s *Server) handleDismissAlert(w http.ResponseWriter, r *http.Request) {
	s.setAlertDismissed(w, r, true)
}

func (s *Server) handleUndismissAlert(w http.ResponseWriter, r *http.Request) {
	s.setAlertDismissed(w, r, false)
}

func (s *Server) setAlertDismissed(w http.ResponseWriter, r *http.Request, dismissed bool) {
	id := chi.URLParam(r, "id")

	if err := s.alertRepo.SetDismissed(r.Context(), id, dismissed); err != nil {
		if errors.Is(err, alert.ErrNotFound) {
			writeNotFound(w, "alert not found")
			return
		}
		s.logger.Error("update alert failed", "error", err)
		writeInternalError(w, "failed to update alert")
		return
	}

	a, err := s.alertRepo.Get(r.Context(), id)
	if err != nil {
		s.logger.Error("reload alert failed", "error", err)
		writeInternalError(w, "failed to update alert")
		return
	}

	s.auditLog(r, audit.ActionUpdate, audit.ResourceAlert, a.ID, a.AlertName, map[string]any{
		"isDismissed": dismissed,
	})

	writeJSON(w, http.StatusOK, a)
}

// handleDeleteAlert removes an alert.
func (s *Server) handleDeleteAlert(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.alertRepo.Delete(r.Context(), id); err != nil {
		if errors.Is(err, alert.ErrNotFound) {
			writeNotFound(w, "alert not found")
			return
		}
		s.logger.Error("delete alert failed", "error", err)
		writeInternalError(w, "failed to delete alert")
		return
	}

	s.auditLog(r, audit.ActionDelete, audit.ResourceAlert, id, "", nil)
	w.WriteHeader(http.StatusNoContent)
}
