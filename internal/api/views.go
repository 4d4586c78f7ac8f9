package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/opsimate/opsimate-core/internal/audit"
	"github.com/opsimate/opsimate-core/internal/view"
)

type activeViewRequest struct {
	ViewID string `json:"viewId"`
}

// handleListViews returns all saved views.
func (s *Server) handleListViews(w http.ResponseWriter, r *http.Request) {
	views, err := s.viewRepo.List(r.Context())
	if err != nil {
		s.logger.Error("list views failed", "error", err)
		writeInternalError(w, "failed to list views")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"views": views,
		"count": len(views),
	})
}

// handleGetView returns one saved view.
func (s *Server) handleGetView(w http.ResponseWriter, r *http.Request) {
	v, err := s.viewRepo.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, view.ErrNotFound) {
			writeNotFound(w, "view not found")
			return
		}
		s.logger.Error("get view failed", "error", err)
		writeInternalError(w, "failed to get view")
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// handleSaveView creates a view, or replaces the view with the same ID.
func (s *Server) handleSaveView(w http.ResponseWriter, r *http.Request) {
	var v view.View
	if !decodeJSON(w, r, &v) {
		return
	}

	action := audit.ActionCreate
	if v.ID != "" {
		if _, err := s.viewRepo.Get(r.Context(), v.ID); err == nil {
			action = audit.ActionUpdate
		}
	}

	if err := s.viewRepo.Save(r.Context(), &v); err != nil {
		if errors.Is(err, view.ErrInvalid) {
			writeValidationError(w, err.Error())
			return
		}
		s.logger.Error("save view failed", "error", err)
		writeInternalError(w, "failed to save view")
		return
	}

	s.auditLog(r, action, audit.ResourceView, v.ID, v.Name, nil)
	writeJSON(w, http.StatusOK, v)
}

// handleDeleteView deletes a view. Deleting the active view clears it.
func (s *Server) handleDeleteView(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	v, err := s.viewRepo.Get(r.Context(), id)
	if err == nil {
		err = s.viewRepo.Delete(r.Context(), id)
	}
	if err != nil {
		if errors.Is(err, view.ErrNotFound) {
			writeNotFound(w, "view not found")
			return
		}
		s.logger.Error("delete view failed", "error", err)
		writeInternalError(w, "failed to delete view")
		return
	}

	s.auditLog(r, audit.ActionDelete, audit.ResourceView, id, v.Name, nil)
	w.WriteHeader(http.StatusNoContent)
}

// handleGetActiveView returns the active view ID, empty when none is set.
func (s *Server) handleGetActiveView(w http.ResponseWriter, r *http.Request) {
	id, err := s.viewRepo.ActiveID(r.Context())
	if err != nil {
		s.logger.Error("get active view failed", "error", err)
		writeInternalError(w, "failed to get active view")
		return
	}
	writeJSON(w, http.StatusOK, activeViewRequest{ViewID: id})
}

// handleSetActiveView sets the active view. An empty viewId clears it.
func (s *Server) handleSetActiveView(w http.ResponseWriter, r *http.Request) {
	var req activeViewRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := s.viewRepo.SetActive(r.Context(), req.ViewID); err != nil {
		if errors.Is(err, view.ErrNotFound) {
			writeNotFound(w, "view not found")
			return
		}
		s.logger.Error("set active view failed", "error", err)
		writeInternalError(w, "failed to set active view")
		return
	}
	writeJSON(w, http.StatusOK, req)
}
