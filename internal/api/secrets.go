package api

import (
	"encoding/base64"
	"errors"
	"net/http"

	"github.com/opsimate/opsimate-core/internal/audit"
	"github.com/opsimate/opsimate-core/internal/secret"
)

// createSecretRequest is the upload body. Content is base64 encoded.
type createSecretRequest struct {
	Name     string      `json:"name"`
	FileName string      `json:"fileName"`
	Type     secret.Type `json:"type"`
	Content  string      `json:"content"`
}

// handleListSecrets returns secret metadata, optionally filtered by ?type=.
func (s *Server) handleListSecrets(w http.ResponseWriter, r *http.Request) {
	typ := secret.Type(r.URL.Query().Get("type"))
	if typ != "" && typ != secret.TypeSSH && typ != secret.TypeKubeconfig {
		writeValidationError(w, "type must be ssh or kubeconfig")
		return
	}

	secrets, err := s.secrets.List(r.Context(), typ)
	if err != nil {
		s.logger.Error("list secrets failed", "error", err)
		writeInternalError(w, "failed to list secrets")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"secrets": secrets,
		"count":   len(secrets),
	})
}

// handleCreateSecret validates and stores an uploaded credential file.
func (s *Server) handleCreateSecret(w http.ResponseWriter, r *http.Request) {
	var req createSecretRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	content, err := base64.StdEncoding.DecodeString(req.Content)
	if err != nil || len(content) == 0 {
		writeValidationError(w, "content must be non-empty base64")
		return
	}

	sec, err := s.secrets.Create(r.Context(), secret.Input{
		Name:     req.Name,
		FileName: req.FileName,
		Type:     req.Type,
		Content:  content,
	})
	if err != nil {
		switch {
		case errors.Is(err, secret.ErrExists):
			writeConflict(w, "a secret with this file name already exists")
		case errors.Is(err, secret.ErrInvalidContent),
			errors.Is(err, secret.ErrInvalidType),
			errors.Is(err, secret.ErrInvalidFileName):
			writeValidationError(w, err.Error())
		default:
			s.logger.Error("create secret failed", "error", err)
			writeInternalError(w, "failed to store secret")
		}
		return
	}

	s.auditLog(r, audit.ActionCreate, audit.ResourceSecret, idString(sec.ID), sec.Name, map[string]any{
		"type": sec.Type,
	})

	writeJSON(w, http.StatusCreated, sec)
}

// handleDeleteSecret removes a secret and its file.
func (s *Server) handleDeleteSecret(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt64(w, r, "id")
	if !ok {
		return
	}

	sec, err := s.secrets.Delete(r.Context(), id)
	if err != nil {
		if errors.Is(err, secret.ErrNotFound) {
			writeNotFound(w, "secret not found")
			return
		}
		s.logger.Error("delete secret failed", "error", err)
		writeInternalError(w, "failed to delete secret")
		return
	}

	s.auditLog(r, audit.ActionDelete, audit.ResourceSecret, idString(id), sec.Name, nil)
	w.WriteHeader(http.StatusNoContent)
}
