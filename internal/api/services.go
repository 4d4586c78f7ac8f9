package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/opsimate/opsimate-core/internal/audit"
	"github.com/opsimate/opsimate-core/internal/service"
)

// serviceFilterKeys are the query parameters read as service filters.
var serviceFilterKeys = []string{
	service.FilterServiceStatus,
	service.FilterServiceType,
	service.FilterProviderType,
	service.FilterProviderName,
	service.FilterContainerNamespace,
	service.FilterTags,
}

type setTagsRequest struct {
	Tags []service.Tag `json:"tags"`
}

// handleListServices returns services with their alerts attached.
//
// Query parameters:
//   - search: case-insensitive substring over name, IP, provider and tags
//   - serviceStatus, serviceType, providerType, providerName,
//     containerNamespace, tags: repeatable or comma-separated filter values
func (s *Server) handleListServices(w http.ResponseWriter, r *http.Request) {
	services, err := s.serviceRepo.List(r.Context())
	if err != nil {
		s.logger.Error("list services failed", "error", err)
		writeInternalError(w, "failed to list services")
		return
	}

	alerts, err := s.alertRepo.List(r.Context())
	if err != nil {
		s.logger.Error("list alerts failed", "error", err)
		writeInternalError(w, "failed to list services")
		return
	}

	q := r.URL.Query()
	services = service.Apply(service.AttachAlerts(services, alerts), filtersFromQuery(q), q.Get("search"))

	writeJSON(w, http.StatusOK, map[string]any{
		"services": services,
		"count":    len(services),
	})
}

// filtersFromQuery collects the known filter keys from query values.
func filtersFromQuery(q map[string][]string) service.Filters {
	filters := service.Filters{}
	for _, key := range serviceFilterKeys {
		var values []string
		for _, raw := range q[key] {
			for _, v := range strings.Split(raw, ",") {
				if v = strings.TrimSpace(v); v != "" {
					values = append(values, v)
				}
			}
		}
		if len(values) > 0 {
			filters[key] = values
		}
	}
	return filters
}

// handleGetService returns one service with its alerts attached.
func (s *Server) handleGetService(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt64(w, r, "id")
	if !ok {
		return
	}

	svc, err := s.serviceRepo.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			writeNotFound(w, "service not found")
			return
		}
		s.logger.Error("get service failed", "error", err)
		writeInternalError(w, "failed to get service")
		return
	}

	alerts, err := s.alertRepo.List(r.Context())
	if err != nil {
		s.logger.Error("list alerts failed", "error", err)
		writeInternalError(w, "failed to get service")
		return
	}

	writeJSON(w, http.StatusOK, service.AttachAlerts([]service.Service{*svc}, alerts)[0])
}

// handleCreateService creates a service and its tags.
func (s *Server) handleCreateService(w http.ResponseWriter, r *http.Request) {
	var svc service.Service
	if !decodeJSON(w, r, &svc) {
		return
	}

	if err := s.serviceRepo.Create(r.Context(), &svc); err != nil {
		if errors.Is(err, service.ErrInvalid) {
			writeValidationError(w, err.Error())
			return
		}
		s.logger.Error("create service failed", "error", err)
		writeInternalError(w, "failed to create service")
		return
	}

	s.auditLog(r, audit.ActionCreate, audit.ResourceService, idString(svc.ID), svc.Name, map[string]any{
		"serviceType": svc.ServiceType,
	})

	writeJSON(w, http.StatusCreated, svc)
}

// handleSetServiceTags replaces a service's tags.
func (s *Server) handleSetServiceTags(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt64(w, r, "id")
	if !ok {
		return
	}

	var req setTagsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := s.serviceRepo.SetTags(r.Context(), id, req.Tags); err != nil {
		if errors.Is(err, service.ErrNotFound) {
			writeNotFound(w, "service not found")
			return
		}
		s.logger.Error("set service tags failed", "error", err)
		writeInternalError(w, "failed to update tags")
		return
	}

	svc, err := s.serviceRepo.Get(r.Context(), id)
	if err != nil {
		s.logger.Error("reload service failed", "error", err)
		writeInternalError(w, "failed to update tags")
		return
	}

	names := make([]string, 0, len(svc.Tags))
	for _, t := range svc.Tags {
		names = append(names, t.Name)
	}
	s.auditLog(r, audit.ActionUpdate, audit.ResourceService, idString(id), svc.Name, map[string]any{
		"tags": names,
	})

	writeJSON(w, http.StatusOK, svc)
}

// handleDeleteService deletes a service.
func (s *Server) handleDeleteService(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt64(w, r, "id")
	if !ok {
		return
	}

	svc, err := s.serviceRepo.Get(r.Context(), id)
	if err == nil {
		err = s.serviceRepo.Delete(r.Context(), id)
	}
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			writeNotFound(w, "service not found")
			return
		}
		s.logger.Error("delete service failed", "error", err)
		writeInternalError(w, "failed to delete service")
		return
	}

	s.auditLog(r, audit.ActionDelete, audit.ResourceService, idString(id), svc.Name, nil)
	w.WriteHeader(http.StatusNoContent)
}

// handleListTags returns every known tag.
func (s *Server) handleListTags(w http.ResponseWriter, r *http.Request) {
	tags, err := s.serviceRepo.ListTags(r.Context())
	if err != nil {
		s.logger.Error("list tags failed", "error", err)
		writeInternalError(w, "failed to list tags")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tags": tags})
}
