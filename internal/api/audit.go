package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/opsimate/opsimate-core/internal/audit"
)

// auditChanSize is the buffer size for the async audit log channel.
// Entries beyond this are dropped (best-effort) to avoid back-pressure on requests.
const auditChanSize = 256

// auditLog enqueues an audit log entry for asynchronous write (best-effort).
// The acting user is taken from the request's claims when present.
// If the channel is full the entry is dropped and a warning is logged.
func (s *Server) auditLog(r *http.Request, action audit.ActionType, resourceType, resourceID, resourceName string, details map[string]any) {
	entry := &audit.AuditLog{
		ActionType:   action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		ResourceName: resourceName,
		Details:      details,
	}
	if claims := claimsFromContext(r.Context()); claims != nil {
		entry.UserID = claims.UserID()
		entry.UserName = claims.FullName
		if entry.UserName == "" {
			entry.UserName = claims.Email
		}
	}

	select {
	case s.auditCh <- entry:
	default:
		s.logger.Warn("audit log channel full, dropping entry",
			"action", action,
			"resource_type", resourceType,
		)
	}
}

// drainAuditLog reads entries from the audit channel and writes them serially.
// It runs until the context is cancelled, then drains remaining entries.
func (s *Server) drainAuditLog(ctx context.Context) {
	for {
		select {
		case entry := <-s.auditCh:
			s.writeAuditEntry(entry)
		case <-ctx.Done():
			for {
				select {
				case entry := <-s.auditCh:
					s.writeAuditEntry(entry)
				default:
					return
				}
			}
		}
	}
}

func (s *Server) writeAuditEntry(entry *audit.AuditLog) {
	if err := s.auditRepo.Create(context.Background(), entry); err != nil {
		s.logger.Error("audit log write failed",
			"action", entry.ActionType,
			"resource_type", entry.ResourceType,
			"error", err,
		)
	}
}

// handleListAuditLogs returns one page of audit log entries, newest first.
//
// Query parameters:
//   - page: 1-based page number (default 1)
//   - limit: page size (default 20, max 100)
//   - actionType: filter by CREATE, UPDATE or DELETE
//   - resourceType: filter by resource type (USER, SERVICE, ...)
func (s *Server) handleListAuditLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := audit.Filter{
		ActionType:   audit.ActionType(q.Get("actionType")),
		ResourceType: q.Get("resourceType"),
	}

	if v := q.Get("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Page = n
		}
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}

	result, err := s.auditRepo.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list audit logs", "error", err)
		writeInternalError(w, "failed to list audit logs")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// idString formats a numeric resource ID for the audit trail.
func idString(id int64) string {
	return strconv.FormatInt(id, 10)
}
