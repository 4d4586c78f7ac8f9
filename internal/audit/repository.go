// Package audit records who created, changed or deleted what, and serves
// the paginated audit trail shown in Settings.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/opsimate/opsimate-core/internal/infrastructure/database"
)

// ActionType is the kind of change recorded.
type ActionType string

// Recorded actions.
const (
	ActionCreate ActionType = "CREATE"
	ActionUpdate ActionType = "UPDATE"
	ActionDelete ActionType = "DELETE"
)

// Resource types written by the API.
const (
	ResourceUser    = "USER"
	ResourceService = "SERVICE"
	ResourceAlert   = "ALERT"
	ResourceView    = "VIEW"
	ResourceSecret  = "SECRET"
)

// Pagination bounds.
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// timeLayout is fixed-width so created_at sorts correctly as text.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// AuditLog represents a single audit trail entry.
type AuditLog struct { //nolint:revive // audit.AuditLog is clearer than audit.Log in calling code
	ID           string         `json:"id"`
	ActionType   ActionType     `json:"actionType"`
	ResourceType string         `json:"resourceType"`
	ResourceID   string         `json:"resourceId,omitempty"`
	ResourceName string         `json:"resourceName,omitempty"`
	UserID       int64          `json:"userId,omitempty"`
	UserName     string         `json:"userName,omitempty"`
	Details      map[string]any `json:"details,omitempty"`
	CreatedAt    time.Time      `json:"timestamp"`
}

// Filter controls which audit logs to return.
type Filter struct {
	ActionType   ActionType // optional
	ResourceType string     // optional
	Page         int        // 1-based, default 1
	Limit        int        // default 20, max 100
}

// ListResult contains one page of audit logs.
type ListResult struct {
	Logs  []AuditLog `json:"logs"`
	Total int        `json:"total"`
	Page  int        `json:"page"`
	Limit int        `json:"limit"`
}

// Repository defines the interface for audit log operations.
type Repository interface {
	Create(ctx context.Context, log *AuditLog) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLRepository stores audit logs through the database facade.
type SQLRepository struct {
	db database.Queryer
}

var _ Repository = (*SQLRepository)(nil)

// NewSQLRepository creates a new audit log repository.
func NewSQLRepository(db database.Queryer) *SQLRepository {
	return &SQLRepository{db: db}
}

type auditRow struct {
	ID           string         `db:"id"`
	ActionType   string         `db:"action_type"`
	ResourceType string         `db:"resource_type"`
	ResourceID   sql.NullString `db:"resource_id"`
	ResourceName sql.NullString `db:"resource_name"`
	UserID       sql.NullInt64  `db:"user_id"`
	UserName     sql.NullString `db:"user_name"`
	Details      sql.NullString `db:"details"`
	CreatedAt    string         `db:"created_at"`
}

// Create inserts a new audit log entry. The ID and CreatedAt are generated if empty.
func (r *SQLRepository) Create(ctx context.Context, log *AuditLog) error {
	if log.ID == "" {
		log.ID = "aud-" + uuid.NewString()[:8]
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}

	var detailsJSON *string
	if log.Details != nil {
		b, err := json.Marshal(log.Details)
		if err != nil {
			return fmt.Errorf("marshalling audit details: %w", err)
		}
		s := string(b)
		detailsJSON = &s
	}

	var userID any
	if log.UserID != 0 {
		userID = log.UserID
	}

	_, err := r.db.Prepare(`
		INSERT INTO audit_logs (id, action_type, resource_type, resource_id, resource_name, user_id, user_name, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	).Run(ctx,
		log.ID, string(log.ActionType), log.ResourceType,
		nullableString(log.ResourceID), nullableString(log.ResourceName),
		userID, nullableString(log.UserName), detailsJSON,
		log.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting audit log: %w", err)
	}
	return nil
}

// List returns one page of audit logs, most recent first.
func (r *SQLRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = DefaultLimit
	}
	if filter.Limit > MaxLimit {
		filter.Limit = MaxLimit
	}
	if filter.Page < 1 {
		filter.Page = 1
	}

	var conditions []string
	var args []any

	if filter.ActionType != "" {
		conditions = append(conditions, "action_type = ?")
		args = append(args, string(filter.ActionType))
	}
	if filter.ResourceType != "" {
		conditions = append(conditions, "resource_type = ?")
		args = append(args, filter.ResourceType)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM audit_logs " + where //nolint:gosec // WHERE built from parameterised conditions
	if err := r.db.Prepare(countQuery).Get(ctx, &total, args...); err != nil {
		return nil, fmt.Errorf("counting audit logs: %w", err)
	}

	query := fmt.Sprintf( //nolint:gosec // WHERE built from parameterised conditions
		`SELECT id, action_type, resource_type, resource_id, resource_name, user_id, user_name, details, created_at
		 FROM audit_logs %s ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		where,
	)
	args = append(args, filter.Limit, (filter.Page-1)*filter.Limit)

	var rows []auditRow
	if err := r.db.Prepare(query).All(ctx, &rows, args...); err != nil {
		return nil, fmt.Errorf("querying audit logs: %w", err)
	}

	logs := make([]AuditLog, 0, len(rows))
	for _, row := range rows {
		log, err := row.toAuditLog()
		if err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}

	return &ListResult{
		Logs:  logs,
		Total: total,
		Page:  filter.Page,
		Limit: filter.Limit,
	}, nil
}

func (row auditRow) toAuditLog() (AuditLog, error) {
	log := AuditLog{
		ID:           row.ID,
		ActionType:   ActionType(row.ActionType),
		ResourceType: row.ResourceType,
		ResourceID:   row.ResourceID.String,
		ResourceName: row.ResourceName.String,
		UserID:       row.UserID.Int64,
		UserName:     row.UserName.String,
	}

	if row.Details.Valid && row.Details.String != "" {
		var details map[string]any
		if json.Unmarshal([]byte(row.Details.String), &details) == nil {
			log.Details = details
		}
	}

	t, err := time.Parse(time.RFC3339, row.CreatedAt)
	if err != nil {
		return AuditLog{}, fmt.Errorf("parsing audit log timestamp %q: %w", row.CreatedAt, err)
	}
	log.CreatedAt = t
	return log, nil
}

// nullableString returns nil for empty strings so they are stored as NULL.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
