// Package alert stores alerts raised against service tags and tracks
// whether an operator has dismissed them.
package alert

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/opsimate/opsimate-core/internal/infrastructure/database"
)

// Sentinel errors.
var (
	ErrNotFound = errors.New("alert not found")
	ErrInvalid  = errors.New("invalid alert")
)

// Alert is a single firing or resolved alert. It attaches to every
// service carrying a tag equal to Tag.
type Alert struct {
	ID          string    `json:"id"`
	Status      string    `json:"status"`
	Tag         string    `json:"tag"`
	AlertName   string    `json:"alertName"`
	Summary     string    `json:"summary,omitempty"`
	RunbookURL  string    `json:"runbookUrl,omitempty"`
	StartsAt    time.Time `json:"startsAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	IsDismissed bool      `json:"isDismissed"`
}

// Validate checks the fields required to store an alert.
func (a *Alert) Validate() error {
	var missing []string
	if strings.TrimSpace(a.ID) == "" {
		missing = append(missing, "id")
	}
	if strings.TrimSpace(a.Tag) == "" {
		missing = append(missing, "tag")
	}
	if strings.TrimSpace(a.AlertName) == "" {
		missing = append(missing, "alertName")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalid, strings.Join(missing, ", "))
	}
	return nil
}

// Repository defines alert persistence.
type Repository interface {
	List(ctx context.Context) ([]Alert, error)
	Get(ctx context.Context, id string) (*Alert, error)
	Upsert(ctx context.Context, a *Alert) error
	SetDismissed(ctx context.Context, id string, dismissed bool) error
	Delete(ctx context.Context, id string) error
}

// SQLRepository implements Repository on the database facade.
type SQLRepository struct {
	db database.Queryer
}

var _ Repository = (*SQLRepository)(nil)

// NewSQLRepository creates a new alert repository.
func NewSQLRepository(db database.Queryer) *SQLRepository {
	return &SQLRepository{db: db}
}

const alertColumns = "id, status, tag, alert_name, summary, runbook_url, starts_at, updated_at, is_dismissed"

type alertRow struct {
	ID          string         `db:"id"`
	Status      string         `db:"status"`
	Tag         string         `db:"tag"`
	AlertName   string         `db:"alert_name"`
	Summary     sql.NullString `db:"summary"`
	RunbookURL  sql.NullString `db:"runbook_url"`
	StartsAt    string         `db:"starts_at"`
	UpdatedAt   string         `db:"updated_at"`
	IsDismissed int            `db:"is_dismissed"`
}

func (row alertRow) toAlert() Alert {
	a := Alert{
		ID:          row.ID,
		Status:      row.Status,
		Tag:         row.Tag,
		AlertName:   row.AlertName,
		Summary:     row.Summary.String,
		RunbookURL:  row.RunbookURL.String,
		IsDismissed: row.IsDismissed != 0,
	}
	a.StartsAt, _ = time.Parse(time.RFC3339, row.StartsAt)   //nolint:errcheck // format is controlled
	a.UpdatedAt, _ = time.Parse(time.RFC3339, row.UpdatedAt) //nolint:errcheck // format is controlled
	return a
}

// List returns every alert, newest first.
func (r *SQLRepository) List(ctx context.Context) ([]Alert, error) {
	var rows []alertRow
	query := "SELECT " + alertColumns + " FROM alerts ORDER BY starts_at DESC, id"
	if err := r.db.Prepare(query).All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("listing alerts: %w", err)
	}

	alerts := make([]Alert, 0, len(rows))
	for _, row := range rows {
		alerts = append(alerts, row.toAlert())
	}
	return alerts, nil
}

// Get returns the alert with the given ID.
func (r *SQLRepository) Get(ctx context.Context, id string) (*Alert, error) {
	var row alertRow
	if err := r.db.Prepare("SELECT "+alertColumns+" FROM alerts WHERE id = ?").Get(ctx, &row, id); err != nil {
		if errors.Is(err, database.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting alert: %w", err)
	}
	a := row.toAlert()
	return &a, nil
}

// Upsert inserts a new alert or refreshes an existing one. The dismissed
// flag of an existing alert is preserved.
func (r *SQLRepository) Upsert(ctx context.Context, a *Alert) error {
	if err := a.Validate(); err != nil {
		return err
	}

	now := time.Now().UTC().Truncate(time.Second)
	if a.StartsAt.IsZero() {
		a.StartsAt = now
	}
	a.UpdatedAt = now
	if a.Status == "" {
		a.Status = "firing"
	}

	_, err := r.db.Prepare(`
		INSERT INTO alerts (id, status, tag, alert_name, summary, runbook_url, starts_at, updated_at, is_dismissed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0)
		ON CONFLICT (id) DO UPDATE SET
			status = excluded.status,
			tag = excluded.tag,
			alert_name = excluded.alert_name,
			summary = excluded.summary,
			runbook_url = excluded.runbook_url,
			starts_at = excluded.starts_at,
			updated_at = excluded.updated_at`,
	).Run(ctx,
		a.ID, a.Status, a.Tag, a.AlertName,
		nullable(a.Summary), nullable(a.RunbookURL),
		a.StartsAt.UTC().Format(time.RFC3339), a.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upserting alert: %w", err)
	}
	return nil
}

// SetDismissed marks an alert dismissed or active again.
func (r *SQLRepository) SetDismissed(ctx context.Context, id string, dismissed bool) error {
	flag := 0
	if dismissed {
		flag = 1
	}

	res, err := r.db.Prepare("UPDATE alerts SET is_dismissed = ?, updated_at = ? WHERE id = ?").
		Run(ctx, flag, time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("updating alert: %w", err)
	}
	if res.Changes == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes an alert.
func (r *SQLRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.Prepare("DELETE FROM alerts WHERE id = ?").Run(ctx, id)
	if err != nil {
		return fmt.Errorf("deleting alert: %w", err)
	}
	if res.Changes == 0 {
		return ErrNotFound
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
