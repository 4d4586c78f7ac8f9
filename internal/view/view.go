// Package view stores the dashboard's saved views (filters, visible
// columns and search term) and remembers which one is active.
package view

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/opsimate/opsimate-core/internal/infrastructure/database"
)

// activeViewSetting is the settings row holding the active view ID.
const activeViewSetting = "active_view_id"

// Sentinel errors.
var (
	ErrNotFound = errors.New("view not found")
	ErrInvalid  = errors.New("invalid view")
)

// View is a saved dashboard configuration.
type View struct {
	ID             string              `json:"id"`
	Name           string              `json:"name"`
	Description    string              `json:"description,omitempty"`
	SearchTerm     string              `json:"searchTerm"`
	Filters        map[string][]string `json:"filters"`
	VisibleColumns map[string]bool     `json:"visibleColumns"`
	CreatedAt      time.Time           `json:"createdAt"`
}

// Repository defines saved view persistence.
type Repository interface {
	Save(ctx context.Context, v *View) error
	Get(ctx context.Context, id string) (*View, error)
	List(ctx context.Context) ([]View, error)
	Delete(ctx context.Context, id string) error
	ActiveID(ctx context.Context) (string, error)
	SetActive(ctx context.Context, id string) error
}

// SQLRepository implements Repository on the database facade.
type SQLRepository struct {
	db database.Handle
}

var _ Repository = (*SQLRepository)(nil)

// NewSQLRepository creates a new view repository.
func NewSQLRepository(db database.Handle) *SQLRepository {
	return &SQLRepository{db: db}
}

const viewColumns = "id, name, description, search_term, filters, visible_columns, created_at"

type viewRow struct {
	ID             string         `db:"id"`
	Name           string         `db:"name"`
	Description    sql.NullString `db:"description"`
	SearchTerm     string         `db:"search_term"`
	Filters        string         `db:"filters"`
	VisibleColumns string         `db:"visible_columns"`
	CreatedAt      string         `db:"created_at"`
}

func (row viewRow) toView() (View, error) {
	v := View{
		ID:          row.ID,
		Name:        row.Name,
		Description: row.Description.String,
		SearchTerm:  row.SearchTerm,
	}
	if err := json.Unmarshal([]byte(row.Filters), &v.Filters); err != nil {
		return View{}, fmt.Errorf("decoding filters of view %s: %w", row.ID, err)
	}
	if err := json.Unmarshal([]byte(row.VisibleColumns), &v.VisibleColumns); err != nil {
		return View{}, fmt.Errorf("decoding columns of view %s: %w", row.ID, err)
	}
	v.CreatedAt, _ = time.Parse(time.RFC3339, row.CreatedAt) //nolint:errcheck // format is controlled
	return v, nil
}

// Save inserts a view, or replaces the view with the same ID. A missing
// ID is generated.
func (r *SQLRepository) Save(ctx context.Context, v *View) error {
	if strings.TrimSpace(v.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalid)
	}
	if v.ID == "" {
		v.ID = "view-" + uuid.NewString()[:8]
	}
	if v.Filters == nil {
		v.Filters = map[string][]string{}
	}
	if v.VisibleColumns == nil {
		v.VisibleColumns = map[string]bool{}
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC().Truncate(time.Second)
	}

	filters, err := json.Marshal(v.Filters)
	if err != nil {
		return fmt.Errorf("encoding filters: %w", err)
	}
	columns, err := json.Marshal(v.VisibleColumns)
	if err != nil {
		return fmt.Errorf("encoding columns: %w", err)
	}

	var description any
	if v.Description != "" {
		description = v.Description
	}

	_, err = r.db.Prepare(`
		INSERT INTO views (id, name, description, search_term, filters, visible_columns, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			search_term = excluded.search_term,
			filters = excluded.filters,
			visible_columns = excluded.visible_columns`,
	).Run(ctx, v.ID, v.Name, description, v.SearchTerm, string(filters), string(columns), v.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("saving view: %w", err)
	}
	return nil
}

// Get returns the view with the given ID.
func (r *SQLRepository) Get(ctx context.Context, id string) (*View, error) {
	var row viewRow
	if err := r.db.Prepare("SELECT "+viewColumns+" FROM views WHERE id = ?").Get(ctx, &row, id); err != nil {
		if errors.Is(err, database.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting view: %w", err)
	}
	v, err := row.toView()
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// List returns all saved views in creation order.
func (r *SQLRepository) List(ctx context.Context) ([]View, error) {
	var rows []viewRow
	query := "SELECT " + viewColumns + " FROM views ORDER BY created_at, id"
	if err := r.db.Prepare(query).All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("listing views: %w", err)
	}

	views := make([]View, 0, len(rows))
	for _, row := range rows {
		v, err := row.toView()
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, nil
}

// Delete removes a view. If it was the active view, the active view is
// cleared in the same transaction.
func (r *SQLRepository) Delete(ctx context.Context, id string) error {
	return r.db.Transaction(ctx, func(tx database.Queryer) error {
		res, err := tx.Prepare("DELETE FROM views WHERE id = ?").Run(ctx, id)
		if err != nil {
			return fmt.Errorf("deleting view: %w", err)
		}
		if res.Changes == 0 {
			return ErrNotFound
		}
		if _, err := tx.Prepare("DELETE FROM settings WHERE name = ? AND value = ?").
			Run(ctx, activeViewSetting, id); err != nil {
			return fmt.Errorf("clearing active view: %w", err)
		}
		return nil
	})
}

// ActiveID returns the active view ID, or "" when none is set.
func (r *SQLRepository) ActiveID(ctx context.Context) (string, error) {
	var id string
	err := r.db.Prepare("SELECT value FROM settings WHERE name = ?").Get(ctx, &id, activeViewSetting)
	if errors.Is(err, database.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading active view: %w", err)
	}
	return id, nil
}

// SetActive records id as the active view. An empty id clears it.
func (r *SQLRepository) SetActive(ctx context.Context, id string) error {
	if id == "" {
		if _, err := r.db.Prepare("DELETE FROM settings WHERE name = ?").Run(ctx, activeViewSetting); err != nil {
			return fmt.Errorf("clearing active view: %w", err)
		}
		return nil
	}

	return r.db.Transaction(ctx, func(tx database.Queryer) error {
		var n int
		if err := tx.Prepare("SELECT COUNT(*) FROM views WHERE id = ?").Get(ctx, &n, id); err != nil {
			return fmt.Errorf("checking view: %w", err)
		}
		if n == 0 {
			return ErrNotFound
		}
		if _, err := tx.Prepare(`
			INSERT INTO settings (name, value) VALUES (?, ?)
			ON CONFLICT (name) DO UPDATE SET value = excluded.value`,
		).Run(ctx, activeViewSetting, id); err != nil {
			return fmt.Errorf("setting active view: %w", err)
		}
		return nil
	})
}
