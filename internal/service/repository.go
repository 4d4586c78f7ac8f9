package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/opsimate/opsimate-core/internal/infrastructure/database"
)

// Repository defines service and tag persistence.
type Repository interface {
	Create(ctx context.Context, svc *Service) error
	Get(ctx context.Context, id int64) (*Service, error)
	List(ctx context.Context) ([]Service, error)
	Delete(ctx context.Context, id int64) error
	SetTags(ctx context.Context, id int64, tags []Tag) error
	ListTags(ctx context.Context) ([]Tag, error)
}

// SQLRepository implements Repository on the database facade.
type SQLRepository struct {
	db database.Handle
}

var _ Repository = (*SQLRepository)(nil)

// NewSQLRepository creates a new service repository.
func NewSQLRepository(db database.Handle) *SQLRepository {
	return &SQLRepository{db: db}
}

const serviceColumns = "id, name, service_ip, service_status, service_type, provider_name, provider_type, container_namespace, created_at"

type serviceRow struct {
	ID                 int64          `db:"id"`
	Name               string         `db:"name"`
	ServiceIP          sql.NullString `db:"service_ip"`
	ServiceStatus      string         `db:"service_status"`
	ServiceType        string         `db:"service_type"`
	ProviderName       sql.NullString `db:"provider_name"`
	ProviderType       sql.NullString `db:"provider_type"`
	ContainerNamespace sql.NullString `db:"container_namespace"`
	CreatedAt          string         `db:"created_at"`
}

func (row serviceRow) toService() Service {
	s := Service{
		ID:                 row.ID,
		Name:               row.Name,
		ServiceIP:          row.ServiceIP.String,
		ServiceStatus:      row.ServiceStatus,
		ServiceType:        row.ServiceType,
		ProviderName:       row.ProviderName.String,
		ProviderType:       row.ProviderType.String,
		ContainerNamespace: row.ContainerNamespace.String,
		Tags:               []Tag{},
	}
	s.CreatedAt, _ = time.Parse(time.RFC3339, row.CreatedAt) //nolint:errcheck // format is controlled
	return s
}

type serviceTagRow struct {
	ServiceID int64  `db:"service_id"`
	ID        int64  `db:"id"`
	Name      string `db:"name"`
	Color     string `db:"color"`
}

// Create inserts a service together with its tags. Tags are matched by
// name; unknown names are created.
func (r *SQLRepository) Create(ctx context.Context, svc *Service) error {
	if err := svc.Validate(); err != nil {
		return err
	}
	if svc.ServiceStatus == "" {
		svc.ServiceStatus = StatusUnknown
	}
	if svc.ServiceType == "" {
		svc.ServiceType = TypeManual
	}
	svc.CreatedAt = time.Now().UTC().Truncate(time.Second)

	return r.db.Transaction(ctx, func(tx database.Queryer) error {
		var id int64
		err := tx.Prepare(`
			INSERT INTO services (name, service_ip, service_status, service_type, provider_name, provider_type, container_namespace, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		).Get(ctx, &id,
			svc.Name, nullable(svc.ServiceIP), svc.ServiceStatus, svc.ServiceType,
			nullable(svc.ProviderName), nullable(svc.ProviderType), nullable(svc.ContainerNamespace),
			svc.CreatedAt.Format(time.RFC3339),
		)
		if err != nil {
			return fmt.Errorf("inserting service: %w", err)
		}
		svc.ID = id

		tags, err := linkTags(ctx, tx, id, svc.Tags)
		if err != nil {
			return err
		}
		svc.Tags = tags
		return nil
	})
}

// Get returns a service with its tags.
func (r *SQLRepository) Get(ctx context.Context, id int64) (*Service, error) {
	var row serviceRow
	if err := r.db.Prepare("SELECT "+serviceColumns+" FROM services WHERE id = ?").Get(ctx, &row, id); err != nil {
		if errors.Is(err, database.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting service: %w", err)
	}

	svc := row.toService()
	var tags []Tag
	if err := r.db.Prepare(`
		SELECT t.id, t.name, t.color FROM tags t
		JOIN service_tags st ON st.tag_id = t.id
		WHERE st.service_id = ? ORDER BY t.name`,
	).All(ctx, &tags, id); err != nil {
		return nil, fmt.Errorf("getting service tags: %w", err)
	}
	if tags != nil {
		svc.Tags = tags
	}
	return &svc, nil
}

// List returns all services with their tags, ordered by name.
func (r *SQLRepository) List(ctx context.Context) ([]Service, error) {
	var rows []serviceRow
	query := "SELECT " + serviceColumns + " FROM services ORDER BY name, id"
	if err := r.db.Prepare(query).All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("listing services: %w", err)
	}

	var tagRows []serviceTagRow
	if err := r.db.Prepare(`
		SELECT st.service_id, t.id, t.name, t.color FROM service_tags st
		JOIN tags t ON t.id = st.tag_id
		ORDER BY t.name`,
	).All(ctx, &tagRows); err != nil {
		return nil, fmt.Errorf("listing service tags: %w", err)
	}

	byService := make(map[int64][]Tag)
	for _, tr := range tagRows {
		byService[tr.ServiceID] = append(byService[tr.ServiceID], Tag{ID: tr.ID, Name: tr.Name, Color: tr.Color})
	}

	services := make([]Service, 0, len(rows))
	for _, row := range rows {
		svc := row.toService()
		if tags := byService[svc.ID]; tags != nil {
			svc.Tags = tags
		}
		services = append(services, svc)
	}
	return services, nil
}

// Delete removes a service. Tag links are removed by cascade.
func (r *SQLRepository) Delete(ctx context.Context, id int64) error {
	return r.db.Transaction(ctx, func(tx database.Queryer) error {
		if _, err := tx.Prepare("DELETE FROM service_tags WHERE service_id = ?").Run(ctx, id); err != nil {
			return fmt.Errorf("deleting service tags: %w", err)
		}
		res, err := tx.Prepare("DELETE FROM services WHERE id = ?").Run(ctx, id)
		if err != nil {
			return fmt.Errorf("deleting service: %w", err)
		}
		if res.Changes == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// SetTags replaces the tags of a service.
func (r *SQLRepository) SetTags(ctx context.Context, id int64, tags []Tag) error {
	return r.db.Transaction(ctx, func(tx database.Queryer) error {
		var exists int
		if err := tx.Prepare("SELECT COUNT(*) FROM services WHERE id = ?").Get(ctx, &exists, id); err != nil {
			return fmt.Errorf("checking service: %w", err)
		}
		if exists == 0 {
			return ErrNotFound
		}
		if _, err := tx.Prepare("DELETE FROM service_tags WHERE service_id = ?").Run(ctx, id); err != nil {
			return fmt.Errorf("clearing service tags: %w", err)
		}
		_, err := linkTags(ctx, tx, id, tags)
		return err
	})
}

// ListTags returns every known tag ordered by name.
func (r *SQLRepository) ListTags(ctx context.Context) ([]Tag, error) {
	tags := []Tag{}
	if err := r.db.Prepare("SELECT id, name, color FROM tags ORDER BY name").All(ctx, &tags); err != nil {
		return nil, fmt.Errorf("listing tags: %w", err)
	}
	return tags, nil
}

// linkTags ensures each tag exists and links it to the service. Blank and
// repeated names are skipped.
func linkTags(ctx context.Context, tx database.Queryer, serviceID int64, tags []Tag) ([]Tag, error) {
	linked := []Tag{}
	seen := make(map[string]struct{})

	for _, t := range tags {
		name := strings.TrimSpace(t.Name)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}

		color := t.Color
		if color == "" {
			color = defaultTagColor
		}

		if _, err := tx.Prepare("INSERT INTO tags (name, color) VALUES (?, ?) ON CONFLICT (name) DO NOTHING").
			Run(ctx, name, color); err != nil {
			return nil, fmt.Errorf("ensuring tag %q: %w", name, err)
		}

		var stored Tag
		if err := tx.Prepare("SELECT id, name, color FROM tags WHERE name = ?").Get(ctx, &stored, name); err != nil {
			return nil, fmt.Errorf("loading tag %q: %w", name, err)
		}

		if _, err := tx.Prepare("INSERT INTO service_tags (service_id, tag_id) VALUES (?, ?)").
			Run(ctx, serviceID, stored.ID); err != nil {
			return nil, fmt.Errorf("linking tag %q: %w", name, err)
		}
		linked = append(linked, stored)
	}
	return linked, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
