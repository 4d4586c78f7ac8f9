package view

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsimate/opsimate-core/internal/infrastructure/config"
	"github.com/opsimate/opsimate-core/internal/infrastructure/database"
	_ "github.com/opsimate/opsimate-core/migrations" // registers schema
)

func setupRepo(t *testing.T) *SQLRepository {
	t.Helper()

	ctx := context.Background()
	db, err := database.Open(ctx, config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "views.db")}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup
	require.NoError(t, database.Migrate(ctx, db))

	return NewSQLRepository(db)
}

func TestSave_RoundTrip(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	v := &View{
		Name:           "Prod DBs",
		SearchTerm:     "postgres",
		Filters:        map[string][]string{"tags": {"prod", "db"}},
		VisibleColumns: map[string]bool{"name": true, "alerts": false},
	}
	require.NoError(t, repo.Save(ctx, v))
	assert.Regexp(t, `^view-[0-9a-f]{8}$`, v.ID)

	got, err := repo.Get(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, v.Name, got.Name)
	assert.Equal(t, v.SearchTerm, got.SearchTerm)
	assert.Equal(t, v.Filters, got.Filters)
	assert.Equal(t, v.VisibleColumns, got.VisibleColumns)
	assert.True(t, v.CreatedAt.Equal(got.CreatedAt))
}

func TestSave_UpsertsByID(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	v := &View{ID: "default-view", Name: "Default"}
	require.NoError(t, repo.Save(ctx, v))

	v.Name = "Renamed"
	v.Description = "everything"
	require.NoError(t, repo.Save(ctx, v))

	views, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "Renamed", views[0].Name)
	assert.Equal(t, "everything", views[0].Description)
	assert.Empty(t, views[0].Filters)
	assert.NotNil(t, views[0].Filters)
}

func TestSave_RequiresName(t *testing.T) {
	repo := setupRepo(t)
	assert.ErrorIs(t, repo.Save(context.Background(), &View{}), ErrInvalid)
}

func TestActiveView(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	id, err := repo.ActiveID(ctx)
	require.NoError(t, err)
	assert.Empty(t, id)

	assert.ErrorIs(t, repo.SetActive(ctx, "missing"), ErrNotFound)

	a := &View{Name: "A"}
	b := &View{Name: "B"}
	require.NoError(t, repo.Save(ctx, a))
	require.NoError(t, repo.Save(ctx, b))

	require.NoError(t, repo.SetActive(ctx, a.ID))
	require.NoError(t, repo.SetActive(ctx, b.ID))
	id, err = repo.ActiveID(ctx)
	require.NoError(t, err)
	assert.Equal(t, b.ID, id)

	require.NoError(t, repo.SetActive(ctx, ""))
	id, err = repo.ActiveID(ctx)
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestDelete_ClearsActive(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	a := &View{Name: "A"}
	b := &View{Name: "B"}
	require.NoError(t, repo.Save(ctx, a))
	require.NoError(t, repo.Save(ctx, b))
	require.NoError(t, repo.SetActive(ctx, a.ID))

	require.NoError(t, repo.Delete(ctx, b.ID))
	id, err := repo.ActiveID(ctx)
	require.NoError(t, err)
	assert.Equal(t, a.ID, id, "deleting another view keeps the active one")

	require.NoError(t, repo.Delete(ctx, a.ID))
	id, err = repo.ActiveID(ctx)
	require.NoError(t, err)
	assert.Empty(t, id)

	assert.ErrorIs(t, repo.Delete(ctx, a.ID), ErrNotFound)
	_, err = repo.Get(ctx, a.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
