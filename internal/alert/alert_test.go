package alert

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsimate/opsimate-core/internal/infrastructure/config"
	"github.com/opsimate/opsimate-core/internal/infrastructure/database"
	_ "github.com/opsimate/opsimate-core/migrations" // registers schema
)

func setupRepo(t *testing.T) *SQLRepository {
	t.Helper()

	ctx := context.Background()
	db, err := database.Open(ctx, config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "alerts.db")}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup
	require.NoError(t, database.Migrate(ctx, db))

	return NewSQLRepository(db)
}

func TestUpsert_InsertsAndRefreshes(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	a := &Alert{ID: "a1", Tag: "db", AlertName: "HighCPU", Summary: "cpu > 90%", StartsAt: start}
	require.NoError(t, repo.Upsert(ctx, a))

	got, err := repo.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "firing", got.Status)
	assert.Equal(t, "cpu > 90%", got.Summary)
	assert.True(t, got.StartsAt.Equal(start))
	assert.False(t, got.IsDismissed)

	require.NoError(t, repo.SetDismissed(ctx, "a1", true))

	a.Status = "resolved"
	a.Summary = ""
	require.NoError(t, repo.Upsert(ctx, a))

	got, err = repo.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "resolved", got.Status)
	assert.Empty(t, got.Summary)
	assert.True(t, got.IsDismissed, "re-ingest must not clear dismissal")
}

func TestUpsert_Validation(t *testing.T) {
	repo := setupRepo(t)

	err := repo.Upsert(context.Background(), &Alert{ID: " "})
	require.ErrorIs(t, err, ErrInvalid)
	assert.Contains(t, err.Error(), "id, tag, alertName")
}

func TestSetDismissed(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.Upsert(ctx, &Alert{ID: "a1", Tag: "web", AlertName: "Down"}))

	require.NoError(t, repo.SetDismissed(ctx, "a1", true))
	got, err := repo.Get(ctx, "a1")
	require.NoError(t, err)
	assert.True(t, got.IsDismissed)

	require.NoError(t, repo.SetDismissed(ctx, "a1", false))
	got, err = repo.Get(ctx, "a1")
	require.NoError(t, err)
	assert.False(t, got.IsDismissed)

	assert.ErrorIs(t, repo.SetDismissed(ctx, "missing", true), ErrNotFound)
}

func TestListAndDelete(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	older := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)
	require.NoError(t, repo.Upsert(ctx, &Alert{ID: "old", Tag: "t", AlertName: "A", StartsAt: older}))
	require.NoError(t, repo.Upsert(ctx, &Alert{ID: "new", Tag: "t", AlertName: "B", StartsAt: newer}))

	alerts, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	assert.Equal(t, "new", alerts[0].ID)

	require.NoError(t, repo.Delete(ctx, "old"))
	assert.ErrorIs(t, repo.Delete(ctx, "old"), ErrNotFound)

	_, err = repo.Get(ctx, "old")
	assert.ErrorIs(t, err, ErrNotFound)
}
