package database

import (
	"context"
	"os"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsimate/opsimate-core/internal/infrastructure/config"
)

func pgConfig(host string, port int, db, user, password, sslMode string) config.PostgresConfig {
	return config.PostgresConfig{
		Host:     host,
		Port:     port,
		Database: db,
		User:     user,
		Password: password,
		SSLMode:  sslMode,
	}
}

// openPostgresTestDB connects to the server named by
// OPSIMATE_TEST_POSTGRES_HOST, skipping the test when it is unset.
func openPostgresTestDB(t *testing.T) Handle {
	t.Helper()

	host := os.Getenv("OPSIMATE_TEST_POSTGRES_HOST")
	if host == "" {
		t.Skip("OPSIMATE_TEST_POSTGRES_HOST not set")
	}

	port := 5432
	if v := os.Getenv("OPSIMATE_TEST_POSTGRES_PORT"); v != "" {
		n, err := strconv.Atoi(v)
		require.NoError(t, err)
		port = n
	}

	cfg := pgConfig(host, port,
		envOrDefault("OPSIMATE_TEST_POSTGRES_DB", "opsimate_test"),
		envOrDefault("OPSIMATE_TEST_POSTGRES_USER", "opsimate"),
		envOrDefault("OPSIMATE_TEST_POSTGRES_PASSWORD", "opsimate_password"),
		"")

	db, err := Open(context.Background(), config.DatabaseConfig{Type: "postgres", Postgres: &cfg}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup

	return db
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func TestPostgres_StatementAndTransaction(t *testing.T) {
	db := openPostgresTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Exec(ctx, `
		DROP TABLE IF EXISTS pg_widgets;
		CREATE TABLE pg_widgets (id BIGSERIAL PRIMARY KEY, name TEXT NOT NULL UNIQUE);
	`))
	t.Cleanup(func() { _ = db.Exec(context.Background(), "DROP TABLE IF EXISTS pg_widgets") }) //nolint:errcheck // test cleanup

	assert.Equal(t, KindPostgres, db.Kind())
	assert.Equal(t, 10, db.Stats().MaxOpenConnections)

	res, err := db.Prepare("INSERT INTO pg_widgets (name) VALUES (?) RETURNING id").Run(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Changes)
	assert.Positive(t, res.LastInsertID)

	res, err = db.Prepare("INSERT INTO pg_widgets (name) VALUES (?)").Run(ctx, "beta")
	require.NoError(t, err)
	assert.Equal(t, Result{Changes: 1}, res)

	var got widget
	require.NoError(t, db.Prepare("SELECT id, name FROM pg_widgets WHERE name = ? AND id > ?").Get(ctx, &got, "beta", 0))
	assert.Equal(t, "beta", got.Name)

	_, err = db.Prepare("INSERT INTO pg_widgets (name) VALUES (?)").Run(ctx, "beta")
	assert.True(t, IsUniqueViolation(err))

	err = db.Transaction(ctx, func(tx Queryer) error {
		if _, err := tx.Prepare("INSERT INTO pg_widgets (name) VALUES (?)").Run(ctx, "gamma"); err != nil {
			return err
		}
		_, err := tx.Prepare("INSERT INTO pg_widgets (name) VALUES (?)").Run(ctx, "alpha")
		return err
	})
	require.Error(t, err)

	var count int
	require.NoError(t, db.Prepare("SELECT COUNT(*) FROM pg_widgets").Get(ctx, &count))
	assert.Equal(t, 2, count, "failed transaction must leave no rows behind")
}

func TestPostgres_RunCountsAffectedRowsWithoutReturning(t *testing.T) {
	db := openPostgresTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Exec(ctx, `
		DROP TABLE IF EXISTS pg_settings;
		CREATE TABLE pg_settings (name TEXT PRIMARY KEY, value TEXT NOT NULL);
		INSERT INTO pg_settings (name, value) VALUES ('returning_user', 'a');
	`))
	t.Cleanup(func() { _ = db.Exec(context.Background(), "DROP TABLE IF EXISTS pg_settings") }) //nolint:errcheck // test cleanup

	res, err := db.Prepare("UPDATE pg_settings SET value = ? WHERE name = 'returning_user'").Run(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, Result{Changes: 1}, res)

	res, err = db.Prepare("DELETE FROM pg_settings WHERE name = 'returning_user'").Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{Changes: 1}, res)
}
