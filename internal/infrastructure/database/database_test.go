package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsimate/opsimate-core/internal/infrastructure/config"
)

type widget struct {
	ID   int64  `db:"id"`
	Name string `db:"name"`
}

func TestOpen_SQLite(t *testing.T) {
	t.Run("creates database file", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "test.db")

		db, err := Open(context.Background(), config.DatabaseConfig{Type: "sqlite", Path: dbPath}, nil)
		require.NoError(t, err)
		defer db.Close() //nolint:errcheck // test cleanup

		assert.FileExists(t, dbPath)
		assert.Equal(t, KindSQLite, db.Kind())
	})

	t.Run("creates missing parent directories", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "subdir", "nested", "test.db")

		db, err := Open(context.Background(), config.DatabaseConfig{Type: "sqlite", Path: dbPath}, nil)
		require.NoError(t, err)
		defer db.Close() //nolint:errcheck // test cleanup

		assert.DirExists(t, filepath.Dir(dbPath))
	})

	t.Run("empty type means sqlite", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "test.db")

		db, err := Open(context.Background(), config.DatabaseConfig{Path: dbPath}, nil)
		require.NoError(t, err)
		defer db.Close() //nolint:errcheck // test cleanup

		sqliteDB, ok := db.(*SQLiteDB)
		require.True(t, ok, "expected *SQLiteDB, got %T", db)
		assert.Equal(t, dbPath, sqliteDB.Path())
	})

	t.Run("relative path resolves against working directory", func(t *testing.T) {
		dir := t.TempDir()
		t.Chdir(dir)

		db, err := Open(context.Background(), config.DatabaseConfig{Path: "data/rel.db"}, nil)
		require.NoError(t, err)
		defer db.Close() //nolint:errcheck // test cleanup

		assert.FileExists(t, filepath.Join(dir, "data", "rel.db"))
	})

	t.Run("restricts file permissions", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "perm.db")

		db, err := Open(context.Background(), config.DatabaseConfig{Path: dbPath}, nil)
		require.NoError(t, err)
		defer db.Close() //nolint:errcheck // test cleanup

		info, err := os.Stat(dbPath)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(filePermissions), info.Mode().Perm())
	})
}

func TestOpen_InvalidConfiguration(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.DatabaseConfig
		want string
	}{
		{"unknown type", config.DatabaseConfig{Type: "mysql", Path: "x.db"}, "type=mysql"},
		{"sqlite without path", config.DatabaseConfig{Type: "sqlite"}, "type=sqlite"},
		{"postgres without block", config.DatabaseConfig{Type: "postgres"}, "type=postgres"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, err := Open(context.Background(), tt.cfg, nil)
			require.Error(t, err)
			assert.Nil(t, db)
			assert.ErrorIs(t, err, config.ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseKind(t *testing.T) {
	assert.Equal(t, KindSQLite, ParseKind(""))
	assert.Equal(t, KindSQLite, ParseKind("sqlite"))
	assert.Equal(t, KindPostgres, ParseKind("postgres"))
	assert.Equal(t, Kind("oracle"), ParseKind("oracle"))
}

func TestHealthCheck(t *testing.T) {
	db := openTestDB(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	assert.NoError(t, db.HealthCheck(ctx))
}

func TestClose(t *testing.T) {
	db, err := Open(context.Background(), config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "c.db")}, nil)
	require.NoError(t, err)

	require.NoError(t, db.Close())
	assert.Error(t, db.HealthCheck(context.Background()), "closed handle must not answer")
}

func TestStats(t *testing.T) {
	db := openTestDB(t)
	assert.Equal(t, 1, db.Stats().MaxOpenConnections, "SQLite uses a single writer")
}

func TestStatement_RunGetAll(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Exec(ctx, `
		CREATE TABLE widgets (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT NOT NULL);
		CREATE INDEX idx_widgets_name ON widgets(name);
	`))

	insert := db.Prepare("INSERT INTO widgets (name) VALUES (?)")
	res, err := insert.Run(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, Result{Changes: 1, LastInsertID: 1}, res)

	res, err = insert.Run(ctx, "beta")
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.LastInsertID)

	var got widget
	require.NoError(t, db.Prepare("SELECT id, name FROM widgets WHERE name = ?").Get(ctx, &got, "beta"))
	assert.Equal(t, widget{ID: 2, Name: "beta"}, got)

	var all []widget
	require.NoError(t, db.Prepare("SELECT id, name FROM widgets ORDER BY id").All(ctx, &all))
	assert.Equal(t, []widget{{1, "alpha"}, {2, "beta"}}, all)

	var count int
	require.NoError(t, db.Prepare("SELECT COUNT(*) FROM widgets").Get(ctx, &count))
	assert.Equal(t, 2, count)

	res, err = db.Prepare("UPDATE widgets SET name = ?").Run(ctx, "gamma")
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Changes)
}

func TestStatement_GetNoRows(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.Exec(ctx, "CREATE TABLE widgets (id INTEGER PRIMARY KEY, name TEXT)"))

	var got widget
	err := db.Prepare("SELECT id, name FROM widgets WHERE id = ?").Get(ctx, &got, 42)
	assert.ErrorIs(t, err, ErrNoRows)
}

func TestStatement_AllEmpty(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.Exec(ctx, "CREATE TABLE widgets (id INTEGER PRIMARY KEY, name TEXT)"))

	var all []widget
	require.NoError(t, db.Prepare("SELECT id, name FROM widgets").All(ctx, &all))
	assert.Empty(t, all)
}

func TestTransaction(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) Handle {
		t.Helper()
		db := openTestDB(t)
		require.NoError(t, db.Exec(ctx, "CREATE TABLE tx_test (id INTEGER PRIMARY KEY, value TEXT)"))
		return db
	}
	count := func(t *testing.T, db Handle) int {
		t.Helper()
		var n int
		require.NoError(t, db.Prepare("SELECT COUNT(*) FROM tx_test").Get(ctx, &n))
		return n
	}

	t.Run("commits on success", func(t *testing.T) {
		db := setup(t)
		err := db.Transaction(ctx, func(tx Queryer) error {
			_, err := tx.Prepare("INSERT INTO tx_test (value) VALUES (?)").Run(ctx, "committed")
			return err
		})
		require.NoError(t, err)
		assert.Equal(t, 1, count(t, db))
	})

	t.Run("rolls back on error", func(t *testing.T) {
		db := setup(t)
		sentinel := errors.New("abort")
		err := db.Transaction(ctx, func(tx Queryer) error {
			if _, err := tx.Prepare("INSERT INTO tx_test (value) VALUES (?)").Run(ctx, "discarded"); err != nil {
				return err
			}
			return sentinel
		})
		assert.ErrorIs(t, err, sentinel)
		assert.Equal(t, 0, count(t, db))
	})

	t.Run("rolls back and re-raises on panic", func(t *testing.T) {
		db := setup(t)
		assert.PanicsWithValue(t, "boom", func() {
			_ = db.Transaction(ctx, func(tx Queryer) error { //nolint:errcheck // panics
				_, _ = tx.Prepare("INSERT INTO tx_test (value) VALUES (?)").Run(ctx, "discarded") //nolint:errcheck // panics next
				panic("boom")
			})
		})
		assert.Equal(t, 0, count(t, db))
	})

	t.Run("handle usable after rollback", func(t *testing.T) {
		db := setup(t)
		_ = db.Transaction(ctx, func(Queryer) error { return errors.New("abort") }) //nolint:errcheck // asserted below
		_, err := db.Prepare("INSERT INTO tx_test (value) VALUES (?)").Run(ctx, "after")
		require.NoError(t, err)
		assert.Equal(t, 1, count(t, db))
	})
}

func TestIsUniqueViolation(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.Exec(ctx, "CREATE TABLE uniq (email TEXT UNIQUE)"))

	insert := db.Prepare("INSERT INTO uniq (email) VALUES (?)")
	_, err := insert.Run(ctx, "a@example.com")
	require.NoError(t, err)

	_, err = insert.Run(ctx, "a@example.com")
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))

	assert.False(t, IsUniqueViolation(nil))
	assert.False(t, IsUniqueViolation(errors.New("other")))
}

// openTestDB creates a temporary SQLite database closed at test end.
func openTestDB(t *testing.T) Handle {
	t.Helper()

	db, err := Open(context.Background(), config.DatabaseConfig{
		Type: "sqlite",
		Path: filepath.Join(t.TempDir(), "test.db"),
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup

	return db
}
