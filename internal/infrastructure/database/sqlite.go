package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/opsimate/opsimate-core/internal/infrastructure/logging"
)

// SQLite connection settings.
const (
	// dirPermissions is the permission mode for the database directory.
	dirPermissions = 0750

	// filePermissions is the permission mode for the database file.
	filePermissions = 0600

	// busyTimeoutMS is how long a writer waits for a lock.
	busyTimeoutMS = 5000

	// sqliteConnMaxIdleTime is how long the idle connection is kept open.
	sqliteConnMaxIdleTime = 30 * time.Minute
)

// SQLiteDB is the embedded, file-backed backend.
//
// A single connection is used so writes are serialised. Statements issued
// on the handle from inside a Transaction callback block until the
// transaction ends; use the tx argument instead.
type SQLiteDB struct {
	conn
	path string
}

var _ Handle = (*SQLiteDB)(nil)

// openSQLite creates the parent directory of path and opens the file.
// Relative paths are resolved against the working directory.
func openSQLite(ctx context.Context, path string, log *logging.Logger) (*SQLiteDB, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving database path: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(abs), dirPermissions); err != nil {
		log.Error("failed to create database directory", "path", abs, "error", err)
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	// See: https://github.com/mattn/go-sqlite3#connection-string
	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d&_foreign_keys=on&_journal_mode=WAL&_synchronous=NORMAL",
		abs, busyTimeoutMS)

	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		log.Error("failed to open sqlite database", "path", abs, "error", err)
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(sqliteConnMaxIdleTime)

	if err := pingContext(ctx, db); err != nil {
		db.Close() //nolint:errcheck // best effort cleanup on error path
		log.Error("failed to connect to sqlite database", "path", abs, "error", err)
		return nil, fmt.Errorf("verifying sqlite connection: %w", err)
	}

	_ = os.Chmod(abs, filePermissions) //nolint:errcheck // file exists after ping; failure is not fatal

	log.Info("sqlite database connected", "path", abs)

	return &SQLiteDB{
		conn: conn{db: db, dialect: sqliteDialect{}, kind: KindSQLite, log: log},
		path: abs,
	}, nil
}

// Path returns the absolute path of the database file.
func (db *SQLiteDB) Path() string {
	return db.path
}

type sqliteDialect struct{}

func (sqliteDialect) prepare(ext sqlx.ExtContext, query string) Statement {
	return &statement{ext: ext, query: query, lastInsertID: true}
}
