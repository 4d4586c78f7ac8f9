package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/opsimate/opsimate-core/internal/infrastructure/config"
	"github.com/opsimate/opsimate-core/internal/infrastructure/logging"
)

// connectionTimeout bounds the connectivity check performed by Open.
const connectionTimeout = 5 * time.Second

// Result reports the effect of a write statement.
type Result struct {
	// Changes is the number of rows affected.
	Changes int64

	// LastInsertID is the rowid of the last inserted row on SQLite. On
	// PostgreSQL it is the first column of the first row returned by a
	// RETURNING clause, or zero when the statement has none.
	LastInsertID int64
}

// Statement is a prepared query. Queries are written with positional "?"
// placeholders regardless of backend.
type Statement interface {
	// Run executes a write and reports the affected row count.
	Run(ctx context.Context, args ...any) (Result, error)

	// Get scans the first row into dest. It returns an error wrapping
	// ErrNoRows when nothing matched.
	Get(ctx context.Context, dest any, args ...any) error

	// All scans every row into dest, which must be a pointer to a slice.
	All(ctx context.Context, dest any, args ...any) error
}

// Queryer is the query surface shared by a Handle and an open transaction.
type Queryer interface {
	// Prepare returns a statement for query. Preparation is lazy; errors
	// surface when the statement is executed.
	Prepare(query string) Statement

	// Exec runs one or more statements with no parameters and no result.
	// It is used for DDL and migration scripts.
	Exec(ctx context.Context, query string) error
}

// Handle is a connection to one of the supported backends. The set of
// implementations is closed: *SQLiteDB and *PostgresDB.
//
// Thread Safety: all methods are safe for concurrent use.
type Handle interface {
	Queryer

	// Transaction runs fn inside BEGIN/COMMIT. If fn returns an error or
	// panics the transaction is rolled back; a panic is re-raised after
	// rollback. fn must issue its queries through tx, not the Handle.
	Transaction(ctx context.Context, fn func(tx Queryer) error) error

	// Close releases the connection or pool.
	Close() error

	// Kind reports which backend this handle talks to.
	Kind() Kind

	// HealthCheck verifies the backend answers a trivial query.
	HealthCheck(ctx context.Context) error

	// Stats returns connection pool statistics.
	Stats() sql.DBStats

	sealed()
}

// Open connects to the backend selected by cfg.Type.
//
// An empty type means sqlite. A sqlite config without a path, a postgres
// config without its postgres block, or any other type yields an error
// wrapping config.ErrInvalidConfig.
func Open(ctx context.Context, cfg config.DatabaseConfig, log *logging.Logger) (Handle, error) {
	if log == nil {
		log = logging.Nop()
	}

	kind := ParseKind(cfg.Type)
	switch {
	case kind == KindPostgres && cfg.Postgres != nil:
		return openPostgres(ctx, *cfg.Postgres, log)
	case kind == KindSQLite && cfg.Path != "":
		return openSQLite(ctx, cfg.Path, log)
	default:
		return nil, fmt.Errorf("%w: unsupported database configuration: type=%s", config.ErrInvalidConfig, kind)
	}
}

// dialect captures the per-backend differences in statement handling.
type dialect interface {
	prepare(ext sqlx.ExtContext, query string) Statement
}

// conn holds the state shared by both backends.
type conn struct {
	db      *sqlx.DB
	dialect dialect
	kind    Kind
	log     *logging.Logger
}

func (c *conn) Prepare(query string) Statement {
	return c.dialect.prepare(c.db, query)
}

func (c *conn) Exec(ctx context.Context, query string) error {
	return execScript(ctx, c.db, query)
}

func (c *conn) Kind() Kind {
	return c.kind
}

func (c *conn) Stats() sql.DBStats {
	return c.db.Stats()
}

func (c *conn) HealthCheck(ctx context.Context) error {
	var one int
	if err := c.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("health check query: %w", err)
	}
	return nil
}

func (c *conn) Close() error {
	if c.db == nil {
		return nil
	}
	if err := c.db.Close(); err != nil {
		return fmt.Errorf("closing %s database: %w", c.kind, err)
	}
	return nil
}

func (c *conn) Transaction(ctx context.Context, fn func(tx Queryer) error) (err error) {
	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				c.log.Error("rollback after panic failed", "error", rbErr)
			}
			panic(p)
		}
	}()

	if err := fn(&txQueryer{tx: tx, dialect: c.dialect}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rolling back transaction: %w", rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (*conn) sealed() {}

// txQueryer routes statements through an open transaction.
type txQueryer struct {
	tx      *sqlx.Tx
	dialect dialect
}

func (q *txQueryer) Prepare(query string) Statement {
	return q.dialect.prepare(q.tx, query)
}

func (q *txQueryer) Exec(ctx context.Context, query string) error {
	return execScript(ctx, q.tx, query)
}

func execScript(ctx context.Context, ext sqlx.ExecerContext, query string) error {
	if _, err := ext.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("executing script: %w", err)
	}
	return nil
}

// pingContext verifies connectivity within connectionTimeout.
func pingContext(ctx context.Context, db *sqlx.DB) error {
	ctx, cancel := context.WithTimeout(ctx, connectionTimeout)
	defer cancel()
	return db.PingContext(ctx)
}
