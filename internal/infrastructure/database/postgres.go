package database

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/opsimate/opsimate-core/internal/infrastructure/config"
	"github.com/opsimate/opsimate-core/internal/infrastructure/logging"
)

// PostgreSQL pool settings.
const (
	pgMaxConns        = 10
	pgConnMaxIdleTime = 30 * time.Second
	pgConnectTimeout  = 2 // seconds
	pgDefaultSSLMode  = "disable"
)

// PostgresDB is the client-server backend, reached through a pool of up
// to ten connections.
type PostgresDB struct {
	conn
	host     string
	database string
}

var _ Handle = (*PostgresDB)(nil)

func openPostgres(ctx context.Context, cfg config.PostgresConfig, log *logging.Logger) (*PostgresDB, error) {
	db, err := sqlx.Open("postgres", postgresDSN(cfg))
	if err != nil {
		log.Error("failed to open postgres pool", "host", cfg.Host, "database", cfg.Database, "error", err)
		return nil, fmt.Errorf("opening postgres pool: %w", err)
	}

	db.SetMaxOpenConns(pgMaxConns)
	db.SetMaxIdleConns(pgMaxConns)
	db.SetConnMaxIdleTime(pgConnMaxIdleTime)

	if err := pingContext(ctx, db); err != nil {
		db.Close() //nolint:errcheck // best effort cleanup on error path
		log.Error("failed to connect to postgres", "host", cfg.Host, "port", cfg.Port, "database", cfg.Database, "error", err)
		return nil, fmt.Errorf("connecting to postgres at %s:%d: %w", cfg.Host, cfg.Port, err)
	}

	log.Info("postgres database connected", "host", cfg.Host, "port", cfg.Port, "database", cfg.Database)

	return &PostgresDB{
		conn:     conn{db: db, dialect: postgresDialect{}, kind: KindPostgres, log: log},
		host:     cfg.Host,
		database: cfg.Database,
	}, nil
}

// Database returns the name of the connected database.
func (db *PostgresDB) Database() string {
	return db.database
}

// postgresDSN builds a lib/pq key/value connection string.
func postgresDSN(cfg config.PostgresConfig) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = pgDefaultSSLMode
	}

	pairs := []struct{ k, v string }{
		{"host", cfg.Host},
		{"port", strconv.Itoa(cfg.Port)},
		{"dbname", cfg.Database},
		{"user", cfg.User},
		{"password", cfg.Password},
		{"sslmode", sslMode},
		{"connect_timeout", strconv.Itoa(pgConnectTimeout)},
	}

	parts := make([]string, 0, len(pairs))
	for _, p := range pairs {
		if p.v == "" {
			continue
		}
		parts = append(parts, p.k+"="+quoteDSNValue(p.v))
	}
	return strings.Join(parts, " ")
}

// quoteDSNValue quotes v when it contains characters significant to the
// key/value connection string format.
func quoteDSNValue(v string) string {
	if !strings.ContainsAny(v, ` '\`) {
		return v
	}
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(v) + "'"
}

type postgresDialect struct{}

func (postgresDialect) prepare(ext sqlx.ExtContext, query string) Statement {
	return &statement{
		ext:       ext,
		query:     RewritePlaceholders(query),
		returning: hasReturning(query),
	}
}
