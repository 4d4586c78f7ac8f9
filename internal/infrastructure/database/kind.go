package database

import "github.com/opsimate/opsimate-core/internal/infrastructure/config"

// Kind identifies a database backend.
type Kind string

// Supported backends.
const (
	// KindSQLite is the embedded, file-backed engine.
	KindSQLite Kind = config.DatabaseSQLite

	// KindPostgres is the client-server engine reached through a pool.
	KindPostgres Kind = config.DatabasePostgres
)

// ParseKind maps a database.type value to a Kind. Empty means sqlite.
// Unknown values are returned unchanged and rejected by Open.
func ParseKind(s string) Kind {
	if s == "" {
		return KindSQLite
	}
	return Kind(s)
}

// String implements fmt.Stringer.
func (k Kind) String() string {
	return string(k)
}
