// Package migrations embeds the SQL migration files into the binary.
//
// Each backend has its own directory; versions must match across them.
package migrations

import (
	"embed"

	"github.com/opsimate/opsimate-core/internal/infrastructure/database"
)

//go:embed sqlite/*.sql postgres/*.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
}
