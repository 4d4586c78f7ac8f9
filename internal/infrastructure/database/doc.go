// Package database provides the storage facade for OpsiMate Core.
//
// A single Handle interface fronts two backends:
//   - SQLite: an embedded file opened with WAL mode and one connection
//   - PostgreSQL: a pool of up to ten connections via lib/pq
//
// Callers write every query with positional "?" placeholders. The
// PostgreSQL backend rewrites them to "$1", "$2", ... before execution,
// so repositories never branch on the backend.
//
// Security Considerations:
//   - All queries use parameterised statements (no SQL injection)
//   - The SQLite file is chmod 0600 after opening
//   - The PostgreSQL password is never logged
//
// Usage:
//
//	db, err := database.Open(ctx, cfg.Database, log)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := database.Migrate(ctx, db); err != nil {
//	    return err
//	}
//
//	var n int
//	err = db.Prepare("SELECT COUNT(*) FROM users WHERE role = ?").Get(ctx, &n, "admin")
//
// Migration Strategy:
//
// Scripts live in one directory per backend under the migrations package
// and are named YYYYMMDD_HHMMSS_description.{up,down}.sql. Both directories
// must carry the same versions so the schemas stay equivalent.
package database
