// Package database provides SQLite database connectivity for NearClip Core.
//
// This package manages:
//   - Database connection with WAL mode for concurrent reads
//   - Schema migrations embedded into the binary
//   - Connection lifecycle and health checks
//
// SQLite allows a single writer; the pool is limited to one connection so
// writes from different goroutines queue instead of failing with
// "database is locked".
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
