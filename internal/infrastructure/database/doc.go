// Package database provides the device's local SQLite store.
//
// It owns connection setup (WAL mode, busy timeout, 0600 file permissions)
// and forward/backward schema migrations loaded from an fs.FS. The
// persistence adapters in internal/store sit on top of it.
//
// Usage:
//
//	db, err := database.Open(ctx, cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migrations are additive: new columns are nullable or carry defaults, and
// each .up.sql file ships with a .down.sql counterpart.
package database
