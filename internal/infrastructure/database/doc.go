// Package database provides the SQLite store for the bridge's own state:
// the device catalogue, persistence rules and import definitions.
//
// Open configures WAL mode, a busy timeout and foreign keys, and restricts
// the file to 0600. Migrate applies the embedded *.up.sql files registered
// by the migrations package, one transaction per file.
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migrations are additive: new columns are nullable or have defaults.
package database
