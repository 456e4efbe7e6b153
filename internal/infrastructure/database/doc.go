// Package database opens the relay's SQLite database and applies the
// embedded schema migrations. The database backs the audit log only;
// users and devices live in JSON registry files.
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// All queries use parameterised statements and the file is created 0600.
package database
