// Package database owns the SQLite file behind the sighting log.
//
// Open applies the busy-timeout, foreign-key and WAL pragmas and pins
// the pool to a single connection; Migrate applies the embedded schema
// (see the migrations package) with each migration in its own
// transaction.
//
//	db, err := database.Open(database.Config{Path: "data/tagbridge.db", WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migrations are additive: new columns are nullable or defaulted, and
// every up file ships a matching down file so MigrateDown can walk the
// schema back in development.
//
// The database file is restricted to owner read/write (0600).
package database
