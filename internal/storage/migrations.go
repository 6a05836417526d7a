package storage

import "fmt"

// migrate creates the schema if it doesn't exist.
func (db *DB) migrate() error {
	for i, stmt := range migrations {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	db.logger.Debug("database migrations applied")
	return nil
}

var migrations = []string{
	// Stations (CRS code, display name, coordinates)
	`CREATE TABLE IF NOT EXISTS stations (
		code TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		lat  REAL NOT NULL,
		lon  REAL NOT NULL
	)`,

	// Service metadata (clock offset, stations_imported_at, etc.)
	`CREATE TABLE IF NOT EXISTS metadata (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,

	// One row per message handed to a device
	`CREATE TABLE IF NOT EXISTS dispatches (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		cycle_id    INTEGER NOT NULL,
		device_id   TEXT NOT NULL,
		kind        TEXT NOT NULL,
		origin      TEXT NOT NULL DEFAULT '',
		destination TEXT NOT NULL DEFAULT '',
		mode        TEXT NOT NULL DEFAULT '',
		failed      INTEGER NOT NULL DEFAULT 0,
		payload     BLOB,
		created_at  TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_dispatches_device ON dispatches(device_id, id)`,

	// Settings handed over per device
	`CREATE TABLE IF NOT EXISTS device_preferences (
		device_id  TEXT PRIMARY KEY,
		prefs      TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
}
