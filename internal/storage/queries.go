package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"commuterbliss/internal/stations"
)

// Metadata keys.
const (
	keyClockOffset     = "clock_offset_ms"
	keyClockVerifiedAt = "clock_verified_at"
	keyStationsAt      = "stations_imported_at"
)

// GetMetadata retrieves a value from the metadata table. A missing key yields "".
func (db *DB) GetMetadata(ctx context.Context, key string) (string, error) {
	var value string
	err := db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// SetMetadata stores a key-value pair in the metadata table.
func (db *DB) SetMetadata(ctx context.Context, key, value string) error {
	_, err := db.ExecContext(ctx,
		`INSERT OR REPLACE INTO metadata (key, value) VALUES (?, ?)`,
		key, value)
	return err
}

// SaveClockOffset persists the last verified clock offset.
func (db *DB) SaveClockOffset(ctx context.Context, ms int64, verified time.Time) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO metadata (key, value) VALUES (?, ?)`,
		keyClockOffset, strconv.FormatInt(ms, 10)); err != nil {
		return fmt.Errorf("set clock offset: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO metadata (key, value) VALUES (?, ?)`,
		keyClockVerifiedAt, verified.UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("set clock verified_at: %w", err)
	}
	return tx.Commit()
}

// LoadClockOffset returns the persisted offset. ok is false when none was saved.
func (db *DB) LoadClockOffset(ctx context.Context) (ms int64, verified time.Time, ok bool, err error) {
	raw, err := db.GetMetadata(ctx, keyClockOffset)
	if err != nil || raw == "" {
		return 0, time.Time{}, false, err
	}
	ms, err = strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, time.Time{}, false, fmt.Errorf("parse clock offset %q: %w", raw, err)
	}
	if at, _ := db.GetMetadata(ctx, keyClockVerifiedAt); at != "" {
		verified, _ = time.Parse(time.RFC3339Nano, at)
	}
	return ms, verified, true, nil
}

// ImportStations replaces the station table in a single transaction.
func (db *DB) ImportStations(ctx context.Context, list []stations.Station) error {
	start := time.Now()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM stations`); err != nil {
		return fmt.Errorf("clear stations: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO stations (code, name, lat, lon) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare stations: %w", err)
	}
	defer stmt.Close()

	for _, s := range list {
		if _, err := stmt.ExecContext(ctx, stations.NormalizeCode(s.Code), s.Name, s.Lat, s.Lon); err != nil {
			return fmt.Errorf("insert station %s: %w", s.Code, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO metadata (key, value) VALUES (?, ?)`,
		keyStationsAt, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("set %s: %w", keyStationsAt, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	db.logger.Info("station import complete",
		"duration", time.Since(start).Round(time.Millisecond),
		"stations", len(list),
	)
	return nil
}

// LoadStations returns every stored station ordered by code.
func (db *DB) LoadStations(ctx context.Context) ([]stations.Station, error) {
	rows, err := db.QueryContext(ctx, `SELECT code, name, lat, lon FROM stations ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("stations query: %w", err)
	}
	defer rows.Close()

	var list []stations.Station
	for rows.Next() {
		var s stations.Station
		if err := rows.Scan(&s.Code, &s.Name, &s.Lat, &s.Lon); err != nil {
			return nil, fmt.Errorf("scan station: %w", err)
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

// StationCount returns the number of stored stations.
func (db *DB) StationCount(ctx context.Context) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM stations`).Scan(&n)
	return n, err
}

// EnsureStations imports fallback when the station table is empty and
// returns the stored stations.
func (db *DB) EnsureStations(ctx context.Context, fallback func() ([]stations.Station, error)) ([]stations.Station, error) {
	n, err := db.StationCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("count stations: %w", err)
	}
	if n == 0 {
		list, err := fallback()
		if err != nil {
			return nil, fmt.Errorf("load fallback stations: %w", err)
		}
		db.logger.Info("station table empty, importing defaults", "stations", len(list))
		if err := db.ImportStations(ctx, list); err != nil {
			return nil, err
		}
	}
	return db.LoadStations(ctx)
}
