package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"commuterbliss/internal/config"
)

// SavePreferences stores the settings last handed over for a device.
func (db *DB) SavePreferences(ctx context.Context, deviceID string, p config.Preferences) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}
	_, err = db.ExecContext(ctx,
		`INSERT OR REPLACE INTO device_preferences (device_id, prefs, updated_at) VALUES (?, ?, ?)`,
		deviceID, string(data), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("save preferences for %s: %w", deviceID, err)
	}
	return nil
}

// LoadPreferences returns the stored settings for a device. ok is false when
// the device never handed any over.
func (db *DB) LoadPreferences(ctx context.Context, deviceID string) (p config.Preferences, ok bool, err error) {
	var data string
	err = db.QueryRowContext(ctx,
		`SELECT prefs FROM device_preferences WHERE device_id = ?`, deviceID).Scan(&data)
	if err == sql.ErrNoRows {
		return p, false, nil
	}
	if err != nil {
		return p, false, fmt.Errorf("load preferences for %s: %w", deviceID, err)
	}
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return p, false, fmt.Errorf("decode preferences for %s: %w", deviceID, err)
	}
	return p, true, nil
}
