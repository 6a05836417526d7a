package storage

import (
	"context"
	"fmt"
	"time"
)

// Dispatch kinds.
const (
	KindSchedule  = "schedule"
	KindHandshake = "handshake"
)

// Dispatch is one message handed to a device.
type Dispatch struct {
	ID          int64
	CycleID     uint64
	DeviceID    string
	Kind        string
	Origin      string
	Destination string
	Mode        string
	Failed      bool
	Payload     []byte // protobuf-encoded google.protobuf.Struct
	CreatedAt   time.Time
}

// RecordDispatch appends to the dispatch log and returns the row id.
func (db *DB) RecordDispatch(ctx context.Context, d Dispatch) (int64, error) {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	res, err := db.ExecContext(ctx,
		`INSERT INTO dispatches (cycle_id, device_id, kind, origin, destination, mode, failed, payload, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		int64(d.CycleID), d.DeviceID, d.Kind, d.Origin, d.Destination, d.Mode, d.Failed, d.Payload,
		d.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("insert dispatch: %w", err)
	}
	return res.LastInsertId()
}

// RecentDispatches returns the newest dispatches first. An empty deviceID
// matches every device.
func (db *DB) RecentDispatches(ctx context.Context, deviceID string, limit int) ([]Dispatch, error) {
	query := `SELECT id, cycle_id, device_id, kind, origin, destination, mode, failed, payload, created_at
		FROM dispatches`
	args := []any{}
	if deviceID != "" {
		query += ` WHERE device_id = ?`
		args = append(args, deviceID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("dispatches query: %w", err)
	}
	defer rows.Close()

	var out []Dispatch
	for rows.Next() {
		var (
			d       Dispatch
			cycleID int64
			created string
		)
		if err := rows.Scan(&d.ID, &cycleID, &d.DeviceID, &d.Kind, &d.Origin, &d.Destination,
			&d.Mode, &d.Failed, &d.Payload, &created); err != nil {
			return nil, fmt.Errorf("scan dispatch: %w", err)
		}
		d.CycleID = uint64(cycleID)
		d.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, d)
	}
	return out, rows.Err()
}

// PruneDispatches keeps only the newest keep rows.
func (db *DB) PruneDispatches(ctx context.Context, keep int) (int64, error) {
	res, err := db.ExecContext(ctx,
		`DELETE FROM dispatches WHERE id NOT IN (SELECT id FROM dispatches ORDER BY id DESC LIMIT ?)`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune dispatches: %w", err)
	}
	return res.RowsAffected()
}
