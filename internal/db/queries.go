package db

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"coldchain/internal/models"
)

// SaveSnapshot appends a telemetry reading and fills in its id
func (d *DB) SaveSnapshot(ctx context.Context, s *models.Snapshot) error {
	return d.pool.QueryRow(ctx,
		"INSERT INTO snapshots (device_id, batch_code, ts, payload) VALUES ($1, $2, $3, $4) RETURNING id",
		s.DeviceID, s.BatchCode, s.Timestamp, s.Payload).Scan(&s.ID)
}

// RecentSnapshots fetches up to n readings of a device, newest first
func (d *DB) RecentSnapshots(ctx context.Context, deviceID string, n int) ([]models.Snapshot, error) {
	rows, err := d.pool.Query(ctx,
		"SELECT id, device_id, batch_code, ts, payload FROM snapshots WHERE device_id = $1 ORDER BY ts DESC, id DESC LIMIT $2",
		deviceID, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snaps []models.Snapshot
	for rows.Next() {
		var s models.Snapshot
		if err := rows.Scan(&s.ID, &s.DeviceID, &s.BatchCode, &s.Timestamp, &s.Payload); err != nil {
			return nil, err
		}
		snaps = append(snaps, s)
	}
	return snaps, rows.Err()
}

// LastSeenAll returns the newest snapshot time of every device
func (d *DB) LastSeenAll(ctx context.Context) ([]models.LastSeen, error) {
	rows, err := d.pool.Query(ctx, "SELECT device_id, MAX(ts) FROM snapshots GROUP BY device_id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var seen []models.LastSeen
	for rows.Next() {
		var ls models.LastSeen
		if err := rows.Scan(&ls.DeviceID, &ls.At); err != nil {
			return nil, err
		}
		seen = append(seen, ls)
	}
	return seen, rows.Err()
}

// DevicesWithSnapshots lists devices holding at least minCount readings
func (d *DB) DevicesWithSnapshots(ctx context.Context, minCount int) ([]string, error) {
	rows, err := d.pool.Query(ctx,
		"SELECT device_id FROM snapshots GROUP BY device_id HAVING COUNT(*) >= $1", minCount)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

const transitionTypes = "('" + models.EventPeltierOn + "', '" + models.EventPeltierOff + "')"

// LatestTransition fetches the newest peltier_on/peltier_off event of a
// device. It returns nil without error when the device never transitioned.
func (d *DB) LatestTransition(ctx context.Context, deviceID string) (*models.Event, error) {
	var e models.Event
	err := d.pool.QueryRow(ctx,
		"SELECT id, device_id, batch_code, type, payload, actor, ts FROM events WHERE device_id = $1 AND type IN "+
			transitionTypes+" ORDER BY ts DESC LIMIT 1",
		deviceID).Scan(&e.ID, &e.DeviceID, &e.BatchCode, &e.Type, &e.Payload, &e.Actor, &e.Timestamp)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}

// AppendTransition stores a transition event and mirrors the implied setting
// into device_state within one transaction
func (d *DB) AppendTransition(ctx context.Context, e *models.Event) error {
	return d.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			"INSERT INTO events (id, device_id, batch_code, type, payload, actor, ts) VALUES ($1, $2, $3, $4, $5, $6, $7)",
			e.ID, e.DeviceID, e.BatchCode, e.Type, e.Payload, e.Actor, e.Timestamp); err != nil {
			return err
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO device_state (device_id, setting, updated_at) VALUES ($1, $2, $3)
			 ON CONFLICT (device_id) DO UPDATE SET setting = EXCLUDED.setting, updated_at = EXCLUDED.updated_at`,
			e.DeviceID, string(e.Setting()), e.Timestamp)
		return err
	})
}

// ListEvents fetches the newest events of a device, optionally of one type
func (d *DB) ListEvents(ctx context.Context, deviceID, eventType string, limit int) ([]models.Event, error) {
	rows, err := d.pool.Query(ctx,
		`SELECT id, device_id, batch_code, type, payload, actor, ts FROM events
		 WHERE device_id = $1 AND ($2 = '' OR type = $2) ORDER BY ts DESC LIMIT $3`,
		deviceID, eventType, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		var e models.Event
		if err := rows.Scan(&e.ID, &e.DeviceID, &e.BatchCode, &e.Type, &e.Payload, &e.Actor, &e.Timestamp); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// GetDeviceState fetches the cached state row of a device
func (d *DB) GetDeviceState(ctx context.Context, deviceID string) (*models.DeviceState, error) {
	var s models.DeviceState
	var setting string
	err := d.pool.QueryRow(ctx,
		`SELECT device_id, setting, fan, target_temp, last_cmd_id, last_ack_at, last_location, updated_at
		 FROM device_state WHERE device_id = $1`, deviceID).
		Scan(&s.DeviceID, &setting, &s.Fan, &s.TargetTemp, &s.LastCmdID, &s.LastAckAt, &s.LastLocation, &s.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	s.Setting = models.Setting(setting)
	return &s, nil
}

// UpdateLastLocation records the last gps fix, creating the row if needed
func (d *DB) UpdateLastLocation(ctx context.Context, deviceID string, location json.RawMessage, at time.Time) error {
	_, err := d.pool.Exec(ctx,
		`INSERT INTO device_state (device_id, last_location, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (device_id) DO UPDATE SET last_location = EXCLUDED.last_location, updated_at = EXCLUDED.updated_at`,
		deviceID, location, at)
	return err
}

// ApplyAck merges an acknowledgment into device_state in a single statement
func (d *DB) ApplyAck(ctx context.Context, deviceID string, u models.AckUpdate) error {
	var setting *string
	if u.Setting != nil {
		s := string(*u.Setting)
		setting = &s
	}
	_, err := d.pool.Exec(ctx,
		`INSERT INTO device_state (device_id, setting, fan, target_temp, last_cmd_id, last_ack_at, updated_at)
		 VALUES ($1, COALESCE($2, 'UNKNOWN'), $3, $4, $5, $6, $6)
		 ON CONFLICT (device_id) DO UPDATE SET
		   setting = COALESCE($2, device_state.setting),
		   fan = COALESCE($3, device_state.fan),
		   target_temp = COALESCE($4, device_state.target_temp),
		   last_cmd_id = $5,
		   last_ack_at = $6,
		   updated_at = $6`,
		deviceID, setting, u.Fan, u.TargetTemp, u.CmdID, u.AckAt)
	return err
}

// GetThreshold fetches the hysteresis configuration of a device
func (d *DB) GetThreshold(ctx context.Context, deviceID string) (*models.Threshold, error) {
	var t models.Threshold
	err := d.pool.QueryRow(ctx,
		"SELECT device_id, temp_on, temp_off, moisture_min, updated_at FROM device_thresholds WHERE device_id = $1",
		deviceID).Scan(&t.DeviceID, &t.TempOn, &t.TempOff, &t.MoistureMin, &t.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

// UpsertThreshold stores a hysteresis configuration as given
func (d *DB) UpsertThreshold(ctx context.Context, t models.Threshold) error {
	_, err := d.pool.Exec(ctx,
		`INSERT INTO device_thresholds (device_id, temp_on, temp_off, moisture_min, updated_at) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (device_id) DO UPDATE SET temp_on = EXCLUDED.temp_on, temp_off = EXCLUDED.temp_off,
		   moisture_min = EXCLUDED.moisture_min, updated_at = EXCLUDED.updated_at`,
		t.DeviceID, t.TempOn, t.TempOff, t.MoistureMin, t.UpdatedAt)
	return err
}
