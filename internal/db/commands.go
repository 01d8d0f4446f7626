package db

import (
	"context"
	"time"

	"coldchain/internal/models"
)

// SaveCommand records an outbound command and fills in its id
func (d *DB) SaveCommand(ctx context.Context, c *models.Command) error {
	return d.pool.QueryRow(ctx,
		"INSERT INTO commands (cmd_id, device_id, kind, payload, result, created_at) VALUES ($1, $2, $3, $4, $5, $6) RETURNING id",
		c.CmdID, c.DeviceID, c.Kind, c.Payload, string(c.Result), c.CreatedAt).Scan(&c.ID)
}

// UpdateCommandResult sets the delivery result of a command. It reports false
// when no command carries the correlation id.
func (d *DB) UpdateCommandResult(ctx context.Context, cmdID string, result models.CommandResult) (bool, error) {
	tag, err := d.pool.Exec(ctx, "UPDATE commands SET result = $2 WHERE cmd_id = $1", cmdID, string(result))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// SaveAck appends the raw ack payload to the audit table
func (d *DB) SaveAck(ctx context.Context, deviceID, message string, at time.Time) error {
	_, err := d.pool.Exec(ctx,
		"INSERT INTO acks (device_id, message, ts) VALUES ($1, $2, $3)", deviceID, message, at)
	return err
}

// ListAcks fetches the newest ack records of a device
func (d *DB) ListAcks(ctx context.Context, deviceID string, limit int) ([]models.AckRecord, error) {
	rows, err := d.pool.Query(ctx,
		"SELECT id, device_id, message, ts FROM acks WHERE device_id = $1 ORDER BY ts DESC, id DESC LIMIT $2",
		deviceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var acks []models.AckRecord
	for rows.Next() {
		var a models.AckRecord
		if err := rows.Scan(&a.ID, &a.DeviceID, &a.Message, &a.Timestamp); err != nil {
			return nil, err
		}
		acks = append(acks, a)
	}
	return acks, rows.Err()
}
