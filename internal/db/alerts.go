package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"coldchain/internal/models"
)

// GetTemplate fetches an alert template by code
func (d *DB) GetTemplate(ctx context.Context, code string) (*models.AlertTemplate, error) {
	var t models.AlertTemplate
	var translations []byte
	err := d.pool.QueryRow(ctx,
		"SELECT code, source_lang, body, translations FROM alert_templates WHERE code = $1", code).
		Scan(&t.Code, &t.SourceLang, &t.Body, &translations)
	if err != nil {
		return nil, notFound(err)
	}
	if len(translations) > 0 {
		if err := json.Unmarshal(translations, &t.Translations); err != nil {
			return nil, fmt.Errorf("template %s translations: %w", code, err)
		}
	}
	return &t, nil
}

const alertColumns = `id, template_code, message, params, reason, status, batch_code, device_id, parameter_name,
	current_value, threshold_low, threshold_high, escalated, deadline, escalation_marked_at, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanAlert(row scanner) (*models.Alert, error) {
	var a models.Alert
	var params []byte
	var status string
	err := row.Scan(&a.ID, &a.TemplateCode, &a.Message, &params, &a.Reason, &status, &a.BatchCode, &a.DeviceID,
		&a.ParameterName, &a.CurrentValue, &a.ThresholdLow, &a.ThresholdHigh, &a.Escalated, &a.Deadline,
		&a.EscalationMarkedAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.Status = models.AlertStatus(status)
	if len(params) > 0 {
		if err := json.Unmarshal(params, &a.Params); err != nil {
			return nil, fmt.Errorf("alert %d params: %w", a.ID, err)
		}
	}
	return &a, nil
}

// InsertAlert stores a new alert and fills in its id
func (d *DB) InsertAlert(ctx context.Context, a *models.Alert) error {
	params, err := json.Marshal(a.Params)
	if err != nil {
		return err
	}
	return d.pool.QueryRow(ctx,
		`INSERT INTO alerts (template_code, message, params, reason, status, batch_code, device_id, parameter_name,
		   current_value, threshold_low, threshold_high, escalated, deadline, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14) RETURNING id`,
		a.TemplateCode, a.Message, params, a.Reason, string(a.Status), a.BatchCode, a.DeviceID, a.ParameterName,
		a.CurrentValue, a.ThresholdLow, a.ThresholdHigh, a.Escalated, a.Deadline, a.CreatedAt).Scan(&a.ID)
}

// GetAlert fetches one alert
func (d *DB) GetAlert(ctx context.Context, id int64) (*models.Alert, error) {
	a, err := scanAlert(d.pool.QueryRow(ctx, "SELECT "+alertColumns+" FROM alerts WHERE id = $1", id))
	if err != nil {
		return nil, notFound(err)
	}
	return a, nil
}

// AlertFilter narrows ListAlerts; empty fields match everything
type AlertFilter struct {
	Status   string
	DeviceID string
	Limit    int
}

// ListAlerts fetches alerts newest first
func (d *DB) ListAlerts(ctx context.Context, f AlertFilter) ([]models.Alert, error) {
	if f.Limit <= 0 {
		f.Limit = 100
	}
	rows, err := d.pool.Query(ctx,
		"SELECT "+alertColumns+` FROM alerts
		 WHERE ($1 = '' OR status = $1) AND ($2 = '' OR device_id = $2)
		 ORDER BY created_at DESC, id DESC LIMIT $3`,
		f.Status, f.DeviceID, f.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []models.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, *a)
	}
	return alerts, rows.Err()
}

// EscalationCandidates fetches OPEN or ACKED alerts whose deadline passed
// and that were not escalated yet
func (d *DB) EscalationCandidates(ctx context.Context, now time.Time) ([]models.Alert, error) {
	rows, err := d.pool.Query(ctx,
		"SELECT "+alertColumns+` FROM alerts
		 WHERE status IN ('OPEN', 'ACKED') AND deadline IS NOT NULL AND deadline < $1 AND escalated = false
		 ORDER BY deadline`,
		now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []models.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, *a)
	}
	return alerts, rows.Err()
}

// MarkEscalated flags an alert as escalated. It reports false when the alert
// was escalated or closed in the meantime.
func (d *DB) MarkEscalated(ctx context.Context, id int64, at time.Time) (bool, error) {
	tag, err := d.pool.Exec(ctx,
		`UPDATE alerts SET escalated = true, escalation_marked_at = $2, status = 'ESCALATED', updated_at = $2
		 WHERE id = $1 AND escalated = false AND status IN ('OPEN', 'ACKED')`,
		id, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// SetAlertStatus moves an alert to a new status
func (d *DB) SetAlertStatus(ctx context.Context, id int64, status models.AlertStatus, at time.Time) error {
	tag, err := d.pool.Exec(ctx,
		"UPDATE alerts SET status = $2, updated_at = $3 WHERE id = $1", id, string(status), at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
