package db

import (
	"context"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS snapshots (
		id BIGSERIAL PRIMARY KEY,
		device_id TEXT NOT NULL,
		batch_code TEXT,
		ts TIMESTAMPTZ NOT NULL,
		payload JSONB NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS snapshots_device_ts ON snapshots (device_id, ts DESC)`,
	`CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		device_id TEXT NOT NULL,
		batch_code TEXT,
		type TEXT NOT NULL,
		payload JSONB,
		actor TEXT NOT NULL DEFAULT 'auto',
		ts TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS events_device_type_ts ON events (device_id, type, ts DESC)`,
	`CREATE TABLE IF NOT EXISTS device_state (
		device_id TEXT PRIMARY KEY,
		setting TEXT NOT NULL DEFAULT 'UNKNOWN',
		fan TEXT,
		target_temp DOUBLE PRECISION,
		last_cmd_id TEXT,
		last_ack_at TIMESTAMPTZ,
		last_location JSONB,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS device_thresholds (
		device_id TEXT PRIMARY KEY,
		temp_on DOUBLE PRECISION NOT NULL,
		temp_off DOUBLE PRECISION NOT NULL,
		moisture_min INTEGER NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS alert_templates (
		code TEXT PRIMARY KEY,
		source_lang TEXT NOT NULL DEFAULT 'en',
		body TEXT NOT NULL,
		translations JSONB
	)`,
	`CREATE TABLE IF NOT EXISTS alerts (
		id BIGSERIAL PRIMARY KEY,
		template_code TEXT,
		message TEXT NOT NULL,
		params JSONB,
		reason TEXT NOT NULL,
		status TEXT NOT NULL,
		batch_code TEXT,
		device_id TEXT,
		parameter_name TEXT,
		current_value DOUBLE PRECISION,
		threshold_low DOUBLE PRECISION,
		threshold_high DOUBLE PRECISION,
		escalated BOOLEAN NOT NULL DEFAULT false,
		deadline TIMESTAMPTZ,
		escalation_marked_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS alerts_escalation ON alerts (status, escalated, deadline)`,
	`CREATE TABLE IF NOT EXISTS commands (
		id BIGSERIAL PRIMARY KEY,
		cmd_id TEXT NOT NULL UNIQUE,
		device_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		payload JSONB NOT NULL,
		result TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS acks (
		id BIGSERIAL PRIMARY KEY,
		device_id TEXT NOT NULL,
		message TEXT NOT NULL,
		ts TIMESTAMPTZ NOT NULL
	)`,
}

// default alert templates, one per alert kind; never overwrite admin edits
var seedTemplates = []struct {
	code, body, translations string
}{
	{"TEMP_HIGH", "Box {boxId} temperature is {value}°C",
		`{"hi":"बॉक्स {boxId} में तापमान {value}°C है"}`},
	{"TEMP_LOW", "Box {boxId} temperature dropped to {value}°C",
		`{"hi":"बॉक्स {boxId} में तापमान गिरकर {value}°C हो गया है"}`},
	{"SENSOR_TEMP_MISSING", "Box {boxId} sent telemetry without a temperature reading", `{}`},
	{"SENSOR_HUMID_MISSING", "Box {boxId} sent telemetry without a humidity reading", `{}`},
	{"WEIGHT_LOW", "Box {boxId} weight is low: {value}", `{}`},
	{"TAMPER_DETECTED", "Tamper detected on box {boxId}",
		`{"hi":"बॉक्स {boxId} में छेड़छाड़ का पता चला"}`},
	{"DEAD_BOX", "Box {boxId} has been silent for {minutes} minutes", `{}`},
	{"GPS_FROZEN", "GPS of box {boxId} has not moved over the last {samples} readings", `{}`},
}

// Init creates the tables and seeds missing default alert templates
func (d *DB) Init(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := d.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("schema: %w", err)
		}
	}
	for _, t := range seedTemplates {
		_, err := d.pool.Exec(ctx,
			`INSERT INTO alert_templates (code, source_lang, body, translations)
			 VALUES ($1, 'en', $2, $3) ON CONFLICT (code) DO NOTHING`,
			t.code, t.body, []byte(t.translations))
		if err != nil {
			return fmt.Errorf("seed template %s: %w", t.code, err)
		}
	}
	return nil
}
