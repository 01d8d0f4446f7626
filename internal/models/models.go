package models

import (
	"encoding/json"
	"time"
)

// Setting is the actuator setting of a box
type Setting string

const (
	SettingOn      Setting = "ON"
	SettingOff     Setting = "OFF"
	SettingUnknown Setting = "UNKNOWN"
)

// Event types used for the actuator state machine
const (
	EventPeltierOn  = "peltier_on"
	EventPeltierOff = "peltier_off"
)

// DeviceState is the cached view of a box; the event log is authoritative for the setting
type DeviceState struct {
	DeviceID     string          `json:"device_id"`
	Setting      Setting         `json:"setting"`
	Fan          *string         `json:"fan,omitempty"`
	TargetTemp   *float64        `json:"target_temp,omitempty"`
	LastCmdID    *string         `json:"last_cmd_id,omitempty"`
	LastAckAt    *time.Time      `json:"last_ack_at,omitempty"`
	LastLocation json.RawMessage `json:"last_location,omitempty"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// AckUpdate carries the device state fields reported by an acknowledgment.
// Nil fields leave the stored value untouched.
type AckUpdate struct {
	Setting    *Setting
	Fan        *string
	TargetTemp *float64
	CmdID      string
	AckAt      time.Time
}

// Threshold is the per-device actuator hysteresis configuration
type Threshold struct {
	DeviceID    string    `json:"device_id"`
	TempOn      float64   `json:"temp_on"`
	TempOff     float64   `json:"temp_off"`
	MoistureMin int       `json:"moisture_min"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Valid reports whether the hysteresis band is usable
func (t Threshold) Valid() bool {
	return t.TempOn > t.TempOff
}

// Snapshot is one persisted telemetry reading
type Snapshot struct {
	ID        int64           `json:"id"`
	DeviceID  string          `json:"device_id"`
	BatchCode *string         `json:"batch_code,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// LastSeen is the most recent snapshot time of a device
type LastSeen struct {
	DeviceID string
	At       time.Time
}

// Event is a domain event, used for audit and as the source of the actuator setting
type Event struct {
	ID        string          `json:"id"`
	DeviceID  string          `json:"device_id"`
	BatchCode *string         `json:"batch_code,omitempty"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Actor     string          `json:"actor"`
	Timestamp time.Time       `json:"ts"`
}

// Setting returns the actuator setting implied by a transition event
func (e *Event) Setting() Setting {
	if e == nil {
		return SettingOff
	}
	switch e.Type {
	case EventPeltierOn:
		return SettingOn
	case EventPeltierOff:
		return SettingOff
	}
	return SettingUnknown
}

// AlertTemplate is a multi-language alert message template
type AlertTemplate struct {
	Code         string            `json:"code"`
	SourceLang   string            `json:"source_lang"`
	Body         string            `json:"body"`
	Translations map[string]string `json:"translations,omitempty"`
}

// AlertStatus is the lifecycle status of an alert
type AlertStatus string

const (
	AlertOpen      AlertStatus = "OPEN"
	AlertAcked     AlertStatus = "ACKED"
	AlertResolved  AlertStatus = "RESOLVED"
	AlertIgnored   AlertStatus = "IGNORED"
	AlertHalted    AlertStatus = "HALTED"
	AlertRecalled  AlertStatus = "RECALLED"
	AlertEscalated AlertStatus = "ESCALATED"
)

// Alert represents a raised alert
type Alert struct {
	ID                 int64             `json:"id"`
	TemplateCode       *string           `json:"template_code,omitempty"`
	Message            string            `json:"message"`
	Params             map[string]string `json:"params"`
	Reason             string            `json:"reason"`
	Status             AlertStatus       `json:"status"`
	BatchCode          *string           `json:"batch_code,omitempty"`
	DeviceID           string            `json:"device_id"`
	ParameterName      *string           `json:"parameter_name,omitempty"`
	CurrentValue       *float64          `json:"current_value,omitempty"`
	ThresholdLow       *float64          `json:"threshold_low,omitempty"`
	ThresholdHigh      *float64          `json:"threshold_high,omitempty"`
	Escalated          bool              `json:"escalated"`
	Deadline           *time.Time        `json:"deadline,omitempty"`
	EscalationMarkedAt *time.Time        `json:"escalation_marked_at,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          *time.Time        `json:"updated_at,omitempty"`
}

// CommandResult is the delivery result of an actuator command
type CommandResult string

const (
	CommandPublished CommandResult = "PUBLISHED"
	CommandAckOK     CommandResult = "ACK_OK"
	CommandAckError  CommandResult = "ACK_ERROR"
)

// Command is an outbound actuator command
type Command struct {
	ID        int64           `json:"id"`
	CmdID     string          `json:"cmd_id"`
	DeviceID  string          `json:"device_id"`
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	Result    CommandResult   `json:"result"`
	CreatedAt time.Time       `json:"created_at"`
}

// AckRecord is the audit copy of an inbound acknowledgment
type AckRecord struct {
	ID        int64     `json:"id"`
	DeviceID  string    `json:"device_id"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}
