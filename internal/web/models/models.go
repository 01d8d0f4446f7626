package models

import (
	"encoding/json"
	"time"

	"coldchain/internal/models"
)

type TokenRequest struct {
	Operator string `json:"operator"`
	APIKey   string `json:"apiKey" binding:"required"`
}

type CommandRequest struct {
	Peltier    *string  `json:"peltier"`
	Fan        *string  `json:"fan"`
	TargetTemp *float64 `json:"targetTemp"`
}

type PeltierRequest struct {
	Power string `json:"power" binding:"required,oneof=ON OFF on off"`
}

// ThresholdRequest uses pointers so a missing field fails validation
type ThresholdRequest struct {
	TempOn      *float64 `json:"tempOn" binding:"required"`
	TempOff     *float64 `json:"tempOff" binding:"required"`
	MoistureMin *int     `json:"moistureMin" binding:"required"`
}

// DeviceStateView combines the stored state, the setting from the event log
// and the latest cached reading
type DeviceStateView struct {
	DeviceID      string              `json:"device_id"`
	Setting       models.Setting      `json:"setting"`
	State         *models.DeviceState `json:"state,omitempty"`
	LastTelemetry json.RawMessage     `json:"last_telemetry,omitempty"`
	LastSeenAt    *time.Time          `json:"last_seen_at,omitempty"`
}

// AlertView is an alert with its text rendered in the requested language
type AlertView struct {
	models.Alert
	Text string `json:"text"`
}
