package api

import (
	"context"
	"time"

	"coldchain/internal/db"
	"coldchain/internal/models"
	"coldchain/internal/redis"
	"coldchain/internal/services"
)

// Commander sends actuator commands
type Commander interface {
	SendCommand(ctx context.Context, deviceID string, req services.CommandRequest) (*models.Command, error)
	SetPeltier(deviceID string, on bool)
}

// DeviceStore serves device state, events, acks and thresholds
type DeviceStore interface {
	GetDeviceState(ctx context.Context, deviceID string) (*models.DeviceState, error)
	LatestTransition(ctx context.Context, deviceID string) (*models.Event, error)
	ListEvents(ctx context.Context, deviceID, eventType string, limit int) ([]models.Event, error)
	ListAcks(ctx context.Context, deviceID string, limit int) ([]models.AckRecord, error)
	GetThreshold(ctx context.Context, deviceID string) (*models.Threshold, error)
	UpsertThreshold(ctx context.Context, t models.Threshold) error
}

// ReadingCache serves the latest reading of a device
type ReadingCache interface {
	Get(ctx context.Context, deviceID string) (*redis.Reading, error)
}

// AlertStore lists alerts and moves them through operator transitions
type AlertStore interface {
	ListAlerts(ctx context.Context, f db.AlertFilter) ([]models.Alert, error)
	SetAlertStatus(ctx context.Context, id int64, status models.AlertStatus, at time.Time) error
}

// Localizer renders a stored alert in a language
type Localizer interface {
	Localize(ctx context.Context, a *models.Alert, lang string) string
}

// Pinger checks a backing store
type Pinger interface {
	Ping(ctx context.Context) error
}

type Dependencies struct {
	Commander Commander
	Devices   DeviceStore
	Cache     ReadingCache
	Alerts    AlertStore
	Localizer Localizer
	DB        Pinger
	Now       func() time.Time
}

func (d Dependencies) now() time.Time {
	if d.Now != nil {
		return d.Now().UTC()
	}
	return time.Now().UTC()
}
