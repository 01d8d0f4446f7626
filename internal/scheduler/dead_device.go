package scheduler

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"coldchain/internal/config"
	"coldchain/internal/models"
	"coldchain/internal/services"
	"coldchain/internal/utils"
)

// Alerter creates alerts from templates
type Alerter interface {
	Create(ctx context.Context, req services.NewAlert) (*models.Alert, error)
}

// LastSeenStore reports when each device last sent telemetry
type LastSeenStore interface {
	LastSeenAll(ctx context.Context) ([]models.LastSeen, error)
}

// DeadDeviceSweep raises DEAD_BOX for devices that went silent
type DeadDeviceSweep struct {
	store    LastSeenStore
	alerts   Alerter
	after    time.Duration
	window   time.Duration
	debounce *utils.Debouncer
	now      func() time.Time
	log      *zap.Logger
}

// NewDeadDeviceSweep builds the sweep. Devices silent for longer than after
// are reported at most once per window.
func NewDeadDeviceSweep(store LastSeenStore, alerts Alerter, after, window time.Duration, debounce *utils.Debouncer, log *zap.Logger) *DeadDeviceSweep {
	return &DeadDeviceSweep{
		store:    store,
		alerts:   alerts,
		after:    after,
		window:   window,
		debounce: debounce,
		now:      time.Now,
		log:      log.Named("dead_device"),
	}
}

// Run checks every device once and returns the number of alerts raised
func (s *DeadDeviceSweep) Run(ctx context.Context) int {
	seen, err := s.store.LastSeenAll(ctx)
	if err != nil {
		s.log.Error("last seen query failed", zap.Error(err))
		return 0
	}

	now := s.now()
	raised := 0
	for _, ls := range seen {
		silent := now.Sub(ls.At)
		if silent <= s.after {
			continue
		}
		key := utils.DebounceKey(ls.DeviceID, config.KindDeadBox)
		if !s.debounce.Allow(key, s.window) {
			continue
		}
		_, err := s.alerts.Create(ctx, services.NewAlert{
			TemplateCode: config.KindDeadBox,
			DeviceID:     ls.DeviceID,
			Params: map[string]string{
				"boxId":   ls.DeviceID,
				"minutes": strconv.Itoa(int(silent.Minutes())),
			},
		})
		if err != nil {
			s.log.Error("dead box alert failed", zap.String("device_id", ls.DeviceID), zap.Error(err))
			s.debounce.Forget(key)
			continue
		}
		s.log.Warn("device silent", zap.String("device_id", ls.DeviceID), zap.Duration("silent", silent))
		raised++
	}
	return raised
}
