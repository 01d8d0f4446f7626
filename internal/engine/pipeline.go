package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"coldchain/internal/config"
	"coldchain/internal/models"
	"coldchain/internal/payload"
	"coldchain/internal/redis"
	"coldchain/internal/services"
	"coldchain/internal/utils"
)

const maxClockSkew = 5 * time.Minute

// TelemetryStore is the persistence the telemetry pipeline needs
type TelemetryStore interface {
	SaveSnapshot(ctx context.Context, s *models.Snapshot) error
	UpdateLastLocation(ctx context.Context, deviceID string, location json.RawMessage, at time.Time) error
}

// Alerter creates alerts from templates
type Alerter interface {
	Create(ctx context.Context, req services.NewAlert) (*models.Alert, error)
}

// Evaluator runs the actuator rules for a reading
type Evaluator interface {
	Evaluate(ctx context.Context, deviceID string, temp float64, batchCode *string) (Decision, error)
}

// ReadingCache keeps the latest reading per device
type ReadingCache interface {
	Put(ctx context.Context, r redis.Reading) error
}

// Pipeline handles one normalized telemetry message
type Pipeline struct {
	store    TelemetryStore
	alerts   Alerter
	rules    Evaluator
	cache    ReadingCache
	debounce *utils.Debouncer
	windows  map[string]time.Duration
	safety   config.SafetyConfig
	now      func() time.Time
	log      *zap.Logger
}

// NewPipeline builds the pipeline. cache may be nil.
func NewPipeline(store TelemetryStore, alerts Alerter, rules Evaluator, cache ReadingCache, debounce *utils.Debouncer,
	windows map[string]time.Duration, safety config.SafetyConfig, log *zap.Logger) *Pipeline {
	return &Pipeline{
		store:    store,
		alerts:   alerts,
		rules:    rules,
		cache:    cache,
		debounce: debounce,
		windows:  windows,
		safety:   safety,
		now:      time.Now,
		log:      log.Named("telemetry"),
	}
}

// Process raises health and safety alerts, stores the snapshot, records the
// location and runs the rules, in that order
func (p *Pipeline) Process(ctx context.Context, deviceID string, t payload.Telemetry) error {
	now := p.now().UTC()
	var batch *string
	if t.BatchCode != "" {
		b := t.BatchCode
		batch = &b
	}

	p.checkHealth(ctx, deviceID, batch, t)

	// the box clock is not trusted; its own timestamp stays in the payload
	if t.Timestamp != nil {
		if skew := now.Sub(*t.Timestamp); skew > maxClockSkew || skew < -maxClockSkew {
			p.log.Debug("device clock skew", zap.String("device_id", deviceID), zap.Duration("skew", skew))
		}
	}
	snap := &models.Snapshot{DeviceID: deviceID, BatchCode: batch, Timestamp: now, Payload: t.JSON()}
	if err := p.store.SaveSnapshot(ctx, snap); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}

	if t.GPS != nil {
		if err := p.store.UpdateLastLocation(ctx, deviceID, t.LocationJSON(), now); err != nil {
			p.log.Warn("location update failed", zap.String("device_id", deviceID), zap.Error(err))
		}
	}

	if p.cache != nil {
		if err := p.cache.Put(ctx, redis.Reading{DeviceID: deviceID, Payload: snap.Payload, ReceivedAt: now}); err != nil {
			p.log.Warn("cache update failed", zap.String("device_id", deviceID), zap.Error(err))
		}
	}

	if t.Temp != nil {
		if _, err := p.rules.Evaluate(ctx, deviceID, *t.Temp, batch); err != nil {
			return fmt.Errorf("evaluate rules: %w", err)
		}
	}
	return nil
}

func (p *Pipeline) checkHealth(ctx context.Context, deviceID string, batch *string, t payload.Telemetry) {
	base := map[string]string{"boxId": deviceID}

	if t.Temp == nil {
		p.raise(ctx, config.KindTempMissing, deviceID, batch, base, nil)
	}
	if t.Humidity == nil {
		p.raise(ctx, config.KindHumidMissing, deviceID, batch, base, nil)
	}
	if t.Weight != nil && *t.Weight < p.safety.WeightMin {
		low := p.safety.WeightMin
		p.raise(ctx, config.KindWeightLow, deviceID, batch, withValue(base, *t.Weight),
			&reading{name: "WEIGHT", value: *t.Weight, low: &low})
	}
	if t.Tamper != nil && *t.Tamper {
		p.raise(ctx, config.KindTamper, deviceID, batch, base, nil)
	}
	if t.Temp != nil {
		low, high := p.safety.TempLow, p.safety.TempHigh
		r := &reading{name: "TEMP", value: *t.Temp, low: &low, high: &high}
		switch {
		case *t.Temp >= high:
			p.raise(ctx, config.KindTempHigh, deviceID, batch, withValue(base, *t.Temp), r)
		case *t.Temp <= low:
			p.raise(ctx, config.KindTempLow, deviceID, batch, withValue(base, *t.Temp), r)
		}
	}
}

type reading struct {
	name      string
	value     float64
	low, high *float64
}

// raise creates one alert unless the kind is debounced for this device.
// A failed create does not count against the window.
func (p *Pipeline) raise(ctx context.Context, kind, deviceID string, batch *string, params map[string]string, r *reading) {
	key := utils.DebounceKey(deviceID, kind)
	if !p.debounce.Allow(key, p.windows[kind]) {
		return
	}
	req := services.NewAlert{
		TemplateCode: kind,
		Params:       params,
		BatchCode:    batch,
		DeviceID:     deviceID,
	}
	if r != nil {
		name, value := r.name, r.value
		req.ParameterName = &name
		req.CurrentValue = &value
		req.ThresholdLow = r.low
		req.ThresholdHigh = r.high
	}
	if _, err := p.alerts.Create(ctx, req); err != nil {
		p.debounce.Forget(key)
		p.log.Error("alert create failed", zap.String("device_id", deviceID), zap.String("kind", kind), zap.Error(err))
	}
}

func withValue(base map[string]string, v float64) map[string]string {
	out := make(map[string]string, len(base)+1)
	for k, val := range base {
		out[k] = val
	}
	out["value"] = strconv.FormatFloat(v, 'f', 1, 64)
	return out
}
