package engine

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"coldchain/internal/db"
	"coldchain/internal/models"
)

// Decision is the outcome of one rule evaluation
type Decision string

const (
	DecisionNoThreshold      Decision = "NO_THRESHOLD"
	DecisionInvalidThreshold Decision = "INVALID_THRESHOLD"
	DecisionCooldown         Decision = "COOLDOWN"
	DecisionTurnOn           Decision = "TURN_ON"
	DecisionTurnOff          Decision = "TURN_OFF"
	DecisionHold             Decision = "HOLD"
)

// RuleStore is the persistence the rule engine needs
type RuleStore interface {
	GetThreshold(ctx context.Context, deviceID string) (*models.Threshold, error)
	LatestTransition(ctx context.Context, deviceID string) (*models.Event, error)
	AppendTransition(ctx context.Context, e *models.Event) error
}

// Actuator switches the cooler of a box without reporting failures
type Actuator interface {
	SetActuator(ctx context.Context, deviceID string, on bool)
}

// EventSink mirrors domain events to an external bus
type EventSink interface {
	Publish(ctx context.Context, e models.Event) error
}

// Decide applies the hysteresis and cooldown rules. last is the newest
// transition event, nil when the device never switched (state OFF).
func Decide(th *models.Threshold, last *models.Event, temp float64, now time.Time, cooldown time.Duration) Decision {
	if th == nil {
		return DecisionNoThreshold
	}
	if !th.Valid() {
		return DecisionInvalidThreshold
	}
	if last != nil && now.Sub(last.Timestamp) < cooldown {
		return DecisionCooldown
	}
	state := last.Setting()
	switch {
	case temp >= th.TempOn && state != models.SettingOn:
		return DecisionTurnOn
	case temp <= th.TempOff && state == models.SettingOn:
		return DecisionTurnOff
	}
	return DecisionHold
}

// RuleEngine drives the per-device cooler state machine
type RuleEngine struct {
	store    RuleStore
	actuator Actuator
	sink     EventSink
	cooldown time.Duration
	now      func() time.Time
	log      *zap.Logger
}

// NewRuleEngine builds the engine. sink may be nil.
func NewRuleEngine(store RuleStore, actuator Actuator, sink EventSink, cooldown time.Duration, log *zap.Logger) *RuleEngine {
	return &RuleEngine{
		store:    store,
		actuator: actuator,
		sink:     sink,
		cooldown: cooldown,
		now:      time.Now,
		log:      log.Named("rules"),
	}
}

// Evaluate runs the state machine for one temperature reading. On a
// transition the event is stored before the command goes out.
func (r *RuleEngine) Evaluate(ctx context.Context, deviceID string, temp float64, batchCode *string) (Decision, error) {
	th, err := r.store.GetThreshold(ctx, deviceID)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		return "", err
	}
	last, err := r.store.LatestTransition(ctx, deviceID)
	if err != nil {
		return "", err
	}

	now := r.now().UTC()
	d := Decide(th, last, temp, now, r.cooldown)
	fields := []zap.Field{zap.String("device_id", deviceID), zap.Float64("temp", temp), zap.String("decision", string(d))}

	switch d {
	case DecisionNoThreshold:
		r.log.Debug("no threshold configured", fields...)
		return d, nil
	case DecisionInvalidThreshold:
		r.log.Warn("invalid threshold, actuation skipped",
			append(fields, zap.Float64("temp_on", th.TempOn), zap.Float64("temp_off", th.TempOff))...)
		return d, nil
	case DecisionCooldown, DecisionHold:
		r.log.Debug("rule hold", fields...)
		return d, nil
	}

	on := d == DecisionTurnOn
	eventType := models.EventPeltierOff
	if on {
		eventType = models.EventPeltierOn
	}
	body, _ := json.Marshal(map[string]float64{"temp": temp, "tempOn": th.TempOn, "tempOff": th.TempOff})
	event := models.Event{
		ID:        uuid.NewString(),
		DeviceID:  deviceID,
		BatchCode: batchCode,
		Type:      eventType,
		Payload:   body,
		Actor:     "auto",
		Timestamp: now,
	}
	if err := r.store.AppendTransition(ctx, &event); err != nil {
		return "", err
	}
	r.log.Info("rule transition", fields...)

	r.actuator.SetActuator(ctx, deviceID, on)

	if r.sink != nil {
		if err := r.sink.Publish(ctx, event); err != nil {
			r.log.Warn("event mirror failed", zap.String("event_id", event.ID), zap.Error(err))
		}
	}
	return d, nil
}
