package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"coldchain/internal/models"
)

// Command kinds recorded with each tracked command
const (
	KindPeltier    = "PELTIER"
	KindFan        = "FAN"
	KindTargetTemp = "TARGET_TEMP"
	KindMulti      = "MULTI"
	KindUnknown    = "UNKNOWN"
)

// Publisher sends a payload to a broker topic
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// CommandStore records outbound commands
type CommandStore interface {
	SaveCommand(ctx context.Context, c *models.Command) error
}

// CommandRequest holds the settings to push to a box. Nil fields are omitted.
type CommandRequest struct {
	Peltier    *string  `json:"peltier,omitempty"`
	Fan        *string  `json:"fan,omitempty"`
	TargetTemp *float64 `json:"targetTemp,omitempty"`
}

// Kind classifies the request by the fields it sets
func (r CommandRequest) Kind() string {
	n := 0
	kind := KindUnknown
	if r.Peltier != nil {
		n++
		kind = KindPeltier
	}
	if r.Fan != nil {
		n++
		kind = KindFan
	}
	if r.TargetTemp != nil {
		n++
		kind = KindTargetTemp
	}
	if n > 1 {
		return KindMulti
	}
	return kind
}

// Empty reports whether the request sets nothing
func (r CommandRequest) Empty() bool {
	return r.Kind() == KindUnknown
}

// ActuatorService publishes actuator commands to per-device topics
type ActuatorService struct {
	pub      Publisher
	store    CommandStore
	topicFmt string
	now      func() time.Time
	newID    func() string
	log      *zap.Logger
}

// NewActuatorService builds the service. topicFmt holds one %s for the device id.
func NewActuatorService(pub Publisher, store CommandStore, topicFmt string, log *zap.Logger) *ActuatorService {
	return &ActuatorService{
		pub:      pub,
		store:    store,
		topicFmt: topicFmt,
		now:      time.Now,
		newID:    uuid.NewString,
		log:      log.Named("actuator"),
	}
}

func (a *ActuatorService) topic(deviceID string) string {
	return fmt.Sprintf(a.topicFmt, deviceID)
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

// SetPeltier publishes an untracked on/off command. Failures are logged and
// never returned.
func (a *ActuatorService) SetPeltier(deviceID string, on bool) {
	topic := a.topic(deviceID)
	payload, _ := json.Marshal(map[string]string{"peltier": onOff(on)})
	if err := a.pub.Publish(topic, payload); err != nil {
		a.log.Error("actuator publish failed", zap.String("device_id", deviceID), zap.String("topic", topic), zap.Error(err))
		return
	}
	a.log.Info("actuator command published", zap.String("device_id", deviceID), zap.String("topic", topic), zap.ByteString("payload", payload))
}

// SendCommand publishes a command carrying a fresh cmdId and records it as
// PUBLISHED. A command that fails to publish is not recorded.
func (a *ActuatorService) SendCommand(ctx context.Context, deviceID string, req CommandRequest) (*models.Command, error) {
	cmdID := a.newID()
	now := a.now().UTC()

	body := map[string]any{
		"cmdId":    cmdID,
		"issuedAt": now.Format(time.RFC3339),
	}
	if req.Peltier != nil {
		body["peltier"] = strings.ToLower(*req.Peltier)
	}
	if req.Fan != nil {
		body["fan"] = strings.ToLower(*req.Fan)
	}
	if req.TargetTemp != nil {
		body["targetTemp"] = *req.TargetTemp
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	topic := a.topic(deviceID)
	if err := a.pub.Publish(topic, payload); err != nil {
		return nil, fmt.Errorf("publish %s: %w", topic, err)
	}

	cmd := &models.Command{
		CmdID:     cmdID,
		DeviceID:  deviceID,
		Kind:      req.Kind(),
		Payload:   payload,
		Result:    models.CommandPublished,
		CreatedAt: now,
	}
	if err := a.store.SaveCommand(ctx, cmd); err != nil {
		return cmd, fmt.Errorf("record command %s: %w", cmdID, err)
	}
	a.log.Info("command published",
		zap.String("device_id", deviceID),
		zap.String("cmd_id", cmdID),
		zap.String("kind", cmd.Kind))
	return cmd, nil
}

// SetActuator sends a tracked peltier command on behalf of the rule engine.
// It never fails back to the caller.
func (a *ActuatorService) SetActuator(ctx context.Context, deviceID string, on bool) {
	p := onOff(on)
	if _, err := a.SendCommand(ctx, deviceID, CommandRequest{Peltier: &p}); err != nil {
		a.log.Error("actuator command failed", zap.String("device_id", deviceID), zap.String("peltier", p), zap.Error(err))
	}
}
