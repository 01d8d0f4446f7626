package engine

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"coldchain/internal/payload"
	"coldchain/internal/utils"
)

const messageTimeout = 30 * time.Second

// Engine routes inbound broker messages to the telemetry pipeline or the
// acknowledgment handler. Work for one device is serialized.
type Engine struct {
	telemetryTopic string
	ackTopic       string
	pipeline       *Pipeline
	acks           *AckHandler
	locks          *utils.KeyedMutex
	log            *zap.Logger
}

// NewEngine creates a new engine instance
func NewEngine(telemetryTopic, ackTopic string, pipeline *Pipeline, acks *AckHandler, locks *utils.KeyedMutex, log *zap.Logger) *Engine {
	return &Engine{
		telemetryTopic: telemetryTopic,
		ackTopic:       ackTopic,
		pipeline:       pipeline,
		acks:           acks,
		locks:          locks,
		log:            log.Named("engine"),
	}
}

// Topics returns the subscription filters the engine consumes
func (e *Engine) Topics() []string {
	return []string{e.telemetryTopic, e.ackTopic}
}

// HandleMessage processes one broker message. Payloads that do not parse even
// after repair are dropped with a log line.
func (e *Engine) HandleMessage(topic string, raw []byte) {
	text := strings.ToValidUTF8(string(raw), "�")
	obj, err := payload.Decode(text)
	if err != nil {
		e.log.Warn("dropping unparseable message", zap.String("topic", topic), zap.String("payload", text), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), messageTimeout)
	defer cancel()

	if utils.TopicMatches(e.ackTopic, topic) {
		deviceID := utils.ParseDeviceID(e.ackTopic, topic)
		unlock := e.locks.Lock(deviceID)
		defer unlock()
		if err := e.acks.Handle(ctx, deviceID, text); err != nil {
			e.log.Error("ack handling failed", zap.String("device_id", deviceID), zap.Error(err))
		}
		return
	}

	t := payload.NormalizeTelemetry(obj)
	deviceID := t.BoxID
	if deviceID == "" {
		deviceID = utils.ParseDeviceID(e.telemetryTopic, topic)
	}
	if deviceID == "" {
		e.log.Warn("dropping telemetry without device id", zap.String("topic", topic))
		return
	}

	unlock := e.locks.Lock(deviceID)
	defer unlock()
	if err := e.pipeline.Process(ctx, deviceID, t); err != nil {
		e.log.Error("telemetry handling failed", zap.String("device_id", deviceID), zap.Error(err))
	}
}
