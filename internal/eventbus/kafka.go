package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"coldchain/internal/models"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink mirrors domain events to a Kafka topic, keyed by device id so
// the events of one box stay ordered
type KafkaSink struct {
	writer messageWriter
	topic  string
	log    *zap.Logger
}

// NewKafkaSink creates a sink writing to topic on brokers
func NewKafkaSink(brokers []string, topic string, log *zap.Logger) *KafkaSink {
	log = log.Named("eventbus")
	log.Info("kafka event mirror enabled", zap.Strings("brokers", brokers), zap.String("topic", topic))
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
	return &KafkaSink{writer: w, topic: topic, log: log}
}

// Publish writes one event
func (k *KafkaSink) Publish(ctx context.Context, e models.Event) error {
	msg, err := Message(e)
	if err != nil {
		return err
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write %s: %w", k.topic, err)
	}
	return nil
}

// Message encodes an event as a Kafka message
func Message(e models.Event) (kafka.Message, error) {
	value, err := json.Marshal(e)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode event: %w", err)
	}
	return kafka.Message{
		Key:   []byte(e.DeviceID),
		Value: value,
		Time:  e.Timestamp,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(e.Type)},
		},
	}, nil
}

func (k *KafkaSink) Close() error {
	return k.writer.Close()
}
