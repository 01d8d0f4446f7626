package taskqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"coldchain/internal/models"
)

// TypeAlertNotify is the task type for outbound alert delivery
const TypeAlertNotify = "alert:notify"

// AlertNotifyPayload is the task body of an alert notification
type AlertNotifyPayload struct {
	AlertID   int64     `json:"alert_id"`
	DeviceID  string    `json:"device_id"`
	BatchCode *string   `json:"batch_code,omitempty"`
	Status    string    `json:"status"`
	Reason    string    `json:"reason"`
	Message   string    `json:"message"`
	Escalated bool      `json:"escalated"`
	CreatedAt time.Time `json:"created_at"`
}

// NewAlertNotifyTask builds the asynq task for an alert
func NewAlertNotifyTask(a *models.Alert) (*asynq.Task, error) {
	payload, err := json.Marshal(AlertNotifyPayload{
		AlertID:   a.ID,
		DeviceID:  a.DeviceID,
		BatchCode: a.BatchCode,
		Status:    string(a.Status),
		Reason:    a.Reason,
		Message:   a.Message,
		Escalated: a.Escalated,
		CreatedAt: a.CreatedAt,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeAlertNotify, payload), nil
}

// Enqueuer is the part of the asynq client the queue uses
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// Queue enqueues alert notifications
type Queue struct {
	client Enqueuer
	log    *zap.Logger
}

// NewQueue connects an asynq client to redisAddr
func NewQueue(redisAddr string, log *zap.Logger) *Queue {
	return newQueue(asynq.NewClient(asynq.RedisClientOpt{Addr: redisAddr}), log)
}

func newQueue(client Enqueuer, log *zap.Logger) *Queue {
	return &Queue{client: client, log: log.Named("taskqueue")}
}

// NotifyAlert enqueues delivery of an alert
func (q *Queue) NotifyAlert(ctx context.Context, a *models.Alert) error {
	task, err := NewAlertNotifyTask(a)
	if err != nil {
		return fmt.Errorf("build task: %w", err)
	}
	info, err := q.client.EnqueueContext(ctx, task, asynq.MaxRetry(5), asynq.Timeout(30*time.Second))
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", TypeAlertNotify, err)
	}
	q.log.Debug("alert notification enqueued", zap.Int64("alert_id", a.ID), zap.String("task_id", info.ID))
	return nil
}

// Close closes the client
func (q *Queue) Close() error {
	return q.client.Close()
}

// Deliverer sends a notification to its final destination
type Deliverer interface {
	Deliver(ctx context.Context, p AlertNotifyPayload) error
}

// HandleAlertNotify returns the asynq handler for alert notifications.
// Undecodable payloads are not retried.
func HandleAlertNotify(d Deliverer, log *zap.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var p AlertNotifyPayload
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			log.Error("bad alert notify payload", zap.Error(err))
			return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
		}
		if err := d.Deliver(ctx, p); err != nil {
			log.Warn("alert delivery failed", zap.Int64("alert_id", p.AlertID), zap.Error(err))
			return err
		}
		log.Info("alert delivered", zap.Int64("alert_id", p.AlertID), zap.Bool("escalated", p.Escalated))
		return nil
	}
}
