package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"coldchain/internal/taskqueue"
)

// WebhookNotifier posts alert notifications to an HTTP endpoint
type WebhookNotifier struct {
	httpClient *resty.Client
	url        string
	log        *zap.Logger
}

// NewWebhookNotifier creates a notifier posting to url
func NewWebhookNotifier(url string, timeout time.Duration, log *zap.Logger) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &WebhookNotifier{
		httpClient: client,
		url:        url,
		log:        log.Named("notify"),
	}
}

// Deliver posts one notification. Non-2xx responses are errors so the queue
// retries them.
func (n *WebhookNotifier) Deliver(ctx context.Context, p taskqueue.AlertNotifyPayload) error {
	resp, err := n.httpClient.R().
		SetContext(ctx).
		SetBody(p).
		Post(n.url)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode(), resp.String())
	}
	n.log.Debug("webhook delivered", zap.Int64("alert_id", p.AlertID), zap.Int("status", resp.StatusCode()))
	return nil
}

// LogNotifier only logs notifications. Used when no webhook is configured.
type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(log *zap.Logger) *LogNotifier {
	return &LogNotifier{log: log.Named("notify")}
}

func (n *LogNotifier) Deliver(_ context.Context, p taskqueue.AlertNotifyPayload) error {
	n.log.Info("alert notification",
		zap.Int64("alert_id", p.AlertID),
		zap.String("device_id", p.DeviceID),
		zap.String("status", p.Status),
		zap.Bool("escalated", p.Escalated),
		zap.String("message", p.Message))
	return nil
}

// New picks the webhook notifier when url is set and the log notifier otherwise
func New(url string, timeout time.Duration, log *zap.Logger) taskqueue.Deliverer {
	if url == "" {
		return NewLogNotifier(log)
	}
	return NewWebhookNotifier(url, timeout, log)
}
