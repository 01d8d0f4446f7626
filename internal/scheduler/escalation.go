package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"coldchain/internal/models"
)

// EscalationStore selects and flags overdue alerts
type EscalationStore interface {
	EscalationCandidates(ctx context.Context, now time.Time) ([]models.Alert, error)
	MarkEscalated(ctx context.Context, id int64, at time.Time) (bool, error)
}

// Notifier hands an escalated alert to outbound delivery
type Notifier interface {
	NotifyAlert(ctx context.Context, a *models.Alert) error
}

// EscalationSweep escalates OPEN or ACKED alerts past their deadline
type EscalationSweep struct {
	store    EscalationStore
	notifier Notifier
	now      func() time.Time
	log      *zap.Logger
}

// NewEscalationSweep builds the sweep. notifier may be nil.
func NewEscalationSweep(store EscalationStore, notifier Notifier, log *zap.Logger) *EscalationSweep {
	return &EscalationSweep{
		store:    store,
		notifier: notifier,
		now:      time.Now,
		log:      log.Named("escalation"),
	}
}

// Run escalates every overdue alert and returns how many it escalated
func (s *EscalationSweep) Run(ctx context.Context) int {
	now := s.now().UTC()
	candidates, err := s.store.EscalationCandidates(ctx, now)
	if err != nil {
		s.log.Error("escalation query failed", zap.Error(err))
		return 0
	}

	escalated := 0
	for i := range candidates {
		a := &candidates[i]
		ok, err := s.store.MarkEscalated(ctx, a.ID, now)
		if err != nil {
			s.log.Error("mark escalated failed", zap.Int64("alert_id", a.ID), zap.Error(err))
			continue
		}
		if !ok {
			// closed or escalated concurrently
			continue
		}
		a.Escalated = true
		a.EscalationMarkedAt = &now
		a.Status = models.AlertEscalated
		a.UpdatedAt = &now
		escalated++
		s.log.Warn("alert escalated", zap.Int64("alert_id", a.ID), zap.String("device_id", a.DeviceID))

		if s.notifier != nil {
			if err := s.notifier.NotifyAlert(ctx, a); err != nil {
				s.log.Warn("escalation notification not queued", zap.Int64("alert_id", a.ID), zap.Error(err))
			}
		}
	}
	return escalated
}
