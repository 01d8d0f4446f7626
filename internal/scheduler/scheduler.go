package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler runs the periodic sweeps on fixed-rate timers
type Scheduler struct {
	cron      *cron.Cron
	ctx       context.Context
	cancel    context.CancelFunc
	jobMap    map[string]cron.EntryID // Maps sweep name to cron entry ID
	jobMapMux sync.RWMutex            // Protects jobMap
	log       *zap.Logger
}

// NewScheduler creates a scheduler. A sweep still running when its next tick
// fires skips that tick.
func NewScheduler(log *zap.Logger) *Scheduler {
	log = log.Named("scheduler")
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(cron.PrintfLogger(zap.NewStdLog(log))),
			cron.SkipIfStillRunning(cron.PrintfLogger(zap.NewStdLog(log))),
		)),
		ctx:    ctx,
		cancel: cancel,
		jobMap: make(map[string]cron.EntryID),
		log:    log,
	}
}

// AddSweep registers fn to run every interval under name, replacing any
// sweep of the same name
func (s *Scheduler) AddSweep(name string, every time.Duration, fn func(ctx context.Context)) error {
	if every <= 0 {
		return fmt.Errorf("sweep %s: interval must be positive, got %s", name, every)
	}
	s.RemoveSweep(name)

	entryID, err := s.cron.AddFunc("@every "+every.String(), func() {
		start := time.Now()
		fn(s.ctx)
		s.log.Debug("sweep finished", zap.String("sweep", name), zap.Duration("took", time.Since(start)))
	})
	if err != nil {
		return fmt.Errorf("sweep %s: %w", name, err)
	}

	s.jobMapMux.Lock()
	s.jobMap[name] = entryID
	s.jobMapMux.Unlock()

	s.log.Info("sweep scheduled", zap.String("sweep", name), zap.Duration("every", every))
	return nil
}

// RemoveSweep removes a sweep by name
func (s *Scheduler) RemoveSweep(name string) {
	s.jobMapMux.Lock()
	defer s.jobMapMux.Unlock()

	if entryID, exists := s.jobMap[name]; exists {
		s.cron.Remove(entryID)
		delete(s.jobMap, name)
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started", zap.Int("sweeps", s.JobCount()))
}

// Stop stops scheduling and waits for running sweeps to finish
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.cancel()
	s.log.Info("scheduler stopped")
}

// JobCount returns the number of registered sweeps
func (s *Scheduler) JobCount() int {
	s.jobMapMux.RLock()
	defer s.jobMapMux.RUnlock()
	return len(s.jobMap)
}
