package audit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler deletes records older than the retention window on a cron
// schedule.
type Scheduler struct {
	store     Store
	retention time.Duration
	schedule  string
	logger    *slog.Logger
	now       func() time.Time

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

func NewScheduler(store Store, retentionDays int, schedule string, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		store:     store,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		schedule:  schedule,
		logger:    logger,
		now:       time.Now,
		cron:      cron.New(),
	}
}

// Start validates the schedule and begins pruning. A zero retention window
// disables pruning.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.retention <= 0 {
		s.logger.Info("audit retention disabled")
		return nil
	}
	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid prune schedule %q: %w", s.schedule, err)
	}
	if _, err := s.cron.AddFunc(s.schedule, func() { s.runPrune(ctx) }); err != nil {
		return fmt.Errorf("schedule audit pruning: %w", err)
	}

	s.cron.Start()
	s.running = true
	s.logger.Info("audit retention scheduler started", "schedule", s.schedule, "retention", s.retention.String())
	return nil
}

// Prune deletes records older than the retention window now.
func (s *Scheduler) Prune(ctx context.Context) (int64, error) {
	return s.store.PruneBefore(ctx, s.now().Add(-s.retention))
}

func (s *Scheduler) runPrune(ctx context.Context) {
	deleted, err := s.Prune(ctx)
	if err != nil {
		s.logger.Error("audit pruning failed", "error", err)
		return
	}
	s.logger.Info("audit pruning completed", "deleted", deleted)
}

// Stop waits for a running prune to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
}
