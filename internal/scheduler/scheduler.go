// Package scheduler runs periodic housekeeping for in-memory state.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/rsclarke/keyward/internal/metrics"
)

// DefaultInterval is how often expired state is swept.
const DefaultInterval = 5 * time.Minute

// Sweeper drops rate limit counters whose window ended before now.
type Sweeper interface {
	Sweep(now time.Time) int
}

// Expirer drops expired sessions.
type Expirer interface {
	DeleteExpired()
}

// Scheduler sweeps the rate limiter and session store on a cron schedule.
type Scheduler struct {
	limiter  Sweeper
	sessions Expirer
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time
	c        *cron.Cron
}

// New creates a Scheduler. A non-positive interval uses DefaultInterval.
func New(limiter Sweeper, sessions Expirer, interval time.Duration, logger *zap.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		limiter:  limiter,
		sessions: sessions,
		interval: interval,
		logger:   logger,
		now:      time.Now,
		c:        cron.New(),
	}
}

// Start registers the sweep job and starts the cron runner.
func (s *Scheduler) Start() error {
	schedule := fmt.Sprintf("@every %s", s.interval)
	if _, err := s.c.AddFunc(schedule, s.RunOnce); err != nil {
		return fmt.Errorf("schedule sweep %q: %w", schedule, err)
	}
	s.c.Start()
	s.logger.Info("scheduler started", zap.Duration("interval", s.interval))
	return nil
}

// Stop halts the runner and returns a context that is done once any
// running job has finished.
func (s *Scheduler) Stop() context.Context {
	ctx := s.c.Stop()
	s.logger.Info("scheduler stopped")
	return ctx
}

// RunOnce performs one sweep.
func (s *Scheduler) RunOnce() {
	removed := 0
	if s.limiter != nil {
		removed = s.limiter.Sweep(s.now())
		metrics.CountersSwept(removed)
	}
	if s.sessions != nil {
		s.sessions.DeleteExpired()
	}
	s.logger.Debug("sweep complete", zap.Int("counters_removed", removed))
}
