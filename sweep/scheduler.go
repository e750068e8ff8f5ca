package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSchedule runs the sweep daily at 03:00
const DefaultSchedule = "0 3 * * *"

// Scheduler triggers sweeps on a cron schedule. Overlapping triggers are skipped.
type Scheduler struct {
	cron    *cron.Cron
	sweeper *Sweeper
	logger  *slog.Logger
	timeout time.Duration
}

// NewScheduler parses schedule (standard five-field cron syntax) and registers the sweep.
// timeout bounds one sweep; zero means no bound.
func NewScheduler(sweeper *Sweeper, schedule string, timeout time.Duration, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(
		cron.WithParser(parser),
		cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger)),
	)

	s := &Scheduler{cron: c, sweeper: sweeper, logger: logger, timeout: timeout}
	if _, err := c.AddFunc(schedule, s.trigger); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Start runs the scheduler in the background
func (s *Scheduler) Start() {
	s.cron.Start()
	for _, entry := range s.cron.Entries() {
		s.logger.Info("link sweep scheduled", "next_run", entry.Next.Format(time.RFC3339))
	}
}

// Stop stops scheduling and waits for a running sweep, or for ctx to end
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) trigger() {
	ctx := context.Background()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	if _, err := s.sweeper.Run(ctx); err != nil {
		s.logger.Error("scheduled link sweep failed", "error", err)
	}
}
