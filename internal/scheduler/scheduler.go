package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goliatone/go-flagsubmit/internal/cycle"
	"github.com/goliatone/go-flagsubmit/pkg/interfaces/logger"
)

var (
	// ErrStoreUnavailable is returned after too many consecutive failed cycles.
	ErrStoreUnavailable = errors.New("scheduler: flag store unavailable")
	ErrMissingRunner    = errors.New("scheduler: cycle runner is required")
)

// Runner executes one submission pass.
type Runner interface {
	Run(ctx context.Context) (cycle.Summary, error)
}

// Config mirrors the scheduler section of the module config.
type Config struct {
	Interval               time.Duration
	SingleRun              bool
	MaxConsecutiveFailures int
}

// Dependencies groups the collaborators of the scheduler.
type Dependencies struct {
	Runner Runner
	Logger logger.Logger
	Config Config
	// OnCycle receives every completed summary.
	OnCycle func(cycle.Summary)
	// Wait blocks for d or until ctx is done.
	Wait func(ctx context.Context, d time.Duration) error
}

// Scheduler repeats cycles at a fixed interval, or runs one in single-run mode.
type Scheduler struct {
	runner  Runner
	logger  logger.Logger
	cfg     Config
	onCycle func(cycle.Summary)
	wait    func(ctx context.Context, d time.Duration) error
}

func New(deps Dependencies) (*Scheduler, error) {
	if deps.Runner == nil {
		return nil, ErrMissingRunner
	}
	if deps.Logger == nil {
		deps.Logger = &logger.Nop{}
	}
	if deps.Wait == nil {
		deps.Wait = waitTimer
	}
	if !deps.Config.SingleRun && deps.Config.Interval <= 0 {
		return nil, fmt.Errorf("scheduler: interval must be > 0")
	}
	return &Scheduler{
		runner:  deps.Runner,
		logger:  deps.Logger,
		cfg:     deps.Config,
		onCycle: deps.OnCycle,
		wait:    deps.Wait,
	}, nil
}

// Run drives cycles until ctx is cancelled. Cancellation is a clean stop and
// returns nil. In single-run mode the error of the only cycle is returned.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.cfg.SingleRun {
		_, err := s.runOnce(ctx, 1)
		return err
	}

	s.logger.Info("scheduler started", logger.F("interval", s.cfg.Interval))
	failures := 0
	for iteration := 1; ; iteration++ {
		if ctx.Err() != nil {
			s.logger.Info("scheduler stopped")
			return nil
		}

		if _, err := s.runOnce(ctx, iteration); err != nil {
			failures++
			if s.cfg.MaxConsecutiveFailures > 0 && failures >= s.cfg.MaxConsecutiveFailures {
				s.logger.Error("giving up after consecutive failed cycles",
					logger.F("failures", failures),
					logger.F("error", err),
				)
				return fmt.Errorf("%w: %d consecutive failures: %w", ErrStoreUnavailable, failures, err)
			}
		} else {
			failures = 0
		}

		if err := s.wait(ctx, s.cfg.Interval); err != nil {
			s.logger.Info("scheduler stopped")
			return nil
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, iteration int) (cycle.Summary, error) {
	summary, err := s.runner.Run(ctx)
	if err != nil {
		s.logger.Error("cycle failed",
			logger.F("iteration", iteration),
			logger.F("error", err),
		)
		return summary, err
	}
	if s.onCycle != nil {
		s.onCycle(summary)
	}
	return summary, nil
}

func waitTimer(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
