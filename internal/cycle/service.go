package cycle

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/goliatone/go-flagsubmit/internal/dedup"
	"github.com/goliatone/go-flagsubmit/pkg/domain"
	"github.com/goliatone/go-flagsubmit/pkg/interfaces/logger"
	"github.com/goliatone/go-flagsubmit/pkg/interfaces/store"
	"github.com/goliatone/go-flagsubmit/pkg/retry"
	"github.com/goliatone/go-flagsubmit/pkg/submit"
	"golang.org/x/time/rate"
)

// Config holds the knobs consumed by a pass.
type Config struct {
	// BatchSize caps how many pending flags one pass handles; 0 means all.
	BatchSize int
	// MaxAttempts moves a flag to error once reached by retryable outcomes; 0 disables.
	MaxAttempts int
	// FlagsQuota is the submission rate in flags per second; 0 means unlimited.
	FlagsQuota float64
	// AbortAfter ends the pass after this many consecutive rate limits; 0 never aborts.
	AbortAfter int
	// StoreRetryWindow bounds retries of transient storage errors.
	StoreRetryWindow time.Duration
}

// Metrics receives per-submission and per-pass measurements.
type Metrics interface {
	SubmissionRecorded(ctx context.Context, outcome domain.Outcome, latency time.Duration)
	CycleCompleted(ctx context.Context, summary Summary)
}

// Dependencies groups the collaborators required by the cycle.
type Dependencies struct {
	Flags    store.FlagRepository
	Attempts store.AttemptRepository
	Client   submit.Submitter
	Dedup    *dedup.Set
	Logger   logger.Logger
	Config   Config
	Policy   retry.Policy
	Metrics  Metrics
	// Sleep waits between submissions after a rate limit; it must return early on ctx.Done.
	Sleep func(ctx context.Context, d time.Duration) error
	Now   func() time.Time
}

// Service runs single passes over the pending flags. Submissions within a
// pass are sequential.
type Service struct {
	flags    store.FlagRepository
	attempts store.AttemptRepository
	client   submit.Submitter
	dedup    *dedup.Set
	logger   logger.Logger
	cfg      Config
	policy   retry.Policy
	metrics  Metrics
	limiter  *rate.Limiter
	sleep    func(ctx context.Context, d time.Duration) error
	now      func() time.Time
}

// New builds the cycle service.
func New(deps Dependencies) (*Service, error) {
	if deps.Flags == nil {
		return nil, ErrMissingFlags
	}
	if deps.Client == nil {
		return nil, ErrMissingClient
	}
	if deps.Dedup == nil {
		deps.Dedup = dedup.New()
	}
	if deps.Logger == nil {
		deps.Logger = &logger.Nop{}
	}
	if deps.Policy.RateLimited == nil && deps.Policy.Transport == nil {
		deps.Policy = retry.DefaultPolicy()
	}
	if deps.Sleep == nil {
		deps.Sleep = sleepContext
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Config.StoreRetryWindow <= 0 {
		deps.Config.StoreRetryWindow = 2 * time.Second
	}

	return &Service{
		flags:    deps.Flags,
		attempts: deps.Attempts,
		client:   deps.Client,
		dedup:    deps.Dedup,
		logger:   deps.Logger,
		cfg:      deps.Config,
		policy:   deps.Policy,
		metrics:  deps.Metrics,
		limiter:  newLimiter(deps.Config.FlagsQuota),
		sleep:    deps.Sleep,
		now:      deps.Now,
	}, nil
}

func newLimiter(quota float64) *rate.Limiter {
	if quota <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	burst := int(math.Ceil(quota))
	return rate.NewLimiter(rate.Limit(quota), burst)
}

// Dedup exposes the finalized set so callers can rebuild it on startup.
func (s *Service) Dedup() *dedup.Set {
	return s.dedup
}

// Run performs one pass. Only a failure to list pending flags is returned
// as an error; per-flag failures are recorded in the summary.
func (s *Service) Run(ctx context.Context) (Summary, error) {
	start := s.now()
	summary := Summary{}

	var pending []domain.Flag
	err := retry.TransientWithin(ctx, s.cfg.StoreRetryWindow, func() error {
		var err error
		pending, err = s.flags.ListPending(ctx, s.cfg.BatchSize)
		return err
	})
	if err != nil {
		summary.Duration = s.now().Sub(start)
		return summary, &StorageError{Op: "list pending", Err: err}
	}
	summary.Total = len(pending)

	rateLimitStreak := 0
	for _, flag := range pending {
		if ctx.Err() != nil {
			summary.Interrupted = true
			break
		}
		if s.dedup.IsFinalized(flag.Value) {
			summary.Skipped++
			continue
		}
		if err := s.limiter.Wait(ctx); err != nil {
			summary.Interrupted = true
			break
		}

		result := s.client.Submit(ctx, flag)
		summary.Results = append(summary.Results, s.apply(ctx, flag, result, &summary))

		if result.Outcome != domain.OutcomeRateLimited {
			rateLimitStreak = 0
			if delay := s.policy.Delay(1, result.Outcome); delay > 0 {
				if err := s.sleep(ctx, delay); err != nil {
					summary.Interrupted = true
					break
				}
			}
			continue
		}

		rateLimitStreak++
		if s.cfg.AbortAfter > 0 && rateLimitStreak >= s.cfg.AbortAfter {
			summary.Aborted = true
			s.logger.Warn("endpoint keeps rate limiting, deferring remaining flags to next cycle",
				logger.F("consecutive", rateLimitStreak),
			)
			break
		}
		if err := s.sleep(ctx, s.policy.Delay(rateLimitStreak, result.Outcome)); err != nil {
			summary.Interrupted = true
			break
		}
	}

	summary.Duration = s.now().Sub(start)
	if s.metrics != nil {
		s.metrics.CycleCompleted(ctx, summary)
	}
	if summary.Failed() {
		s.logger.Warn("cycle finished with failures", summary.Fields()...)
	} else {
		s.logger.Info("cycle finished", summary.Fields()...)
	}
	return summary, nil
}

// apply records one submission result against the store and the summary.
func (s *Service) apply(ctx context.Context, flag domain.Flag, result domain.SubmissionResult, summary *Summary) Result {
	status := domain.StatusForOutcome(result.Outcome)
	if !status.IsTerminal() && s.cfg.MaxAttempts > 0 && flag.Attempts+1 >= s.cfg.MaxAttempts {
		status = domain.FlagStatusError
	}
	message := result.Message
	if message == "" && result.Err != nil {
		message = result.Err.Error()
	}

	entry := Result{
		Value:   flag.Value,
		Outcome: result.Outcome,
		Message: message,
	}
	lg := s.logger.With(logger.F("flag", flag.Value), logger.F("outcome", result.Outcome))

	var updated *domain.Flag
	err := retry.TransientWithin(ctx, s.cfg.StoreRetryWindow, func() error {
		var err error
		updated, err = s.flags.Update(ctx, flag.Value, status, message)
		return err
	})

	switch {
	case errors.Is(err, store.ErrFinalized):
		s.dedup.MarkFinalized(flag.Value)
		summary.Skipped++
		entry.Err = err
		lg.Debug("flag finalized elsewhere, skipping")
	case err != nil:
		summary.StorageErrors++
		summary.tally(result.Outcome, "")
		entry.Err = &StorageError{Op: "update", Value: flag.Value, Err: err}
		lg.Error("failed to record submission outcome", logger.F("error", err))
	default:
		entry.Status = updated.Status
		entry.Attempts = updated.Attempts
		summary.tally(result.Outcome, updated.Status)
		if updated.Status.IsTerminal() {
			s.dedup.MarkFinalized(flag.Value)
		}
		if updated.Status == domain.FlagStatusError {
			lg.Warn("flag exceeded max attempts", logger.F("attempts", updated.Attempts))
		} else {
			lg.Debug("flag updated", logger.F("status", updated.Status), logger.F("attempts", updated.Attempts))
		}
	}

	s.recordAttempt(ctx, flag, result)
	if s.metrics != nil {
		s.metrics.SubmissionRecorded(ctx, result.Outcome, result.Latency)
	}
	return entry
}

// recordAttempt writes the audit row. Failures are logged only.
func (s *Service) recordAttempt(ctx context.Context, flag domain.Flag, result domain.SubmissionResult) {
	if s.attempts == nil {
		return
	}
	attempt := &domain.SubmissionAttempt{
		FlagID:     flag.ID,
		FlagValue:  flag.Value,
		Outcome:    result.Outcome,
		StatusCode: result.StatusCode,
		Message:    result.Message,
		LatencyMS:  result.Latency.Milliseconds(),
	}
	if err := s.attempts.Create(ctx, attempt); err != nil {
		s.logger.Warn("failed to record submission attempt",
			logger.F("flag", flag.Value),
			logger.F("error", err),
		)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
