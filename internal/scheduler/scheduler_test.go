package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-flagsubmit/internal/cycle"
	"github.com/goliatone/go-flagsubmit/internal/storage/memory"
	"github.com/goliatone/go-flagsubmit/pkg/domain"
)

type fakeRunner struct {
	runs    int
	errs    []error
	cancel  context.CancelFunc
	stopAt  int
	summary cycle.Summary
}

func (r *fakeRunner) Run(ctx context.Context) (cycle.Summary, error) {
	r.runs++
	if r.cancel != nil && r.runs == r.stopAt {
		r.cancel()
	}
	if len(r.errs) > 0 {
		err := r.errs[0]
		r.errs = r.errs[1:]
		if err != nil {
			return cycle.Summary{}, err
		}
	}
	return r.summary, nil
}

type noopClient struct{ calls int }

func (c *noopClient) Submit(ctx context.Context, flag domain.Flag) domain.SubmissionResult {
	c.calls++
	return domain.SubmissionResult{Outcome: domain.OutcomeAccepted}
}

func TestSingleRunWithNoPendingFlagsDoesNotSleep(t *testing.T) {
	client := &noopClient{}
	svc, err := cycle.New(cycle.Dependencies{Flags: memory.NewFlagRepository(), Client: client})
	if err != nil {
		t.Fatalf("cycle: %v", err)
	}

	var summaries []cycle.Summary
	waits := 0
	sched, err := New(Dependencies{
		Runner:  svc,
		Config:  Config{SingleRun: true},
		OnCycle: func(s cycle.Summary) { summaries = append(summaries, s) },
		Wait: func(ctx context.Context, d time.Duration) error {
			waits++
			return nil
		},
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	if err := sched.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(summaries) != 1 || summaries[0].Total != 0 || summaries[0].Submitted() != 0 {
		t.Fatalf("expected one empty summary, got %+v", summaries)
	}
	if waits != 0 || client.calls != 0 {
		t.Fatalf("single run must not sleep or submit, waits=%d calls=%d", waits, client.calls)
	}
}

func TestSingleRunReturnsCycleError(t *testing.T) {
	boom := errors.New("boom")
	sched, err := New(Dependencies{
		Runner: &fakeRunner{errs: []error{boom}},
		Config: Config{SingleRun: true},
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := sched.Run(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected cycle error, got %v", err)
	}
}

func TestRepeatingRunsUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runner := &fakeRunner{cancel: cancel, stopAt: 3}

	var waited []time.Duration
	sched, err := New(Dependencies{
		Runner: runner,
		Config: Config{Interval: 10 * time.Second},
		Wait: func(ctx context.Context, d time.Duration) error {
			waited = append(waited, d)
			return ctx.Err()
		},
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	if err := sched.Run(ctx); err != nil {
		t.Fatalf("expected clean stop, got %v", err)
	}
	if runner.runs != 3 {
		t.Fatalf("expected 3 cycles, got %d", runner.runs)
	}
	if len(waited) != 3 || waited[0] != 10*time.Second {
		t.Fatalf("unexpected waits %v", waited)
	}
}

func TestRepeatingStopsWithRealTimer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	runner := &fakeRunner{}

	sched, err := New(Dependencies{Runner: runner, Config: Config{Interval: time.Hour}})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- sched.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected nil on cancel, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("scheduler did not observe cancellation during wait")
	}
	if runner.runs != 1 {
		t.Fatalf("expected a single cycle, got %d", runner.runs)
	}
}

func TestRepeatingEscalatesConsecutiveFailures(t *testing.T) {
	boom := errors.New("database is gone")
	runner := &fakeRunner{errs: []error{boom, nil, boom, boom, boom}}

	sched, err := New(Dependencies{
		Runner: runner,
		Config: Config{Interval: time.Second, MaxConsecutiveFailures: 3},
		Wait:   func(context.Context, time.Duration) error { return nil },
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	err = sched.Run(context.Background())
	if !errors.Is(err, ErrStoreUnavailable) || !errors.Is(err, boom) {
		t.Fatalf("expected ErrStoreUnavailable wrapping cause, got %v", err)
	}
	if runner.runs != 5 {
		t.Fatalf("expected success to reset the failure streak, got %d runs", runner.runs)
	}
}

func TestNewValidates(t *testing.T) {
	if _, err := New(Dependencies{}); !errors.Is(err, ErrMissingRunner) {
		t.Fatalf("expected ErrMissingRunner, got %v", err)
	}
	if _, err := New(Dependencies{Runner: &fakeRunner{}}); err == nil {
		t.Fatalf("expected interval error")
	}
}
