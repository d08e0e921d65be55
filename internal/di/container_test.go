package di

import (
	"context"
	"testing"

	"github.com/goliatone/go-flagsubmit/pkg/config"
	"github.com/goliatone/go-flagsubmit/pkg/domain"
)

type stubClient struct{ calls int }

func (s *stubClient) Submit(ctx context.Context, flag domain.Flag) domain.SubmissionResult {
	s.calls++
	return domain.SubmissionResult{Outcome: domain.OutcomeAccepted, Message: "ok"}
}

func validConfig() config.Config {
	cfg := config.Defaults()
	cfg.Storage.Driver = "memory"
	cfg.Submission.URL = "http://scoreboard.local/flags"
	cfg.Submission.Token = "team-token"
	cfg.Submission.FlagsQuota = 0
	return cfg
}

func TestNewWiresCycleWithInjectedClient(t *testing.T) {
	client := &stubClient{}
	container, err := New(Options{Config: validConfig(), Client: client})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if container.Storage.Flags == nil || container.Cycle == nil || container.Scheduler == nil || container.Commands == nil {
		t.Fatalf("expected fully wired container: %+v", container)
	}

	ctx := context.Background()
	if _, err := container.Storage.Flags.InsertIfAbsent(ctx, "FLAG_A", "web"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	summary, err := container.Cycle.Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Accepted != 1 || client.calls != 1 {
		t.Fatalf("unexpected summary %+v calls=%d", summary, client.calls)
	}
	if !container.Dedup.IsFinalized("FLAG_A") {
		t.Fatalf("expected accepted flag in finalized set")
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := validConfig()
	cfg.Submission.URL = ""
	if _, err := New(Options{Config: cfg}); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestBuildRules(t *testing.T) {
	rules, err := BuildRules(nil)
	if err != nil || rules != nil {
		t.Fatalf("expected nil ruleset for empty config, got %v %v", rules, err)
	}

	rules, err = BuildRules([]config.RuleConfig{
		{Outcome: "accepted", Regex: `^\[OK\]`},
		{Name: "dup", Outcome: "duplicate", Contains: []string{"again"}},
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(rules) != 2 || rules[0].Name != "rule_0" || rules[1].Outcome != domain.OutcomeAlreadySubmitted {
		t.Fatalf("unexpected rules %+v", rules)
	}

	if _, err := BuildRules([]config.RuleConfig{{Outcome: "nope", StatusCodes: []int{200}}}); err == nil {
		t.Fatalf("expected error for unknown outcome")
	}
}
