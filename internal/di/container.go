package di

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/goliatone/go-flagsubmit/internal/cycle"
	"github.com/goliatone/go-flagsubmit/internal/dedup"
	"github.com/goliatone/go-flagsubmit/internal/scheduler"
	"github.com/goliatone/go-flagsubmit/internal/telemetry"
	"github.com/goliatone/go-flagsubmit/pkg/commands"
	"github.com/goliatone/go-flagsubmit/pkg/config"
	"github.com/goliatone/go-flagsubmit/pkg/ingest"
	"github.com/goliatone/go-flagsubmit/pkg/interfaces/logger"
	"github.com/goliatone/go-flagsubmit/pkg/retry"
	"github.com/goliatone/go-flagsubmit/pkg/secrets"
	"github.com/goliatone/go-flagsubmit/pkg/storage"
	"github.com/goliatone/go-flagsubmit/pkg/submit"
)

// Options configure the DI container.
type Options struct {
	Config  config.Config
	Storage storage.Providers
	Logger  logger.Logger
	// Client replaces the HTTP submission client, mainly for tests.
	Client     submit.Submitter
	HTTPClient *http.Client
	Metrics    cycle.Metrics
	OnCycle    func(cycle.Summary)
}

// Container wires repositories, the submission client, cycle, scheduler and commands.
type Container struct {
	Config    config.Config
	Storage   storage.Providers
	Logger    logger.Logger
	Client    submit.Submitter
	Dedup     *dedup.Set
	Cycle     *cycle.Service
	Scheduler *scheduler.Scheduler
	Commands  *commands.Registry
}

// New constructs the container using the supplied options.
func New(opts Options) (*Container, error) {
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	providers := opts.Storage
	if providers.Flags == nil {
		providers = storage.NewMemoryProviders()
	}

	lgr := opts.Logger
	if lgr == nil {
		lgr = &logger.Nop{}
	}

	client := opts.Client
	if client == nil {
		built, err := buildClient(cfg, opts.HTTPClient, lgr)
		if err != nil {
			return nil, err
		}
		client = built
	}

	metrics := opts.Metrics
	if metrics == nil && cfg.Telemetry.Enabled {
		m, err := telemetry.NewCycleMetrics(telemetry.Meter())
		if err != nil {
			return nil, fmt.Errorf("di: telemetry: %w", err)
		}
		metrics = m
	}

	finalized := dedup.New()
	cycleSvc, err := cycle.New(cycle.Dependencies{
		Flags:    providers.Flags,
		Attempts: providers.Attempts,
		Client:   client,
		Dedup:    finalized,
		Logger:   lgr.With(logger.F("component", "cycle")),
		Config: cycle.Config{
			BatchSize:   cfg.Submission.BatchSize,
			MaxAttempts: cfg.Submission.MaxAttempts,
			FlagsQuota:  cfg.Submission.FlagsQuota,
			AbortAfter:  cfg.RateLimit.AbortAfter,
		},
		Policy: retry.Policy{
			RateLimited: retry.ExponentialBackoff{
				Base: cfg.RateLimit.BaseDelay,
				Max:  cfg.RateLimit.MaxDelay,
			},
		},
		Metrics: metrics,
	})
	if err != nil {
		return nil, err
	}

	sched, err := scheduler.New(scheduler.Dependencies{
		Runner: cycleSvc,
		Logger: lgr.With(logger.F("component", "scheduler")),
		Config: scheduler.Config{
			Interval:               cfg.Scheduler.Interval,
			SingleRun:              cfg.Scheduler.SingleRun,
			MaxConsecutiveFailures: cfg.Scheduler.MaxConsecutiveFailures,
		},
		OnCycle: opts.OnCycle,
	})
	if err != nil {
		return nil, err
	}

	pattern, err := ingest.CompilePattern(cfg.Ingest.FlagPattern)
	if err != nil {
		return nil, err
	}
	cmdRegistry, err := commands.New(commands.Dependencies{
		Flags:       providers.Flags,
		Cycle:       cycleSvc,
		FlagPattern: pattern,
		Logger:      lgr.With(logger.F("component", "commands")),
	})
	if err != nil {
		return nil, err
	}

	lgr.Debug("container ready",
		logger.F("endpoint", cfg.Submission.URL),
		logger.F("team", secrets.MaskToken(cfg.Submission.Token)),
		logger.F("format", cfg.Submission.Format),
		logger.F("rules", len(cfg.Rules)),
	)

	return &Container{
		Config:    cfg,
		Storage:   providers,
		Logger:    lgr,
		Client:    client,
		Dedup:     finalized,
		Cycle:     cycleSvc,
		Scheduler: sched,
		Commands:  cmdRegistry,
	}, nil
}

func buildClient(cfg config.Config, hc *http.Client, lgr logger.Logger) (*submit.Client, error) {
	rules, err := BuildRules(cfg.Rules)
	if err != nil {
		return nil, err
	}
	s := cfg.Submission
	return submit.New(submit.Config{
		URL:                s.URL,
		Token:              s.Token,
		Method:             s.Method,
		Format:             s.Format,
		TokenField:         s.TokenField,
		FlagField:          s.FlagField,
		TokenHeader:        s.TokenHeader,
		ContentType:        s.ContentType,
		BodyTemplate:       s.BodyTemplate,
		Headers:            s.Headers,
		Timeout:            s.Timeout,
		InsecureSkipVerify: s.InsecureSkipVerify,
	},
		submit.WithRules(rules),
		submit.WithHTTPClient(hc),
		submit.WithLogger(lgr.With(logger.F("component", "submit"))),
	)
}

// BuildRules compiles configured rules in order. No rules yields nil so the
// client keeps its defaults.
func BuildRules(cfgRules []config.RuleConfig) (submit.Ruleset, error) {
	if len(cfgRules) == 0 {
		return nil, nil
	}
	rules := make(submit.Ruleset, 0, len(cfgRules))
	var errs []error
	for i, rc := range cfgRules {
		name := rc.Name
		if name == "" {
			name = fmt.Sprintf("rule_%d", i)
		}
		rule, err := submit.NewRule(name, rc.Outcome, rc.StatusCodes, rc.Contains, rc.Regex)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		rules = append(rules, rule)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return rules, nil
}
