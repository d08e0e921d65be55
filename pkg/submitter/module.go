package submitter

import (
	"context"
	"fmt"
	"net/http"

	"github.com/goliatone/go-flagsubmit/internal/cycle"
	"github.com/goliatone/go-flagsubmit/internal/di"
	"github.com/goliatone/go-flagsubmit/pkg/commands"
	"github.com/goliatone/go-flagsubmit/pkg/config"
	"github.com/goliatone/go-flagsubmit/pkg/domain"
	"github.com/goliatone/go-flagsubmit/pkg/ingest"
	"github.com/goliatone/go-flagsubmit/pkg/interfaces/logger"
	"github.com/goliatone/go-flagsubmit/pkg/interfaces/store"
	"github.com/goliatone/go-flagsubmit/pkg/storage"
	"github.com/goliatone/go-flagsubmit/pkg/submit"
)

// Summary is the report of one submission pass.
type Summary = cycle.Summary

// ModuleOptions configure the submitter module facade.
type ModuleOptions struct {
	Config config.Config
	// Storage overrides the configured backend. When empty the module opens
	// storage from Config.Storage and closes it on Close.
	Storage    storage.Providers
	Logger     logger.Logger
	Client     submit.Submitter
	HTTPClient *http.Client
	Metrics    cycle.Metrics
	OnCycle    func(Summary)
}

// Module bundles the container and exposes high-level accessors.
type Module struct {
	container   *di.Container
	ownsStorage bool
}

// Status is a snapshot of the flag store.
type Status struct {
	Counts    map[domain.FlagStatus]int
	Total     int
	Finalized int
}

// NewModule assembles storage, the submission client, cycle, scheduler and
// commands, then rebuilds the finalized set from the store.
func NewModule(ctx context.Context, opts ModuleOptions) (*Module, error) {
	providers := opts.Storage
	owns := false
	if providers.Flags == nil {
		opened, err := storage.Open(ctx, opts.Config.Storage.Driver, opts.Config.Storage.DSN)
		if err != nil {
			return nil, err
		}
		providers = opened
		owns = true
	}

	container, err := di.New(di.Options{
		Config:     opts.Config,
		Storage:    providers,
		Logger:     opts.Logger,
		Client:     opts.Client,
		HTTPClient: opts.HTTPClient,
		Metrics:    opts.Metrics,
		OnCycle:    opts.OnCycle,
	})
	if err != nil {
		if owns {
			_ = providers.Close()
		}
		return nil, err
	}

	if err := container.Dedup.Rebuild(ctx, container.Storage.Flags); err != nil {
		if owns {
			_ = providers.Close()
		}
		return nil, err
	}
	return &Module{container: container, ownsStorage: owns}, nil
}

// Ingest stores new flag values under group.
func (m *Module) Ingest(ctx context.Context, values []string, group string) (ingest.Report, error) {
	var report ingest.Report
	err := m.container.Commands.IngestFlags.Execute(ctx, commands.IngestFlags{
		Values: values,
		Group:  group,
		Report: &report,
	})
	return report, err
}

// RunOnce performs a single submission pass.
func (m *Module) RunOnce(ctx context.Context) (Summary, error) {
	var summary Summary
	err := m.container.Commands.RunCycle.Execute(ctx, commands.RunCycle{Summary: &summary})
	return summary, err
}

// Run drives the scheduler until ctx is cancelled, or once in single-run mode.
func (m *Module) Run(ctx context.Context) error {
	return m.container.Scheduler.Run(ctx)
}

// Requeue moves errored flags back to pending. With all set, values is ignored.
func (m *Module) Requeue(ctx context.Context, values []string, all bool) (int, error) {
	moved := 0
	err := m.container.Commands.RequeueFlags.Execute(ctx, commands.RequeueFlags{
		Values:   values,
		All:      all,
		Requeued: &moved,
	})
	return moved, err
}

// Status counts flags per status.
func (m *Module) Status(ctx context.Context) (Status, error) {
	counts, err := m.container.Storage.Flags.CountByStatus(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("submitter: status: %w", err)
	}
	status := Status{Counts: counts}
	for s, n := range counts {
		status.Total += n
		if s.IsTerminal() {
			status.Finalized += n
		}
	}
	return status, nil
}

// Flags lists stored flags.
func (m *Module) Flags(ctx context.Context, opts store.ListOptions) (store.ListResult[domain.Flag], error) {
	return m.container.Storage.Flags.List(ctx, opts)
}

// Attempts returns the submission history of a flag.
func (m *Module) Attempts(ctx context.Context, value string) ([]domain.SubmissionAttempt, error) {
	if m.container.Storage.Attempts == nil {
		return nil, nil
	}
	return m.container.Storage.Attempts.ListByFlag(ctx, value)
}

// Commands returns the go-command registry.
func (m *Module) Commands() *commands.Registry {
	if m == nil || m.container == nil {
		return nil
	}
	return m.container.Commands
}

// Config returns the effective module configuration.
func (m *Module) Config() config.Config {
	if m == nil || m.container == nil {
		return config.Config{}
	}
	return m.container.Config
}

// Close releases storage opened by the module.
func (m *Module) Close() error {
	if m == nil || m.container == nil || !m.ownsStorage {
		return nil
	}
	return m.container.Storage.Close()
}
