package commands

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	command "github.com/goliatone/go-command"
	"github.com/goliatone/go-flagsubmit/internal/cycle"
	"github.com/goliatone/go-flagsubmit/pkg/domain"
	"github.com/goliatone/go-flagsubmit/pkg/ingest"
	"github.com/goliatone/go-flagsubmit/pkg/interfaces/logger"
	"github.com/goliatone/go-flagsubmit/pkg/interfaces/store"
)

// Catalog exposes go-command compatible handlers for host transports.
type Catalog struct {
	IngestFlags  command.Commander[IngestFlags]
	RunCycle     command.Commander[RunCycle]
	RequeueFlags command.Commander[RequeueFlags]
}

type cycleRunner interface {
	Run(ctx context.Context) (cycle.Summary, error)
}

// Dependencies wires repositories and services into the command catalog.
type Dependencies struct {
	Flags       store.FlagRepository
	Cycle       cycleRunner
	FlagPattern *regexp.Regexp
	Logger      logger.Logger
}

// NewCatalog builds the command catalog using the supplied dependencies.
func NewCatalog(deps Dependencies) (*Catalog, error) {
	if deps.Flags == nil {
		return nil, errors.New("commands: flag repository is required")
	}
	if deps.Cycle == nil {
		return nil, errors.New("commands: cycle service is required")
	}
	if deps.Logger == nil {
		deps.Logger = &logger.Nop{}
	}

	return &Catalog{
		IngestFlags:  ingestCommand{repo: deps.Flags, pattern: deps.FlagPattern, logger: deps.Logger},
		RunCycle:     runCycleCommand{cycle: deps.Cycle},
		RequeueFlags: requeueCommand{repo: deps.Flags, logger: deps.Logger},
	}, nil
}

// IngestFlags stores harvested flag values.
type IngestFlags struct {
	Values []string `json:"values"`
	Group  string   `json:"group"`
	// Report receives the ingestion counts when set.
	Report *ingest.Report `json:"-"`
}

type ingestCommand struct {
	repo    store.FlagRepository
	pattern *regexp.Regexp
	logger  logger.Logger
}

func (c ingestCommand) Execute(ctx context.Context, msg IngestFlags) error {
	if len(msg.Values) == 0 {
		return errors.New("commands: at least one flag value is required")
	}
	report, err := ingest.Ingest(ctx, c.repo, msg.Values, ingest.Options{Group: msg.Group, Pattern: c.pattern})
	if msg.Report != nil {
		*msg.Report = report
	}
	if err != nil {
		return err
	}
	c.logger.Info("flags ingested",
		logger.F("group", msg.Group),
		logger.F("inserted", report.Inserted),
		logger.F("known", report.Known),
		logger.F("invalid", report.Invalid),
	)
	return nil
}

// RunCycle triggers one submission pass.
type RunCycle struct {
	// Summary receives the pass report when set.
	Summary *cycle.Summary `json:"-"`
}

type runCycleCommand struct {
	cycle cycleRunner
}

func (c runCycleCommand) Execute(ctx context.Context, msg RunCycle) error {
	summary, err := c.cycle.Run(ctx)
	if msg.Summary != nil {
		*msg.Summary = summary
	}
	return err
}

// RequeueFlags moves errored flags back to pending. With All set every
// errored flag is requeued and Values is ignored.
type RequeueFlags struct {
	Values []string `json:"values"`
	All    bool     `json:"all"`
	// Requeued receives the number of flags moved when set.
	Requeued *int `json:"-"`
}

type requeueCommand struct {
	repo   store.FlagRepository
	logger logger.Logger
}

func (c requeueCommand) Execute(ctx context.Context, msg RequeueFlags) error {
	values := msg.Values
	if msg.All {
		errored, err := c.repo.List(ctx, store.ListOptions{Status: domain.FlagStatusError})
		if err != nil {
			return fmt.Errorf("commands: list errored flags: %w", err)
		}
		values = make([]string, 0, len(errored.Items))
		for _, f := range errored.Items {
			values = append(values, f.Value)
		}
	} else if len(values) == 0 {
		return errors.New("commands: flag values or all is required")
	}

	var errs []error
	moved := 0
	for _, value := range values {
		if err := c.repo.Requeue(ctx, value); err != nil {
			errs = append(errs, fmt.Errorf("requeue %s: %w", value, err))
			continue
		}
		moved++
	}
	if msg.Requeued != nil {
		*msg.Requeued = moved
	}
	c.logger.Info("flags requeued", logger.F("requeued", moved), logger.F("failed", len(errs)))
	return errors.Join(errs...)
}
