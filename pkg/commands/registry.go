package commands

import (
	"regexp"

	command "github.com/goliatone/go-command"
	internalcommands "github.com/goliatone/go-flagsubmit/internal/commands"
	"github.com/goliatone/go-flagsubmit/internal/cycle"
	"github.com/goliatone/go-flagsubmit/pkg/interfaces/logger"
	"github.com/goliatone/go-flagsubmit/pkg/interfaces/store"
)

// Re-export request types so consumers need not import internal packages.
type (
	IngestFlags  = internalcommands.IngestFlags
	RunCycle     = internalcommands.RunCycle
	RequeueFlags = internalcommands.RequeueFlags
)

// Registry exposes go-command compatible handlers backed by the module services.
type Registry struct {
	Catalog      *internalcommands.Catalog
	IngestFlags  command.Commander[IngestFlags]
	RunCycle     command.Commander[RunCycle]
	RequeueFlags command.Commander[RequeueFlags]
}

// Dependencies mirror the internal command dependencies but keep them public.
type Dependencies struct {
	Flags       store.FlagRepository
	Cycle       *cycle.Service
	FlagPattern *regexp.Regexp
	Logger      logger.Logger
}

// New builds the registry using the provided dependencies.
func New(deps Dependencies) (*Registry, error) {
	internalDeps := internalcommands.Dependencies{
		Flags:       deps.Flags,
		FlagPattern: deps.FlagPattern,
		Logger:      deps.Logger,
	}
	if deps.Cycle != nil {
		internalDeps.Cycle = deps.Cycle
	}
	catalog, err := internalcommands.NewCatalog(internalDeps)
	if err != nil {
		return nil, err
	}
	return &Registry{
		Catalog:      catalog,
		IngestFlags:  catalog.IngestFlags,
		RunCycle:     catalog.RunCycle,
		RequeueFlags: catalog.RequeueFlags,
	}, nil
}

// Commanders returns every handler so callers can register them with go-command registries.
func (r *Registry) Commanders() []any {
	if r == nil {
		return nil
	}
	return []any{
		r.IngestFlags,
		r.RunCycle,
		r.RequeueFlags,
	}
}
