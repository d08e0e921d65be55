package store

import (
	"context"
	"errors"
	"time"

	"github.com/goliatone/go-flagsubmit/pkg/domain"
)

var (
	// ErrNotFound is returned when a record cannot be located.
	ErrNotFound = errors.New("store: not found")
	// ErrFinalized is returned when an update targets a flag in a terminal state.
	ErrFinalized = errors.New("store: flag already finalized")
	// ErrInvalidTransition is returned when a status change breaks the state machine.
	ErrInvalidTransition = errors.New("store: invalid status transition")
	// ErrInvalidValue is returned for blank flag values.
	ErrInvalidValue = errors.New("store: flag value is required")
)

// ListOptions capture pagination and filtering knobs common to repositories.
type ListOptions struct {
	Limit  int
	Offset int
	Since  time.Time
	Until  time.Time
	Status domain.FlagStatus
}

// ListResult bundles records and totals.
type ListResult[T any] struct {
	Items []T
	Total int
}

// FlagRepository is the durable record of every known flag. Update is the
// only mutating call made by the submission cycle.
type FlagRepository interface {
	InsertIfAbsent(ctx context.Context, value, group string) (bool, error)
	ListPending(ctx context.Context, limit int) ([]domain.Flag, error)
	Update(ctx context.Context, value string, status domain.FlagStatus, message string) (*domain.Flag, error)

	GetByValue(ctx context.Context, value string) (*domain.Flag, error)
	ListFinalized(ctx context.Context) ([]string, error)
	List(ctx context.Context, opts ListOptions) (ListResult[domain.Flag], error)
	CountByStatus(ctx context.Context) (map[domain.FlagStatus]int, error)
	Requeue(ctx context.Context, value string) error
}

// AttemptRepository stores the submission audit trail.
type AttemptRepository interface {
	Create(ctx context.Context, attempt *domain.SubmissionAttempt) error
	ListByFlag(ctx context.Context, value string) ([]domain.SubmissionAttempt, error)
}

// CheckTransition validates a status change requested through Update.
func CheckTransition(from, to domain.FlagStatus) error {
	if !to.Valid() {
		return ErrInvalidTransition
	}
	if from.IsTerminal() {
		return ErrFinalized
	}
	if from == domain.FlagStatusError {
		return ErrInvalidTransition
	}
	return nil
}
