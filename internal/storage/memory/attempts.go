package memory

import (
	"context"
	"strings"

	"github.com/goliatone/go-flagsubmit/pkg/domain"
	"github.com/goliatone/go-flagsubmit/pkg/interfaces/store"
)

// AttemptRepository keeps the submission audit trail in memory.
type AttemptRepository struct {
	base baseMemoryRepo[domain.SubmissionAttempt]
}

func NewAttemptRepository() *AttemptRepository {
	return &AttemptRepository{
		base: newBaseMemoryRepo("submission_attempt", func(a *domain.SubmissionAttempt) *domain.RecordMeta { return &a.RecordMeta }),
	}
}

func (r *AttemptRepository) Create(ctx context.Context, attempt *domain.SubmissionAttempt) error {
	if attempt == nil || strings.TrimSpace(attempt.FlagValue) == "" {
		return store.ErrInvalidValue
	}
	return r.base.create(ctx, attempt)
}

func (r *AttemptRepository) ListByFlag(ctx context.Context, value string) ([]domain.SubmissionAttempt, error) {
	result := r.base.filter(ctx, store.ListOptions{}, func(a *domain.SubmissionAttempt) bool {
		return a.FlagValue == value
	})
	return result.Items, nil
}
