package bunrepo

import (
	"context"
	"strings"

	"github.com/goliatone/go-flagsubmit/pkg/domain"
	"github.com/goliatone/go-flagsubmit/pkg/interfaces/store"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type AttemptRepository struct {
	base baseRepository[domain.SubmissionAttempt]
}

func NewAttemptRepository(db *bun.DB) *AttemptRepository {
	handlers := uuidHandlers(
		func() *domain.SubmissionAttempt { return &domain.SubmissionAttempt{} },
		func(a *domain.SubmissionAttempt) *uuid.UUID { return &a.ID },
	)
	return &AttemptRepository{
		base: newBaseRepository[domain.SubmissionAttempt](db, handlers, func(a *domain.SubmissionAttempt) *domain.RecordMeta { return &a.RecordMeta }),
	}
}

func (r *AttemptRepository) Create(ctx context.Context, attempt *domain.SubmissionAttempt) error {
	if attempt == nil || strings.TrimSpace(attempt.FlagValue) == "" {
		return store.ErrInvalidValue
	}
	return r.base.create(ctx, attempt)
}

func (r *AttemptRepository) ListByFlag(ctx context.Context, value string) ([]domain.SubmissionAttempt, error) {
	result, err := r.base.list(ctx,
		func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("flag_value = ?", value)
		},
		func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("created_at ASC")
		},
	)
	if err != nil {
		return nil, err
	}
	return result.Items, nil
}
