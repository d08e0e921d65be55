package bunrepo

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/goliatone/go-flagsubmit/pkg/domain"
	"github.com/goliatone/go-flagsubmit/pkg/interfaces/store"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// FlagRepository persists flags through Bun. Value carries a unique
// constraint so concurrent ingestion can never store the same flag twice.
type FlagRepository struct {
	base baseRepository[domain.Flag]
	db   *bun.DB
	now  func() time.Time
}

func NewFlagRepository(db *bun.DB) *FlagRepository {
	handlers := uuidHandlers(
		func() *domain.Flag { return &domain.Flag{} },
		func(f *domain.Flag) *uuid.UUID { return &f.ID },
	)
	return &FlagRepository{
		base: newBaseRepository[domain.Flag](db, handlers, func(f *domain.Flag) *domain.RecordMeta { return &f.RecordMeta }),
		db:   db,
		now:  time.Now,
	}
}

var _ store.FlagRepository = (*FlagRepository)(nil)

func (r *FlagRepository) InsertIfAbsent(ctx context.Context, value, group string) (bool, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return false, store.ErrInvalidValue
	}
	now := r.now().UTC()
	flag := domain.NewFlag(value, group, now)
	flag.EnsureID()
	flag.CreatedAt = now
	flag.UpdatedAt = now

	res, err := r.db.NewInsert().
		Model(flag).
		On("CONFLICT (value) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *FlagRepository) ListPending(ctx context.Context, limit int) ([]domain.Flag, error) {
	result, err := r.base.list(ctx,
		withStatus(domain.FlagStatusPending),
		oldestFirst(),
		withLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	return result.Items, nil
}

// Update applies one attempt to the flag inside a transaction. The UPDATE is
// guarded by the status read in the same transaction, so a flag finalized
// concurrently is reported as ErrFinalized instead of being overwritten.
func (r *FlagRepository) Update(ctx context.Context, value string, status domain.FlagStatus, message string) (*domain.Flag, error) {
	var updated *domain.Flag
	err := r.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		current := new(domain.Flag)
		if err := tx.NewSelect().Model(current).Where("value = ?", value).Limit(1).Scan(ctx); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.ErrNotFound
			}
			return err
		}
		if err := store.CheckTransition(current.Status, status); err != nil {
			return err
		}

		now := r.now().UTC()
		res, err := tx.NewUpdate().
			Model((*domain.Flag)(nil)).
			Set("status = ?", status).
			Set("attempts = attempts + 1").
			Set("last_attempt = ?", now).
			Set("server_message = ?", message).
			Set("updated_at = ?", now).
			Where("value = ?", value).
			Where("status = ?", current.Status).
			Exec(ctx)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return store.ErrFinalized
		}

		current.Status = status
		current.Attempts++
		current.LastAttempt = now
		current.ServerMessage = message
		current.UpdatedAt = now
		updated = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *FlagRepository) GetByValue(ctx context.Context, value string) (*domain.Flag, error) {
	return r.base.get(ctx, withValue(value))
}

func (r *FlagRepository) ListFinalized(ctx context.Context) ([]string, error) {
	var values []string
	err := r.db.NewSelect().
		Model((*domain.Flag)(nil)).
		Column("value").
		Where("status IN (?)", bun.In(domain.TerminalStatuses)).
		Order("first_seen ASC").
		Scan(ctx, &values)
	if err != nil {
		return nil, err
	}
	return values, nil
}

func (r *FlagRepository) List(ctx context.Context, opts store.ListOptions) (store.ListResult[domain.Flag], error) {
	return r.base.list(ctx, withListOptions(opts), oldestFirst())
}

func (r *FlagRepository) CountByStatus(ctx context.Context) (map[domain.FlagStatus]int, error) {
	var rows []struct {
		Status domain.FlagStatus `bun:"status"`
		Count  int               `bun:"count"`
	}
	err := r.db.NewSelect().
		Model((*domain.Flag)(nil)).
		Column("status").
		ColumnExpr("COUNT(*) AS count").
		Group("status").
		Scan(ctx, &rows)
	if err != nil {
		return nil, err
	}
	counts := make(map[domain.FlagStatus]int, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

func (r *FlagRepository) Requeue(ctx context.Context, value string) error {
	res, err := r.db.NewUpdate().
		Model((*domain.Flag)(nil)).
		Set("status = ?", domain.FlagStatusPending).
		Set("updated_at = ?", r.now().UTC()).
		Where("value = ?", value).
		Where("status = ?", domain.FlagStatusError).
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	if _, err := r.GetByValue(ctx, value); err != nil {
		return err
	}
	return store.ErrInvalidTransition
}
