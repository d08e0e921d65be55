package bunrepo

import (
	"context"
	"fmt"

	"github.com/goliatone/go-flagsubmit/pkg/domain"
	"github.com/uptrace/bun"
)

// Models lists every table owned by this package.
func Models() []any {
	return []any{
		(*domain.Flag)(nil),
		(*domain.SubmissionAttempt)(nil),
	}
}

// CreateSchema creates tables and indexes when missing.
func CreateSchema(ctx context.Context, db bun.IDB) error {
	for _, model := range Models() {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("storage: create table for %T: %w", model, err)
		}
	}

	indexes := []struct {
		model   any
		name    string
		columns []string
	}{
		{(*domain.Flag)(nil), "flags_status_first_seen_idx", []string{"status", "first_seen"}},
		{(*domain.SubmissionAttempt)(nil), "submission_attempts_flag_value_idx", []string{"flag_value"}},
	}
	for _, idx := range indexes {
		_, err := db.NewCreateIndex().
			Model(idx.model).
			Index(idx.name).
			Column(idx.columns...).
			IfNotExists().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("storage: create index %s: %w", idx.name, err)
		}
	}
	return nil
}
