package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	bunrepo "github.com/goliatone/go-flagsubmit/internal/storage/bun"
	"github.com/goliatone/go-flagsubmit/internal/storage/memory"
	"github.com/goliatone/go-flagsubmit/pkg/domain"
	"github.com/goliatone/go-flagsubmit/pkg/interfaces/store"
	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// Providers exposes all repositories needed by services.
type Providers struct {
	Flags    store.FlagRepository
	Attempts store.AttemptRepository

	closer func() error
}

// Close releases the underlying database, if any.
func (p Providers) Close() error {
	if p.closer == nil {
		return nil
	}
	return p.closer()
}

// NewMemoryProviders returns repositories backed by in-memory maps.
func NewMemoryProviders(opts ...memory.FlagOption) Providers {
	return Providers{
		Flags:    memory.NewFlagRepository(opts...),
		Attempts: memory.NewAttemptRepository(),
	}
}

// NewBunProviders wires Bun-backed repositories using go-repository-bun.
// The caller owns the *bun.DB lifecycle.
func NewBunProviders(db *bun.DB) Providers {
	if db == nil {
		panic("storage: bun DB is required")
	}

	// Register models so go-persistence-bun migrations can pick them up.
	persistence.RegisterModel(
		(*domain.Flag)(nil),
		(*domain.SubmissionAttempt)(nil),
	)

	return Providers{
		Flags:    bunrepo.NewFlagRepository(db),
		Attempts: bunrepo.NewAttemptRepository(db),
	}
}

// Open builds providers for the configured driver. "memory" keeps everything
// in process; "sqlite" opens (and migrates) the database at dsn.
func Open(ctx context.Context, driver, dsn string) (Providers, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "memory":
		return NewMemoryProviders(), nil
	case "", "sqlite", "sqlite3":
		db, err := OpenSQLite(ctx, dsn)
		if err != nil {
			return Providers{}, err
		}
		providers := NewBunProviders(db)
		providers.closer = db.Close
		return providers, nil
	default:
		return Providers{}, fmt.Errorf("storage: unsupported driver %s", driver)
	}
}

// OpenSQLite opens a Bun handle over SQLite and ensures the schema exists.
func OpenSQLite(ctx context.Context, dsn string) (*bun.DB, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("storage: sqlite dsn is required")
	}
	if err := ensureSQLiteDir(dsn); err != nil {
		return nil, err
	}

	sqldb, err := sql.Open(sqliteshim.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: open sqlite: %w", err)
	}
	// One connection keeps ":memory:" databases shared and serialises writers.
	sqldb.SetMaxOpenConns(1)
	db := bun.NewDB(sqldb, sqlitedialect.New())

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := sqldb.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("storage: exec %s: %w", pragma, err)
		}
	}

	if err := EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// EnsureSchema creates the flag and attempt tables when missing.
func EnsureSchema(ctx context.Context, db *bun.DB) error {
	return bunrepo.CreateSchema(ctx, db)
}

func ensureSQLiteDir(dsn string) error {
	path := strings.TrimPrefix(dsn, "file:")
	if idx := strings.Index(path, "?"); idx >= 0 {
		path = path[:idx]
	}
	if path == "" || path == ":memory:" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
