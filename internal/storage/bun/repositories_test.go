package bunrepo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-flagsubmit/pkg/domain"
	"github.com/goliatone/go-flagsubmit/pkg/interfaces/store"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func setupSQLiteDB(t *testing.T) *bun.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	sqldb, err := sql.Open(sqliteshim.DriverName(), dsn)
	if err != nil {
		t.Fatalf("sql open: %v", err)
	}
	sqldb.SetMaxOpenConns(1)
	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })

	if err := CreateSchema(context.Background(), db); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	return db
}

func newTestFlagRepository(t *testing.T) *FlagRepository {
	t.Helper()
	repo := NewFlagRepository(setupSQLiteDB(t))
	current := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	repo.now = func() time.Time {
		current = current.Add(time.Second)
		return current
	}
	return repo
}

func TestFlagRepositoryBunInsertIfAbsent(t *testing.T) {
	repo := newTestFlagRepository(t)
	ctx := context.Background()

	inserted, err := repo.InsertIfAbsent(ctx, "FLAG_A", "svc1")
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if !inserted {
		t.Fatalf("expected first insert to report true")
	}
	inserted, err = repo.InsertIfAbsent(ctx, "FLAG_A", "svc1")
	if err != nil {
		t.Fatalf("second insert: %v", err)
	}
	if inserted {
		t.Fatalf("expected second insert to report false")
	}
	if _, err := repo.InsertIfAbsent(ctx, "", ""); !errors.Is(err, store.ErrInvalidValue) {
		t.Fatalf("expected ErrInvalidValue, got %v", err)
	}

	list, err := repo.List(ctx, store.ListOptions{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if list.Total != 1 {
		t.Fatalf("expected total 1, got %d", list.Total)
	}
	got, err := repo.GetByValue(ctx, "FLAG_A")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.FlagStatusPending || got.Attempts != 0 || got.Group != "svc1" {
		t.Fatalf("unexpected flag %+v", got)
	}
	if _, err := repo.GetByValue(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFlagRepositoryBunListPendingOrder(t *testing.T) {
	repo := newTestFlagRepository(t)
	ctx := context.Background()

	for _, v := range []string{"FLAG_Z", "FLAG_A", "FLAG_M"} {
		if _, err := repo.InsertIfAbsent(ctx, v, ""); err != nil {
			t.Fatalf("insert %s: %v", v, err)
		}
	}
	if _, err := repo.Update(ctx, "FLAG_A", domain.FlagStatusRejected, "invalid flag"); err != nil {
		t.Fatalf("update: %v", err)
	}

	pending, err := repo.ListPending(ctx, 0)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 2 || pending[0].Value != "FLAG_Z" || pending[1].Value != "FLAG_M" {
		t.Fatalf("unexpected pending list %+v", pending)
	}
}

func TestFlagRepositoryBunUpdateLifecycle(t *testing.T) {
	repo := newTestFlagRepository(t)
	ctx := context.Background()

	if _, err := repo.Update(ctx, "nope", domain.FlagStatusAccepted, ""); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := repo.InsertIfAbsent(ctx, "FLAG_C", ""); err != nil {
		t.Fatalf("insert: %v", err)
	}

	flag, err := repo.Update(ctx, "FLAG_C", domain.FlagStatusPending, "timeout")
	if err != nil {
		t.Fatalf("update pending: %v", err)
	}
	if flag.Attempts != 1 || flag.LastAttempt.IsZero() {
		t.Fatalf("unexpected flag after retryable update %+v", flag)
	}

	if _, err := repo.Update(ctx, "FLAG_C", domain.FlagStatusDuplicate, "already submitted"); err != nil {
		t.Fatalf("update duplicate: %v", err)
	}
	stored, err := repo.GetByValue(ctx, "FLAG_C")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != domain.FlagStatusDuplicate || stored.Attempts != 2 || stored.ServerMessage != "already submitted" {
		t.Fatalf("unexpected stored flag %+v", stored)
	}

	if _, err := repo.Update(ctx, "FLAG_C", domain.FlagStatusAccepted, ""); !errors.Is(err, store.ErrFinalized) {
		t.Fatalf("expected ErrFinalized, got %v", err)
	}
	stored, _ = repo.GetByValue(ctx, "FLAG_C")
	if stored.Attempts != 2 {
		t.Fatalf("terminal flag should not gain attempts, got %d", stored.Attempts)
	}
}

func TestFlagRepositoryBunFinalizedCountsAndRequeue(t *testing.T) {
	repo := newTestFlagRepository(t)
	ctx := context.Background()

	for _, v := range []string{"A", "B", "C", "D"} {
		if _, err := repo.InsertIfAbsent(ctx, v, ""); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	updates := map[string]domain.FlagStatus{
		"A": domain.FlagStatusAccepted,
		"B": domain.FlagStatusDuplicate,
		"C": domain.FlagStatusError,
	}
	for value, status := range updates {
		if _, err := repo.Update(ctx, value, status, ""); err != nil {
			t.Fatalf("update %s: %v", value, err)
		}
	}

	finalized, err := repo.ListFinalized(ctx)
	if err != nil {
		t.Fatalf("finalized: %v", err)
	}
	if len(finalized) != 2 || finalized[0] != "A" || finalized[1] != "B" {
		t.Fatalf("unexpected finalized values %v", finalized)
	}

	counts, err := repo.CountByStatus(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if counts[domain.FlagStatusPending] != 1 || counts[domain.FlagStatusError] != 1 || counts[domain.FlagStatusAccepted] != 1 {
		t.Fatalf("unexpected counts %v", counts)
	}

	if err := repo.Requeue(ctx, "A"); !errors.Is(err, store.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if err := repo.Requeue(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := repo.Requeue(ctx, "C"); err != nil {
		t.Fatalf("requeue: %v", err)
	}
	pending, err := repo.ListPending(ctx, 0)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected requeued flag to be pending, got %+v", pending)
	}
}

func TestAttemptRepositoryBun(t *testing.T) {
	db := setupSQLiteDB(t)
	repo := NewAttemptRepository(db)
	ctx := context.Background()

	attempts := []*domain.SubmissionAttempt{
		{FlagValue: "A", Outcome: domain.OutcomeTransportError, Message: "timeout"},
		{FlagValue: "A", Outcome: domain.OutcomeAccepted, StatusCode: 200},
		{FlagValue: "B", Outcome: domain.OutcomeRejected, StatusCode: 200},
	}
	for i, a := range attempts {
		a.CreatedAt = time.Date(2024, 5, 1, 10, 0, i, 0, time.UTC)
		if err := repo.Create(ctx, a); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	got, err := repo.ListByFlag(ctx, "A")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].Outcome != domain.OutcomeTransportError || got[1].StatusCode != 200 {
		t.Fatalf("unexpected attempts %+v", got)
	}
}
