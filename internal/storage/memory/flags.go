package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-flagsubmit/pkg/domain"
	"github.com/goliatone/go-flagsubmit/pkg/interfaces/store"
)

// FlagRepository is a map-backed FlagStore keyed by flag value. Every call
// works on copies so readers never observe a partially updated flag.
type FlagRepository struct {
	mu    sync.RWMutex
	flags map[string]domain.Flag
	now   func() time.Time
}

// FlagOption customises the memory flag repository.
type FlagOption func(*FlagRepository)

// WithClock overrides the time source used for FirstSeen and LastAttempt.
func WithClock(now func() time.Time) FlagOption {
	return func(r *FlagRepository) {
		if now != nil {
			r.now = now
		}
	}
}

func NewFlagRepository(opts ...FlagOption) *FlagRepository {
	repo := &FlagRepository{
		flags: make(map[string]domain.Flag),
		now:   time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(repo)
		}
	}
	return repo
}

var _ store.FlagRepository = (*FlagRepository)(nil)

func (r *FlagRepository) InsertIfAbsent(ctx context.Context, value, group string) (bool, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return false, store.ErrInvalidValue
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.flags[value]; ok {
		return false, nil
	}
	now := r.now().UTC()
	flag := domain.NewFlag(value, group, now)
	flag.EnsureID()
	flag.CreatedAt = now
	flag.UpdatedAt = now
	r.flags[value] = *flag
	return true, nil
}

func (r *FlagRepository) ListPending(ctx context.Context, limit int) ([]domain.Flag, error) {
	items := r.sorted(func(f *domain.Flag) bool { return f.Status == domain.FlagStatusPending })
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (r *FlagRepository) Update(ctx context.Context, value string, status domain.FlagStatus, message string) (*domain.Flag, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	flag, ok := r.flags[value]
	if !ok {
		return nil, store.ErrNotFound
	}
	if err := store.CheckTransition(flag.Status, status); err != nil {
		return nil, err
	}
	now := r.now().UTC()
	flag.Status = status
	flag.Attempts++
	flag.LastAttempt = now
	flag.ServerMessage = message
	flag.UpdatedAt = now
	r.flags[value] = flag

	out := flag
	return &out, nil
}

func (r *FlagRepository) GetByValue(ctx context.Context, value string) (*domain.Flag, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	flag, ok := r.flags[value]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &flag, nil
}

func (r *FlagRepository) ListFinalized(ctx context.Context) ([]string, error) {
	items := r.sorted(func(f *domain.Flag) bool { return f.Status.IsTerminal() })
	values := make([]string, len(items))
	for i, f := range items {
		values[i] = f.Value
	}
	return values, nil
}

func (r *FlagRepository) List(ctx context.Context, opts store.ListOptions) (store.ListResult[domain.Flag], error) {
	items := r.sorted(func(f *domain.Flag) bool {
		if opts.Status != "" && f.Status != opts.Status {
			return false
		}
		if !opts.Since.IsZero() && f.FirstSeen.Before(opts.Since) {
			return false
		}
		if !opts.Until.IsZero() && f.FirstSeen.After(opts.Until) {
			return false
		}
		return true
	})
	return paginate(items, opts), nil
}

func (r *FlagRepository) CountByStatus(ctx context.Context) (map[domain.FlagStatus]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[domain.FlagStatus]int, len(domain.FlagStatuses))
	for _, f := range r.flags {
		counts[f.Status]++
	}
	return counts, nil
}

func (r *FlagRepository) Requeue(ctx context.Context, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	flag, ok := r.flags[value]
	if !ok {
		return store.ErrNotFound
	}
	if flag.Status != domain.FlagStatusError {
		return store.ErrInvalidTransition
	}
	flag.Status = domain.FlagStatusPending
	flag.UpdatedAt = r.now().UTC()
	r.flags[value] = flag
	return nil
}

// sorted returns matching flags oldest first.
func (r *FlagRepository) sorted(match func(*domain.Flag) bool) []domain.Flag {
	r.mu.RLock()
	defer r.mu.RUnlock()

	items := make([]domain.Flag, 0, len(r.flags))
	for _, f := range r.flags {
		if match(&f) {
			items = append(items, f)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].FirstSeen.Equal(items[j].FirstSeen) {
			return items[i].FirstSeen.Before(items[j].FirstSeen)
		}
		return items[i].Value < items[j].Value
	})
	return items
}
