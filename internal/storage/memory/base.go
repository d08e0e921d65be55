package memory

import (
	"context"
	"sync"
	"time"

	"github.com/goliatone/go-flagsubmit/pkg/domain"
	"github.com/goliatone/go-flagsubmit/pkg/interfaces/store"
	"github.com/google/uuid"
)

type baseMemoryRepo[T any] struct {
	mu        sync.RWMutex
	records   map[uuid.UUID]T
	order     []uuid.UUID
	extract   func(*T) *domain.RecordMeta
	entityStr string
}

func newBaseMemoryRepo[T any](entity string, extract func(*T) *domain.RecordMeta) baseMemoryRepo[T] {
	return baseMemoryRepo[T]{
		records:   make(map[uuid.UUID]T),
		extract:   extract,
		entityStr: entity,
	}
}

func (r *baseMemoryRepo[T]) create(ctx context.Context, record *T) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	base := r.extract(record)
	base.EnsureID()
	now := time.Now().UTC()
	if base.CreatedAt.IsZero() {
		base.CreatedAt = now
	}
	base.UpdatedAt = now
	if _, exists := r.records[base.ID]; !exists {
		r.order = append(r.order, base.ID)
	}
	r.records[base.ID] = *record
	return nil
}

// filter returns matching records in insertion order.
func (r *baseMemoryRepo[T]) filter(ctx context.Context, opts store.ListOptions, match func(*T) bool) store.ListResult[T] {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var filtered []T
	for _, id := range r.order {
		record := r.records[id]
		base := r.extract(&record)
		if !opts.Since.IsZero() && base.CreatedAt.Before(opts.Since) {
			continue
		}
		if !opts.Until.IsZero() && base.CreatedAt.After(opts.Until) {
			continue
		}
		if match != nil && !match(&record) {
			continue
		}
		filtered = append(filtered, record)
	}

	return paginate(filtered, opts)
}

func paginate[T any](items []T, opts store.ListOptions) store.ListResult[T] {
	total := len(items)
	start := opts.Offset
	if start > total {
		start = total
	}
	if start < 0 {
		start = 0
	}
	end := total
	if opts.Limit > 0 && start+opts.Limit < end {
		end = start + opts.Limit
	}
	return store.ListResult[T]{
		Items: items[start:end],
		Total: total,
	}
}
