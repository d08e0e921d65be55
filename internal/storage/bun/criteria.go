package bunrepo

import (
	"github.com/goliatone/go-flagsubmit/pkg/domain"
	"github.com/goliatone/go-flagsubmit/pkg/interfaces/store"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

func withValue(value string) repository.SelectCriteria {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("value = ?", value)
	}
}

func withStatus(statuses ...domain.FlagStatus) repository.SelectCriteria {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		if len(statuses) == 1 {
			return q.Where("status = ?", statuses[0])
		}
		return q.Where("status IN (?)", bun.In(statuses))
	}
}

func oldestFirst() repository.SelectCriteria {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Order("first_seen ASC", "value ASC")
	}
}

func withLimit(limit int) repository.SelectCriteria {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		if limit > 0 {
			q = q.Limit(limit)
		}
		return q
	}
}

func withListOptions(opts store.ListOptions) repository.SelectCriteria {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		if opts.Limit > 0 {
			q = q.Limit(opts.Limit)
		}
		if opts.Offset > 0 {
			q = q.Offset(opts.Offset)
		}
		if opts.Status != "" {
			q = q.Where("status = ?", opts.Status)
		}
		if !opts.Since.IsZero() {
			q = q.Where("first_seen >= ?", opts.Since)
		}
		if !opts.Until.IsZero() {
			q = q.Where("first_seen <= ?", opts.Until)
		}
		return q
	}
}
