package telemetry

import (
	"context"
	"time"

	"github.com/goliatone/go-flagsubmit/internal/cycle"
	"github.com/goliatone/go-flagsubmit/pkg/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// CycleMetrics records submission outcomes and cycle durations.
type CycleMetrics struct {
	submissions metric.Int64Counter
	latency     metric.Float64Histogram
	cycles      metric.Int64Counter
	duration    metric.Float64Histogram
	storageErrs metric.Int64Counter
}

var _ cycle.Metrics = (*CycleMetrics)(nil)

// NewCycleMetrics registers the instruments on m.
func NewCycleMetrics(m metric.Meter) (*CycleMetrics, error) {
	submissions, err := m.Int64Counter("flagsubmit.submissions",
		metric.WithDescription("Flag submissions by outcome"),
	)
	if err != nil {
		return nil, err
	}
	latency, err := m.Float64Histogram("flagsubmit.submission.latency",
		metric.WithDescription("Submission round trip in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}
	cycles, err := m.Int64Counter("flagsubmit.cycles",
		metric.WithDescription("Completed submission cycles"),
	)
	if err != nil {
		return nil, err
	}
	duration, err := m.Float64Histogram("flagsubmit.cycle.duration",
		metric.WithDescription("Cycle duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}
	storageErrs, err := m.Int64Counter("flagsubmit.storage.errors",
		metric.WithDescription("Flag updates that could not be stored"),
	)
	if err != nil {
		return nil, err
	}
	return &CycleMetrics{
		submissions: submissions,
		latency:     latency,
		cycles:      cycles,
		duration:    duration,
		storageErrs: storageErrs,
	}, nil
}

func (c *CycleMetrics) SubmissionRecorded(ctx context.Context, outcome domain.Outcome, latency time.Duration) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome.String()))
	c.submissions.Add(ctx, 1, attrs)
	c.latency.Record(ctx, float64(latency.Milliseconds()), attrs)
}

func (c *CycleMetrics) CycleCompleted(ctx context.Context, summary cycle.Summary) {
	attrs := metric.WithAttributes(attribute.Bool("aborted", summary.Aborted))
	c.cycles.Add(ctx, 1, attrs)
	c.duration.Record(ctx, float64(summary.Duration.Milliseconds()), attrs)
	if summary.StorageErrors > 0 {
		c.storageErrs.Add(ctx, int64(summary.StorageErrors))
	}
}
