// Package telemetry exports OpenTelemetry metrics for submission cycles.
//
// Telemetry is disabled by default and installs a no-op meter provider.
// With stdout enabled, metrics are pretty-printed periodically and flushed on
// shutdown.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-flagsubmit/pkg/interfaces/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

const instrumentationScope = "github.com/goliatone/go-flagsubmit"

// Config mirrors the telemetry section of the module config.
type Config struct {
	Enabled     bool
	Stdout      bool
	ServiceName string
	Interval    time.Duration
	// Readers are extra metric readers, e.g. a host exporter.
	Readers []sdkmetric.Reader
	Logger  logger.Logger
}

// ShutdownFunc flushes and stops the meter provider.
type ShutdownFunc func(context.Context) error

// Init installs the global meter provider. Enabled telemetry without any
// reader falls back to the no-op provider.
func Init(ctx context.Context, cfg Config) (ShutdownFunc, error) {
	if cfg.Enabled && !cfg.Stdout && len(cfg.Readers) == 0 {
		lgr := cfg.Logger
		if lgr == nil {
			lgr = &logger.Nop{}
		}
		lgr.Warn("telemetry enabled without an exporter, metrics are discarded; set telemetry.stdout")
		cfg.Enabled = false
	}
	if !cfg.Enabled {
		otel.SetMeterProvider(metricnoop.NewMeterProvider())
		return func(context.Context) error { return nil }, nil
	}

	name := cfg.ServiceName
	if name == "" {
		name = "flagsubmit"
	}
	res := resource.NewSchemaless(attribute.String("service.name", name))
	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}

	if cfg.Stdout {
		exp, err := stdoutmetric.New(stdoutmetric.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("telemetry: stdout exporter: %w", err)
		}
		interval := cfg.Interval
		if interval <= 0 {
			interval = 15 * time.Second
		}
		opts = append(opts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(interval)),
		))
	}

	for _, reader := range cfg.Readers {
		opts = append(opts, sdkmetric.WithReader(reader))
	}

	mp := sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(mp)
	return mp.Shutdown, nil
}

// Meter returns a meter from the global provider.
func Meter() metric.Meter {
	return otel.Meter(instrumentationScope)
}
