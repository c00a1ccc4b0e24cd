package daemon

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/yairfalse/kirja/pkg/inventory"
)

// Metrics holds scheduler metrics.
type Metrics struct {
	runs        metric.Int64Counter
	runDuration metric.Float64Histogram
}

// NewMetrics creates scheduler metrics on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	runs, err := meter.Int64Counter(
		"kirja.daemon.runs",
		metric.WithDescription("Number of scheduled inventory runs"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, err
	}

	runDuration, err := meter.Float64Histogram(
		"kirja.daemon.run.duration",
		metric.WithDescription("Duration of scheduled inventory runs"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{runs: runs, runDuration: runDuration}, nil
}

// RecordRun records one scheduled run. Safe on a nil receiver.
func (m *Metrics) RecordRun(ctx context.Context, kind inventory.Kind, status string, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("kind", kind.String()),
		attribute.String("status", status),
	)
	m.runs.Add(ctx, 1, attrs)
	m.runDuration.Record(ctx, d.Seconds(), attrs)
}
