package emitter

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/yairfalse/kirja/pkg/inventory"
)

// PushgatewayEmitter pushes last-run gauges to a Prometheus Pushgateway,
// grouped by kind.
type PushgatewayEmitter struct {
	url string
	job string

	records     prometheus.Gauge
	skipped     prometheus.Gauge
	duration    prometheus.Gauge
	success     prometheus.Gauge
	lastSuccess prometheus.Gauge
}

// NewPushgatewayEmitter creates an emitter pushing to url under job.
func NewPushgatewayEmitter(url, job string) *PushgatewayEmitter {
	return &PushgatewayEmitter{
		url: url,
		job: job,
		records: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kirja_last_run_records",
			Help: "Records written by the last run.",
		}),
		skipped: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kirja_last_run_skipped",
			Help: "Resources left out of the last run's report.",
		}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kirja_last_run_duration_seconds",
			Help: "Wall time of the last run.",
		}),
		success: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kirja_last_run_success",
			Help: "1 when the last run succeeded, 0 otherwise.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kirja_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run.",
		}),
	}
}

// Emit implements Emitter. The last success timestamp is only pushed by
// successful runs so a failure does not reset it.
func (e *PushgatewayEmitter) Emit(ctx context.Context, result inventory.Result) error {
	e.records.Set(float64(result.Records))
	e.skipped.Set(float64(result.Skipped))
	e.duration.Set(result.Duration.Seconds())

	pusher := push.New(e.url, e.job).
		Grouping("kind", result.Kind.String()).
		Collector(e.records).
		Collector(e.skipped).
		Collector(e.duration).
		Collector(e.success)

	if result.Err != nil {
		e.success.Set(0)
		if err := pusher.AddContext(ctx); err != nil {
			return fmt.Errorf("push metrics: %w", err)
		}
		return nil
	}

	e.success.Set(1)
	e.lastSuccess.Set(float64(time.Now().Unix()))
	if err := pusher.Collector(e.lastSuccess).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}

// Close implements Emitter.
func (e *PushgatewayEmitter) Close() error {
	return nil
}
