// Package daemon runs inventory collection on a fixed interval, for
// deployments without an external scheduler.
package daemon

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/yairfalse/kirja/pkg/inventory"
)

// Runner executes one invocation for a kind.
type Runner interface {
	Run(ctx context.Context, kind inventory.Kind) (inventory.Result, error)
}

// Config holds daemon configuration.
type Config struct {
	Interval time.Duration
	Kinds    []inventory.Kind
	Runner   Runner

	// Metrics is optional.
	Metrics *Metrics
}

// Daemon runs every configured kind once per interval.
type Daemon struct {
	interval time.Duration
	kinds    []inventory.Kind
	runner   Runner
	metrics  *Metrics

	startTime time.Time
	runs      atomic.Int64
	failures  atomic.Int64
	lastRun   atomic.Int64
}

// NewDaemon creates a new daemon instance.
func NewDaemon(cfg Config) (*Daemon, error) {
	if cfg.Interval <= 0 {
		return nil, errors.New("interval must be positive")
	}
	if cfg.Runner == nil {
		return nil, errors.New("runner required")
	}
	if len(cfg.Kinds) == 0 {
		return nil, errors.New("at least one kind required")
	}
	return &Daemon{
		interval:  cfg.Interval,
		kinds:     cfg.Kinds,
		runner:    cfg.Runner,
		metrics:   cfg.Metrics,
		startTime: time.Now(),
	}, nil
}

// Start runs a first pass immediately, then one per tick until ctx is done.
// A failing kind is logged and retried on the next tick.
func (d *Daemon) Start(ctx context.Context) error {
	d.runAll(ctx)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			d.runAll(ctx)
		}
	}
}

func (d *Daemon) runAll(ctx context.Context) {
	for _, kind := range d.kinds {
		if ctx.Err() != nil {
			return
		}
		d.runOne(ctx, kind)
	}
	d.lastRun.Store(time.Now().Unix())
}

func (d *Daemon) runOne(ctx context.Context, kind inventory.Kind) {
	d.runs.Add(1)
	start := time.Now()

	_, err := d.runner.Run(ctx, kind)
	status := "success"
	if err != nil {
		status = "failure"
		d.failures.Add(1)
		log.Error().Err(err).Str("kind", kind.String()).Msg("scheduled run failed")
	}
	d.metrics.RecordRun(ctx, kind, status, time.Since(start))
}

// Health returns daemon health status.
func (d *Daemon) Health() HealthStatus {
	return HealthStatus{
		Status:   "healthy",
		Uptime:   int64(time.Since(d.startTime).Seconds()),
		Runs:     d.runs.Load(),
		Failures: d.failures.Load(),
		LastRun:  d.lastRun.Load(),
	}
}

// HealthStatus represents daemon health.
type HealthStatus struct {
	Status   string
	Uptime   int64
	Runs     int64
	Failures int64

	// LastRun is the unix time the last full pass finished, zero before
	// the first one.
	LastRun int64
}

// RunCount returns total invocations started.
func (d *Daemon) RunCount() int64 {
	return d.runs.Load()
}
