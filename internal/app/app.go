// Package app wires configuration into a runnable inventory pipeline. An App
// lives for the process; the AWS session and collectors live for one Run.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/metric"

	"github.com/yairfalse/kirja/internal/collector"
	collectoraws "github.com/yairfalse/kirja/internal/collector/aws"
	"github.com/yairfalse/kirja/internal/config"
	"github.com/yairfalse/kirja/internal/emitter"
	"github.com/yairfalse/kirja/internal/filter"
	"github.com/yairfalse/kirja/internal/history"
	"github.com/yairfalse/kirja/internal/pipeline"
	"github.com/yairfalse/kirja/internal/publish"
	"github.com/yairfalse/kirja/internal/report"
	"github.com/yairfalse/kirja/internal/telemetry"
	"github.com/yairfalse/kirja/pkg/inventory"
)

// Option customizes an App.
type Option func(*options)

type options struct {
	fs           afero.Fs
	telemetryOps []telemetry.Option
	collectors   []collector.Collector
}

// WithFs replaces the local filesystem used for reports and the dry-run
// mirror.
func WithFs(fs afero.Fs) Option {
	return func(o *options) { o.fs = fs }
}

// WithTelemetry passes options through to the telemetry provider.
func WithTelemetry(opts ...telemetry.Option) Option {
	return func(o *options) { o.telemetryOps = append(o.telemetryOps, opts...) }
}

// WithCollectors makes every Run resolve kinds against cs instead of the
// session's collectors. The session still backs the S3 publisher.
func WithCollectors(cs ...collector.Collector) Option {
	return func(o *options) { o.collectors = append(o.collectors, cs...) }
}

// App holds the process-wide parts of a run: config, telemetry and emitters.
type App struct {
	cfg       *config.Config
	fs        afero.Fs
	filter    *filter.Filter
	telemetry *telemetry.Provider
	emitter   emitter.Emitter
	writer    *report.Writer

	collectors []collector.Collector
	connect    func(context.Context) (*collectoraws.Session, error)
}

// invocation is what one Run builds and drops.
type invocation struct {
	collectors *collector.Registry
	publisher  publish.Publisher
	pipeline   *pipeline.Pipeline
}

// New validates cfg and sets up telemetry and emitters. AWS clients are not
// built until Run.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	o := options{fs: afero.NewOsFs()}
	for _, opt := range opts {
		opt(&o)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	emit, err := newEmitter(cfg)
	if err != nil {
		return nil, err
	}

	tp, err := telemetry.NewProvider(ctx, cfg.OTEL, o.telemetryOps...)
	if err != nil {
		_ = emit.Close()
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	a := &App{
		cfg:        cfg,
		fs:         o.fs,
		filter:     filter.New(cfg.Filter.IncludeTags, cfg.Filter.ExcludeTags),
		telemetry:  tp,
		emitter:    emit,
		writer:     report.NewWriter(o.fs, cfg.Report.OutputDir, cfg.Report.Location),
		collectors: o.collectors,
		connect: func(ctx context.Context) (*collectoraws.Session, error) {
			return collectoraws.NewSession(ctx, collectoraws.Config{
				Region:   cfg.AWS.Region,
				Profile:  cfg.AWS.Profile,
				Endpoint: cfg.AWS.Endpoint,
			})
		},
	}

	log.Debug().
		Str("bucket", cfg.Publish.Bucket).
		Str("prefix", cfg.Publish.Prefix).
		Bool("dry_run", cfg.Publish.DryRun).
		Msg("app ready")

	return a, nil
}

func newPublisher(cfg *config.Config, session *collectoraws.Session, fs afero.Fs) publish.Publisher {
	if cfg.Publish.DryRun {
		return publish.NewDirPublisher(fs, fs, cfg.Publish.MirrorDir, cfg.Publish.Prefix)
	}
	return publish.NewS3Publisher(session.S3(), fs, cfg.Publish.Bucket, cfg.Publish.Prefix)
}

func newEmitter(cfg *config.Config) (emitter.Emitter, error) {
	emitters := []emitter.Emitter{emitter.NewLogEmitter(log.Logger)}
	if cfg.Metrics.PushgatewayURL != "" {
		emitters = append(emitters, emitter.NewPushgatewayEmitter(cfg.Metrics.PushgatewayURL, cfg.Metrics.Job))
	}
	if cfg.History.Path != "" {
		store, err := history.Open(cfg.History.Path)
		if err != nil {
			return nil, err
		}
		emitters = append(emitters, history.NewEmitter(store))
	}
	return emitter.NewMultiEmitter(emitters...), nil
}

// Run executes one invocation for kind on a fresh AWS session.
func (a *App) Run(ctx context.Context, kind inventory.Kind) (inventory.Result, error) {
	inv, err := a.invocation(ctx)
	if err != nil {
		return inventory.Result{}, err
	}
	c, err := inv.collectors.MustGet(kind)
	if err != nil {
		return inventory.Result{}, err
	}
	return inv.pipeline.Run(ctx, c)
}

func (a *App) invocation(ctx context.Context) (*invocation, error) {
	session, err := a.connect(ctx)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("region", session.Region()).Msg("aws session ready")

	collectors := session.Collectors(collectoraws.Options{Filter: a.filter})
	if len(a.collectors) > 0 {
		collectors = collector.NewRegistry(a.collectors...)
	}

	publisher := newPublisher(a.cfg, session, a.fs)
	return &invocation{
		collectors: collectors,
		publisher:  publisher,
		pipeline: pipeline.New(pipeline.Config{
			Writer:    a.writer,
			Publisher: publisher,
			Emitter:   a.emitter,
			Telemetry: a.telemetry,
			Bucket:    a.cfg.Publish.Bucket,
		}),
	}, nil
}

// Config returns the configuration the app was built from.
func (a *App) Config() *config.Config {
	return a.cfg
}

// Meter returns the app's meter for components built outside it.
func (a *App) Meter() metric.Meter {
	return a.telemetry.Meter()
}

// Close flushes telemetry and closes the emitters.
func (a *App) Close(ctx context.Context) error {
	return errors.Join(a.emitter.Close(), a.telemetry.Shutdown(ctx))
}
