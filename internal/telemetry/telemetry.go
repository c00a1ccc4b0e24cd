// Package telemetry provides OpenTelemetry instrumentation for kirja runs.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/yairfalse/kirja/internal/config"
	"github.com/yairfalse/kirja/pkg/inventory"
)

const instrumentationName = "github.com/yairfalse/kirja"

// Stages of a run, used as span names and error labels.
const (
	StageCollect = "collect"
	StageWrite   = "write"
	StagePublish = "publish"
)

// Provider wraps OTEL tracer and meter providers. The Start and Record
// methods are no-ops on a nil provider.
type Provider struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	meter          metric.Meter

	// Metrics
	collectDuration metric.Float64Histogram
	records         metric.Int64Counter
	skipped         metric.Int64Counter
	uploads         metric.Int64Counter
	errors          metric.Int64Counter
}

// Option customizes a Provider beyond the config file.
type Option func(*options)

type options struct {
	readers    []sdkmetric.Reader
	processors []sdktrace.SpanProcessor
}

// WithMetricReader registers an extra metric reader.
func WithMetricReader(r sdkmetric.Reader) Option {
	return func(o *options) { o.readers = append(o.readers, r) }
}

// WithSpanProcessor registers an extra span processor.
func WithSpanProcessor(sp sdktrace.SpanProcessor) Option {
	return func(o *options) { o.processors = append(o.processors, sp) }
}

// NewProvider creates a new telemetry provider. Exporters are only set up
// when an endpoint is configured.
func NewProvider(ctx context.Context, cfg config.OTELConfig, opts ...Option) (*Provider, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	p := &Provider{}

	if err := p.setupTracing(ctx, cfg, res, o.processors); err != nil {
		return nil, err
	}

	if err := p.setupMetrics(ctx, cfg, res, o.readers); err != nil {
		_ = p.tracerProvider.Shutdown(ctx)
		return nil, err
	}

	if err := p.initMetrics(); err != nil {
		return nil, err
	}

	return p, nil
}

func (p *Provider) setupTracing(ctx context.Context, cfg config.OTELConfig, res *resource.Resource, processors []sdktrace.SpanProcessor) error {
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
	}

	if cfg.Traces.Enabled && cfg.Endpoint != "" {
		exp, err := createTraceExporter(ctx, cfg)
		if err != nil {
			return fmt.Errorf("create trace exporter: %w", err)
		}
		sampler := sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.Traces.SampleRate))
		opts = append(opts, sdktrace.WithBatcher(exp), sdktrace.WithSampler(sampler))
	}
	for _, sp := range processors {
		opts = append(opts, sdktrace.WithSpanProcessor(sp))
	}

	p.tracerProvider = sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(p.tracerProvider)
	p.tracer = p.tracerProvider.Tracer(instrumentationName)

	return nil
}

func (p *Provider) setupMetrics(ctx context.Context, cfg config.OTELConfig, res *resource.Resource, readers []sdkmetric.Reader) error {
	opts := []sdkmetric.Option{
		sdkmetric.WithResource(res),
	}

	if cfg.Metrics.Enabled && cfg.Endpoint != "" {
		exp, err := createMetricExporter(ctx, cfg)
		if err != nil {
			return fmt.Errorf("create metric exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp)))
	}
	for _, r := range readers {
		opts = append(opts, sdkmetric.WithReader(r))
	}

	p.meterProvider = sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(p.meterProvider)
	p.meter = p.meterProvider.Meter(instrumentationName)

	return nil
}

func createTraceExporter(ctx context.Context, cfg config.OTELConfig) (sdktrace.SpanExporter, error) {
	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	return otlptracegrpc.New(ctx, opts...)
}

func createMetricExporter(ctx context.Context, cfg config.OTELConfig) (sdkmetric.Exporter, error) {
	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	return otlpmetricgrpc.New(ctx, opts...)
}

func (p *Provider) initMetrics() error {
	var err error

	p.collectDuration, err = p.meter.Float64Histogram(
		"kirja_collect_duration_seconds",
		metric.WithDescription("Duration of the list and project stage"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("create collect_duration: %w", err)
	}

	p.records, err = p.meter.Int64Counter(
		"kirja_records_total",
		metric.WithDescription("Total records written to reports"),
	)
	if err != nil {
		return fmt.Errorf("create records: %w", err)
	}

	p.skipped, err = p.meter.Int64Counter(
		"kirja_resources_skipped_total",
		metric.WithDescription("Total listed resources left out of reports"),
	)
	if err != nil {
		return fmt.Errorf("create skipped: %w", err)
	}

	p.uploads, err = p.meter.Int64Counter(
		"kirja_uploads_total",
		metric.WithDescription("Total report artifacts published"),
	)
	if err != nil {
		return fmt.Errorf("create uploads: %w", err)
	}

	p.errors, err = p.meter.Int64Counter(
		"kirja_errors_total",
		metric.WithDescription("Total failed runs by stage"),
	)
	if err != nil {
		return fmt.Errorf("create errors: %w", err)
	}

	return nil
}

// Tracer returns the tracer.
func (p *Provider) Tracer() trace.Tracer {
	return p.tracer
}

// Meter returns the meter.
func (p *Provider) Meter() metric.Meter {
	return p.meter
}

// StartSpan starts a span for one stage of a run. A nil provider returns
// the span already in ctx.
func (p *Provider) StartSpan(ctx context.Context, stage string, kind inventory.Kind) (context.Context, trace.Span) {
	if p == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return p.tracer.Start(ctx, stage, trace.WithAttributes(kindAttr(kind)))
}

// RecordCollectDuration records how long a collector ran.
func (p *Provider) RecordCollectDuration(ctx context.Context, kind inventory.Kind, d time.Duration) {
	if p == nil {
		return
	}
	p.collectDuration.Record(ctx, d.Seconds(), metric.WithAttributes(kindAttr(kind)))
}

// RecordReport records the record and skip counts of a collected report.
func (p *Provider) RecordReport(ctx context.Context, kind inventory.Kind, records, skipped int) {
	if p == nil {
		return
	}
	p.records.Add(ctx, int64(records), metric.WithAttributes(kindAttr(kind)))
	p.skipped.Add(ctx, int64(skipped), metric.WithAttributes(kindAttr(kind)))
}

// RecordUpload records one published artifact.
func (p *Provider) RecordUpload(ctx context.Context, kind inventory.Kind) {
	if p == nil {
		return
	}
	p.uploads.Add(ctx, 1, metric.WithAttributes(kindAttr(kind)))
}

// RecordError records a failed run.
func (p *Provider) RecordError(ctx context.Context, kind inventory.Kind, stage string) {
	if p == nil {
		return
	}
	p.errors.Add(ctx, 1, metric.WithAttributes(
		kindAttr(kind),
		attribute.String("stage", stage),
	))
}

// Shutdown flushes and shuts down the providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown tracer: %w", err)
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown meter: %w", err)
		}
	}
	return nil
}

func kindAttr(kind inventory.Kind) attribute.KeyValue {
	return attribute.String("kind", kind.String())
}
