// Package pipeline runs one collector through write and publish.
package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/yairfalse/kirja/internal/collector"
	"github.com/yairfalse/kirja/internal/emitter"
	"github.com/yairfalse/kirja/internal/publish"
	"github.com/yairfalse/kirja/internal/report"
	"github.com/yairfalse/kirja/internal/telemetry"
	"github.com/yairfalse/kirja/pkg/inventory"
)

// Config wires a pipeline. Emitter and Telemetry are optional.
type Config struct {
	Writer    *report.Writer
	Publisher publish.Publisher
	Emitter   emitter.Emitter
	Telemetry *telemetry.Provider

	// Bucket is named in the completion message.
	Bucket string
}

// Pipeline runs collect, write and publish strictly in sequence.
type Pipeline struct {
	writer    *report.Writer
	publisher publish.Publisher
	emitter   emitter.Emitter
	telemetry *telemetry.Provider
	bucket    string
}

// New creates a pipeline.
func New(cfg Config) *Pipeline {
	return &Pipeline{
		writer:    cfg.Writer,
		publisher: cfg.Publisher,
		emitter:   cfg.Emitter,
		telemetry: cfg.Telemetry,
		bucket:    cfg.Bucket,
	}
}

// Run executes one invocation for c. Any stage error aborts the run; the
// result is emitted either way.
func (p *Pipeline) Run(ctx context.Context, c collector.Collector) (inventory.Result, error) {
	start := time.Now()
	kind := c.Kind()
	result := inventory.Result{
		RunID:  uuid.NewString(),
		Kind:   kind,
		Bucket: p.bucket,
	}

	logger := log.With().Str("run_id", result.RunID).Str("kind", kind.String()).Logger()
	ctx = logger.WithContext(ctx)

	stage, err := p.run(ctx, c, &result)
	result.Duration = time.Since(start)
	if err != nil {
		p.telemetry.RecordError(ctx, kind, stage)
		result.StatusCode = http.StatusInternalServerError
		result.Body = err.Error()
		result.Err = err
	}

	if p.emitter != nil {
		if emitErr := p.emitter.Emit(ctx, result); emitErr != nil {
			logger.Warn().Err(emitErr).Msg("emit run result")
		}
	}

	return result, err
}

// run returns the failing stage alongside any error.
func (p *Pipeline) run(ctx context.Context, c collector.Collector, result *inventory.Result) (string, error) {
	logger := zerolog.Ctx(ctx)
	kind := result.Kind

	logger.Info().Msg("collecting inventory")
	rep, err := p.collect(ctx, c)
	if err != nil {
		return telemetry.StageCollect, fmt.Errorf("collect %s: %w", kind, err)
	}
	result.Records = rep.Len()
	result.Skipped = rep.Skipped
	logger.Info().Int("records", rep.Len()).Int("skipped", rep.Skipped).Msg("inventory collected")

	artifacts, err := p.write(ctx, rep)
	if err != nil {
		return telemetry.StageWrite, fmt.Errorf("write report: %w", err)
	}
	result.Timestamped = artifacts.Timestamped
	result.Latest = artifacts.Latest
	logger.Info().Str("timestamped", artifacts.Timestamped).Str("latest", artifacts.Latest).Msg("report written")

	for _, path := range artifacts.Paths() {
		loc, err := p.publish(ctx, kind, path)
		if err != nil {
			return telemetry.StagePublish, fmt.Errorf("publish: %w", err)
		}
		result.Keys = append(result.Keys, loc)
		logger.Info().Str("location", loc).Msg("report published")
	}

	result.StatusCode = http.StatusOK
	result.Body = inventory.SuccessBody(kind, artifacts.Timestamped, artifacts.Latest, p.bucket)
	return "", nil
}

func (p *Pipeline) collect(ctx context.Context, c collector.Collector) (*inventory.Report, error) {
	ctx, span := p.telemetry.StartSpan(ctx, telemetry.StageCollect, c.Kind())
	defer span.End()

	start := time.Now()
	rep, err := c.Collect(ctx)
	p.telemetry.RecordCollectDuration(ctx, c.Kind(), time.Since(start))
	if err != nil {
		fail(span, err)
		return nil, err
	}
	p.telemetry.RecordReport(ctx, c.Kind(), rep.Len(), rep.Skipped)
	return rep, nil
}

func (p *Pipeline) write(ctx context.Context, rep *inventory.Report) (report.Artifacts, error) {
	_, span := p.telemetry.StartSpan(ctx, telemetry.StageWrite, rep.Schema.Kind)
	defer span.End()

	a, err := p.writer.Write(rep)
	if err != nil {
		fail(span, err)
	}
	return a, err
}

func (p *Pipeline) publish(ctx context.Context, kind inventory.Kind, path string) (string, error) {
	ctx, span := p.telemetry.StartSpan(ctx, telemetry.StagePublish, kind)
	defer span.End()

	loc, err := p.publisher.Publish(ctx, path)
	if err != nil {
		fail(span, err)
		return "", err
	}
	p.telemetry.RecordUpload(ctx, kind)
	return loc, nil
}

func fail(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
