package emitter

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/yairfalse/kirja/pkg/inventory"
)

// LogEmitter writes one summary line per run.
type LogEmitter struct {
	logger zerolog.Logger
}

// NewLogEmitter creates a log emitter writing to logger.
func NewLogEmitter(logger zerolog.Logger) *LogEmitter {
	return &LogEmitter{logger: logger}
}

// Emit implements Emitter.
func (e *LogEmitter) Emit(_ context.Context, result inventory.Result) error {
	ev := e.logger.Info()
	if result.Err != nil {
		ev = e.logger.Error().Err(result.Err)
	}
	ev.Str("run_id", result.RunID).
		Str("kind", result.Kind.String()).
		Int("records", result.Records).
		Int("skipped", result.Skipped).
		Strs("keys", result.Keys).
		Dur("duration", result.Duration).
		Msg("inventory run finished")
	return nil
}

// Close implements Emitter.
func (e *LogEmitter) Close() error {
	return nil
}
