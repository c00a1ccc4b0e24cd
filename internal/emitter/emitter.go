// Package emitter reports the outcome of a run to one or more backends.
package emitter

import (
	"context"

	"github.com/yairfalse/kirja/pkg/inventory"
)

// Emitter outputs a run result to a backend.
type Emitter interface {
	// Emit sends the result of one run. Failed runs are emitted too, with
	// result.Err set.
	Emit(ctx context.Context, result inventory.Result) error

	// Close cleans up resources.
	Close() error
}

// MultiEmitter fans out to multiple emitters.
type MultiEmitter struct {
	emitters []Emitter
}

// NewMultiEmitter creates an emitter that sends to multiple backends.
func NewMultiEmitter(emitters ...Emitter) *MultiEmitter {
	return &MultiEmitter{emitters: emitters}
}

// Emit sends to all emitters, returns first error.
func (m *MultiEmitter) Emit(ctx context.Context, result inventory.Result) error {
	for _, e := range m.emitters {
		if err := e.Emit(ctx, result); err != nil {
			return err
		}
	}
	return nil
}

// Close closes all emitters.
func (m *MultiEmitter) Close() error {
	for _, e := range m.emitters {
		if err := e.Close(); err != nil {
			return err
		}
	}
	return nil
}
