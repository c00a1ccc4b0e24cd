package history

import (
	"context"
	"time"

	"github.com/yairfalse/kirja/pkg/inventory"
)

// Emitter records every run result in a Store and closes it on Close.
type Emitter struct {
	store *Store
	now   func() time.Time
}

// NewEmitter creates an emitter writing to store.
func NewEmitter(store *Store) *Emitter {
	return &Emitter{store: store, now: time.Now}
}

// Emit records result.
func (e *Emitter) Emit(_ context.Context, result inventory.Result) error {
	_, err := e.store.Record(result, e.now())
	return err
}

// Close closes the underlying store.
func (e *Emitter) Close() error {
	return e.store.Close()
}
