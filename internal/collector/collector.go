// Package collector defines the per-kind collector interface and the
// registry an invocation resolves kinds against.
package collector

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/yairfalse/kirja/pkg/inventory"
)

// Collector lists every resource of one kind and projects it into a report.
type Collector interface {
	// Kind returns the resource kind this collector reports on.
	Kind() inventory.Kind

	// Collect lists, enriches and projects all resources of the kind.
	// Records keep provider order.
	Collect(ctx context.Context) (*inventory.Report, error)
}

// Registry maps kinds to collectors. It is owned by whoever built the
// collectors; there is no process-wide registry.
type Registry struct {
	mu         sync.RWMutex
	collectors map[inventory.Kind]Collector
}

// NewRegistry creates a registry holding cs.
func NewRegistry(cs ...Collector) *Registry {
	r := &Registry{collectors: make(map[inventory.Kind]Collector, len(cs))}
	for _, c := range cs {
		r.Register(c)
	}
	return r
}

// Register adds a collector, replacing any collector of the same kind.
func (r *Registry) Register(c Collector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.collectors[c.Kind()] = c
}

// Get returns the collector of kind.
func (r *Registry) Get(kind inventory.Kind) (Collector, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.collectors[kind]
	return c, ok
}

// MustGet is Get returning an error naming the kind when nothing is
// registered for it.
func (r *Registry) MustGet(kind inventory.Kind) (Collector, error) {
	c, ok := r.Get(kind)
	if !ok {
		return nil, fmt.Errorf("%w: no collector registered for %q", inventory.ErrUnknownKind, kind)
	}
	return c, nil
}

// Kinds returns the registered kinds, sorted.
func (r *Registry) Kinds() []inventory.Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]inventory.Kind, 0, len(r.collectors))
	for k := range r.collectors {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
