// SPDX-FileCopyrightText: 2026 Framelift contributors.
//
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"fmt"
	"sync"

	"github.com/go-logr/logr"
)

// Registry is the process-wide processor registry. It preserves registration
// order for iteration. It is populated once at startup and read-only
// afterwards; the mutex only guards against misuse in tests.
type Registry struct {
	mu         sync.RWMutex
	log        logr.Logger
	order      []string
	processors map[string]Processor
}

// NewRegistry creates an empty registry.
func NewRegistry(log logr.Logger) *Registry {
	return &Registry{
		log:        log,
		processors: map[string]Processor{},
	}
}

// Register adds a processor. Registering an already known id logs a warning
// and replaces the previous instance.
func (r *Registry) Register(p Processor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.processors[p.ID()]; ok {
		r.log.Info("overwriting already registered processor", "processor-id", p.ID())
	} else {
		r.order = append(r.order, p.ID())
	}
	r.processors[p.ID()] = p
}

// RegisterAll adds all given processors in order.
func (r *Registry) RegisterAll(processors ...Processor) {
	for _, p := range processors {
		r.Register(p)
	}
}

// Get returns the processor with the given id.
func (r *Registry) Get(id string) (Processor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.processors[id]
	return p, ok
}

// GetOrError returns the processor with the given id or an error naming it.
func (r *Registry) GetOrError(id string) (Processor, error) {
	p, ok := r.Get(id)
	if !ok {
		return nil, fmt.Errorf("unknown processor %q", id)
	}
	return p, nil
}

// Has reports whether a processor with the given id is registered.
func (r *Registry) Has(id string) bool {
	_, ok := r.Get(id)
	return ok
}

// IDs returns all registered processor ids in registration order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string{}, r.order...)
}

// All returns all registered processors in registration order.
func (r *Registry) All() []Processor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Processor, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.processors[id])
	}
	return out
}

// Producers returns all processors producing the given tag, in registration
// order.
func (r *Registry) Producers(tag IOType) []Processor {
	out := []Processor{}
	for _, p := range r.All() {
		for _, t := range p.IO().Produces {
			if t == tag {
				out = append(out, p)
				break
			}
		}
	}
	return out
}

// Consumers returns all processors requiring the given tag, in registration
// order.
func (r *Registry) Consumers(tag IOType) []Processor {
	out := []Processor{}
	for _, p := range r.All() {
		for _, t := range p.IO().Requires {
			if t == tag {
				out = append(out, p)
				break
			}
		}
	}
	return out
}

// AreSwappable reports whether two processors have identical IO signatures,
// compared as multisets of their requires and produces declarations.
func (r *Registry) AreSwappable(a, b string) bool {
	pa, okA := r.Get(a)
	pb, okB := r.Get(b)
	if !okA || !okB {
		return false
	}
	return pa.IO().Equal(pb.IO())
}

// Summary returns a human readable registry listing.
func (r *Registry) Summary() string {
	out := ""
	for _, p := range r.All() {
		io := p.IO()
		out += fmt.Sprintf("%s (%s): requires=%v produces=%v\n", p.ID(), p.DisplayName(), io.Requires, io.Produces)
	}
	return out
}

// Clear removes all processors. Tests only.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = nil
	r.processors = map[string]Processor{}
}
