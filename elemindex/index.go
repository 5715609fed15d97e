// Package elemindex holds the authoritative, queryable set of elements per
// browser context. It is populated by a DOM scanner (producer thread) and
// read by the matcher and bounds resolver (query threads).
//
// The index stores whole element.Semantics values keyed by selector, so a
// registration is visible to readers atomically — there is no state in which
// a reader observes a half-written element. Per-context clears bump a
// generation counter that dependent caches use for invalidation.
package elemindex

import (
	"sort"
	"sync"

	"github.com/hazyhaar/domtarget/element"
)

// Index is a per-context element store. The zero value is not usable; call
// New. Safe for concurrent use by multiple goroutines.
type Index struct {
	mu       sync.Mutex
	contexts map[string]*bucket
}

// bucket holds one context's elements. order preserves registration order of
// selectors so snapshots are deterministic.
type bucket struct {
	elements   map[string]element.Semantics
	order      []string
	generation uint64
}

// New creates an empty Index.
func New() *Index {
	return &Index{contexts: make(map[string]*bucket)}
}

// RegisterElement upserts an element under its selector key. Registering a
// selector already present replaces the previous snapshot (last write wins).
// Registering into an unknown context creates it — registration is lazy.
func (ix *Index) RegisterElement(contextID string, sem element.Semantics) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	b, ok := ix.contexts[contextID]
	if !ok {
		b = &bucket{elements: make(map[string]element.Semantics)}
		ix.contexts[contextID] = b
	}
	if _, exists := b.elements[sem.Selector]; !exists {
		b.order = append(b.order, sem.Selector)
	}
	b.elements[sem.Selector] = sem
}

// ClearContext removes all elements for a context and bumps its generation.
// Called on navigation or context close. A ClearContext that has returned
// happens-before any subsequent GetAllElements: readers never observe a mix
// of pre-clear and post-clear elements.
func (ix *Index) ClearContext(contextID string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	b, ok := ix.contexts[contextID]
	if !ok {
		return
	}
	gen := b.generation + 1
	ix.contexts[contextID] = &bucket{
		elements:   make(map[string]element.Semantics),
		generation: gen,
	}
}

// GetAllElements returns a snapshot copy of the context's elements in
// registration order. The returned slice does not reflect later mutation.
// An unknown context yields nil, not an error.
func (ix *Index) GetAllElements(contextID string) []element.Semantics {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	b, ok := ix.contexts[contextID]
	if !ok || len(b.elements) == 0 {
		return nil
	}
	out := make([]element.Semantics, 0, len(b.elements))
	for _, sel := range b.order {
		if sem, ok := b.elements[sel]; ok {
			out = append(out, sem)
		}
	}
	return out
}

// GetElement returns one element by selector, if present.
func (ix *Index) GetElement(contextID, sel string) (element.Semantics, bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	b, ok := ix.contexts[contextID]
	if !ok {
		return element.Semantics{}, false
	}
	sem, ok := b.elements[sel]
	return sem, ok
}

// ElementCount returns the number of elements registered for a context.
// Used as a cheap page-change proxy by the search cache.
func (ix *Index) ElementCount(contextID string) int {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if b, ok := ix.contexts[contextID]; ok {
		return len(b.elements)
	}
	return 0
}

// Generation returns the context's clear counter. It increments on every
// ClearContext, so caches keyed by (context, generation) cannot serve
// entries that straddle a clear.
func (ix *Index) Generation(contextID string) uint64 {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if b, ok := ix.contexts[contextID]; ok {
		return b.generation
	}
	return 0
}

// Contexts returns the known context IDs, sorted.
func (ix *Index) Contexts() []string {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	out := make([]string, 0, len(ix.contexts))
	for id := range ix.contexts {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
