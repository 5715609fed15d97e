// Package bounds resolves CSS selectors to concrete on-screen pixel bounds
// for a browser context, with a short-TTL cache keyed by (page URL,
// selector).
//
// Unlike the semantic matcher, this package queries the rendering layer
// directly through the LiveDOM collaborator — bounds must reflect what is
// actually painted, not what the semantic index last saw. Stale bounds
// after navigation are a correctness bug, so the embedding layer must call
// InvalidateURL on every URL change.
package bounds

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/domtarget/element"
	"github.com/hazyhaar/domtarget/selector"
)

// LiveDOM is the rendering-layer collaborator: it returns the current
// element snapshot and page URL for a context. Implemented by
// scanner.Live; tests supply fakes.
type LiveDOM interface {
	Elements(ctx context.Context, contextID string) (elements []element.Semantics, pageURL string, err error)
}

// Config holds bounds resolver settings.
type Config struct {
	CacheTTL      time.Duration `yaml:"cache_ttl"`
	CacheDisabled bool          `yaml:"cache_disabled"`
}

func (c *Config) defaults() {
	if c.CacheTTL <= 0 {
		c.CacheTTL = 2 * time.Second
	}
}

// Resolver resolves selectors against the live DOM. Safe for concurrent use.
type Resolver struct {
	dom    LiveDOM
	parser *selector.Parser
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	cache   map[string]cachedBounds
	enabled bool
	ttl     time.Duration
}

type cachedBounds struct {
	bounds element.Bounds
	at     time.Time
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithClock injects a time source for TTL tests.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// New creates a Resolver over the given live DOM collaborator.
func New(dom LiveDOM, cfg Config, logger *slog.Logger, opts ...Option) *Resolver {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	r := &Resolver{
		dom:     dom,
		parser:  selector.NewParser(),
		logger:  logger,
		now:     time.Now,
		cache:   make(map[string]cachedBounds),
		enabled: !cfg.CacheDisabled,
		ttl:     cfg.CacheTTL,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// ForSelector resolves one selector. No match or a malformed selector comes
// back as Found=false with an error string, never as a Go error — batch
// callers need partial success (the error return is reserved for the live
// DOM being unreachable).
func (r *Resolver) ForSelector(ctx context.Context, contextID, sel string) (element.Bounds, error) {
	batch, err := r.ForSelectors(ctx, contextID, []string{sel})
	if err != nil {
		return element.Bounds{Found: false, Error: err.Error()}, err
	}
	return batch.Results[0], nil
}

// ForSelectors resolves all selectors against a single DOM snapshot to avoid
// N redundant traversals. Cached entries are served without touching the
// live DOM; one snapshot covers all misses.
func (r *Resolver) ForSelectors(ctx context.Context, contextID string, sels []string) (element.BatchBounds, error) {
	start := r.now()
	out := element.BatchBounds{
		Results:    make([]element.Bounds, len(sels)),
		TotalCount: len(sels),
	}

	var snapshot []element.Semantics
	var pageURL string
	var fetched bool

	for i, sel := range sels {
		comp := r.parser.Parse(sel)
		if !comp.Valid {
			out.Results[i] = element.Bounds{
				Found: false,
				Error: fmt.Sprintf("invalid selector %q", sel),
			}
			continue
		}

		if !fetched {
			// First valid selector: take the snapshot. The URL is part of
			// the cache key, so cache lookup needs it too.
			var err error
			snapshot, pageURL, err = r.dom.Elements(ctx, contextID)
			if err != nil {
				return out, fmt.Errorf("bounds: live DOM query: %w", err)
			}
			fetched = true
		}

		if b, ok := r.cached(pageURL, sel); ok {
			out.Results[i] = b
			if b.Found {
				out.FoundCount++
			}
			continue
		}

		b := r.resolve(snapshot, comp, sel)
		r.store(pageURL, sel, b)
		out.Results[i] = b
		if b.Found {
			out.FoundCount++
		}
	}

	out.DurationMS = r.now().Sub(start).Milliseconds()
	return out, nil
}

// resolve finds the first snapshot element matching the component.
func (r *Resolver) resolve(snapshot []element.Semantics, comp selector.Component, sel string) element.Bounds {
	for _, sem := range snapshot {
		if selector.Matches(sem, comp) {
			return element.Bounds{
				Found: true,
				X:     sem.X, Y: sem.Y,
				Width: sem.Width, Height: sem.Height,
			}
		}
	}
	return element.Bounds{
		Found: false,
		Error: fmt.Sprintf("no element matches %q", sel),
	}
}

// InvalidateURL drops all cached entries for a URL. Must be called on
// navigation: the same selector on a different page is a semantically
// unrelated element.
func (r *Resolver) InvalidateURL(url string) {
	prefix := url + "|"
	r.mu.Lock()
	for k := range r.cache {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			delete(r.cache, k)
		}
	}
	r.mu.Unlock()
}

// SetCacheEnabled toggles the cache. Safe to flip at any time; disabling
// does not clear existing entries — they may serve again after re-enable
// until TTL or an explicit clear.
func (r *Resolver) SetCacheEnabled(on bool) {
	r.mu.Lock()
	r.enabled = on
	r.mu.Unlock()
}

// SetTTL changes the cache TTL. Existing entries are judged against the
// new TTL on their next lookup; non-positive values keep the current one.
func (r *Resolver) SetTTL(d time.Duration) {
	if d <= 0 {
		return
	}
	r.mu.Lock()
	r.ttl = d
	r.mu.Unlock()
}

// ClearCache drops every cached entry.
func (r *Resolver) ClearCache() {
	r.mu.Lock()
	r.cache = make(map[string]cachedBounds)
	r.mu.Unlock()
}

func (r *Resolver) cached(url, sel string) (element.Bounds, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.enabled {
		return element.Bounds{}, false
	}
	e, ok := r.cache[url+"|"+sel]
	if !ok {
		return element.Bounds{}, false
	}
	if r.now().Sub(e.at) >= r.ttl {
		delete(r.cache, url+"|"+sel) // lazy eviction
		return element.Bounds{}, false
	}
	return e.bounds, true
}

func (r *Resolver) store(url, sel string, b element.Bounds) {
	r.mu.Lock()
	if r.enabled {
		r.cache[url+"|"+sel] = cachedBounds{bounds: b, at: r.now()}
	}
	r.mu.Unlock()
}
