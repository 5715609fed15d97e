// Package match is the semantic matcher orchestrator: it owns the element
// index, the scoring ensemble, a short-TTL search cache, and the decision of
// whether code-only ranking is good enough or an external disambiguator
// should pick the winner.
//
//	m := match.New(cfg, logger)
//	m.RegisterElement("tab-1", sem)
//	matches := m.FindByDescription(ctx, "tab-1", "search box", 5)
package match

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hazyhaar/domtarget/bounds"
	"github.com/hazyhaar/domtarget/element"
	"github.com/hazyhaar/domtarget/elemindex"
	"github.com/hazyhaar/domtarget/score"
)

// Decision labels recorded per search. "strong" means the top match cleared
// the strong-match threshold alone; "llm" means the disambiguator ranked.
const (
	DecisionStrong    = "strong"
	DecisionAccepted  = "accepted"
	DecisionAmbiguous = "ambiguous"
	DecisionLow       = "low_confidence"
	DecisionLLM       = "llm"
	DecisionNone      = "none"
)

// DecisionRecord is one search outcome for the decision log.
type DecisionRecord struct {
	ContextID   string  `json:"context_id"`
	Query       string  `json:"query"`
	Kind        string  `json:"kind"` // "description" or "role"
	TopSelector string  `json:"top_selector"`
	Confidence  float64 `json:"confidence"`
	Decision    string  `json:"decision"`
	DurationMS  int64   `json:"duration_ms"`
}

// DecisionRecorder persists DecisionRecords. Implemented by matchlog.Store;
// nil disables logging.
type DecisionRecorder interface {
	Record(ctx context.Context, rec DecisionRecord) error
}

// Matcher resolves natural-language element descriptions against registered
// contexts. Safe for concurrent use.
type Matcher struct {
	index    *elemindex.Index
	comp     *score.Composite
	legacy   *legacyScorer
	summ     *summarizer
	resolver *bounds.Resolver
	recorder DecisionRecorder
	disamb   Disambiguator
	logger   *slog.Logger
	cfg      Config
	now      func() time.Time

	mu       sync.Mutex
	cache    map[string]cachedSearch
	enhanced bool
}

// cachedSearch is one cached ranking. Validity requires TTL freshness plus an
// unchanged element count and clear generation; the count is a cheap
// page-change proxy, so an in-place re-registration of equally many elements
// can serve stale for up to the TTL.
type cachedSearch struct {
	matches    []element.Match
	at         time.Time
	elemCount  int
	generation uint64
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithClock injects a time source for TTL tests.
func WithClock(now func() time.Time) Option {
	return func(m *Matcher) { m.now = now }
}

// WithDisambiguator attaches an external ranker consulted when code-only
// scoring is ambiguous or weak.
func WithDisambiguator(d Disambiguator) Option {
	return func(m *Matcher) { m.disamb = d }
}

// WithBounds attaches a bounds resolver so the transport surfaces can serve
// selector-to-pixels lookups through one object.
func WithBounds(r *bounds.Resolver) Option {
	return func(m *Matcher) { m.resolver = r }
}

// WithRecorder attaches a decision log.
func WithRecorder(rec DecisionRecorder) Option {
	return func(m *Matcher) { m.recorder = rec }
}

// New creates a Matcher.
func New(cfg Config, logger *slog.Logger, opts ...Option) *Matcher {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	m := &Matcher{
		index:    elemindex.New(),
		comp:     score.NewComposite(cfg.Scoring),
		legacy:   newLegacyScorer(),
		summ:     newSummarizer(),
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
		cache:    make(map[string]cachedSearch),
		enhanced: !cfg.LegacyScoring,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Index exposes the element index for scanners that push registrations
// directly.
func (m *Matcher) Index() *elemindex.Index { return m.index }

// Scorer exposes the composite for runtime tuning (SetWeights,
// SetCalibration) and test instrumentation.
func (m *Matcher) Scorer() *score.Composite { return m.comp }

// RegisterElement upserts an element into a context.
func (m *Matcher) RegisterElement(contextID string, sem element.Semantics) {
	if sem.InferredRole == "" {
		sem.InferredRole = score.InferRole(sem)
	}
	m.index.RegisterElement(contextID, sem)
}

// ClearContext drops a context's elements and every cached search for it.
func (m *Matcher) ClearContext(contextID string) {
	m.index.ClearContext(contextID)

	prefix := contextID + "|"
	m.mu.Lock()
	for k := range m.cache {
		if strings.HasPrefix(k, prefix) {
			delete(m.cache, k)
		}
	}
	m.mu.Unlock()
}

// SetUseEnhancedScoring switches between the ensemble scorer and the legacy
// direct-scoring path. Flipping it drops the search cache: entries from the
// two paths are not comparable.
func (m *Matcher) SetUseEnhancedScoring(on bool) {
	m.mu.Lock()
	m.enhanced = on
	m.cache = make(map[string]cachedSearch)
	m.mu.Unlock()
}

// SetSearchCacheTTL changes the search-cache TTL. Existing entries are
// judged against the new TTL on their next lookup.
func (m *Matcher) SetSearchCacheTTL(d time.Duration) {
	m.mu.Lock()
	m.cfg.SearchCacheTTL = d
	m.mu.Unlock()
}

// SetSearchCacheEnabled toggles the search cache. Disabling clears nothing;
// still-valid entries may serve again after re-enable.
func (m *Matcher) SetSearchCacheEnabled(on bool) {
	m.mu.Lock()
	m.cfg.SearchCacheDisabled = !on
	m.mu.Unlock()
}

// SetThresholds replaces the strong-match threshold, ambiguity gap and
// low-confidence floor. Non-positive values keep the current setting.
func (m *Matcher) SetThresholds(strong, gap, floor float64) {
	m.mu.Lock()
	if strong > 0 {
		m.cfg.StrongMatchThreshold = strong
	}
	if gap > 0 {
		m.cfg.AmbiguityGap = gap
	}
	if floor > 0 {
		m.cfg.LowConfidenceFloor = floor
	}
	m.mu.Unlock()
}

// config snapshots the mutable configuration.
func (m *Matcher) config() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

// FindByDescription ranks the context's elements against a free-text
// description. An unknown or empty context yields an empty list. Results are
// owned by the caller.
func (m *Matcher) FindByDescription(ctx context.Context, contextID, description string, maxResults int) []element.Match {
	start := m.now()
	cfg := m.config()
	if maxResults <= 0 {
		maxResults = cfg.MaxResults
	}

	key := contextID + "|" + description
	if cached, ok := m.cachedSearch(contextID, key); ok {
		m.logger.DebugContext(ctx, "match: search cache hit",
			"context_id", contextID, "query", description)
		return truncateCopy(cached, maxResults)
	}

	elements := m.index.GetAllElements(contextID)
	if len(elements) == 0 {
		return nil
	}

	m.mu.Lock()
	enhanced := m.enhanced
	m.mu.Unlock()

	var matches []element.Match
	if enhanced {
		matches = m.comp.ScoreAndRank(elements, description, cfg.MatchThreshold, 0)
	} else {
		matches = m.legacy.rank(elements, description, cfg.MatchThreshold)
	}

	decision := m.classify(matches)
	if enhanced && m.disamb != nil && m.ShouldUseLLMDisambiguation(matches) {
		if ranked, err := m.disambiguate(ctx, description, matches); err != nil {
			m.logger.WarnContext(ctx, "match: disambiguator failed, keeping code ranking",
				"context_id", contextID, "query", description, "error", err)
		} else {
			matches = ranked
			decision = DecisionLLM
		}
	}

	m.storeSearch(contextID, key, matches)
	m.record(ctx, DecisionRecord{
		ContextID:   contextID,
		Query:       description,
		Kind:        "description",
		TopSelector: topSelector(matches),
		Confidence:  topConfidence(matches),
		Decision:    decision,
		DurationMS:  m.now().Sub(start).Milliseconds(),
	})

	return truncateCopy(matches, maxResults)
}

// FindByRole returns the context's elements whose inferred role satisfies the
// requested role, ranked by the text hint when one is given and by
// registration order otherwise.
func (m *Matcher) FindByRole(ctx context.Context, contextID, role, textHint string) []element.Match {
	start := m.now()

	var filtered []element.Semantics
	for _, sem := range m.index.GetAllElements(contextID) {
		r := sem.InferredRole
		if r == "" {
			r = score.InferRole(sem)
		}
		if score.RoleMatches(r, role) {
			filtered = append(filtered, sem)
		}
	}
	if len(filtered) == 0 {
		return nil
	}

	var matches []element.Match
	if textHint != "" {
		matches = m.comp.ScoreAndRank(filtered, textHint, 0, 0)
	} else {
		matches = make([]element.Match, 0, len(filtered))
		for _, sem := range filtered {
			conf := 0.75
			if strings.EqualFold(sem.InferredRole, role) {
				conf = 0.9
			}
			matches = append(matches, element.Match{
				Element:     sem,
				Confidence:  conf,
				MatchReason: fmt.Sprintf("role=%s want=%s", sem.InferredRole, role),
			})
		}
	}

	m.record(ctx, DecisionRecord{
		ContextID:   contextID,
		Query:       role,
		Kind:        "role",
		TopSelector: topSelector(matches),
		Confidence:  topConfidence(matches),
		Decision:    m.classify(matches),
		DurationMS:  m.now().Sub(start).Milliseconds(),
	})
	return matches
}

// ShouldUseLLMDisambiguation reports whether a ranking is too close or too
// weak for code-only matching to commit: the top two are within the
// ambiguity gap, or the best confidence sits below the low-confidence floor.
func (m *Matcher) ShouldUseLLMDisambiguation(matches []element.Match) bool {
	if len(matches) == 0 {
		return false
	}
	cfg := m.config()
	if matches[0].Confidence >= cfg.StrongMatchThreshold {
		return false
	}
	return score.IsAmbiguous(matches, cfg.AmbiguityGap) ||
		matches[0].Confidence < cfg.LowConfidenceFloor
}

// Bounds resolves selectors to pixel bounds through the attached resolver.
func (m *Matcher) Bounds(ctx context.Context, contextID string, sels []string) (element.BatchBounds, error) {
	if m.resolver == nil {
		return element.BatchBounds{}, fmt.Errorf("match: no bounds resolver configured")
	}
	return m.resolver.ForSelectors(ctx, contextID, sels)
}

// Stats summarises matcher state for the debug surfaces.
type Stats struct {
	Contexts      map[string]int `json:"contexts"`
	CacheEntries  int            `json:"cache_entries"`
	ScorerRuns    uint64         `json:"scorer_runs"`
	EnhancedPath  bool           `json:"enhanced_path"`
	Disambiguator bool           `json:"disambiguator"`
}

// CurrentStats returns a snapshot of matcher state.
func (m *Matcher) CurrentStats() Stats {
	contexts := make(map[string]int)
	for _, id := range m.index.Contexts() {
		contexts[id] = m.index.ElementCount(id)
	}
	m.mu.Lock()
	entries := len(m.cache)
	enhanced := m.enhanced
	m.mu.Unlock()
	return Stats{
		Contexts:      contexts,
		CacheEntries:  entries,
		ScorerRuns:    m.comp.Invocations(),
		EnhancedPath:  enhanced,
		Disambiguator: m.disamb != nil,
	}
}

// classify labels a ranking for the decision log.
func (m *Matcher) classify(matches []element.Match) string {
	cfg := m.config()
	switch {
	case len(matches) == 0:
		return DecisionNone
	case matches[0].Confidence >= cfg.StrongMatchThreshold:
		return DecisionStrong
	case score.IsAmbiguous(matches, cfg.AmbiguityGap):
		return DecisionAmbiguous
	case matches[0].Confidence < cfg.LowConfidenceFloor:
		return DecisionLow
	}
	return DecisionAccepted
}

func (m *Matcher) record(ctx context.Context, rec DecisionRecord) {
	if m.recorder == nil {
		return
	}
	if err := m.recorder.Record(ctx, rec); err != nil {
		m.logger.WarnContext(ctx, "match: decision log write failed", "error", err)
	}
}

func (m *Matcher) cachedSearch(contextID, key string) ([]element.Match, bool) {
	count := m.index.ElementCount(contextID)
	gen := m.index.Generation(contextID)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cfg.SearchCacheDisabled {
		return nil, false
	}
	e, ok := m.cache[key]
	if !ok {
		return nil, false
	}
	if m.now().Sub(e.at) >= m.cfg.SearchCacheTTL ||
		e.elemCount != count || e.generation != gen {
		delete(m.cache, key)
		return nil, false
	}
	return e.matches, true
}

func (m *Matcher) storeSearch(contextID, key string, matches []element.Match) {
	count := m.index.ElementCount(contextID)
	gen := m.index.Generation(contextID)

	m.mu.Lock()
	if !m.cfg.SearchCacheDisabled {
		m.cache[key] = cachedSearch{
			matches:    matches,
			at:         m.now(),
			elemCount:  count,
			generation: gen,
		}
	}
	m.mu.Unlock()
}

func truncateCopy(matches []element.Match, maxResults int) []element.Match {
	n := len(matches)
	if maxResults > 0 && n > maxResults {
		n = maxResults
	}
	out := make([]element.Match, n)
	copy(out, matches[:n])
	return out
}

func topSelector(matches []element.Match) string {
	if len(matches) == 0 {
		return ""
	}
	return matches[0].Element.Selector
}

func topConfidence(matches []element.Match) float64 {
	if len(matches) == 0 {
		return 0
	}
	return matches[0].Confidence
}
