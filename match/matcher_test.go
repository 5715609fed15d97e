package match

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/domtarget/element"
)

func testMatcher(t *testing.T, opts ...Option) *Matcher {
	t.Helper()
	return New(Config{}, nil, opts...)
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

type fakeRecorder struct{ records []DecisionRecord }

func (r *fakeRecorder) Record(_ context.Context, rec DecisionRecord) error {
	r.records = append(r.records, rec)
	return nil
}

func registerSearchPage(t *testing.T, m *Matcher, contextID string) {
	t.Helper()
	m.RegisterElement(contextID, element.Semantics{
		Selector: "#q", Tag: "input", Type: "search",
		Placeholder: "Search Google or type a URL",
		X:           400, Y: 40, Width: 400, Height: 36, Visible: true, Opacity: 1.0,
	})
	m.RegisterElement(contextID, element.Semantics{
		Selector: "#login-btn", Tag: "button", Text: "Log in",
		X: 1100, Y: 40, Width: 90, Height: 36, Visible: true, Opacity: 1.0,
	})
	m.RegisterElement(contextID, element.Semantics{
		Selector: "#footer", Tag: "div", Text: "© 2026 Example Corp",
		X: 0, Y: 680, Width: 1280, Height: 40, Visible: true, Opacity: 1.0,
	})
}

func TestFindByDescriptionSearchBox(t *testing.T) {
	m := testMatcher(t)
	registerSearchPage(t, m, "tab-1")

	matches := m.FindByDescription(context.Background(), "tab-1", "search box", 5)
	if len(matches) == 0 {
		t.Fatal("no matches for 'search box'")
	}
	if matches[0].Element.Selector != "#q" {
		t.Errorf("top match = %q, want #q", matches[0].Element.Selector)
	}
	if matches[0].Confidence < 0.5 {
		t.Errorf("confidence = %.3f, want >= 0.5", matches[0].Confidence)
	}
	if matches[0].MatchReason == "" {
		t.Error("match reason must be populated")
	}
}

func TestFindByDescriptionLoginButton(t *testing.T) {
	m := testMatcher(t)
	registerSearchPage(t, m, "tab-1")

	matches := m.FindByDescription(context.Background(), "tab-1", "login button", 5)
	if len(matches) == 0 {
		t.Fatal("no matches for 'login button'")
	}
	if matches[0].Element.Selector != "#login-btn" {
		t.Errorf("top match = %q, want #login-btn", matches[0].Element.Selector)
	}
}

func TestFindByDescriptionEmptyContext(t *testing.T) {
	m := testMatcher(t)
	if got := m.FindByDescription(context.Background(), "nope", "anything", 5); len(got) != 0 {
		t.Errorf("unknown context returned %d matches, want 0", len(got))
	}
}

func TestSearchCacheHitSkipsScoring(t *testing.T) {
	m := testMatcher(t)
	registerSearchPage(t, m, "tab-1")
	ctx := context.Background()

	first := m.FindByDescription(ctx, "tab-1", "search box", 5)
	runs := m.Scorer().Invocations()

	second := m.FindByDescription(ctx, "tab-1", "search box", 5)
	if got := m.Scorer().Invocations(); got != runs {
		t.Errorf("scorer ran %d more times on a cache hit", got-runs)
	}
	if len(second) != len(first) || second[0].Element.Selector != first[0].Element.Selector {
		t.Errorf("cached result differs: %+v vs %+v", second, first)
	}
}

func TestSearchCacheExpiresByTTL(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	m := testMatcher(t, WithClock(clock.now))
	registerSearchPage(t, m, "tab-1")
	ctx := context.Background()

	m.FindByDescription(ctx, "tab-1", "search box", 5)
	runs := m.Scorer().Invocations()

	clock.advance(10 * time.Second) // past the 5s default
	m.FindByDescription(ctx, "tab-1", "search box", 5)
	if got := m.Scorer().Invocations(); got == runs {
		t.Error("expired cache entry still served, scorer never re-ran")
	}
}

func TestSearchCacheInvalidatedByElementCount(t *testing.T) {
	m := testMatcher(t)
	registerSearchPage(t, m, "tab-1")
	ctx := context.Background()

	m.FindByDescription(ctx, "tab-1", "search box", 5)
	runs := m.Scorer().Invocations()

	m.RegisterElement("tab-1", element.Semantics{
		Selector: "#new", Tag: "input", Type: "search", Placeholder: "Search products",
	})
	m.FindByDescription(ctx, "tab-1", "search box", 5)
	if got := m.Scorer().Invocations(); got == runs {
		t.Error("element count changed but cache still served")
	}
}

func TestClearContextDropsCacheAndElements(t *testing.T) {
	m := testMatcher(t)
	registerSearchPage(t, m, "tab-1")
	ctx := context.Background()

	m.FindByDescription(ctx, "tab-1", "search box", 5)
	m.ClearContext("tab-1")

	if got := m.FindByDescription(ctx, "tab-1", "search box", 5); len(got) != 0 {
		t.Errorf("cleared context returned %d matches, want 0", len(got))
	}

	// Re-register the same number of elements: the generation bump must
	// prevent the pre-clear ranking from serving even within the TTL.
	m.RegisterElement("tab-1", element.Semantics{
		Selector: "#q2", Tag: "input", Type: "search", Placeholder: "Search again",
	})
	matches := m.FindByDescription(ctx, "tab-1", "search box", 5)
	if len(matches) == 0 || matches[0].Element.Selector != "#q2" {
		t.Errorf("post-clear search = %+v, want #q2", matches)
	}
}

func TestClearContextIsolatesContexts(t *testing.T) {
	m := testMatcher(t)
	registerSearchPage(t, m, "tab-1")
	registerSearchPage(t, m, "tab-2")

	m.ClearContext("tab-1")
	if got := m.FindByDescription(context.Background(), "tab-2", "search box", 5); len(got) == 0 {
		t.Error("clearing tab-1 must not affect tab-2")
	}
}

func TestFindByRole(t *testing.T) {
	m := testMatcher(t)
	registerSearchPage(t, m, "tab-1")
	ctx := context.Background()

	matches := m.FindByRole(ctx, "tab-1", "search_input", "")
	if len(matches) != 1 || matches[0].Element.Selector != "#q" {
		t.Fatalf("FindByRole(search_input) = %+v, want only #q", matches)
	}

	// Category word matches the whole category.
	matches = m.FindByRole(ctx, "tab-1", "button", "")
	if len(matches) != 1 || matches[0].Element.Selector != "#login-btn" {
		t.Fatalf("FindByRole(button) = %+v, want only #login-btn", matches)
	}

	if got := m.FindByRole(ctx, "tab-1", "dropdown", ""); len(got) != 0 {
		t.Errorf("FindByRole(dropdown) = %d matches, want 0", len(got))
	}
}

func TestFindByRoleTextHintRanks(t *testing.T) {
	m := testMatcher(t)
	m.RegisterElement("tab-1", element.Semantics{Selector: "#save", Tag: "button", Text: "Save"})
	m.RegisterElement("tab-1", element.Semantics{Selector: "#cancel", Tag: "button", Text: "Cancel"})

	matches := m.FindByRole(context.Background(), "tab-1", "button", "cancel")
	if len(matches) != 2 {
		t.Fatalf("matches = %d, want 2", len(matches))
	}
	if matches[0].Element.Selector != "#cancel" {
		t.Errorf("top match = %q, want #cancel", matches[0].Element.Selector)
	}
}

func TestLegacyScoringPath(t *testing.T) {
	m := testMatcher(t)
	registerSearchPage(t, m, "tab-1")
	m.SetUseEnhancedScoring(false)

	matches := m.FindByDescription(context.Background(), "tab-1", "search box", 5)
	if len(matches) == 0 {
		t.Fatal("legacy path returned no matches")
	}
	if matches[0].Element.Selector != "#q" {
		t.Errorf("legacy top match = %q, want #q", matches[0].Element.Selector)
	}
	if !strings.HasPrefix(matches[0].MatchReason, "legacy") {
		t.Errorf("reason = %q, want legacy-prefixed", matches[0].MatchReason)
	}
}

func TestSetUseEnhancedScoringDropsCache(t *testing.T) {
	m := testMatcher(t)
	registerSearchPage(t, m, "tab-1")
	ctx := context.Background()

	m.FindByDescription(ctx, "tab-1", "search box", 5)
	m.SetUseEnhancedScoring(false)

	matches := m.FindByDescription(ctx, "tab-1", "search box", 5)
	if strings.Contains(matches[0].MatchReason, "query_type") {
		t.Error("ensemble-scored entry served after switching to the legacy path")
	}
}

func TestShouldUseLLMDisambiguation(t *testing.T) {
	m := testMatcher(t)

	if m.ShouldUseLLMDisambiguation(nil) {
		t.Error("empty ranking never needs disambiguation")
	}
	strong := []element.Match{{Confidence: 0.92}, {Confidence: 0.40}}
	if m.ShouldUseLLMDisambiguation(strong) {
		t.Error("strong unambiguous match needs no disambiguation")
	}
	nearTie := []element.Match{{Confidence: 0.70}, {Confidence: 0.68}}
	if !m.ShouldUseLLMDisambiguation(nearTie) {
		t.Error("near tie must trigger disambiguation")
	}
	weak := []element.Match{{Confidence: 0.35}}
	if !m.ShouldUseLLMDisambiguation(weak) {
		t.Error("best below the low-confidence floor must trigger disambiguation")
	}
	solid := []element.Match{{Confidence: 0.75}, {Confidence: 0.50}}
	if m.ShouldUseLLMDisambiguation(solid) {
		t.Error("clear mid-confidence winner needs no disambiguation")
	}
}

type fakeDisambiguator struct {
	calls  int
	err    error
	invert bool
}

func (d *fakeDisambiguator) Disambiguate(_ context.Context, _ string, cands []Candidate) ([]element.Match, error) {
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	out := make([]element.Match, len(cands))
	for i, c := range cands {
		out[i] = c.Match
	}
	if d.invert {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out, nil
}

// Two identical buttons: an exact confidence tie the disambiguator breaks.
func registerTiedButtons(t *testing.T, m *Matcher) {
	t.Helper()
	m.RegisterElement("tab-1", element.Semantics{Selector: "#first", Tag: "button", Text: "Go"})
	m.RegisterElement("tab-1", element.Semantics{Selector: "#second", Tag: "button", Text: "Go"})
}

func TestDisambiguatorBreaksTies(t *testing.T) {
	d := &fakeDisambiguator{invert: true}
	m := testMatcher(t, WithDisambiguator(d))
	registerTiedButtons(t, m)

	matches := m.FindByDescription(context.Background(), "tab-1", "go button", 5)
	if d.calls == 0 {
		t.Fatal("disambiguator never consulted for a tie")
	}
	if matches[0].Element.Selector != "#second" {
		t.Errorf("top match = %q, want #second (disambiguator ranking)", matches[0].Element.Selector)
	}
}

func TestDisambiguatorErrorFallsBackToCodeRanking(t *testing.T) {
	d := &fakeDisambiguator{err: errors.New("vision model unavailable")}
	m := testMatcher(t, WithDisambiguator(d))
	registerTiedButtons(t, m)

	matches := m.FindByDescription(context.Background(), "tab-1", "go button", 5)
	if d.calls == 0 {
		t.Fatal("disambiguator never consulted")
	}
	if len(matches) != 2 || matches[0].Element.Selector != "#first" {
		t.Errorf("fallback ranking = %+v, want code ranking with #first on top", matches)
	}
}

func TestDecisionRecording(t *testing.T) {
	rec := &fakeRecorder{}
	m := testMatcher(t, WithRecorder(rec))
	registerSearchPage(t, m, "tab-1")

	m.FindByDescription(context.Background(), "tab-1", "search box", 5)
	if len(rec.records) != 1 {
		t.Fatalf("records = %d, want 1", len(rec.records))
	}
	r := rec.records[0]
	if r.Kind != "description" || r.ContextID != "tab-1" || r.Query != "search box" {
		t.Errorf("record = %+v", r)
	}
	if r.TopSelector != "#q" || r.Confidence <= 0 || r.Decision == "" {
		t.Errorf("record outcome = %+v", r)
	}

	// Cache hits are not decisions; nothing new gets recorded.
	m.FindByDescription(context.Background(), "tab-1", "search box", 5)
	if len(rec.records) != 1 {
		t.Errorf("cache hit recorded a decision: %d records", len(rec.records))
	}
}

func TestMaxResultsTruncates(t *testing.T) {
	m := testMatcher(t)
	for i := 0; i < 8; i++ {
		m.RegisterElement("tab-1", element.Semantics{
			Selector: "#b" + string(rune('a'+i)), Tag: "button", Text: "Buy",
		})
	}
	matches := m.FindByDescription(context.Background(), "tab-1", "buy button", 3)
	if len(matches) != 3 {
		t.Errorf("matches = %d, want 3", len(matches))
	}
}

func TestBoundsWithoutResolver(t *testing.T) {
	m := testMatcher(t)
	if _, err := m.Bounds(context.Background(), "tab-1", []string{"#a"}); err == nil {
		t.Error("Bounds without a resolver must error")
	}
}

func TestCurrentStats(t *testing.T) {
	m := testMatcher(t)
	registerSearchPage(t, m, "tab-1")
	m.FindByDescription(context.Background(), "tab-1", "search box", 5)

	s := m.CurrentStats()
	if s.Contexts["tab-1"] != 3 {
		t.Errorf("contexts = %+v, want tab-1: 3", s.Contexts)
	}
	if s.CacheEntries != 1 || s.ScorerRuns == 0 || !s.EnhancedPath {
		t.Errorf("stats = %+v", s)
	}
}

func TestSetSearchCacheTTL(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	m := testMatcher(t, WithClock(clock.now))
	registerSearchPage(t, m, "tab-1")
	ctx := context.Background()

	m.FindByDescription(ctx, "tab-1", "search box", 5)
	runs := m.Scorer().Invocations()

	clock.advance(3 * time.Second) // within the default 5s TTL
	m.SetSearchCacheTTL(2 * time.Second)
	m.FindByDescription(ctx, "tab-1", "search box", 5)
	if m.Scorer().Invocations() == runs {
		t.Error("entry older than the shortened TTL must be re-scored")
	}
}

func TestSetSearchCacheEnabled(t *testing.T) {
	m := testMatcher(t)
	registerSearchPage(t, m, "tab-1")
	ctx := context.Background()

	m.FindByDescription(ctx, "tab-1", "search box", 5)
	runs := m.Scorer().Invocations()

	m.SetSearchCacheEnabled(false)
	m.FindByDescription(ctx, "tab-1", "search box", 5)
	afterDisabled := m.Scorer().Invocations()
	if afterDisabled == runs {
		t.Fatal("disabled cache must not serve hits")
	}

	// Disabling clears nothing: the original entry serves after re-enable.
	m.SetSearchCacheEnabled(true)
	m.FindByDescription(ctx, "tab-1", "search box", 5)
	if m.Scorer().Invocations() != afterDisabled {
		t.Error("still-valid entry must serve again after re-enable")
	}
}

func TestSetThresholds(t *testing.T) {
	m := testMatcher(t)

	solid := []element.Match{{Confidence: 0.75}, {Confidence: 0.50}}
	if m.ShouldUseLLMDisambiguation(solid) {
		t.Fatal("defaults: clear winner needs no disambiguation")
	}

	m.SetThresholds(0, 0.30, 0) // widen the ambiguity gap
	if !m.ShouldUseLLMDisambiguation(solid) {
		t.Error("a 0.25 gap must read as ambiguous under a 0.30 gap setting")
	}

	m.SetThresholds(0.70, 0, 0) // lower the strong-match bar
	if m.ShouldUseLLMDisambiguation(solid) {
		t.Error("0.75 clears a 0.70 strong threshold regardless of gap")
	}

	m.SetThresholds(0, 0, 0.80) // raise the low-confidence floor
	weak := []element.Match{{Confidence: 0.60}}
	if !m.ShouldUseLLMDisambiguation(weak) {
		t.Error("a lone 0.60 under a 0.80 floor must trigger disambiguation")
	}
}
