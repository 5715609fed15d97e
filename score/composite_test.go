package score

import (
	"math"
	"testing"

	"github.com/hazyhaar/domtarget/element"
)

func testComposite(t *testing.T) *Composite {
	t.Helper()
	return NewComposite(CompositeConfig{})
}

func searchInput() element.Semantics {
	return element.Semantics{
		Selector: "#q", Tag: "input", Type: "search",
		Placeholder: "Search Google or type a URL",
	}
}

func loginButton() element.Semantics {
	return element.Semantics{
		Selector: "#login-btn", Tag: "button", Text: "Log in",
	}
}

func TestScoreDeterministic(t *testing.T) {
	c := testComposite(t)
	sem := searchInput()

	first := c.Breakdown(sem, "search box")
	for i := 0; i < 20; i++ {
		again := c.Breakdown(sem, "search box")
		if again != first {
			t.Fatalf("breakdown changed across calls: %+v then %+v", first, again)
		}
	}
}

func TestBreakdownCombinedIsWeightedSum(t *testing.T) {
	c := testComposite(t)
	w := c.Weights()
	b := c.Breakdown(searchInput(), "search box")

	want := w.Text*b.Text + w.Visual*b.Visual + w.Contextual*b.Contextual + w.Kind*b.Kind
	if math.Abs(b.Combined-want) > 1e-12 {
		t.Errorf("Combined = %v, want %v", b.Combined, want)
	}

	cal := DefaultCalibration()
	wantCal := 1.0 / (1.0 + math.Exp(-cal.Slope*(b.Combined-cal.Offset)))
	if math.Abs(b.Calibrated-wantCal) > 1e-12 {
		t.Errorf("Calibrated = %v, want %v", b.Calibrated, wantCal)
	}
}

func TestScoreAndRankOrdering(t *testing.T) {
	c := testComposite(t)
	elements := []element.Semantics{
		loginButton(),
		searchInput(),
		{Selector: "#x", Tag: "div", Text: "footer"},
	}

	matches := c.ScoreAndRank(elements, "search box", DefaultThreshold, 10)
	if len(matches) == 0 {
		t.Fatal("no matches")
	}
	if matches[0].Element.Selector != "#q" {
		t.Errorf("top match = %q, want #q", matches[0].Element.Selector)
	}
	for i := 0; i+1 < len(matches); i++ {
		if matches[i].Confidence < matches[i+1].Confidence {
			t.Errorf("rank order violated at %d: %.3f < %.3f",
				i, matches[i].Confidence, matches[i+1].Confidence)
		}
	}
}

func TestScoreAndRankThresholdMonotonic(t *testing.T) {
	c := testComposite(t)
	elements := []element.Semantics{
		searchInput(), loginButton(),
		{Selector: "#a", Tag: "a", Text: "Search help"},
		{Selector: "#d", Tag: "div"},
	}

	prev := len(c.ScoreAndRank(elements, "search box", 0.0, 0))
	for _, th := range []float64{0.1, 0.3, 0.5, 0.7, 0.9, 1.0} {
		n := len(c.ScoreAndRank(elements, "search box", th, 0))
		if n > prev {
			t.Errorf("threshold %.1f returned %d results, more than %d at lower threshold", th, n, prev)
		}
		prev = n
	}
}

func TestScoreAndRankStableTieBreak(t *testing.T) {
	c := testComposite(t)
	// Identical elements score identically; input order must survive.
	a := element.Semantics{Selector: "#first", Tag: "button", Text: "Go"}
	b := element.Semantics{Selector: "#second", Tag: "button", Text: "Go"}

	matches := c.ScoreAndRank([]element.Semantics{a, b}, "go button", 0.0, 0)
	if len(matches) != 2 {
		t.Fatalf("matches = %d, want 2", len(matches))
	}
	if matches[0].Element.Selector != "#first" || matches[1].Element.Selector != "#second" {
		t.Errorf("tie-break not stable: %q, %q", matches[0].Element.Selector, matches[1].Element.Selector)
	}
}

func TestScoreAndRankTruncates(t *testing.T) {
	c := testComposite(t)
	elements := make([]element.Semantics, 10)
	for i := range elements {
		elements[i] = element.Semantics{Selector: "#b", Tag: "button", Text: "Buy"}
	}
	matches := c.ScoreAndRank(elements, "buy button", 0.0, 3)
	if len(matches) != 3 {
		t.Errorf("matches = %d, want 3", len(matches))
	}
}

func TestMatchOwnsCopy(t *testing.T) {
	c := testComposite(t)
	elements := []element.Semantics{searchInput()}
	matches := c.ScoreAndRank(elements, "search box", 0.0, 0)
	elements[0].Placeholder = "changed"
	if matches[0].Element.Placeholder != "Search Google or type a URL" {
		t.Error("match must own a copy of the element, not alias the input")
	}
}

func TestIsAmbiguous(t *testing.T) {
	near := []element.Match{{Confidence: 0.80}, {Confidence: 0.78}}
	far := []element.Match{{Confidence: 0.90}, {Confidence: 0.50}}

	if !IsAmbiguous(near, DefaultAmbiguityGap) {
		t.Error("gap 0.02 must be ambiguous")
	}
	if IsAmbiguous(far, DefaultAmbiguityGap) {
		t.Error("gap 0.40 must not be ambiguous")
	}
	if IsAmbiguous([]element.Match{{Confidence: 0.9}}, DefaultAmbiguityGap) {
		t.Error("single match is never ambiguous")
	}
	if IsAmbiguous(nil, DefaultAmbiguityGap) {
		t.Error("empty list is never ambiguous")
	}
}

func TestIsStrongMatch(t *testing.T) {
	c := testComposite(t)
	strong := element.Semantics{
		Selector: "#s", Tag: "input", Type: "search",
		Placeholder: "Search", LabelFor: "Search the catalog",
		X: 400, Y: 40, Width: 300, Height: 36, Visible: true, Opacity: 1.0,
	}
	if !c.IsStrongMatch(strong, "search box", DefaultStrongMatch) {
		t.Errorf("score = %.3f, want >= %.2f", c.Score(strong, "search box"), DefaultStrongMatch)
	}
	weak := element.Semantics{Selector: "#w", Tag: "div", Text: "about us"}
	if c.IsStrongMatch(weak, "search box", DefaultStrongMatch) {
		t.Error("unrelated div must not be a strong match")
	}
}

func TestDetectQueryType(t *testing.T) {
	tests := []struct {
		query string
		want  QueryType
	}{
		{`button labeled "Buy now"`, QueryTextHeavy},
		{"top-right cart icon", QueryPositional},
		{"click the submit button", QueryAction},
		{"type into the name field", QueryAction},
		{"search box", QueryTypeBound},
		{"newsletter signup", QueryGeneral},
	}
	for _, tt := range tests {
		if got := DetectQueryType(tt.query); got != tt.want {
			t.Errorf("DetectQueryType(%q) = %q, want %q", tt.query, got, tt.want)
		}
	}
}

func TestAdjustWeightsShiftsMass(t *testing.T) {
	base := DefaultWeights()

	pos := AdjustWeights(base, QueryPositional)
	if pos.Visual <= base.Visual {
		t.Errorf("positional visual weight = %.2f, want > %.2f", pos.Visual, base.Visual)
	}
	txt := AdjustWeights(base, QueryTextHeavy)
	if txt.Text <= base.Text {
		t.Errorf("text-heavy text weight = %.2f, want > %.2f", txt.Text, base.Text)
	}
	gen := AdjustWeights(base, QueryGeneral)
	if gen != normalizeWeights(base) {
		t.Errorf("general queries must keep base weights, got %+v", gen)
	}

	for _, qt := range []QueryType{QueryGeneral, QueryTextHeavy, QueryTypeBound, QueryPositional, QueryAction} {
		w := AdjustWeights(base, qt)
		sum := w.Text + w.Visual + w.Contextual + w.Kind
		if math.Abs(sum-1.0) > 1e-9 {
			t.Errorf("%s weights sum = %v, want 1.0", qt, sum)
		}
	}
}

func TestAutoAdjustDerivesFromBaseWithoutMutatingIt(t *testing.T) {
	c := NewComposite(CompositeConfig{AutoAdjust: true})
	base := c.Weights()

	c.Score(searchInput(), "top-right search box")
	if got := c.Weights(); got != base {
		t.Errorf("auto-adjust mutated base weights: %+v -> %+v", base, got)
	}

	// Explicit SetWeights always wins as the new base.
	custom := Weights{Text: 0.7, Visual: 0.1, Contextual: 0.1, Kind: 0.1}
	c.SetWeights(custom)
	if got := c.Weights(); got != custom {
		t.Errorf("SetWeights did not stick: %+v", got)
	}
}

func TestInvocationsCounter(t *testing.T) {
	c := testComposite(t)
	before := c.Invocations()
	c.Score(searchInput(), "search box")
	c.Breakdown(loginButton(), "login")
	if got := c.Invocations(); got != before+2 {
		t.Errorf("Invocations = %d, want %d", got, before+2)
	}
}

func TestEmptyQueryDegeneratesQuietly(t *testing.T) {
	c := testComposite(t)
	b := c.Breakdown(searchInput(), "")
	if b.Text != 0 || b.Contextual != 0 {
		t.Errorf("empty query text/contextual = %.2f/%.2f, want 0/0", b.Text, b.Contextual)
	}
	// Combined stays near zero; calibration maps it to a low confidence.
	if b.Calibrated > 0.3 {
		t.Errorf("empty query calibrated = %.2f, want <= 0.3", b.Calibrated)
	}
}

func TestScoreAndRankPrefersAriaContextOnTiedText(t *testing.T) {
	// Two buttons with identical visible text; only aria-label and nearby
	// text distinguish them.
	cancel := element.Semantics{
		Selector: "#cancel", Tag: "button", Text: "Submit",
		NearbyText: "Cancel subscription",
	}
	order := element.Semantics{
		Selector: "#order", Tag: "button", Text: "Submit",
		AriaLabel: "Submit order",
	}

	c := testComposite(t)
	matches := c.ScoreAndRank([]element.Semantics{cancel, order}, "submit order", DefaultThreshold, 0)
	if len(matches) < 2 {
		t.Fatalf("matches = %d, want both buttons ranked", len(matches))
	}
	if matches[0].Element.Selector != "#order" {
		t.Errorf("top match = %q, want #order (aria-label carries the intent)", matches[0].Element.Selector)
	}
	if matches[0].Confidence <= matches[1].Confidence {
		t.Errorf("confidences %.3f vs %.3f, want a strict gap", matches[0].Confidence, matches[1].Confidence)
	}
}

func TestSetViewport(t *testing.T) {
	c := testComposite(t)
	sem := element.Semantics{
		Selector: "#wide", Tag: "button", Text: "Go",
		X: 1500, Y: 80, Width: 100, Height: 40, Visible: true, Opacity: 1.0,
	}

	before := c.Breakdown(sem, "go button").Visual
	c.SetViewport(1920, 1080)
	after := c.Breakdown(sem, "go button").Visual
	if after <= before {
		t.Errorf("Visual = %.3f then %.3f; widening the viewport must lift an element that was off-screen", before, after)
	}
}
