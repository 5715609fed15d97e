package score

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/hazyhaar/domtarget/element"
)

// Default tuning. Contextual and text dominate because free-text queries
// carry more signal there than raw layout.
const (
	DefaultThreshold    = 0.3
	DefaultStrongMatch  = 0.85
	DefaultAmbiguityGap = 0.10
)

// Weights are the ensemble weights for the four scorers. They should sum to
// roughly 1.0 by convention; this is not enforced.
type Weights struct {
	Text       float64 `yaml:"text" json:"text"`
	Visual     float64 `yaml:"visual" json:"visual"`
	Contextual float64 `yaml:"contextual" json:"contextual"`
	Kind       float64 `yaml:"kind" json:"kind"`
}

// DefaultWeights returns the tuned defaults.
func DefaultWeights() Weights {
	return Weights{Text: 0.35, Visual: 0.15, Contextual: 0.30, Kind: 0.20}
}

// Calibration maps the raw combined score to a confidence via
// sigmoid(slope * (combined - offset)): compresses the extremes, spreads the
// ambiguous mid-range.
type Calibration struct {
	Slope  float64 `yaml:"slope" json:"slope"`
	Offset float64 `yaml:"offset" json:"offset"`
}

// DefaultCalibration returns slope 4.0, offset 0.5.
func DefaultCalibration() Calibration {
	return Calibration{Slope: 4.0, Offset: 0.5}
}

// QueryType classifies a query for weight auto-adjustment.
type QueryType string

const (
	QueryGeneral    QueryType = "general"
	QueryTextHeavy  QueryType = "text"
	QueryTypeBound  QueryType = "type"
	QueryPositional QueryType = "positional"
	QueryAction     QueryType = "action"
)

var quotedRe = regexp.MustCompile(`["'“”][^"'“”]+["'“”]`)

// CompositeConfig configures a Composite scorer.
type CompositeConfig struct {
	Weights     Weights     `yaml:"weights"`
	Calibration Calibration `yaml:"calibration"`
	ViewportW   int         `yaml:"viewport_width"`
	ViewportH   int         `yaml:"viewport_height"`
	AutoAdjust  bool        `yaml:"auto_adjust"`
}

func (c *CompositeConfig) defaults() {
	zero := Weights{}
	if c.Weights == zero {
		c.Weights = DefaultWeights()
	}
	if c.Calibration.Slope == 0 {
		c.Calibration = DefaultCalibration()
	}
	if c.ViewportW <= 0 {
		c.ViewportW = 1280
	}
	if c.ViewportH <= 0 {
		c.ViewportH = 720
	}
}

// Composite combines the four scorers with configurable weights and sigmoid
// calibration. Weights, calibration and the viewport are mutable at runtime
// under a mutex; each scorer instance is immutable (SetViewport swaps the
// visual scorer whole). The invocation counter lets tests assert that cached
// paths never re-score.
type Composite struct {
	text       *TextScorer
	visual     *VisualScorer
	contextual *ContextScorer
	kind       *KindScorer

	mu         sync.Mutex
	weights    Weights
	cal        Calibration
	autoAdjust bool

	invocations atomic.Uint64
}

// NewComposite builds a Composite from config.
func NewComposite(cfg CompositeConfig) *Composite {
	cfg.defaults()
	return &Composite{
		text:       NewTextScorer(),
		visual:     NewVisualScorer(cfg.ViewportW, cfg.ViewportH),
		contextual: NewContextScorer(),
		kind:       NewKindScorer(),
		weights:    cfg.Weights,
		cal:        cfg.Calibration,
		autoAdjust: cfg.AutoAdjust,
	}
}

// SetWeights replaces the caller-configured base weights. Auto-adjustment
// always derives from this base per query and never overwrites it, so an
// explicit SetWeights wins over any previous auto-adjustment.
func (c *Composite) SetWeights(w Weights) {
	c.mu.Lock()
	c.weights = w
	c.mu.Unlock()
}

// Weights returns the current base weights.
func (c *Composite) Weights() Weights {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.weights
}

// SetCalibration replaces the sigmoid parameters.
func (c *Composite) SetCalibration(cal Calibration) {
	c.mu.Lock()
	c.cal = cal
	c.mu.Unlock()
}

// SetAutoAdjust toggles per-query weight adjustment.
func (c *Composite) SetAutoAdjust(on bool) {
	c.mu.Lock()
	c.autoAdjust = on
	c.mu.Unlock()
}

// SetViewport replaces the visual scorer's viewport dimensions, e.g. after
// a window resize. Takes effect on the next scoring call; zero or negative
// dimensions fall back to the scorer's defaults.
func (c *Composite) SetViewport(w, h int) {
	c.mu.Lock()
	c.visual = NewVisualScorer(w, h)
	c.mu.Unlock()
}

// Invocations returns how many times the scorer ensemble has run. Test
// instrumentation for cache-correctness assertions.
func (c *Composite) Invocations() uint64 {
	return c.invocations.Load()
}

// Score returns the calibrated confidence for one (element, query) pair.
func (c *Composite) Score(sem element.Semantics, query string) float64 {
	return c.Breakdown(sem, query).Calibrated
}

// Breakdown runs all four scorers and returns the full diagnostic record.
func (c *Composite) Breakdown(sem element.Semantics, query string) element.ScoreBreakdown {
	c.invocations.Add(1)

	w, cal, visual := c.effective(query)

	b := element.ScoreBreakdown{
		Text:       c.text.Score(sem, query),
		Visual:     visual.Score(sem, query),
		Contextual: c.contextual.Score(sem, query),
		Kind:       c.kind.Score(sem, query),
	}
	b.Combined = w.Text*b.Text + w.Visual*b.Visual +
		w.Contextual*b.Contextual + w.Kind*b.Kind
	b.Calibrated = sigmoid(cal.Slope * (b.Combined - cal.Offset))
	return b
}

// ScoreAndRank scores every candidate, discards calibrated scores below
// threshold, sorts descending, and truncates to maxResults. The sort is
// stable: equal scores keep input order.
func (c *Composite) ScoreAndRank(elements []element.Semantics, query string, threshold float64, maxResults int) []element.Match {
	qt := DetectQueryType(query)

	matches := make([]element.Match, 0, len(elements))
	for _, sem := range elements {
		b := c.Breakdown(sem, query)
		if b.Calibrated < threshold {
			continue
		}
		matches = append(matches, element.Match{
			Element:    sem,
			Confidence: b.Calibrated,
			MatchReason: fmt.Sprintf(
				"text=%.2f visual=%.2f contextual=%.2f kind=%.2f combined=%.2f query_type=%s",
				b.Text, b.Visual, b.Contextual, b.Kind, b.Combined, qt),
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Confidence > matches[j].Confidence
	})

	if maxResults > 0 && len(matches) > maxResults {
		matches = matches[:maxResults]
	}
	return matches
}

// IsStrongMatch reports whether a single element clears the strong-match
// threshold — used to short-circuit external disambiguation.
func (c *Composite) IsStrongMatch(sem element.Semantics, query string, threshold float64) bool {
	if threshold <= 0 {
		threshold = DefaultStrongMatch
	}
	return c.Score(sem, query) >= threshold
}

// IsAmbiguous reports whether the two top-ranked matches are within
// gapThreshold of each other — the signal that code-only matching cannot
// safely pick a winner.
func IsAmbiguous(matches []element.Match, gapThreshold float64) bool {
	if gapThreshold <= 0 {
		gapThreshold = DefaultAmbiguityGap
	}
	if len(matches) < 2 {
		return false
	}
	return matches[0].Confidence-matches[1].Confidence < gapThreshold
}

// DetectQueryType classifies a query with lightweight keyword heuristics.
// Quoted text wins over everything; position words over action verbs.
func DetectQueryType(query string) QueryType {
	if quotedRe.MatchString(query) {
		return QueryTextHeavy
	}
	if positionalHint(query) != "" {
		return QueryPositional
	}

	tokens := tokenize(normalizeText(query))
	hasAction := false
	hasKind := false
	for _, t := range tokens {
		if actionTokens[t] || typingVerbs[t] || clickingVerbs[t] {
			hasAction = true
		}
		if _, ok := kindWords[t]; ok {
			hasKind = true
		}
	}
	switch {
	case hasAction:
		return QueryAction
	case hasKind:
		return QueryTypeBound
	}
	return QueryGeneral
}

// effective returns the weights, calibration and visual scorer to use for
// this query. Auto-adjustment shifts weight mass toward the scorer most
// informative for the detected query type; it computes from the base without
// mutating it, so adjustments never leak across queries.
func (c *Composite) effective(query string) (Weights, Calibration, *VisualScorer) {
	c.mu.Lock()
	w, cal, auto, visual := c.weights, c.cal, c.autoAdjust, c.visual
	c.mu.Unlock()

	if !auto {
		return w, cal, visual
	}
	return AdjustWeights(w, DetectQueryType(query)), cal, visual
}

// AdjustWeights derives query-type-specific weights from a base. Heuristic
// re-weighting, not a learned model.
func AdjustWeights(base Weights, qt QueryType) Weights {
	w := base
	switch qt {
	case QueryTextHeavy:
		w.Text += 0.15
		w.Visual -= 0.05
		w.Kind -= 0.10
	case QueryPositional:
		w.Visual += 0.20
		w.Contextual -= 0.10
		w.Text -= 0.10
	case QueryAction:
		w.Kind += 0.10
		w.Contextual -= 0.05
		w.Visual -= 0.05
	case QueryTypeBound:
		w.Kind += 0.15
		w.Visual -= 0.05
		w.Text -= 0.10
	}
	return normalizeWeights(w)
}

// normalizeWeights clamps negatives to zero and rescales to sum 1.0.
func normalizeWeights(w Weights) Weights {
	vals := []float64{w.Text, w.Visual, w.Contextual, w.Kind}
	sum := 0.0
	for i, v := range vals {
		if v < 0 {
			vals[i] = 0
			v = 0
		}
		sum += v
	}
	if sum == 0 {
		return DefaultWeights()
	}
	return Weights{
		Text:       vals[0] / sum,
		Visual:     vals[1] / sum,
		Contextual: vals[2] / sum,
		Kind:       vals[3] / sum,
	}
}

// RoleMatches reports whether an inferred role satisfies a requested role:
// exact, category word ("button" matches "submit_button"), or alias.
func RoleMatches(role, want string) bool {
	role = strings.ToLower(strings.TrimSpace(role))
	want = strings.ToLower(strings.TrimSpace(want))
	if role == "" || want == "" {
		return false
	}
	if role == want {
		return true
	}

	aliases := map[string]string{
		"search_box":  "search_input",
		"searchbox":   "search_input",
		"textbox":     "text_input",
		"anchor":      "link",
		"select":      "dropdown",
		"combobox":    "dropdown",
		"nav":         "navigation",
		"radio":       "radio_button",
		"submit":      "submit_button",
		"login_field": "username_input",
	}
	if aliases[want] == role || aliases[role] == want {
		return true
	}

	// Category words match every role in the category.
	if cat, ok := kindWords[want]; ok && categoryOf(role) == cat {
		return true
	}
	return categoryOf(role) != catGeneric && categoryOf(role) == categoryOf(want)
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}
