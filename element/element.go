// Package element defines the shared data model for the semantic element
// resolution engine: per-element semantic snapshots produced by a DOM
// scanner, match results produced by scoring, and pixel bounds produced by
// the bounds resolver.
//
// Semantics values are plain data — they carry no behaviour and no locks.
// The owning store (elemindex) copies them in and out whole, so a snapshot
// is never observed half-written.
package element

// Semantics is a snapshot of one DOM element's matchable attributes at scan
// time. Identity within a context is the Selector string: re-registering the
// same selector replaces the previous snapshot (last write wins).
type Semantics struct {
	Selector string `json:"selector"` // canonical CSS path
	Tag      string `json:"tag"`
	Type     string `json:"type,omitempty"` // input subtype

	// Text fields the scorers match against.
	Text        string `json:"text,omitempty"`
	Placeholder string `json:"placeholder,omitempty"`
	Title       string `json:"title,omitempty"`
	AriaLabel   string `json:"aria_label,omitempty"`
	Name        string `json:"name,omitempty"`
	ID          string `json:"id,omitempty"`
	Value       string `json:"value,omitempty"`

	// Context fields.
	NearbyText string `json:"nearby_text,omitempty"`
	LabelFor   string `json:"label_for,omitempty"`

	// Geometry, viewport-relative integer pixels.
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`

	// Visibility. Opacity is the cumulative product of ancestor opacities;
	// the scanner computes the cascade, this engine never recomputes it.
	Visible    bool    `json:"visible"`
	Opacity    float64 `json:"opacity"`
	ZIndex     int     `json:"z_index"`
	Display    string  `json:"display,omitempty"`
	Visibility string  `json:"visibility,omitempty"`
	Transform  string  `json:"transform,omitempty"`

	// InferredRole is the derived semantic category, e.g. "search_input",
	// "submit_button". Filled by the scanner or the kind scorer.
	InferredRole string `json:"inferred_role,omitempty"`

	// OuterHTML is an optional raw snippet used only when packaging
	// candidates for LLM disambiguation. Scanners may leave it empty.
	OuterHTML string `json:"outer_html,omitempty"`

	// Classes as parsed from the class attribute, in document order.
	Classes []string `json:"classes,omitempty"`
}

// Match is the result of scoring one element against a query. It owns a copy
// of the matched semantics; constructed per query, never persisted.
type Match struct {
	Element     Semantics `json:"element"`
	Confidence  float64   `json:"confidence"`
	MatchReason string    `json:"match_reason,omitempty"`
}

// ScoreBreakdown records the raw sub-scores behind one composite score.
// Diagnostic only.
type ScoreBreakdown struct {
	Text       float64 `json:"text"`
	Visual     float64 `json:"visual"`
	Contextual float64 `json:"contextual"`
	Kind       float64 `json:"kind"`
	Combined   float64 `json:"combined"`   // weighted sum
	Calibrated float64 `json:"calibrated"` // post-sigmoid
}

// Bounds is the resolved on-screen box for one selector. Failures are
// inline — Found=false plus Error — so batch lookups can partially succeed.
type Bounds struct {
	Found  bool   `json:"found"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Error  string `json:"error,omitempty"`
}

// BatchBounds is the result of resolving several selectors against one DOM
// snapshot. DurationMS is wall-clock instrumentation.
type BatchBounds struct {
	Results    []Bounds `json:"results"`
	FoundCount int      `json:"found_count"`
	TotalCount int      `json:"total_count"`
	DurationMS int64    `json:"duration_ms"`
}
