package score

import (
	"strings"

	"github.com/hazyhaar/domtarget/element"
)

// VisualScorer rewards layout positions a user is likely to mean: elements
// inside the visible viewport, toward the top, and — when the query carries
// a positional hint ("top-right") — in the hinted region.
type VisualScorer struct {
	viewportW int
	viewportH int
}

// NewVisualScorer creates a scorer for the given viewport. Zero or negative
// dimensions fall back to 1280x720.
func NewVisualScorer(viewportW, viewportH int) *VisualScorer {
	if viewportW <= 0 {
		viewportW = 1280
	}
	if viewportH <= 0 {
		viewportH = 720
	}
	return &VisualScorer{viewportW: viewportW, viewportH: viewportH}
}

// Score evaluates the element's geometry against the query's positional
// intent. Elements without geometry (snapshot scans that never rendered)
// score neutral so layout absence does not veto a match.
func (s *VisualScorer) Score(sem element.Semantics, query string) float64 {
	hint := positionalHint(query)

	if sem.Width <= 0 || sem.Height <= 0 {
		if hint != "" {
			return 0.4 // hinted query but nothing to check against
		}
		return 0.5
	}

	// Rendered geometry present: invisibility is a strong negative signal.
	if !sem.Visible || sem.Opacity < 0.05 {
		return 0.1
	}

	cx := sem.X + sem.Width/2
	cy := sem.Y + sem.Height/2

	if cx < 0 || cx > s.viewportW || cy < 0 || cy > s.viewportH {
		return 0.2 // outside the visible viewport
	}

	if hint != "" {
		if s.inRegion(cx, cy, hint) {
			return 1.0
		}
		return 0.2
	}

	// No hint: mild reward for being high on the page.
	frac := float64(cy) / float64(s.viewportH)
	return clamp01(0.5 + 0.4*(1.0-frac))
}

// positionalHint extracts a region hint from the query. Compound hints
// ("top right") beat single-axis ones.
func positionalHint(query string) string {
	// Hyphens become spaces ("top-right" → "top right"); normalizeText would
	// join them into one unrecognisable token.
	q := strings.ReplaceAll(strings.ToLower(query), "-", " ")
	q = " " + strings.Join(strings.Fields(q), " ") + " "
	q = strings.ReplaceAll(q, "upper", "top")
	q = strings.ReplaceAll(q, "lower", "bottom")

	vert := ""
	switch {
	case strings.Contains(q, " top "):
		vert = "top"
	case strings.Contains(q, " bottom "):
		vert = "bottom"
	}
	horiz := ""
	switch {
	case strings.Contains(q, " left "):
		horiz = "left"
	case strings.Contains(q, " right "):
		horiz = "right"
	}

	switch {
	case vert != "" && horiz != "":
		return vert + "-" + horiz
	case vert != "":
		return vert
	case horiz != "":
		return horiz
	case strings.Contains(q, " center ") || strings.Contains(q, " middle "):
		return "center"
	}
	return ""
}

// inRegion checks whether a center point falls in the hinted region.
// Halves overlap slightly at the midline so near-center elements are not
// penalised by rounding.
func (s *VisualScorer) inRegion(cx, cy int, hint string) bool {
	w, h := float64(s.viewportW), float64(s.viewportH)
	x, y := float64(cx), float64(cy)

	top := y <= h*0.55
	bottom := y >= h*0.45
	left := x <= w*0.55
	right := x >= w*0.45

	switch hint {
	case "top":
		return top
	case "bottom":
		return bottom
	case "left":
		return left
	case "right":
		return right
	case "top-left":
		return top && left
	case "top-right":
		return top && right
	case "bottom-left":
		return bottom && left
	case "bottom-right":
		return bottom && right
	case "center":
		return x >= w*0.25 && x <= w*0.75 && y >= h*0.25 && y <= h*0.75
	}
	return false
}
