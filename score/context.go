package score

import "github.com/hazyhaar/domtarget/element"

// ContextScorer weighs the element's surroundings: the text of an associated
// <label> and whatever the scanner captured as nearby text. A control whose
// label matches the query strongly outranks one with no label relation.
type ContextScorer struct {
	text *TextScorer
}

// NewContextScorer builds the scorer. It reuses the text scorer's similarity
// machinery (synonyms included) against the context fields.
func NewContextScorer() *ContextScorer {
	return &ContextScorer{text: NewTextScorer()}
}

// Score compares the query against LabelFor (associated label text, full
// weight) and NearbyText (weaker signal). Elements with no context at all
// score neutral: absence of a label is not evidence against a match, but a
// present, mismatching context is.
func (s *ContextScorer) Score(sem element.Semantics, query string) float64 {
	q := normalizeText(query)
	if q == "" {
		return 0
	}
	qTokens := significantTokens(q)

	hasLabel := sem.LabelFor != ""
	hasNearby := sem.NearbyText != ""
	if !hasLabel && !hasNearby {
		return 0.3
	}

	best := 0.0
	if hasLabel {
		sim := s.text.similarity(q, qTokens, normalizeText(sem.LabelFor))
		if sim > best {
			best = sim
		}
	}
	if hasNearby {
		sim := 0.8 * s.text.similarity(q, qTokens, normalizeText(sem.NearbyText))
		if sim > best {
			best = sim
		}
	}

	if best < 0.05 {
		return 0.05 // context present but unrelated to the query
	}
	return clamp01(best)
}
