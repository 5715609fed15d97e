package match

import (
	"fmt"
	"sort"

	"github.com/hazyhaar/domtarget/element"
	"github.com/hazyhaar/domtarget/score"
)

// legacyScorer is the pre-ensemble matching path: direct text, role and
// context scoring with fixed weights, no visual signal, no sigmoid
// calibration. Kept runtime-selectable so regressions in the ensemble can be
// bisected against it.
type legacyScorer struct {
	text *score.TextScorer
	kind *score.KindScorer
	ctx  *score.ContextScorer
}

func newLegacyScorer() *legacyScorer {
	return &legacyScorer{
		text: score.NewTextScorer(),
		kind: score.NewKindScorer(),
		ctx:  score.NewContextScorer(),
	}
}

// rank scores every element, drops raw scores below threshold and sorts
// descending. Confidence here is the raw weighted sum, not a calibrated
// probability.
func (s *legacyScorer) rank(elements []element.Semantics, query string, threshold float64) []element.Match {
	matches := make([]element.Match, 0, len(elements))
	for _, sem := range elements {
		txt := s.text.Score(sem, query)
		knd := s.kind.Score(sem, query)
		ctx := s.ctx.Score(sem, query)
		combined := 0.5*txt + 0.3*knd + 0.2*ctx
		if combined < threshold {
			continue
		}
		matches = append(matches, element.Match{
			Element:    sem,
			Confidence: combined,
			MatchReason: fmt.Sprintf(
				"legacy text=%.2f kind=%.2f contextual=%.2f", txt, knd, ctx),
		})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Confidence > matches[j].Confidence
	})
	return matches
}
