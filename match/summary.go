package match

import (
	"context"
	"fmt"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/microcosm-cc/bluemonday"

	"github.com/hazyhaar/domtarget/element"
)

// Candidate is one ranked match packaged for an external disambiguator: the
// match itself plus a compact human-readable summary an LLM prompt can embed.
type Candidate struct {
	element.Match
	Summary string `json:"summary"`
}

// Disambiguator re-ranks near-tie candidates. Typically backed by a
// vision-capable LLM; the matcher only depends on this interface. The
// returned matches replace the code ranking. Errors and absence both fall
// back to the code-only ranking.
type Disambiguator interface {
	Disambiguate(ctx context.Context, description string, candidates []Candidate) ([]element.Match, error)
}

// summarizer renders candidate summaries. Raw outer HTML is untrusted page
// content: it gets sanitised before the markdown conversion so script and
// event-handler payloads never reach a prompt.
type summarizer struct {
	policy *bluemonday.Policy
	conv   *converter.Converter
}

func newSummarizer() *summarizer {
	return &summarizer{
		policy: bluemonday.UGCPolicy(),
		conv: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
			),
		),
	}
}

const maxSnippetLen = 400

// candidates packages matches for the disambiguator.
func (s *summarizer) candidates(matches []element.Match) []Candidate {
	out := make([]Candidate, len(matches))
	for i, m := range matches {
		out[i] = Candidate{Match: m, Summary: s.summarize(m.Element)}
	}
	return out
}

// summarize builds a one-paragraph description of an element from its
// semantic fields plus a markdown rendering of its sanitised outer HTML.
func (s *summarizer) summarize(sem element.Semantics) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s", sem.Tag)
	if sem.Type != "" {
		fmt.Fprintf(&b, "[type=%s]", sem.Type)
	}
	if sem.InferredRole != "" {
		fmt.Fprintf(&b, " role=%s", sem.InferredRole)
	}
	for _, f := range []struct{ name, val string }{
		{"text", sem.Text},
		{"placeholder", sem.Placeholder},
		{"aria-label", sem.AriaLabel},
		{"label", sem.LabelFor},
		{"nearby", sem.NearbyText},
	} {
		if f.val != "" {
			fmt.Fprintf(&b, " %s=%q", f.name, f.val)
		}
	}
	if sem.Width > 0 && sem.Height > 0 {
		fmt.Fprintf(&b, " at (%d,%d) %dx%d visible=%t",
			sem.X, sem.Y, sem.Width, sem.Height, sem.Visible)
	}

	if snippet := s.htmlSnippet(sem.OuterHTML); snippet != "" {
		b.WriteString("\nhtml: ")
		b.WriteString(snippet)
	}
	return b.String()
}

// htmlSnippet sanitises and converts outer HTML to markdown, truncated.
// Conversion failures yield no snippet rather than an error: the semantic
// fields alone are an acceptable summary.
func (s *summarizer) htmlSnippet(outerHTML string) string {
	if outerHTML == "" {
		return ""
	}
	clean := s.policy.Sanitize(outerHTML)
	md, err := s.conv.ConvertString(clean)
	if err != nil {
		return ""
	}
	md = strings.TrimSpace(md)
	if len(md) > maxSnippetLen {
		md = md[:maxSnippetLen] + "…"
	}
	return md
}

// disambiguate hands the near-tie candidates to the external ranker.
func (m *Matcher) disambiguate(ctx context.Context, description string, matches []element.Match) ([]element.Match, error) {
	ranked, err := m.disamb.Disambiguate(ctx, description, m.summ.candidates(matches))
	if err != nil {
		return nil, fmt.Errorf("match: disambiguate: %w", err)
	}
	if len(ranked) == 0 {
		return nil, fmt.Errorf("match: disambiguator returned no candidates")
	}
	return ranked, nil
}
