// Package score implements the heuristic scorers behind semantic element
// resolution: four independent scorers (text, visual, contextual, kind) and
// a composite that combines them into one calibrated confidence value.
//
// Every scorer is a pure function of (element.Semantics, query) → [0,1].
// Lookup tables (synonyms, role behaviour, interactive tags) are built once
// at construction and never mutated, so scorers are safely shared across
// goroutines without locking.
package score

import (
	"strings"
	"unicode"

	"github.com/hazyhaar/domtarget/element"
)

// synonymGroups are interchangeable query/UI vocabulary. Hyphen variants
// ("e-mail", "sign-in") collapse during normalisation, so only the joined
// forms appear here.
var synonymGroups = [][]string{
	{"email", "mail"},
	{"search", "find", "lookup", "query"},
	{"login", "signin", "authenticate"},
	{"logout", "signout"},
	{"submit", "send", "confirm", "ok"},
	{"password", "pass", "pwd", "passphrase"},
	{"username", "user", "account", "userid"},
	{"register", "signup", "join"},
	{"cancel", "close", "dismiss", "abort"},
	{"next", "continue", "forward", "proceed"},
	{"back", "previous", "prev"},
	{"delete", "remove", "trash"},
	{"edit", "modify", "change", "update"},
	{"save", "store", "keep"},
	{"phone", "telephone", "mobile", "tel"},
	{"address", "street", "location"},
	{"price", "cost", "amount", "total"},
	{"cart", "basket", "bag"},
	{"menu", "nav", "navigation", "hamburger"},
	{"settings", "preferences", "options", "config"},
	{"help", "support", "faq", "assistance"},
	{"download", "export"},
	{"upload", "import", "attach"},
}

// fillerTokens are query words that describe the kind of element rather than
// its content ("search box", "login button"). The kind scorer interprets
// them; the text scorer drops them so they do not dilute coverage.
var fillerTokens = map[string]bool{
	"the": true, "a": true, "an": true, "to": true, "of": true,
	"in": true, "on": true, "for": true, "with": true, "my": true,
	"box": true, "button": true, "btn": true, "field": true,
	"input": true, "link": true, "icon": true, "element": true,
	"control": true, "bar": true, "item": true, "option": true,
	"tab": true, "area": true, "dropdown": true, "checkbox": true,
	"textbox": true, "widget": true,
}

// actionTokens are verbs that signal intent, not content.
var actionTokens = map[string]bool{
	"click": true, "press": true, "tap": true, "type": true,
	"enter": true, "fill": true, "select": true, "choose": true,
	"open": true, "toggle": true, "check": true, "hover": true,
}

// TextScorer fuzzy-matches a query against an element's text-bearing fields.
type TextScorer struct {
	groups map[string]int // token → synonym group index
}

// NewTextScorer builds the scorer and its synonym index.
func NewTextScorer() *TextScorer {
	groups := make(map[string]int)
	for i, g := range synonymGroups {
		for _, w := range g {
			groups[w] = i
		}
	}
	return &TextScorer{groups: groups}
}

// textField pairs a field value with its trust weight: visible text and
// aria-label carry the most signal, values the least.
type textField struct {
	value  string
	weight float64
}

// Score returns the best weighted similarity between the query and any
// text-bearing field of the element.
func (s *TextScorer) Score(sem element.Semantics, query string) float64 {
	q := normalizeText(query)
	if q == "" {
		return 0
	}
	qTokens := significantTokens(q)

	fields := []textField{
		{sem.Text, 1.0},
		{sem.AriaLabel, 1.0},
		{sem.Placeholder, 0.95},
		{sem.Name, 0.85},
		{sem.Title, 0.75},
		{sem.ID, 0.7},
		{sem.Value, 0.6},
	}

	best := 0.0
	for _, f := range fields {
		fv := normalizeText(f.value)
		if fv == "" {
			continue
		}
		sim := s.similarity(q, qTokens, fv)
		if v := sim * f.weight; v > best {
			best = v
		}
	}
	return clamp01(best)
}

// similarity compares a normalised query against one normalised field value.
func (s *TextScorer) similarity(q string, qTokens []string, field string) float64 {
	if field == q {
		return 1.0
	}
	if strings.Contains(field, q) {
		return 0.95
	}
	if len(qTokens) == 0 {
		return bigramSimilarity(q, field) * 0.7
	}

	fTokens := tokenize(field)
	// Joined adjacent pairs let "sign in" meet "signin"/"login" and
	// "log in" meet "login".
	for i, n := 0, len(fTokens); i+1 < n; i++ {
		fTokens = append(fTokens, fTokens[i]+fTokens[i+1])
	}
	covered := 0.0
	for _, qt := range qTokens {
		covered += s.bestTokenMatch(qt, fTokens)
	}
	return covered / float64(len(qTokens))
}

// bestTokenMatch scores one query token against all field tokens.
func (s *TextScorer) bestTokenMatch(qt string, fTokens []string) float64 {
	best := 0.0
	for _, ft := range fTokens {
		var v float64
		switch {
		case qt == ft:
			v = 1.0
		case s.sameGroup(qt, ft):
			v = 0.9
		case len(qt) >= 3 && len(ft) >= 3 &&
			(strings.HasPrefix(qt, ft) || strings.HasPrefix(ft, qt)):
			v = 0.8
		default:
			if sim := bigramSimilarity(qt, ft); sim >= 0.5 {
				v = sim * 0.7
			}
		}
		if v > best {
			best = v
		}
	}
	return best
}

func (s *TextScorer) sameGroup(a, b string) bool {
	ga, ok := s.groups[a]
	if !ok {
		return false
	}
	gb, ok := s.groups[b]
	return ok && ga == gb
}

// normalizeText lowercases, collapses hyphens ("e-mail" → "email") and
// whitespace runs.
func normalizeText(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	s = strings.ReplaceAll(s, "-", "")
	return strings.Join(strings.Fields(s), " ")
}

// tokenize splits normalised text into alphanumeric runs.
func tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// significantTokens drops filler and action vocabulary from a query. When
// everything is filler ("the button"), the original tokens are kept so the
// query still scores deterministically.
func significantTokens(q string) []string {
	all := tokenize(q)
	sig := make([]string, 0, len(all))
	for _, t := range all {
		if fillerTokens[t] || actionTokens[t] {
			continue
		}
		sig = append(sig, t)
	}
	if len(sig) == 0 {
		return all
	}
	return sig
}

// bigramSimilarity is the Sørensen–Dice coefficient over character bigrams.
func bigramSimilarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if len(a) < 2 || len(b) < 2 {
		return 0
	}
	counts := make(map[string]int)
	for i := 0; i+2 <= len(a); i++ {
		counts[a[i:i+2]]++
	}
	common := 0
	for i := 0; i+2 <= len(b); i++ {
		bg := b[i : i+2]
		if counts[bg] > 0 {
			counts[bg]--
			common++
		}
	}
	return 2.0 * float64(common) / float64(len(a)-1+len(b)-1)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
