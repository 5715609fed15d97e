// Package scanner produces element.Semantics records for the matcher: from
// static HTML (Snapshot) or from a live browser page (Live).
//
// The matcher treats the scanner as untrusted upstream input — Semantics
// produced here are plain data the index copies in whole.
package scanner

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/domtarget/element"
	"github.com/hazyhaar/domtarget/score"
)

// Options controls a snapshot scan.
type Options struct {
	// MaxElements caps the number of records produced. Default 500.
	MaxElements int
	// IncludeHidden keeps elements whose inline style chain hides them.
	// They still carry Visible=false so the visual scorer can penalise them.
	IncludeHidden bool
}

func (o *Options) defaults() {
	if o.MaxElements <= 0 {
		o.MaxElements = 500
	}
}

var hiddenStylePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)display\s*:\s*none`),
	regexp.MustCompile(`(?i)visibility\s*:\s*hidden`),
	regexp.MustCompile(`(?i)opacity\s*:\s*0(\.0*)?\s*(;|$)`),
}

var opacityRe = regexp.MustCompile(`(?i)opacity\s*:\s*([0-9.]+)`)

// Snapshot parses static HTML and derives Semantics for every interesting
// element. Geometry is zero — a static parse never rendered — so the visual
// scorer treats these as layout-neutral.
func Snapshot(data []byte, opts Options) ([]element.Semantics, error) {
	opts.defaults()

	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("scanner: parse html: %w", err)
	}

	s := &snapshotScan{
		opts:   opts,
		labels: collectLabels(doc),
	}
	s.walk(doc, scanState{opacity: 1.0})
	return s.out, nil
}

type snapshotScan struct {
	opts   Options
	labels map[string]string // element id -> label text
	out    []element.Semantics
}

// scanState carries inherited style down the walk.
type scanState struct {
	opacity float64
	hidden  bool
}

func (s *snapshotScan) walk(n *html.Node, st scanState) {
	if len(s.out) >= s.opts.MaxElements {
		return
	}
	if n.Type == html.ElementNode {
		switch n.DataAtom {
		case atom.Script, atom.Style, atom.Noscript, atom.Template:
			return
		}

		style := attr(n, "style")
		if m := opacityRe.FindStringSubmatch(style); m != nil {
			if v, err := strconv.ParseFloat(m[1], 64); err == nil {
				st.opacity *= v
			}
		}
		if hasHiddenStyle(style) {
			st.hidden = true
		}

		if interesting(n) {
			if st.hidden && !s.opts.IncludeHidden {
				return // hidden subtree: descendants are hidden too
			}
			if sem, ok := s.semantics(n, st); ok {
				s.out = append(s.out, sem)
			}
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		s.walk(c, st)
	}
}

// interesting reports whether a node is worth a Semantics record:
// interactive tags, ARIA-role carriers, click handlers and web components.
func interesting(n *html.Node) bool {
	switch n.DataAtom {
	case atom.A, atom.Button, atom.Input, atom.Select, atom.Textarea, atom.Img:
		return true
	}
	if attr(n, "role") != "" || attr(n, "onclick") != "" {
		return true
	}
	if attr(n, "contenteditable") == "true" {
		return true
	}
	// Custom elements: hyphenated tag names.
	return strings.Contains(n.Data, "-")
}

func (s *snapshotScan) semantics(n *html.Node, st scanState) (element.Semantics, bool) {
	id := attr(n, "id")
	sem := element.Semantics{
		Tag:         n.Data,
		Type:        strings.ToLower(attr(n, "type")),
		Text:        collectText(n),
		Placeholder: attr(n, "placeholder"),
		Title:       attr(n, "title"),
		AriaLabel:   attr(n, "aria-label"),
		Name:        attr(n, "name"),
		ID:          id,
		Value:       attr(n, "value"),
		Classes:     strings.Fields(attr(n, "class")),
		NearbyText:  nearbyText(n),
		LabelFor:    s.labels[id],
		Visible:     !st.hidden,
		Opacity:     st.opacity,
		Display:     styleProp(attr(n, "style"), "display"),
		Visibility:  styleProp(attr(n, "style"), "visibility"),
		OuterHTML:   renderNode(n),
	}
	if sem.LabelFor == "" {
		sem.LabelFor = wrappingLabel(n)
	}
	sem.InferredRole = score.InferRole(sem)
	sem.Selector = selectorFor(sem)
	return sem, sem.Selector != ""
}

// selectorFor builds a CSS path in the subset the selector package parses:
// tag, #id, classes, one attribute. Best-effort uniqueness — two
// indistinguishable elements get the same selector and the index keeps the
// later one.
func selectorFor(sem element.Semantics) string {
	var b strings.Builder
	b.WriteString(sem.Tag)
	if sem.ID != "" {
		b.WriteString("#")
		b.WriteString(sem.ID)
		return b.String()
	}
	for _, c := range sem.Classes {
		b.WriteString(".")
		b.WriteString(c)
	}
	switch {
	case sem.Name != "":
		fmt.Fprintf(&b, "[name=%q]", sem.Name)
	case sem.Type != "":
		fmt.Fprintf(&b, "[type=%q]", sem.Type)
	case sem.Placeholder != "":
		fmt.Fprintf(&b, "[placeholder=%q]", sem.Placeholder)
	}
	return b.String()
}

// collectLabels maps element IDs to the text of labels pointing at them.
func collectLabels(doc *html.Node) map[string]string {
	labels := make(map[string]string)
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Label {
			if forID := attr(n, "for"); forID != "" {
				if text := collectText(n); text != "" {
					labels[forID] = text
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return labels
}

// wrappingLabel returns the text of an enclosing <label> element, the
// implicit association form.
func wrappingLabel(n *html.Node) string {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && p.DataAtom == atom.Label {
			return collectText(p)
		}
	}
	return ""
}

const maxNearbyLen = 120

// nearbyText gathers trimmed text from adjacent siblings, nearest first.
func nearbyText(n *html.Node) string {
	var parts []string
	if t := siblingText(n.PrevSibling, -1); t != "" {
		parts = append(parts, t)
	}
	if t := siblingText(n.NextSibling, +1); t != "" {
		parts = append(parts, t)
	}
	text := strings.Join(parts, " ")
	if len(text) > maxNearbyLen {
		text = text[:maxNearbyLen]
	}
	return text
}

// siblingText finds the first non-empty text walking siblings in one
// direction.
func siblingText(n *html.Node, dir int) string {
	for ; n != nil; n = next(n, dir) {
		switch n.Type {
		case html.TextNode:
			if t := strings.TrimSpace(n.Data); t != "" {
				return t
			}
		case html.ElementNode:
			switch n.DataAtom {
			case atom.Script, atom.Style:
				continue
			}
			if t := collectText(n); t != "" {
				return t
			}
		}
	}
	return ""
}

func next(n *html.Node, dir int) *html.Node {
	if dir < 0 {
		return n.PrevSibling
	}
	return n.NextSibling
}

// collectText extracts all text from a node subtree, whitespace-joined.
func collectText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if text := strings.TrimSpace(n.Data); text != "" {
				if sb.Len() > 0 {
					sb.WriteByte(' ')
				}
				sb.WriteString(text)
			}
		}
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Noscript:
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

func renderNode(n *html.Node) string {
	var buf bytes.Buffer
	if err := html.Render(&buf, n); err != nil {
		return ""
	}
	const maxOuterHTML = 1024
	s := buf.String()
	if len(s) > maxOuterHTML {
		s = s[:maxOuterHTML]
	}
	return s
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasHiddenStyle(style string) bool {
	if style == "" {
		return false
	}
	for _, pat := range hiddenStylePatterns {
		if pat.MatchString(style) {
			return true
		}
	}
	return false
}

// styleProp extracts one property value from an inline style string.
func styleProp(style, prop string) string {
	for _, decl := range strings.Split(style, ";") {
		k, v, ok := strings.Cut(decl, ":")
		if ok && strings.EqualFold(strings.TrimSpace(k), prop) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
