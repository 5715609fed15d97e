// Package selector parses the CSS selector subset used by the resolution
// engine and judges element matches against the parsed form.
//
// Supported grammar, combined in any order after the optional tag:
//
//	tag          "button", "input"
//	#id          one at most
//	.class       zero or more
//	[attr=val]   zero or more, value optionally quoted; quoted values may
//	[attr="v"]   contain escaped quotes (\" or \')
//
// Full CSS3 (combinators, pseudo-classes, :nth-*) is deliberately out of
// scope — callers needing more run against the rendering layer directly.
//
// Parsing is pure, so results are cached by exact input string with no
// eviction beyond ClearCache: selector strings are low-cardinality and the
// grammar of a given string never changes.
package selector

import (
	"strings"
	"sync"
)

// Attr is one [attribute=value] requirement, in source order.
type Attr struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Component is the parsed form of a selector. Immutable once parsed.
// Valid=false marks unparseable input; an invalid component never matches
// anything — malformed selectors degrade to "not found", not errors.
type Component struct {
	Tag     string   `json:"tag,omitempty"`
	ID      string   `json:"id,omitempty"`
	Classes []string `json:"classes,omitempty"`
	Attrs   []Attr   `json:"attrs,omitempty"`
	Valid   bool     `json:"valid"`
}

// Parser parses selectors with an internal result cache. Safe for concurrent
// use.
type Parser struct {
	mu    sync.Mutex
	cache map[string]Component
}

// NewParser creates a Parser with an empty cache.
func NewParser() *Parser {
	return &Parser{cache: make(map[string]Component)}
}

// Parse returns the parsed component for sel, consulting the cache first.
func (p *Parser) Parse(sel string) Component {
	p.mu.Lock()
	if c, ok := p.cache[sel]; ok {
		p.mu.Unlock()
		return c
	}
	p.mu.Unlock()

	c := parse(sel)

	p.mu.Lock()
	p.cache[sel] = c
	p.mu.Unlock()
	return c
}

// CacheSize returns the number of cached parse results.
func (p *Parser) CacheSize() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.cache)
}

// ClearCache drops all cached parse results.
func (p *Parser) ClearCache() {
	p.mu.Lock()
	p.cache = make(map[string]Component)
	p.mu.Unlock()
}

// parse does the actual work. It scans left to right, switching on the
// marker characters # . [ — anything before the first marker is the tag.
func parse(sel string) Component {
	var c Component

	s := strings.TrimSpace(sel)
	if s == "" {
		return c
	}
	// Descendant combinators and grouping are out of scope. Quoted attribute
	// values may legitimately contain spaces and colons, so the check skips
	// quoted segments.
	if strings.ContainsAny(stripQuoted(s), " \t>,+~:") {
		return c
	}

	i := 0
	// Leading tag name.
	start := i
	for i < len(s) && s[i] != '#' && s[i] != '.' && s[i] != '[' {
		i++
	}
	tag := s[start:i]
	if tag != "" && !isIdent(tag) {
		return c
	}
	c.Tag = strings.ToLower(tag)

	for i < len(s) {
		switch s[i] {
		case '#':
			i++
			start = i
			for i < len(s) && s[i] != '#' && s[i] != '.' && s[i] != '[' {
				i++
			}
			id := s[start:i]
			if id == "" || c.ID != "" {
				return Component{} // empty id or second #id
			}
			c.ID = id
		case '.':
			i++
			start = i
			for i < len(s) && s[i] != '#' && s[i] != '.' && s[i] != '[' {
				i++
			}
			class := s[start:i]
			if class == "" {
				return Component{}
			}
			c.Classes = append(c.Classes, class)
		case '[':
			attr, next, ok := parseAttr(s, i)
			if !ok {
				return Component{}
			}
			c.Attrs = append(c.Attrs, attr)
			i = next
		default:
			return Component{}
		}
	}

	c.Valid = c.Tag != "" || c.ID != "" || len(c.Classes) > 0 || len(c.Attrs) > 0
	return c
}

// parseAttr parses one [attr] or [attr=value] clause starting at s[i]=='['.
// Returns the attr, the index after the closing bracket, and whether the
// clause was well-formed.
func parseAttr(s string, i int) (Attr, int, bool) {
	i++ // consume '['
	start := i
	for i < len(s) && s[i] != '=' && s[i] != ']' {
		i++
	}
	if i >= len(s) {
		return Attr{}, 0, false
	}
	key := strings.TrimSpace(s[start:i])
	if key == "" {
		return Attr{}, 0, false
	}

	// Bare [attr] — presence check, empty expected value.
	if s[i] == ']' {
		return Attr{Key: key}, i + 1, true
	}

	i++ // consume '='
	if i >= len(s) {
		return Attr{}, 0, false
	}

	var val strings.Builder
	if s[i] == '"' || s[i] == '\'' {
		quote := s[i]
		i++
		closed := false
		for i < len(s) {
			if s[i] == '\\' && i+1 < len(s) {
				val.WriteByte(s[i+1])
				i += 2
				continue
			}
			if s[i] == quote {
				closed = true
				i++
				break
			}
			val.WriteByte(s[i])
			i++
		}
		if !closed || i >= len(s) || s[i] != ']' {
			return Attr{}, 0, false
		}
		return Attr{Key: key, Value: val.String()}, i + 1, true
	}

	// Unquoted value, up to ']'.
	for i < len(s) && s[i] != ']' {
		val.WriteByte(s[i])
		i++
	}
	if i >= len(s) {
		return Attr{}, 0, false
	}
	return Attr{Key: key, Value: val.String()}, i + 1, true
}

// stripQuoted removes quoted segments (honouring backslash escapes) so
// structural checks only see the grammar outside attribute values.
func stripQuoted(s string) string {
	var b strings.Builder
	var quote byte
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if quote != 0 {
			if ch == '\\' {
				i++
				continue
			}
			if ch == quote {
				quote = 0
			}
			continue
		}
		if ch == '"' || ch == '\'' {
			quote = ch
			continue
		}
		b.WriteByte(ch)
	}
	return b.String()
}

// isIdent reports whether s is a plausible tag identifier. Custom element
// tags contain hyphens, so those are allowed.
func isIdent(s string) bool {
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z':
		case ch >= '0' && ch <= '9', ch == '-', ch == '_':
			if i == 0 && (ch >= '0' && ch <= '9') {
				return false
			}
		default:
			return false
		}
	}
	return true
}
