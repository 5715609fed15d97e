package selector

import (
	"strings"

	"github.com/hazyhaar/domtarget/element"
)

// Matches reports whether an element satisfies every criterion of a parsed
// component (AND semantics): case-insensitive tag equality, exact id, every
// requested class present, every requested attribute present with equal
// value. An invalid component matches nothing.
func Matches(sem element.Semantics, c Component) bool {
	if !c.Valid {
		return false
	}

	if c.Tag != "" && !strings.EqualFold(sem.Tag, c.Tag) {
		return false
	}
	if c.ID != "" && sem.ID != c.ID {
		return false
	}
	for _, class := range c.Classes {
		if !hasClass(sem, class) {
			return false
		}
	}
	for _, attr := range c.Attrs {
		if !attrMatches(sem, attr) {
			return false
		}
	}
	return true
}

func hasClass(sem element.Semantics, class string) bool {
	for _, cl := range sem.Classes {
		if cl == class {
			return true
		}
	}
	return false
}

// attrMatches resolves an attribute requirement against the semantic
// snapshot's fields. The snapshot is not a full attribute map, so only the
// attributes a scanner captures are addressable; anything else fails the
// match rather than silently passing.
func attrMatches(sem element.Semantics, attr Attr) bool {
	var got string
	switch strings.ToLower(attr.Key) {
	case "id":
		got = sem.ID
	case "type":
		got = sem.Type
	case "name":
		got = sem.Name
	case "placeholder":
		got = sem.Placeholder
	case "title":
		got = sem.Title
	case "aria-label":
		got = sem.AriaLabel
	case "value":
		got = sem.Value
	case "class":
		if attr.Value == "" {
			return len(sem.Classes) > 0
		}
		return hasClass(sem, attr.Value)
	default:
		return false
	}

	if attr.Value == "" {
		return got != "" // bare [attr]: presence check
	}
	return got == attr.Value
}
