package score

import (
	"strings"

	"github.com/hazyhaar/domtarget/element"
)

// Element categories used to match query intent against element kind.
const (
	catInput   = "input"
	catButton  = "button"
	catLink    = "link"
	catSelect  = "select"
	catToggle  = "toggle"
	catImage   = "image"
	catCustom  = "custom"
	catGeneric = "generic"
)

// kindWords maps query vocabulary to the element category it implies.
var kindWords = map[string]string{
	"box": catInput, "field": catInput, "input": catInput,
	"textbox": catInput, "bar": catInput, "area": catInput,
	"button": catButton, "btn": catButton,
	"link": catLink, "anchor": catLink,
	"dropdown": catSelect, "select": catSelect, "option": catSelect,
	"checkbox": catToggle, "radio": catToggle, "toggle": catToggle,
	"switch": catToggle,
	"image":  catImage, "img": catImage, "picture": catImage,
	"icon": catImage, "logo": catImage,
}

// typingVerbs imply the target accepts text; clickingVerbs imply any
// natively interactive target.
var typingVerbs = map[string]bool{"type": true, "enter": true, "fill": true, "write": true, "paste": true}
var clickingVerbs = map[string]bool{"click": true, "press": true, "tap": true, "select": true, "choose": true, "toggle": true, "check": true}

// frameworkClassPrefixes mark framework-generated components (MUI, Ant,
// Chakra, Vuetify, styled-components hashes). Elements carrying them are
// classified as custom components instead of generic containers.
var frameworkClassPrefixes = []string{
	"mui", "ant-", "chakra-", "v-btn", "v-input", "mat-", "el-",
	"css-", "sc-", "jsx-",
}

// KindScorer scores tag/role/input-type semantics and interactivity against
// the query's intent.
type KindScorer struct {
	interactivity map[string]float64 // tag → native interactivity
}

// NewKindScorer builds the scorer's immutable tag tables.
func NewKindScorer() *KindScorer {
	return &KindScorer{
		interactivity: map[string]float64{
			"button":   1.0,
			"a":        0.95,
			"input":    0.95,
			"select":   0.9,
			"textarea": 0.9,
			"option":   0.7,
			"label":    0.6,
			"summary":  0.6,
			"img":      0.4,
			"div":      0.3,
			"span":     0.3,
			"section":  0.2,
			"p":        0.2,
		},
	}
}

// Score compares the query's implied element kind with the element's
// category and interactivity. Queries with no kind signal score on
// interactivity alone, centred on neutral.
func (s *KindScorer) Score(sem element.Semantics, query string) float64 {
	role := sem.InferredRole
	if role == "" {
		role = InferRole(sem)
	}
	cat := categoryOf(role)
	inter := s.interactivityOf(sem, cat)

	qTokens := tokenize(normalizeText(query))
	wanted := wantedCategories(qTokens)

	if len(wanted) == 0 {
		return clamp01(0.3 + 0.4*inter)
	}

	match := 0.2 // kind requested but element is something else
	for w := range wanted {
		if d := categoryAffinity(w, cat); d > match {
			match = d
		}
	}

	// Content tokens echoing the role ("search" vs "search_input") confirm
	// the classification.
	if match >= 0.8 {
		for _, qt := range qTokens {
			if qt != "" && strings.Contains(role, qt) && !fillerTokens[qt] {
				match = 1.0
				break
			}
		}
	}

	return clamp01(0.7*match + 0.3*inter)
}

// wantedCategories collects the element categories a query implies, from
// kind nouns and action verbs.
func wantedCategories(qTokens []string) map[string]bool {
	wanted := make(map[string]bool)
	for _, t := range qTokens {
		if cat, ok := kindWords[t]; ok {
			wanted[cat] = true
		}
		if typingVerbs[t] {
			wanted[catInput] = true
		}
		if clickingVerbs[t] {
			wanted["interactive"] = true
		}
	}
	return wanted
}

// categoryAffinity maps a wanted category against the element's category.
func categoryAffinity(wanted, cat string) float64 {
	if wanted == cat {
		return 1.0
	}
	if wanted == "interactive" {
		switch cat {
		case catButton, catLink, catInput, catSelect, catToggle:
			return 0.9
		case catCustom:
			return 0.6
		default:
			return 0.2
		}
	}
	// Related pairs: form controls blur into one another in queries.
	related := map[[2]string]float64{
		{catInput, catSelect}:  0.7,
		{catSelect, catInput}:  0.7,
		{catInput, catToggle}:  0.6,
		{catToggle, catInput}:  0.6,
		{catButton, catLink}:   0.7,
		{catLink, catButton}:   0.7,
		{catButton, catCustom}: 0.5,
		{catInput, catCustom}:  0.5,
	}
	if v, ok := related[[2]string{wanted, cat}]; ok {
		return v
	}
	return 0.2
}

func (s *KindScorer) interactivityOf(sem element.Semantics, cat string) float64 {
	if v, ok := s.interactivity[strings.ToLower(sem.Tag)]; ok {
		return v
	}
	if cat == catCustom {
		return 0.6 // framework components are usually interactive
	}
	return 0.3
}

// InferRole derives a normalized semantic role ("search_input",
// "submit_button") from tag, input type, and text. Custom components
// (hyphenated tags, framework class patterns) fall back to
// "custom_component" rather than failing closed.
func InferRole(sem element.Semantics) string {
	tag := strings.ToLower(sem.Tag)
	typ := strings.ToLower(sem.Type)
	text := normalizeText(sem.Text + " " + sem.AriaLabel + " " + sem.Placeholder + " " + sem.Name)

	switch tag {
	case "input":
		switch typ {
		case "search":
			return "search_input"
		case "email":
			return "email_input"
		case "password":
			return "password_input"
		case "tel":
			return "phone_input"
		case "number":
			return "number_input"
		case "checkbox":
			return "checkbox"
		case "radio":
			return "radio_button"
		case "file":
			return "file_input"
		case "submit":
			return "submit_button"
		case "button":
			return "button"
		case "hidden":
			return "hidden_input"
		}
		switch {
		case strings.Contains(text, "search"), strings.Contains(text, "find"):
			return "search_input"
		case strings.Contains(text, "email"), strings.Contains(text, "mail"):
			return "email_input"
		case strings.Contains(text, "password"):
			return "password_input"
		case strings.Contains(text, "user"), strings.Contains(text, "login"):
			return "username_input"
		}
		return "text_input"
	case "textarea":
		return "text_area"
	case "button":
		switch {
		case typ == "submit", strings.Contains(text, "submit"),
			strings.Contains(text, "send"), strings.Contains(text, "save"):
			return "submit_button"
		case strings.Contains(text, "search"):
			return "search_button"
		case strings.Contains(text, "login"), strings.Contains(text, "signin"):
			return "login_button"
		case strings.Contains(text, "cancel"), strings.Contains(text, "close"):
			return "cancel_button"
		}
		return "button"
	case "a":
		return "link"
	case "select":
		return "dropdown"
	case "img":
		return "image"
	case "form":
		return "form"
	case "label":
		return "label"
	case "nav":
		return "navigation"
	}

	if strings.Contains(tag, "-") {
		return "custom_component"
	}
	for _, cl := range sem.Classes {
		lc := strings.ToLower(cl)
		for _, prefix := range frameworkClassPrefixes {
			if strings.HasPrefix(lc, prefix) {
				return "custom_component"
			}
		}
	}
	return "generic"
}

// categoryOf buckets a role for intent matching.
func categoryOf(role string) string {
	switch {
	case role == "checkbox", role == "radio_button":
		return catToggle
	case strings.HasSuffix(role, "_input"), role == "text_area":
		return catInput
	case strings.HasSuffix(role, "button"):
		return catButton
	case role == "link":
		return catLink
	case role == "dropdown":
		return catSelect
	case role == "image":
		return catImage
	case role == "custom_component":
		return catCustom
	}
	return catGeneric
}
