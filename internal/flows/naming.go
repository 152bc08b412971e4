package flows

import (
	"strconv"
	"strings"
	"unicode"

	"weft/internal/modules"
)

// GenericEntity is the fallback bucket when no entity noun can be
// resolved for a module.
const GenericEntity = "_generic"

// genericTerms are description words too vague to name an entity.
var genericTerms = map[string]bool{
	"module": true, "service": true, "services": true, "helper": true,
	"helpers": true, "config": true, "configuration": true, "util": true,
	"utils": true, "utilities": true, "common": true, "shared": true,
	"core": true, "lib": true, "library": true, "internal": true,
	"package": true, "component": true, "components": true, "tool": true,
	"tools": true, "manager": true, "managers": true, "base": true,
	"misc": true, "data": true, "code": true, "file": true, "files": true,
	"layer": true, "logic": true, "system": true, "handler": true,
	"handlers": true, "this": true, "that": true, "the": true, "a": true,
	"an": true, "and": true, "or": true, "for": true, "of": true,
	"with": true, "provides": true, "contains": true, "implements": true,
	"defines": true, "handles": true, "manages": true, "all": true,
}

// EntityFor resolves the entity noun a module is about, in priority
// order: the classifier-assigned override, then the first non-generic
// word of the description, then the generic bucket.
func EntityFor(m *modules.Module) string {
	if m == nil {
		return GenericEntity
	}
	if m.Entity != "" {
		return strings.ToLower(m.Entity)
	}
	if noun := firstEntityNoun(m.Description); noun != "" {
		return noun
	}
	return GenericEntity
}

// firstEntityNoun extracts the first description word that is not on
// the generic stop list. Words are lowercased and stripped of
// punctuation; purely numeric tokens are skipped.
func firstEntityNoun(description string) string {
	for _, raw := range strings.Fields(description) {
		word := strings.ToLower(strings.TrimFunc(raw, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		}))
		if word == "" || genericTerms[word] {
			continue
		}
		if strings.IndexFunc(word, unicode.IsLetter) < 0 {
			continue
		}
		return word
	}
	return ""
}

// Slugify converts a display name into a slug: lowercase, hyphens for
// runs of non-alphanumerics, no leading or trailing hyphen.
func Slugify(name string) string {
	var b strings.Builder
	lastHyphen := true // suppress a leading hyphen
	for _, r := range strings.ToLower(name) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// HumanizeSymbol renders a definition name as words: "CreateOrder" and
// "create_order" both become "Create order".
func HumanizeSymbol(name string) string {
	// Strip a trailing method receiver or call syntax if present.
	name = strings.TrimSuffix(name, "()")

	var words []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			words = append(words, cur.String())
			cur.Reset()
		}
	}
	runes := []rune(name)
	for i, r := range runes {
		switch {
		case r == '_' || r == '-' || r == '.' || r == ' ':
			flush()
		case unicode.IsUpper(r):
			// Break before an upper rune unless it continues an
			// acronym run (HTTPServer -> HTTP Server).
			if i > 0 && (unicode.IsLower(runes[i-1]) ||
				(i+1 < len(runes) && unicode.IsLower(runes[i+1]) && unicode.IsUpper(runes[i-1]))) {
				flush()
			}
			cur.WriteRune(unicode.ToLower(r))
		default:
			cur.WriteRune(r)
		}
	}
	flush()

	if len(words) == 0 {
		return name
	}
	first := []rune(words[0])
	first[0] = unicode.ToUpper(first[0])
	words[0] = string(first)
	return strings.Join(words, " ")
}

// GapFlowName names the synthesized flow covering a module's leftover
// interactions.
func GapFlowName(m *modules.Module) string {
	entity := EntityFor(m)
	if entity == GenericEntity {
		entity = modules.LastSegment(m.Path)
	}
	return "Internal: " + entity + " operations"
}

// GapFlowSlug derives the deterministic slug for a module's gap flow
// from the last path segment.
func GapFlowSlug(m *modules.Module) string {
	return "internal-" + Slugify(modules.LastSegment(m.Path))
}

// UniqueSlug appends a numeric suffix until the slug is unused,
// recording the result in taken.
func UniqueSlug(base string, taken map[string]bool) string {
	slug := base
	for n := 2; taken[slug]; n++ {
		slug = base + "-" + strconv.Itoa(n)
	}
	taken[slug] = true
	return slug
}
