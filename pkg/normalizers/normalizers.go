// Package normalizers provides named string normalizers applied to record
// fields before they are compared.
package normalizers

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Normalizer is a function that normalizes a string value
type Normalizer func(string) string

// registry holds all registered normalizers
var registry = make(map[string]Normalizer)

func init() {
	Register("fold", Fold)
	Register("trim", Trim)
	Register("nfkc", NFKC)
	Register("collapse_whitespace", CollapseWhitespace)
	Register("remove_punctuation", RemovePunctuation)
	Register("nkey", Key)
	Register("ntext", Text)
}

// Register adds a normalizer to the registry. It is not safe to call
// concurrently with Apply and is meant for init-time registration.
func Register(name string, fn Normalizer) {
	registry[name] = fn
}

// Get retrieves a normalizer by name
func Get(name string) (Normalizer, bool) {
	fn, ok := registry[name]
	return fn, ok
}

// Apply applies a named normalizer to a value. Unknown names leave the value unchanged.
func Apply(value, normalizer string) string {
	fn, ok := registry[normalizer]
	if !ok {
		return value
	}
	return fn(value)
}

// ApplyChain applies multiple normalizers in sequence
func ApplyChain(value string, normalizers ...string) string {
	result := value
	for _, name := range normalizers {
		result = Apply(result, name)
	}
	return result
}

// Fold applies Unicode case folding.
func Fold(s string) string {
	return cases.Fold().String(s)
}

// Trim removes leading and trailing whitespace
func Trim(s string) string {
	return strings.TrimSpace(s)
}

// NFKC applies compatibility composition, turning full-width forms into
// their ASCII equivalents.
func NFKC(s string) string {
	return norm.NFKC.String(s)
}

// CollapseWhitespace replaces runs of whitespace with a single space and trims the ends.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// RemovePunctuation removes all punctuation characters
func RemovePunctuation(s string) string {
	var result strings.Builder
	for _, r := range s {
		if !unicode.IsPunct(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// Key is the exact-match key of a field: case folded and trimmed.
func Key(s string) string {
	return Trim(Fold(s))
}

// Text prepares free text for comparison: NFKC, folded, single spaced.
func Text(s string) string {
	return CollapseWhitespace(Fold(NFKC(s)))
}

// SplitList splits a delimited list such as "welding, rebar / scaffolding"
// into normalized, de-duplicated entries in their original order.
func SplitList(s string) []string {
	s = NFKC(s)
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ';' || r == '/' || r == '|' || r == '\n' || r == '、'
	})

	seen := make(map[string]bool, len(parts))
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = Text(p)
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}
