package matching

import "strings"

// DomainMismatchPenalty scales the similarity of identifiers whose domains differ.
const DomainMismatchPenalty = 0.3

// SplitIdentifier splits a "local@domain" identifier. ok is false unless the
// value has exactly one "@" with text on both sides.
func SplitIdentifier(s string) (local, domain string, ok bool) {
	parts := strings.Split(s, "@")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// IdentifierSimilarity compares two "local@domain" identifiers in [0, 1].
// Identical values score 1. Values in different domains are penalized heavily;
// values in the same domain are compared on their local parts. Values that
// are not identifier shaped score 0.
func IdentifierSimilarity(a, b string) float64 {
	if a == b {
		return 1.0
	}

	localA, domainA, okA := SplitIdentifier(a)
	localB, domainB, okB := SplitIdentifier(b)
	if !okA || !okB {
		return 0.0
	}

	if fold(domainA) != fold(domainB) {
		return LexicalSimilarity(a, b) * DomainMismatchPenalty
	}

	return LexicalSimilarity(localA, localB)
}
