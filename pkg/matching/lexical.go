// Package matching provides the deterministic string comparison primitives
// used by the similarity, duplicate and recommendation engines.
package matching

import (
	"unicode"

	"golang.org/x/text/cases"
)

// fold case-folds s. A Caser keeps state, so one is built per call.
func fold(s string) string {
	return cases.Fold().String(s)
}

// LexicalSimilarity returns a case-insensitive similarity in [0, 1] derived from
// the Levenshtein distance: 1 - distance / max(len(a), len(b)).
// Two empty strings are identical. One empty string scores 0.
func LexicalSimilarity(a, b string) float64 {
	ra := []rune(fold(a))
	rb := []rune(fold(b))

	if len(ra) == 0 && len(rb) == 0 {
		return 1.0
	}
	if len(ra) == 0 || len(rb) == 0 {
		return 0.0
	}

	d := levenshtein(ra, rb)
	return 1.0 - float64(d)/float64(max(len(ra), len(rb)))
}

// LevenshteinDistance returns the case-folded edit distance between a and b.
func LevenshteinDistance(a, b string) int {
	return levenshtein([]rune(fold(a)), []rune(fold(b)))
}

// levenshtein fills a (len(b)+1) x (len(a)+1) matrix with unit costs
// for insertion, deletion and substitution.
func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	matrix := make([][]int, len(b)+1)
	for i := range matrix {
		matrix[i] = make([]int, len(a)+1)
		matrix[i][0] = i
	}
	for j := 0; j <= len(a); j++ {
		matrix[0][j] = j
	}

	for i := 1; i <= len(b); i++ {
		for j := 1; j <= len(a); j++ {
			cost := 1
			if b[i-1] == a[j-1] {
				cost = 0
			}
			matrix[i][j] = min(
				matrix[i-1][j]+1,
				matrix[i][j-1]+1,
				matrix[i-1][j-1]+cost,
			)
		}
	}

	return matrix[len(b)][len(a)]
}

// HasNonLatinLetters reports whether s contains a letter outside the Latin script.
func HasNonLatinLetters(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) && !unicode.Is(unicode.Latin, r) {
			return true
		}
	}
	return false
}

// MixedScript reports whether exactly one of a and b contains non-Latin letters.
// Edit distance between strings of different scripts carries no signal.
func MixedScript(a, b string) bool {
	return HasNonLatinLetters(a) != HasNonLatinLetters(b)
}
