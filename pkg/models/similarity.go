package models

import "math"

// Source says where a similarity score came from.
type Source string

const (
	SourceLexical  Source = "lexical"
	SourceOracle   Source = "oracle"
	SourceFallback Source = "fallback"
)

// SimilarityScore is a 0-100 similarity judgment with its explanation.
// Fallback scores always carry a value of 0.
type SimilarityScore struct {
	Value       float64 `json:"value"`
	Explanation string  `json:"explanation"`
	Source      Source  `json:"source"`
}

// NewFallbackScore builds a zero-valued score explaining why no judgment was made.
func NewFallbackScore(reason string) SimilarityScore {
	return SimilarityScore{Value: 0, Explanation: reason, Source: SourceFallback}
}

// ClampScore keeps v inside [0, 100].
func ClampScore(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return min(max(v, 0), 100)
}

// AnnotatedRecord pairs a record with its similarity to a query.
type AnnotatedRecord struct {
	Record     Record          `json:"record"`
	Similarity SimilarityScore `json:"similarity"`
}
