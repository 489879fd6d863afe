package matching

import "math"

// NumericProximity calculates a proximity score for two numbers.
// Returns 1.0 for an exact match, decreasing linearly to 0 at maxDiff.
func NumericProximity(a, b, maxDiff float64) float64 {
	if a == b {
		return 1.0
	}
	if maxDiff <= 0 {
		return 0.0
	}

	diff := math.Abs(a - b)
	if diff >= maxDiff {
		return 0.0
	}

	return 1.0 - (diff / maxDiff)
}
