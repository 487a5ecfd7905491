package rag

import "math"

// Score maps result distances to a confidence in [0, 1], rounded to two
// decimals: 1 - mean distance, clamped. No distances means no confidence.
// Cosine distance 0 (identical) scores 1; orthogonal or opposite vectors score 0.
func Score(distances []float64) float64 {
	if len(distances) == 0 {
		return 0
	}
	var sum float64
	for _, d := range distances {
		sum += d
	}
	c := 1 - sum/float64(len(distances))
	if math.IsNaN(c) {
		return 0
	}
	c = math.Max(0, math.Min(1, c))
	return math.Round(c*100) / 100
}
