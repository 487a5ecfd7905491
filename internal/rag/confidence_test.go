package rag

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScore(t *testing.T) {
	for _, tc := range []struct {
		name      string
		distances []float64
		want      float64
	}{
		{"empty", nil, 0},
		{"identical", []float64{0, 0, 0}, 1},
		{"mixed", []float64{0.2, 0.3, 0.4}, 0.7},
		{"rounded", []float64{0.123, 0.456}, 0.71},
		{"orthogonal", []float64{1, 1}, 0},
		{"opposite clamps", []float64{1.8, 2}, 0},
	} {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Score(tc.distances))
		})
	}
}

func TestScoreIsMonotonicAndBounded(t *testing.T) {
	prev := 1.0
	for i := 0; i <= 200; i++ {
		d := float64(i) / 100
		s := Score([]float64{d, d})
		assert.GreaterOrEqual(t, s, 0.0)
		assert.LessOrEqual(t, s, 1.0)
		assert.LessOrEqual(t, s, prev, "distance %.2f", d)
		prev = s
	}
}
