package sim

import (
	"math/rand"
	"sort"
)

// categoricalSampler draws indices from a fixed discrete distribution
// using inverse CDF via binary search.
type categoricalSampler struct {
	cdf []float64
}

// newCategoricalSampler builds a sampler over weights. Weights need not be normalized;
// zero weights are never drawn.
func newCategoricalSampler(weights []float64) *categoricalSampler {
	cdf := make([]float64, len(weights))
	total := 0.0
	for _, w := range weights {
		total += w
	}
	cumulative := 0.0
	for i, w := range weights {
		cumulative += w / total
		cdf[i] = cumulative
	}
	// Ensure last non-zero CDF entry is exactly 1.0
	for i := len(cdf) - 1; i >= 0; i-- {
		cdf[i] = 1.0
		if weights[i] > 0 {
			break
		}
	}
	return &categoricalSampler{cdf: cdf}
}

func (s *categoricalSampler) Sample(rng *rand.Rand) int {
	return drawFromCDF(s.cdf, rng.Float64())
}

// drawFromCDF returns the first index whose cumulative probability exceeds u.
func drawFromCDF(cdf []float64, u float64) int {
	idx := sort.Search(len(cdf), func(i int) bool { return cdf[i] > u })
	if idx >= len(cdf) {
		idx = len(cdf) - 1
	}
	return idx
}

// sampleRow draws a destination state from one row of a transition matrix.
func sampleRow(row []float64, rng *rand.Rand) int {
	u := rng.Float64()
	cumulative := 0.0
	for j, p := range row {
		cumulative += p
		if u < cumulative {
			return j
		}
	}
	// Rounding left u above the final cumulative sum; fall back to the last reachable state.
	for j := len(row) - 1; j >= 0; j-- {
		if row[j] > 0 {
			return j
		}
	}
	return len(row) - 1
}
