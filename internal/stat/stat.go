// Package stat wraps gonum's stat helpers for the variance- and
// median-based split/pivot policies used across the tree families (KD-Tree
// widest-spread-axis selection, VP-Tree's VPMV min-variance split and
// Sampling vantage-point selection, Ball Tree's Centroid pivot). Backed by
// gonum.org/v1/gonum/stat.
package stat

import (
	"math"
	"sort"

	gonumstat "gonum.org/v1/gonum/stat"
)

// Mean returns the arithmetic mean of xs, or 0 for an empty slice.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return gonumstat.Mean(xs, nil)
}

// Variance returns the population variance of xs (gonum's Variance is the
// sample variance with Bessel's correction; families here want the plain
// second moment, so we compute it directly via gonum's MeanVariance and
// rescale).
func Variance(xs []float64) float64 {
	n := len(xs)
	if n < 2 {
		return 0
	}
	mean, sampleVar := gonumstat.MeanVariance(xs, nil)
	_ = mean
	return sampleVar * float64(n-1) / float64(n)
}

// Median returns the median of xs. xs is copied and sorted internally; the
// caller's slice is left untouched.
func Median(xs []float64) float64 {
	n := len(xs)
	if n == 0 {
		return 0
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	mid := n / 2
	if n%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// WidestAxis returns the index of the coordinate axis with the greatest
// finite variance across points, and that variance — the split axis
// KD-Tree's Variance policy uses instead of a naive round-robin
// cycle. If no axis has a finite variance it returns axis 0 and NaN.
func WidestAxis(points [][]float64, dim int) (axis int, variance float64) {
	best := -1
	bestVar := -1.0
	column := make([]float64, len(points))
	for d := 0; d < dim; d++ {
		for i, p := range points {
			column[i] = p[d]
		}
		v := Variance(column)
		if !math.IsNaN(v) && !math.IsInf(v, 0) && v > bestVar {
			bestVar = v
			best = d
		}
	}
	if best < 0 {
		return 0, math.NaN()
	}
	return best, bestVar
}
