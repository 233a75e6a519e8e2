package pbo

import (
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

//////
// Helper functions.
//////

// Helper used by PI and EI to compute the cumulative distribution function
// of the standard normal distribution.
func normalCDF(x float64) float64 {
	return distuv.UnitNormal.CDF(x)
}

// Helper used by EI to compute the probability density function of the
// standard normal distribution.
func normalPDF(x float64) float64 {
	return distuv.UnitNormal.Prob(x)
}

// KendallTau returns the Kendall rank correlation between two value slices.
// It is the standard way to evaluate a preference model: predicted utilities
// are only meaningful on a relative scale, so rank agreement with the truth
// is what matters.
//
// Both slices must have the same length. The result lies in [-1, 1], where 1
// means identical ordering and -1 means fully reversed ordering.
func KendallTau(pred, truth []float64) float64 {
	return stat.Kendall(pred, truth, nil)
}

// UnitCubeBounds returns the search-space bounds of the dim-dimensional unit
// hypercube, one [0, 1] interval per coordinate.
func UnitCubeBounds(dim int) []Interval[float64] {
	bounds := make([]Interval[float64], dim)

	for i := range bounds {
		bounds[i] = Interval[float64]{Min: 0, Max: 1}
	}

	return bounds
}

// cloneVector returns an independent copy of x, preventing external
// modifications of stored points.
func cloneVector(x []float64) []float64 {
	out := make([]float64, len(x))
	copy(out, x)

	return out
}

// clonePoints deep-copies a batch of points.
func clonePoints(X [][]float64) [][]float64 {
	out := make([][]float64, len(X))
	for i, x := range X {
		out[i] = cloneVector(x)
	}

	return out
}

// uniformPoint draws one point uniformly from the given bounds.
func uniformPoint(rng *rand.Rand, bounds []Interval[float64]) []float64 {
	x := make([]float64, len(bounds))

	for i, b := range bounds {
		x[i] = b.Min + rng.Float64()*(b.Max-b.Min)
	}

	return x
}

// maxUtility returns the largest true utility among the given points.
// Oracle bookkeeping for the trial loop; never exposed to the model.
func maxUtility(X [][]float64) float64 {
	return floats.Max(Utilities(X))
}
