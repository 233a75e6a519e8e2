package pbo

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
)

//////
// Const, vars, types.
//////

var (
	// ErrInsufficientPairs is returned when more non-replaced comparisons
	// are requested than distinct unordered pairs exist.
	ErrInsufficientPairs = errors.New("pbo: not enough distinct pairs")

	// ErrDimensionMismatch is returned when points of different
	// dimensionality are mixed.
	ErrDimensionMismatch = errors.New("pbo: dimension mismatch")
)

//////
// Exported functionalities.
//////

// Utility is the ground-truth latent function of the synthetic benchmark:
// the dimension-weighted sum of the input vector, where dimension i (1-based)
// carries weight √i.
//
//	f(x) = Σ_{i=1..d} √i · x_i
//
// Pure and deterministic. Monotonically increasing in every coordinate, with
// a different weight per dimension, which are properties many real-world
// utility functions possess. The optimization process never observes it; it
// exists to generate comparisons and to score results.
func Utility(x []float64) float64 {
	var y float64

	for i, v := range x {
		y += math.Sqrt(float64(i+1)) * v
	}

	return y
}

// Utilities applies Utility to a batch of points, returning one scalar per
// point.
func Utilities(X [][]float64) []float64 {
	y := make([]float64, len(X))

	for i, x := range X {
		y[i] = Utility(x)
	}

	return y
}

// OptimalValue returns the global maximum of Utility over the dim-dimensional
// unit cube, attained at the all-ones point: Σ_{i=1..dim} √i.
func OptimalValue(dim int) float64 {
	ones := make([]float64, dim)
	for i := range ones {
		ones[i] = 1
	}

	return Utility(ones)
}

// GenerateData draws n independent points uniformly from the dim-dimensional
// unit cube and returns them together with their true utility values.
//
// All randomness comes from the provided generator; no ambient state is
// consumed or persisted.
func GenerateData(rng *rand.Rand, n, dim int) ([][]float64, []float64) {
	X := make([][]float64, n)

	for i := range X {
		x := make([]float64, dim)
		for j := range x {
			x[j] = rng.Float64()
		}

		X[i] = x
	}

	return X, Utilities(X)
}

// GenerateComparisons creates nComp noisy pairwise comparisons over the
// latent values y. It enumerates all C(n,2) unordered index pairs, draws
// nComp of them uniformly at random (with or without replacement), adds
// independent zero-mean Gaussian noise of the given standard deviation to
// both endpoints' latent values, and orders each pair winner-first by the
// noisy values.
//
// Parameters:
// - rng: Random generator for pair selection and noise
// - y: Latent values, one per point
// - nComp: Number of comparisons to draw
// - noise: Standard deviation of the per-endpoint Gaussian noise
// - replace: Whether pairs may be drawn more than once
//
// Returns:
// - []Comparison: nComp winner/loser index pairs into y
// - error: ErrInsufficientPairs when nComp exceeds C(n,2) without
//   replacement, or when nComp is negative
//
// The failure is explicit rather than silently truncating the request.
func GenerateComparisons(rng *rand.Rand, y []float64, nComp int, noise float64, replace bool) ([]Comparison, error) {
	if nComp < 0 {
		return nil, fmt.Errorf("%w: requested %d comparisons", ErrInsufficientPairs, nComp)
	}

	pairs := allPairs(len(y))

	if nComp > 0 && len(pairs) == 0 {
		return nil, fmt.Errorf(
			"%w: requested %d comparisons among %d points",
			ErrInsufficientPairs, nComp, len(y),
		)
	}

	if !replace && nComp > len(pairs) {
		return nil, fmt.Errorf(
			"%w: requested %d comparisons without replacement from %d distinct pairs",
			ErrInsufficientPairs, nComp, len(pairs),
		)
	}

	// Select nComp pairs uniformly at random.
	chosen := make([][2]int, nComp)

	if replace {
		for i := range chosen {
			chosen[i] = pairs[rng.Intn(len(pairs))]
		}
	} else {
		for i, k := range rng.Perm(len(pairs))[:nComp] {
			chosen[i] = pairs[k]
		}
	}

	// Perturb both endpoints independently and order winner-first.
	comps := make([]Comparison, nComp)

	for i, p := range chosen {
		a := y[p[0]] + rng.NormFloat64()*noise
		b := y[p[1]] + rng.NormFloat64()*noise

		if a >= b {
			comps[i] = Comparison{Winner: p[0], Loser: p[1]}
		} else {
			comps[i] = Comparison{Winner: p[1], Loser: p[0]}
		}
	}

	return comps, nil
}

// MakeNewData folds a batch of newly proposed points into an existing
// dataset. It computes the true utility of the new points (test-harness
// oracle only, never visible to the model), draws qComp fresh comparisons
// among just the new points, offsets those comparison indices by the
// existing dataset size, and returns the concatenated points and
// comparisons.
//
// Guarantees:
// - The returned point count equals len(X) + len(nextX)
// - All comparison indices remain valid after concatenation
// - Inputs are not mutated; new points are deep-copied into the result
func MakeNewData(
	rng *rand.Rand,
	X [][]float64,
	nextX [][]float64,
	comps []Comparison,
	qComp int,
	noise float64,
) ([][]float64, []Comparison, error) {
	if len(X) > 0 && len(nextX) > 0 && len(X[0]) != len(nextX[0]) {
		return nil, nil, fmt.Errorf(
			"%w: dataset dim %d, new points dim %d",
			ErrDimensionMismatch, len(X[0]), len(nextX[0]),
		)
	}

	nextComps, err := GenerateComparisons(rng, Utilities(nextX), qComp, noise, false)
	if err != nil {
		return nil, nil, err
	}

	offset := len(X)

	mergedComps := make([]Comparison, 0, len(comps)+len(nextComps))
	mergedComps = append(mergedComps, comps...)

	for _, c := range nextComps {
		mergedComps = append(mergedComps, Comparison{
			Winner: c.Winner + offset,
			Loser:  c.Loser + offset,
		})
	}

	mergedX := make([][]float64, 0, len(X)+len(nextX))
	mergedX = append(mergedX, X...)

	for _, x := range nextX {
		mergedX = append(mergedX, cloneVector(x))
	}

	return mergedX, mergedComps, nil
}

//////
// Helpers.
//////

// allPairs enumerates all C(n,2) unordered index pairs over n points.
func allPairs(n int) [][2]int {
	if n < 2 {
		return nil
	}

	pairs := make([][2]int, 0, n*(n-1)/2)

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			pairs = append(pairs, [2]int{i, j})
		}
	}

	return pairs
}
