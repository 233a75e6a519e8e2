package pbo

import (
	"fmt"
	"math"
	"math/rand"
)

//////
// Available acquisition functions for preference-based Bayesian optimization.
// Each function helps decide which points to query next by balancing
// exploration (trying uncertain areas) and exploitation (focusing on areas
// believed to have high utility). Utility is maximized, so higher
// acquisition values mark more promising points.
//////

// UCB implements the Upper Confidence Bound acquisition function.
//
// How it works:
// - Combines the predicted mean utility with the uncertainty (variance)
// - Higher values are better (we're maximizing latent utility)
// - The Beta parameter controls the trade-off between exploration and
//   exploitation
//
// When to use:
// - General purpose, works well in most cases
// - When you want direct control over exploration-exploitation trade-off
//
// Example:
//
//	params := AcquisitionParams{
//	    Beta: 2.0,  // Balance between exploration and exploitation
//	}
//	value := UCB(0.5, 0.2, params)
func UCB(mean, variance float64, params AcquisitionParams) float64 {
	return mean + params.Beta*math.Sqrt(variance)
}

// ProbabilityOfImprovement (PI) calculates the probability that a point
// beats the incumbent value by at least Xi.
//
// How it works:
// - Estimates the probability of exceeding the best posterior mean seen
// - Uses a normal distribution assumption
// - Xi adds a minimum improvement requirement
//
// When to use:
// - When you want to be conservative in exploring new points
// - When being "probably better" matters more than "how much better".
func ProbabilityOfImprovement(mean, variance float64, params AcquisitionParams) float64 {
	if variance <= 0 {
		if mean-params.BestSoFar-params.Xi > 0 {
			return 1
		}

		return 0
	}

	z := (mean - params.BestSoFar - params.Xi) / math.Sqrt(variance)

	return normalCDF(z)
}

// ExpectedImprovement (EI) calculates the expected magnitude of improvement
// over the incumbent value.
//
// How it works:
// - Combines the probability of improvement with its expected size
// - Often provides better exploration than PI
//
// When to use:
// - Most commonly used pointwise acquisition function
// - When the magnitude of improvement matters.
func ExpectedImprovement(mean, variance float64, params AcquisitionParams) float64 {
	improvement := mean - params.BestSoFar - params.Xi

	if variance <= 0 {
		return math.Max(improvement, 0)
	}

	sigma := math.Sqrt(variance)
	z := improvement / sigma

	return improvement*normalCDF(z) + sigma*normalPDF(z)
}

// ThompsonSampling implements Thompson Sampling acquisition by drawing a
// random sample from the posterior at the point.
//
// How it works:
// - Takes a random draw from our belief about the latent utility
// - Naturally balances exploration and exploitation
//
// Warning:
// - Always initialize params.RandomState before using this function
// - Don't share RandomState between concurrent optimization runs.
func ThompsonSampling(mean, variance float64, params AcquisitionParams) float64 {
	return mean + math.Sqrt(variance)*params.RandomState.NormFloat64()
}

// NoisyExpectedImprovement estimates the batch acquisition value of a
// candidate batch by Monte Carlo: the expected improvement of the batch's
// best posterior draw over the incumbent baseline value,
//
//	E[ max( max_i f(x_i) − best, 0 ) ]
//
// with f drawn from the surrogate's posterior (independently per point) and
// best the largest posterior mean among already-observed points. This is the
// comparison-friendly analogue of noisy expected improvement: the incumbent
// is itself a model estimate, never an observed utility.
//
// mcSamples controls the estimate's noise; all randomness comes from rng.
func NoisyExpectedImprovement(
	model Surrogate,
	batch [][]float64,
	best float64,
	mcSamples int,
	rng *rand.Rand,
) float64 {
	if len(batch) == 0 || mcSamples <= 0 {
		return 0
	}

	means := make([]float64, len(batch))
	sds := make([]float64, len(batch))

	for i, x := range batch {
		mean, variance := model.Predict(x)

		means[i] = mean
		sds[i] = math.Sqrt(variance)
	}

	var total float64

	for s := 0; s < mcSamples; s++ {
		batchBest := math.Inf(-1)

		for i := range batch {
			if draw := means[i] + sds[i]*rng.NormFloat64(); draw > batchBest {
				batchBest = draw
			}
		}

		if improvement := batchBest - best; improvement > 0 {
			total += improvement
		}
	}

	return total / float64(mcSamples)
}

// OptimizeAcquisition selects a batch of q points maximizing the Monte Carlo
// noisy expected improvement, given the current surrogate, the existing
// dataset as baseline, and the search-space bounds.
//
// How it works:
//  1. The incumbent is the largest posterior mean over the baseline points
//  2. The batch is built greedily: for each of the q slots, rawSamples
//     uniform random candidates are scored jointly with the already-selected
//     batch members, and the best one is kept
//  3. The whole construction is restarted numRestarts times; the batch with
//     the highest acquisition value wins
//
// Returns:
// - [][]float64: The selected batch of q points
// - float64: The acquisition value of the selected batch
// - error: Invalid-argument failure on a non-positive batch size, empty
//   bounds, or non-positive search budgets
func OptimizeAcquisition(
	model Surrogate,
	baseline [][]float64,
	bounds []Interval[float64],
	q int,
	numRestarts int,
	rawSamples int,
	mcSamples int,
	rng *rand.Rand,
) ([][]float64, float64, error) {
	if q <= 0 || len(bounds) == 0 || numRestarts <= 0 || rawSamples <= 0 || mcSamples <= 0 {
		return nil, 0, fmt.Errorf(
			"pbo: invalid acquisition budget (q=%d, bounds=%d, restarts=%d, rawSamples=%d, mcSamples=%d)",
			q, len(bounds), numRestarts, rawSamples, mcSamples,
		)
	}

	// Incumbent: best model estimate among observed points.
	best := math.Inf(-1)

	for _, x := range baseline {
		if mean, _ := model.Predict(x); mean > best {
			best = mean
		}
	}

	if len(baseline) == 0 {
		best = 0
	}

	var (
		bestBatch [][]float64
		bestValue = math.Inf(-1)
	)

	for restart := 0; restart < numRestarts; restart++ {
		batch := make([][]float64, 0, q)

		var batchValue float64

		for slot := 0; slot < q; slot++ {
			var (
				slotBest  []float64
				slotValue = math.Inf(-1)
			)

			for c := 0; c < rawSamples; c++ {
				candidate := uniformPoint(rng, bounds)

				value := NoisyExpectedImprovement(
					model,
					append(batch, candidate),
					best,
					mcSamples,
					rng,
				)

				if value > slotValue {
					slotValue = value
					slotBest = candidate
				}
			}

			batch = append(batch, slotBest)
			batchValue = slotValue
		}

		if batchValue > bestValue {
			bestValue = batchValue
			bestBatch = batch
		}
	}

	return bestBatch, bestValue, nil
}

//////
// Proposal strategies.
//////

// AcquisitionProposal returns a ProposalFunc that selects batches via
// OptimizeAcquisition with the given budgets.
func AcquisitionProposal(numRestarts, rawSamples, mcSamples int) ProposalFunc {
	return func(
		model Surrogate,
		baseline [][]float64,
		bounds []Interval[float64],
		q int,
		rng *rand.Rand,
	) ([][]float64, float64, error) {
		return OptimizeAcquisition(model, baseline, bounds, q, numRestarts, rawSamples, mcSamples, rng)
	}
}

// PointwiseProposal returns a ProposalFunc that scores rawSamples uniform
// candidates with a pointwise acquisition function and keeps the top q.
// Cheaper than the batch criterion, at the cost of ignoring interactions
// within the batch. BestSoFar in params is refreshed from the baseline's
// best posterior mean before scoring.
func PointwiseProposal(acq AcquisitionFunc, params AcquisitionParams, rawSamples int) ProposalFunc {
	return func(
		model Surrogate,
		baseline [][]float64,
		bounds []Interval[float64],
		q int,
		rng *rand.Rand,
	) ([][]float64, float64, error) {
		if q <= 0 || len(bounds) == 0 || rawSamples < q {
			return nil, 0, fmt.Errorf(
				"pbo: invalid proposal budget (q=%d, bounds=%d, rawSamples=%d)",
				q, len(bounds), rawSamples,
			)
		}

		best := math.Inf(-1)

		for _, x := range baseline {
			if mean, _ := model.Predict(x); mean > best {
				best = mean
			}
		}

		if len(baseline) == 0 {
			best = 0
		}

		params.BestSoFar = best

		type scored struct {
			x     []float64
			value float64
		}

		candidates := make([]scored, rawSamples)

		for i := range candidates {
			x := uniformPoint(rng, bounds)
			mean, variance := model.Predict(x)

			candidates[i] = scored{x: x, value: acq(mean, variance, params)}
		}

		// Selection sort the top q; rawSamples is small.
		batch := make([][]float64, 0, q)

		var batchValue float64

		for slot := 0; slot < q; slot++ {
			top := slot

			for i := slot + 1; i < len(candidates); i++ {
				if candidates[i].value > candidates[top].value {
					top = i
				}
			}

			candidates[slot], candidates[top] = candidates[top], candidates[slot]
			batch = append(batch, candidates[slot].x)
			batchValue = candidates[slot].value
		}

		return batch, batchValue, nil
	}
}

// RandomProposal returns the model-free baseline strategy: q points drawn
// uniformly from the bounds, no acquisition involved.
func RandomProposal() ProposalFunc {
	return func(
		_ Surrogate,
		_ [][]float64,
		bounds []Interval[float64],
		q int,
		rng *rand.Rand,
	) ([][]float64, float64, error) {
		if q <= 0 || len(bounds) == 0 {
			return nil, 0, fmt.Errorf("pbo: invalid proposal budget (q=%d, bounds=%d)", q, len(bounds))
		}

		batch := make([][]float64, q)
		for i := range batch {
			batch[i] = uniformPoint(rng, bounds)
		}

		return batch, 0, nil
	}
}
