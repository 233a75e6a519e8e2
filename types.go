package pbo

import (
	"math/rand"

	"golang.org/x/exp/constraints"
)

//////
// Const, vars, types.
//////

// Comparison is an observed noisy preference judgment between two points in
// a dataset, referencing them by index. It asserts that the point at index
// Winner had a larger noisy latent utility than the point at index Loser at
// the time the comparison was generated.
//
// Invariants:
// - Winner and Loser always reference valid, already-added points
// - Indexing is append-only, so comparisons stay valid as points are added
type Comparison struct {
	// Winner is the index of the preferred point.
	Winner int

	// Loser is the index of the non-preferred point.
	Loser int
}

// Interval defines the valid range for one coordinate of the search space.
// Each coordinate must have a minimum and maximum value to bound proposals.
//
// Type Parameter:
//   - T: The numeric type for this range (e.g. int64 or float64)
//
// Usage:
//
//	// One coordinate of the unit cube.
//	unit := Interval[float64]{Min: 0, Max: 1}
//
// Validation:
// - Min must be less than or equal to Max
// - The range is inclusive of both Min and Max values
type Interval[T constraints.Integer | constraints.Float] struct {
	// Min defines the minimum allowed value (inclusive) for this coordinate.
	Min T

	// Max defines the maximum allowed value (inclusive) for this coordinate.
	Max T
}

// ModelState is a portable snapshot of a fitted surrogate's parameters, used
// to warm start a subsequent fit on a grown dataset for faster convergence.
//
// Latent values are positional: entry i seeds the latent utility of point i.
// A fit on a larger dataset initializes the extra points at zero.
type ModelState struct {
	// Sigma is the fitted kernel length scale.
	Sigma float64

	// Latent holds the fitted latent utility values, one per training point.
	Latent []float64
}

// Surrogate is the modeling capability the optimization loop depends on.
// A Surrogate is constructed from points and pairwise comparisons, and
// answers posterior queries usable for ranking and acquisition.
//
// Implementations must be safe for concurrent Predict calls after Fit has
// returned. PairwiseGP is the in-package implementation; tests may inject a
// stub.
type Surrogate interface {
	// Fit trains the model on the given points and comparisons. Comparisons
	// index into X. Returns an error if the data is invalid or the fit does
	// not converge.
	Fit(X [][]float64, comps []Comparison) error

	// Predict returns the posterior mean and variance of the latent utility
	// at x. Output values are only meaningful on a relative scale.
	Predict(x []float64) (mean, variance float64)

	// State returns a snapshot of the fitted parameters for warm starting.
	State() ModelState
}

// FitFunc constructs and fits a Surrogate from the current dataset,
// optionally seeded from a previous model's state. The optimization loop is
// agnostic to the fitting algorithm's internals.
type FitFunc func(X [][]float64, comps []Comparison, warm *ModelState) (Surrogate, error)

// ProposalFunc selects the next batch of q points to query, given the
// current surrogate, the existing dataset as baseline, and the search-space
// bounds. It returns the batch and the acquisition value of the selected
// batch (zero for model-free strategies).
//
// Implementations must draw all randomness from the provided generator.
type ProposalFunc func(
	model Surrogate,
	baseline [][]float64,
	bounds []Interval[float64],
	q int,
	rng *rand.Rand,
) ([][]float64, float64, error)

// Strategy is a named query strategy compared by the trial loop, e.g. an
// acquisition-driven proposer versus uniform random exploration.
type Strategy struct {
	// Name identifies the strategy in results and progress updates.
	Name string

	// Propose selects the next batch of points to query.
	Propose ProposalFunc
}

// AcquisitionFunc defines the signature for pointwise acquisition functions.
// These score a single candidate from its posterior prediction; higher
// values indicate more promising points (utility is maximized).
//
// Parameters:
// - mean: The predicted latent utility at a point
// - variance: The predicted variance/uncertainty at that point
// - params: Additional parameters needed by specific acquisition functions
//
// Built-in acquisition functions:
// - UCB: Upper Confidence Bound
// - ProbabilityOfImprovement: Probability of beating the incumbent
// - ExpectedImprovement: Expected magnitude of improvement
// - ThompsonSampling: Random sampling from the posterior
//
// Implementation notes for custom acquisition functions:
// - Should handle edge cases (zero variance, extreme means)
// - Must be thread-safe
// - Should return higher values for more promising points
// - Must properly use parameters from AcquisitionParams.
type AcquisitionFunc func(mean, variance float64, params AcquisitionParams) float64

// AcquisitionParams holds parameters used by acquisition functions to decide
// which points to sample next. Each acquisition function may use different
// parameters to balance exploring uncertain areas against exploiting areas
// known to be good.
type AcquisitionParams struct {
	// Beta controls the exploration-exploitation trade-off in UCB.
	// - Higher values (e.g., 3.0 or 5.0) encourage more exploration
	// - Lower values (e.g., 0.1 or 0.5) focus on exploiting known good areas
	// Typical values range from 0.1 to 5.0, with 2.0 being a good default.
	Beta float64

	// Xi is the exploration parameter used by PI and EI. It controls how
	// much improvement over the incumbent is demanded.
	// Typical values range from 0.01 to 0.1.
	Xi float64

	// BestSoFar is the incumbent value used by PI and EI: the largest
	// posterior mean among already-observed points. Updated by proposers
	// before scoring candidates.
	BestSoFar float64

	// RandomState is the random number generator used by Thompson Sampling.
	//
	// Warning:
	// - Do NOT use a nil RandomState with ThompsonSampling
	// - Do NOT share RandomState between concurrent optimization runs
	RandomState *rand.Rand
}

// ProgressUpdate represents the current state of a trial-loop run. Updates
// are emitted after the initial fit and after every completed batch.
type ProgressUpdate struct {
	// Phase indicates whether the update follows initialization or a batch.
	Phase string

	// Strategy names the query strategy the update belongs to.
	Strategy string

	// Trial is the zero-based index of the current trial.
	Trial int

	// Batch is the completed batch number (0 for the initial observation).
	Batch int

	// TotalBatches is the number of batches each trial runs.
	TotalBatches int

	// BestValue is the largest true utility observed so far in this trial by
	// this strategy. Oracle bookkeeping, never visible to the model.
	BestValue float64

	// LastAcqValue is the acquisition value of the most recent proposal
	// (zero for the initial observation and for model-free strategies).
	LastAcqValue float64
}

// LoopConfig holds all configuration parameters for the comparison-driven
// optimization study. All knobs of the synthetic benchmark are listed here;
// DefaultConfig returns the reference study's settings.
//
// Performance impact notes:
// - Higher NumBatches = longer trajectories but longer total runtime
// - Higher RawSamples = more thorough proposal search but slower batches
// - Higher MCSamples = lower acquisition estimate noise but slower batches
type LoopConfig struct {
	// NumTrials is the number of independent repetitions to average over.
	// Trials share neither datasets nor models.
	NumTrials int

	// NumBatches is the number of comparison queries made after the initial
	// observation in each trial.
	NumBatches int

	// Dim is the dimensionality of the search space (the unit hypercube).
	Dim int

	// Q is the number of points proposed per query.
	Q int

	// QComp is the number of fresh comparisons drawn among each new batch.
	QComp int

	// Noise is the standard deviation of the Gaussian noise added to latent
	// values when generating comparisons.
	Noise float64

	// NumRestarts is the number of restarts the batch acquisition optimizer
	// performs.
	NumRestarts int

	// RawSamples is the number of random candidates the batch acquisition
	// optimizer scores per restart and batch slot.
	RawSamples int

	// MCSamples is the number of Monte Carlo posterior draws used to
	// estimate the batch acquisition value of a candidate batch.
	MCSamples int

	// Fit constructs and fits the surrogate after each observation. If nil,
	// InitAndFitModel (the in-package PairwiseGP) is used.
	Fit FitFunc

	// Seed seeds the run's random generator. Zero selects a time-based
	// seed, trading reproducibility for run-to-run variety.
	Seed int64

	// ProgressChan is used to send progress updates during the run.
	// If nil, no updates will be sent. Sends never block.
	ProgressChan chan<- ProgressUpdate
}
