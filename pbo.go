package pbo

import (
	"fmt"
	"math/rand"
	"time"
)

//////
// Exported functionalities.
//////

// Phase names carried by ProgressUpdate.
const (
	PhaseInitialized = "Initialized"
	PhaseBatch       = "Batch"
)

// DefaultConfig returns the reference study's configuration: a 5-dimensional
// unit cube, batches of 3 points with 3 comparisons each, 10 batches per
// trial, and 5 independent trials.
func DefaultConfig() LoopConfig {
	return LoopConfig{
		NumTrials:   5,
		NumBatches:  10,
		Dim:         5,
		Q:           3,
		QComp:       3,
		Noise:       0.1,
		NumRestarts: 3,
		RawSamples:  128,
		MCSamples:   64,
		Fit:         nil, // Default to InitAndFitModel.
		Seed:        0,   // Default to a time-based seed.
	}
}

// DefaultStrategies returns the two query strategies the reference study
// compares: the Monte Carlo noisy-expected-improvement batch proposer and
// uniform random exploration.
func DefaultStrategies(cfg LoopConfig) []Strategy {
	return []Strategy{
		{Name: "qNEI", Propose: AcquisitionProposal(cfg.NumRestarts, cfg.RawSamples, cfg.MCSamples)},
		{Name: "random", Propose: RandomProposal()},
	}
}

// RunTrials runs the full comparison-driven optimization study: NumTrials
// independent trials, each pitting every strategy against the same fresh
// initial dataset, and records the best-observed-utility trajectory of each.
//
// Per trial, per strategy, the loop is:
//
//	Initialized: draw Q initial points and QComp initial comparisons; fit
//	             the initial model; record the best true utility.
//	Proposing:   ask the strategy for Q new points (acquisition-driven
//	             strategies receive the current model and dataset).
//	Observing:   fold the new points and QComp fresh comparisons into the
//	             dataset (MakeNewData).
//	Refitting:   refit the model, warm-started from the previous state.
//	Recording:   append the running maximum true utility to the trajectory.
//
// After NumBatches batches the trial ends; each trajectory therefore has
// NumBatches+1 entries and is non-decreasing, since the dataset only grows.
//
// Strategies share neither datasets nor models, within or across trials.
// The recorded utilities are oracle bookkeeping only; the models never see
// them.
//
// Returns:
// - map[string][][]float64: Per strategy name, NumTrials trajectories
// - error: Invalid configuration, proposal failure, or a model fit that did
//   not converge; any error aborts the run, there are no retries
func RunTrials(cfg LoopConfig, strategies ...Strategy) (map[string][][]float64, error) {
	if err := validateConfig(cfg, strategies); err != nil {
		return nil, err
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	rng := rand.New(rand.NewSource(seed))

	results := make(map[string][][]float64, len(strategies))

	for trial := 0; trial < cfg.NumTrials; trial++ {
		trajectories, err := RunTrial(cfg, strategies, trial, rng)
		if err != nil {
			return nil, fmt.Errorf("trial %d: %w", trial, err)
		}

		for name, trajectory := range trajectories {
			results[name] = append(results[name], trajectory)
		}
	}

	return results, nil
}

// RunTrial runs a single trial: fresh initial data shared by all strategies,
// then NumBatches propose/observe/refit rounds per strategy. Exported so
// stub surrogates can drive the loop in tests.
//
// All randomness comes from rng; the trial index is only used for progress
// reporting.
func RunTrial(
	cfg LoopConfig,
	strategies []Strategy,
	trial int,
	rng *rand.Rand,
) (map[string][]float64, error) {
	fit := cfg.Fit
	if fit == nil {
		fit = func(X [][]float64, comps []Comparison, warm *ModelState) (Surrogate, error) {
			return InitAndFitModel(X, comps, warm)
		}
	}

	bounds := UnitCubeBounds(cfg.Dim)

	// Initialized: all strategies start from the same initial observation.
	initX, initY := GenerateData(rng, cfg.Q, cfg.Dim)

	initComps, err := GenerateComparisons(rng, initY, cfg.QComp, cfg.Noise, false)
	if err != nil {
		return nil, err
	}

	type state struct {
		X     [][]float64
		comps []Comparison
		model Surrogate
	}

	states := make(map[string]*state, len(strategies))
	trajectories := make(map[string][]float64, len(strategies))

	for _, strategy := range strategies {
		model, err := fit(initX, initComps, nil)
		if err != nil {
			return nil, fmt.Errorf("strategy %s: initial fit: %w", strategy.Name, err)
		}

		states[strategy.Name] = &state{
			X:     clonePoints(initX),
			comps: append([]Comparison(nil), initComps...),
			model: model,
		}

		best := maxUtility(initX)
		trajectories[strategy.Name] = []float64{best}

		sendProgress(cfg.ProgressChan, ProgressUpdate{
			Phase:        PhaseInitialized,
			Strategy:     strategy.Name,
			Trial:        trial,
			Batch:        0,
			TotalBatches: cfg.NumBatches,
			BestValue:    best,
		})
	}

	for batch := 1; batch <= cfg.NumBatches; batch++ {
		for _, strategy := range strategies {
			st := states[strategy.Name]

			// Proposing.
			nextX, acqValue, err := strategy.Propose(st.model, st.X, bounds, cfg.Q, rng)
			if err != nil {
				return nil, fmt.Errorf("strategy %s, batch %d: propose: %w", strategy.Name, batch, err)
			}

			// Observing.
			st.X, st.comps, err = MakeNewData(rng, st.X, nextX, st.comps, cfg.QComp, cfg.Noise)
			if err != nil {
				return nil, fmt.Errorf("strategy %s, batch %d: observe: %w", strategy.Name, batch, err)
			}

			// Refitting, warm-started from the previous model.
			warm := st.model.State()

			st.model, err = fit(st.X, st.comps, &warm)
			if err != nil {
				return nil, fmt.Errorf("strategy %s, batch %d: refit: %w", strategy.Name, batch, err)
			}

			// Recording: running maximum of the oracle utility.
			best := maxUtility(st.X)
			trajectories[strategy.Name] = append(trajectories[strategy.Name], best)

			sendProgress(cfg.ProgressChan, ProgressUpdate{
				Phase:        PhaseBatch,
				Strategy:     strategy.Name,
				Trial:        trial,
				Batch:        batch,
				TotalBatches: cfg.NumBatches,
				BestValue:    best,
				LastAcqValue: acqValue,
			})
		}
	}

	return trajectories, nil
}

//////
// Helpers.
//////

// sendProgress delivers a progress update without ever blocking the loop.
func sendProgress(ch chan<- ProgressUpdate, update ProgressUpdate) {
	if ch == nil {
		return
	}

	select {
	case ch <- update:
	default:
		// Skip update if channel is full.
	}
}

func validateConfig(cfg LoopConfig, strategies []Strategy) error {
	switch {
	case len(strategies) == 0:
		return fmt.Errorf("pbo: at least one strategy is required")
	case cfg.NumTrials <= 0:
		return fmt.Errorf("pbo: NumTrials must be positive, got %d", cfg.NumTrials)
	case cfg.NumBatches < 0:
		return fmt.Errorf("pbo: NumBatches must be non-negative, got %d", cfg.NumBatches)
	case cfg.Dim <= 0:
		return fmt.Errorf("pbo: Dim must be positive, got %d", cfg.Dim)
	case cfg.Q < 2:
		return fmt.Errorf("pbo: Q must be at least 2 to form comparisons, got %d", cfg.Q)
	case cfg.QComp <= 0:
		return fmt.Errorf("pbo: QComp must be positive, got %d", cfg.QComp)
	case cfg.Noise < 0:
		return fmt.Errorf("pbo: Noise must be non-negative, got %g", cfg.Noise)
	case cfg.QComp > cfg.Q*(cfg.Q-1)/2:
		return fmt.Errorf(
			"pbo: QComp %d exceeds the %d distinct pairs a batch of %d points offers",
			cfg.QComp, cfg.Q*(cfg.Q-1)/2, cfg.Q,
		)
	}

	names := make(map[string]struct{}, len(strategies))

	for _, s := range strategies {
		if s.Propose == nil {
			return fmt.Errorf("pbo: strategy %q has no proposal function", s.Name)
		}

		if _, dup := names[s.Name]; dup {
			return fmt.Errorf("pbo: duplicate strategy name %q", s.Name)
		}

		names[s.Name] = struct{}{}
	}

	return nil
}
