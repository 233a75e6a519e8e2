// Package pbo provides closed-loop Bayesian optimization driven by noisy
// pairwise comparisons instead of direct function observations. It infers a
// latent utility function from preference judgments alone using a pairwise
// Gaussian Process, and uses acquisition functions to decide which points to
// query next.
//
// # Features
//
// The package includes the following key features:
//
//   - Preference Learning: Fits a Gaussian Process surrogate from ordered
//     (winner, loser) comparison pairs, never observing utility values
//   - Bayesian Optimization Loop: Propose / observe / refit cycle with
//     warm-started model refits across batches
//   - Multiple Acquisition Functions: Upper Confidence Bound (UCB),
//     Probability of Improvement (PI), Expected Improvement (EI), Thompson
//     Sampling, and a Monte Carlo Noisy Expected Improvement batch criterion
//   - Batch Proposals: Greedy batch construction over random candidates with
//     configurable restart and sample counts
//   - Pluggable Surrogates: The trial loop depends only on the Surrogate
//     interface, so custom or stub models can be swapped in
//   - Synthetic Benchmarking: Data synthesis helpers and a known ground-truth
//     utility for comparing query strategies against random exploration
//   - Progress Monitoring: Real-time updates on trial progress via channels
//   - Reporting: Trajectory aggregation with 95% confidence half-widths and
//     convergence plot rendering
//
// # Installation
//
// To install the package, use:
//
//	go get github.com/thalesfsp/pbo
//
// # Usage
//
// The typical entry point is RunTrials, which repeats independent trials of
// the comparison-driven optimization loop for each query strategy:
//
//	cfg := pbo.DefaultConfig()
//	results, err := pbo.RunTrials(cfg, pbo.DefaultStrategies(cfg)...)
//	if err != nil {
//	    // a trial failed, e.g. the model fit did not converge
//	}
//
//	for name, trajectories := range results {
//	    summary, _ := pbo.Summarize(trajectories)
//	    fmt.Println(name, summary.Mean)
//	}
//
// For direct model use, fit a PairwiseGP from points and comparisons:
//
//	rng := rand.New(rand.NewSource(42))
//	X, y := pbo.GenerateData(rng, 50, 2)
//	comps, _ := pbo.GenerateComparisons(rng, y, 100, 0.1, false)
//	model, err := pbo.InitAndFitModel(X, comps, nil)
//	mean, variance := model.Predict([]float64{0.5, 0.5})
//
// # Randomness
//
// Every sampling function takes an explicit *rand.Rand. Seed the generator
// for reproducible runs; LoopConfig.Seed of zero falls back to a time-based
// seed.
//
// # Thread Safety
//
// The PairwiseGP model guards its state with an RWMutex and is safe for
// concurrent Predict calls. Independent optimization runs never share
// datasets or models, and progress channel sends are non-blocking.
package pbo
