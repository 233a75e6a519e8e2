package pbo

import (
	"math/rand"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubSurrogate is a canned Surrogate used to drive the trial loop and the
// acquisition optimizer without the full model-fitting machinery.
type stubSurrogate struct {
	predict func(x []float64) (mean, variance float64)
}

func (s *stubSurrogate) Fit(_ [][]float64, _ []Comparison) error { return nil }

func (s *stubSurrogate) Predict(x []float64) (float64, float64) {
	if s.predict == nil {
		return 0, 1
	}

	return s.predict(x)
}

func (s *stubSurrogate) State() ModelState { return ModelState{Sigma: 1} }

// stubFit injects an oracle-backed stub model, making loop tests fast and
// deterministic in shape.
func stubFit(_ [][]float64, _ []Comparison, _ *ModelState) (Surrogate, error) {
	return &stubSurrogate{predict: func(x []float64) (float64, float64) {
		return Utility(x), 0.1
	}}, nil
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 5, cfg.NumTrials)
	assert.Equal(t, 10, cfg.NumBatches)
	assert.Equal(t, 5, cfg.Dim)
	assert.Equal(t, 3, cfg.Q)
	assert.Equal(t, 3, cfg.QComp)
	assert.InDelta(t, 0.1, cfg.Noise, 1e-12)
	assert.Equal(t, 3, cfg.NumRestarts)
	assert.Equal(t, 128, cfg.RawSamples)
}

func TestRunTrialsTrajectories(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Seed = 7
	cfg.Fit = stubFit
	cfg.RawSamples = 16
	cfg.MCSamples = 8

	results, err := RunTrials(cfg, DefaultStrategies(cfg)...)
	require.NoError(t, err)
	require.Len(t, results, 2)

	optimal := OptimalValue(cfg.Dim)

	for _, name := range []string{"qNEI", "random"} {
		trajectories, ok := results[name]
		require.True(t, ok, "missing strategy %q", name)
		require.Len(t, trajectories, cfg.NumTrials)

		for trial, trajectory := range trajectories {
			require.Len(t, trajectory, cfg.NumBatches+1)

			// The recorded value is a running maximum over a growing
			// dataset, so it never decreases within a trial.
			for step := 1; step < len(trajectory); step++ {
				assert.GreaterOrEqual(
					t, trajectory[step], trajectory[step-1],
					"strategy %s, trial %d, step %d", name, trial, step,
				)
			}

			// No point in the unit cube can beat the all-ones optimum.
			for _, v := range trajectory {
				assert.LessOrEqual(t, v, optimal)
				assert.Greater(t, v, 0.0)
			}
		}
	}
}

func TestRunTrialsIndependentAcrossStrategies(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Seed = 8
	cfg.NumTrials = 2
	cfg.NumBatches = 4
	cfg.Fit = stubFit
	cfg.RawSamples = 8
	cfg.MCSamples = 4

	results, err := RunTrials(cfg, DefaultStrategies(cfg)...)
	require.NoError(t, err)

	// Both variants start each trial from the same initial observation.
	for trial := 0; trial < cfg.NumTrials; trial++ {
		assert.Equal(t, results["qNEI"][trial][0], results["random"][trial][0])
	}
}

func TestRunTrialsProgressChannel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Seed = 9
	cfg.NumTrials = 2
	cfg.NumBatches = 3
	cfg.Fit = stubFit
	cfg.RawSamples = 8
	cfg.MCSamples = 4

	strategies := DefaultStrategies(cfg)

	wantUpdates := cfg.NumTrials * (cfg.NumBatches + 1) * len(strategies)

	progressChan := make(chan ProgressUpdate, wantUpdates)
	cfg.ProgressChan = progressChan

	var counter int32

	done := make(chan struct{})

	go func() {
		defer close(done)

		for update := range progressChan {
			atomic.AddInt32(&counter, 1)

			assert.LessOrEqual(t, update.Batch, cfg.NumBatches)
			assert.NotEmpty(t, update.Strategy)

			if update.Batch == 0 {
				assert.Equal(t, PhaseInitialized, update.Phase)
			} else {
				assert.Equal(t, PhaseBatch, update.Phase)
			}
		}
	}()

	_, err := RunTrials(cfg, strategies...)
	require.NoError(t, err)

	close(progressChan)
	<-done

	assert.Equal(t, int32(wantUpdates), atomic.LoadInt32(&counter))
}

func TestRunTrialsWithRealModel(t *testing.T) {
	if testing.Short() {
		t.Skip("fits real pairwise GP models")
	}

	cfg := DefaultConfig()
	cfg.Seed = 10
	cfg.NumTrials = 1
	cfg.NumBatches = 2
	cfg.Dim = 2
	cfg.NumRestarts = 1
	cfg.RawSamples = 8
	cfg.MCSamples = 8

	results, err := RunTrials(cfg, DefaultStrategies(cfg)...)
	require.NoError(t, err)

	for name, trajectories := range results {
		require.Len(t, trajectories, 1, name)
		require.Len(t, trajectories[0], cfg.NumBatches+1, name)

		for step := 1; step <= cfg.NumBatches; step++ {
			assert.GreaterOrEqual(t, trajectories[0][step], trajectories[0][step-1])
		}
	}
}

func TestRunTrialsValidation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Fit = stubFit

	_, err := RunTrials(cfg)
	assert.Error(t, err, "no strategies")

	badQ := cfg
	badQ.Q = 1

	_, err = RunTrials(badQ, DefaultStrategies(badQ)...)
	assert.Error(t, err)

	badComp := cfg
	badComp.QComp = 10 // a batch of 3 points only offers 3 distinct pairs

	_, err = RunTrials(badComp, DefaultStrategies(badComp)...)
	assert.Error(t, err)

	dup := cfg

	_, err = RunTrials(dup, Strategy{Name: "x", Propose: RandomProposal()}, Strategy{Name: "x", Propose: RandomProposal()})
	assert.Error(t, err)

	_, err = RunTrials(cfg, Strategy{Name: "nil"})
	assert.Error(t, err)
}

func TestRunTrialSingle(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NumBatches = 2
	cfg.Fit = stubFit
	cfg.RawSamples = 8
	cfg.MCSamples = 4

	rng := rand.New(rand.NewSource(11))

	trajectories, err := RunTrial(cfg, []Strategy{{Name: "random", Propose: RandomProposal()}}, 0, rng)
	require.NoError(t, err)
	require.Len(t, trajectories, 1)
	assert.Len(t, trajectories["random"], 3)
}
