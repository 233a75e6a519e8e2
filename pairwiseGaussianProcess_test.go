package pbo

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The end-to-end sanity check of the reference study: fit on 100 noisy
// comparisons over 50 points in 2D, then the posterior means on 1000 fresh
// points must rank-agree with the true utility.
func TestPairwiseGPRecoversRanking(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	X, y := GenerateData(rng, 50, 2)

	comps, err := GenerateComparisons(rng, y, 100, 0.1, false)
	require.NoError(t, err)

	model, err := InitAndFitModel(X, comps, nil)
	require.NoError(t, err)

	testX, testY := GenerateData(rng, 1000, 2)

	pred := make([]float64, len(testX))
	for i, x := range testX {
		pred[i], _ = model.Predict(x)
	}

	kt := KendallTau(pred, testY)
	assert.Greater(t, kt, 0.0, "posterior means must rank-correlate with the true utility")
}

func TestPairwiseGPOrdersClearPreferences(t *testing.T) {
	// Three 1D points with every noise-free comparison observed: the fitted
	// posterior must order them like the truth.
	X := [][]float64{{0.0}, {0.5}, {1.0}}

	comps := []Comparison{
		{Winner: 2, Loser: 1},
		{Winner: 2, Loser: 0},
		{Winner: 1, Loser: 0},
	}

	model, err := InitAndFitModel(X, comps, nil)
	require.NoError(t, err)

	low, _ := model.Predict([]float64{0.0})
	mid, _ := model.Predict([]float64{0.5})
	high, _ := model.Predict([]float64{1.0})

	assert.Greater(t, high, mid)
	assert.Greater(t, mid, low)
}

func TestPredictBeforeFit(t *testing.T) {
	model := NewPairwiseGP()

	mean, variance := model.Predict([]float64{0.5, 0.5})
	assert.Zero(t, mean)
	assert.Equal(t, 1.0, variance)
}

func TestPredictVarianceShrinksAtData(t *testing.T) {
	rng := rand.New(rand.NewSource(9))

	X, y := GenerateData(rng, 10, 2)

	comps, err := GenerateComparisons(rng, y, 15, 0.1, false)
	require.NoError(t, err)

	model, err := InitAndFitModel(X, comps, nil)
	require.NoError(t, err)

	_, atData := model.Predict(X[0])
	_, farAway := model.Predict([]float64{50, 50})

	assert.Less(t, atData, farAway)
	assert.GreaterOrEqual(t, atData, 0.0)
	assert.InDelta(t, 1.0, farAway, 1e-6)
}

func TestFitValidatesInput(t *testing.T) {
	model := NewPairwiseGP()

	err := model.Fit(nil, nil)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	err = model.Fit([][]float64{{0.1, 0.2}, {0.3}}, nil)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	X := [][]float64{{0.1}, {0.9}}

	err = model.Fit(X, []Comparison{{Winner: 0, Loser: 2}})
	assert.ErrorIs(t, err, ErrInvalidComparison)

	err = model.Fit(X, []Comparison{{Winner: -1, Loser: 0}})
	assert.ErrorIs(t, err, ErrInvalidComparison)

	err = model.Fit(X, []Comparison{{Winner: 1, Loser: 1}})
	assert.ErrorIs(t, err, ErrInvalidComparison)
}

func TestWarmStartRefit(t *testing.T) {
	rng := rand.New(rand.NewSource(10))

	X, y := GenerateData(rng, 6, 3)

	comps, err := GenerateComparisons(rng, y, 8, 0.1, false)
	require.NoError(t, err)

	model, err := InitAndFitModel(X, comps, nil)
	require.NoError(t, err)

	state := model.State()
	require.Len(t, state.Latent, 6)
	assert.Greater(t, state.Sigma, 0.0)

	// Grow the dataset and refit seeded from the previous state.
	nextX, _ := GenerateData(rng, 3, 3)

	grownX, grownComps, err := MakeNewData(rng, X, nextX, comps, 3, 0.1)
	require.NoError(t, err)

	refit, err := InitAndFitModel(grownX, grownComps, &state)
	require.NoError(t, err)

	mean, variance := refit.Predict([]float64{0.5, 0.5, 0.5})
	assert.False(t, math.IsNaN(mean))
	assert.False(t, math.IsNaN(variance))
	assert.GreaterOrEqual(t, variance, 0.0)
}

func TestStateIsACopy(t *testing.T) {
	rng := rand.New(rand.NewSource(11))

	X, y := GenerateData(rng, 4, 2)

	comps, err := GenerateComparisons(rng, y, 4, 0.1, false)
	require.NoError(t, err)

	model, err := InitAndFitModel(X, comps, nil)
	require.NoError(t, err)

	state := model.State()
	state.Latent[0] = 1e9

	again := model.State()
	assert.NotEqual(t, 1e9, again.Latent[0])
}

func BenchmarkInitAndFitModel(b *testing.B) {
	rng := rand.New(rand.NewSource(19))

	X, y := GenerateData(rng, 30, 2)

	comps, err := GenerateComparisons(rng, y, 60, 0.1, false)
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := InitAndFitModel(X, comps, nil); err != nil {
			b.Fatal(err)
		}
	}
}

func TestRBFKernel(t *testing.T) {
	gp := NewPairwiseGP()

	assert.InDelta(t, 1.0, gp.RBFKernel([]float64{0.2, 0.4}, []float64{0.2, 0.4}), 1e-12)

	near := gp.RBFKernel([]float64{0, 0}, []float64{0.1, 0.1})
	far := gp.RBFKernel([]float64{0, 0}, []float64{2, 2})

	assert.Greater(t, near, far)
	assert.Panics(t, func() {
		gp.RBFKernel([]float64{1}, []float64{1, 2})
	})
}
