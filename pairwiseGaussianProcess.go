package pbo

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/mat"
)

//////
// Const, vars, types.
//////

var (
	// ErrNoConvergence is returned when the latent utility fit hits its
	// iteration cap or the kernel matrix cannot be factorized. Fatal to the
	// affected trial; the loop performs no retries.
	ErrNoConvergence = errors.New("pbo: latent utility fit did not converge")

	// ErrInvalidComparison is returned when a comparison references a point
	// index outside the dataset or compares a point with itself.
	ErrInvalidComparison = errors.New("pbo: comparison references invalid point")
)

const (
	// defaultSigma is the kernel length scale before any fit, suitable for
	// inputs normalized to the unit cube.
	defaultSigma = 1.0

	// kernelJitter stabilizes the Gram matrix diagonal.
	kernelJitter = 1e-6

	// predictJitter is the extra diagonal noise used by the posterior solve.
	predictJitter = 1e-4

	// newtonMaxIter caps the Newton iterations of the latent MAP fit.
	newtonMaxIter = 80

	// newtonTol is the max-norm step size below which the fit is converged.
	newtonTol = 1e-6

	// minProb floors probit probabilities to keep gradients finite.
	minProb = 1e-12
)

// likelihoodScale is the probit comparison scale: a comparison between
// points i and j is observed with probability Φ((f_i - f_j) / √2).
var likelihoodScale = math.Sqrt2

// sigmaGrid is the candidate length-scale grid searched during fitting.
var sigmaGrid = []float64{0.25, 0.5, 1.0, 2.0, 4.0}

// PairwiseGP is a preference-based Gaussian Process: a GP surrogate over a
// latent utility function that is trained from ordered pairwise comparisons,
// never from utility values themselves.
//
// Fitting maximizes a Laplace-approximated pairwise marginal likelihood:
// for each candidate kernel length scale, the latent utilities are driven to
// their posterior mode by Newton iterations under a probit comparison
// likelihood, and the length scale with the best approximate marginal
// likelihood wins. Predictions are standard GP posterior queries conditioned
// on the fitted latent values.
//
// Because utility values are never observed, predictions are only meaningful
// on a relative scale; evaluate the model by rank agreement (KendallTau).
//
// Thread safety:
// - All fields are protected by the RWMutex
// - Predict uses a read lock, Fit and LoadState a write lock
// - Safe for concurrent Predict calls after Fit has returned
//
// Memory usage:
// - O(n²) for the factored kernel matrix, n being the number of points.
type PairwiseGP struct {
	// mu protects access to all fields.
	mu sync.RWMutex

	// X stores the training points.
	X [][]float64

	// latent holds the fitted MAP latent utility values, one per point.
	latent []float64

	// sigma is the fitted kernel length scale.
	sigma float64

	// warmSigma and warmLatent seed the next fit when set via LoadState.
	warmSigma  float64
	warmLatent []float64

	// fitted reports whether a successful Fit has completed.
	fitted bool

	// chol factors K + jitter·I at the fitted length scale.
	chol mat.Cholesky

	// alpha caches (K + jitter·I)⁻¹ · latent for posterior means.
	alpha *mat.VecDense
}

//////
// Methods.
//////

// RBFKernel implements the Radial Basis Function (Gaussian) kernel at the
// model's current length scale, measuring similarity between two points.
//
// Mathematical formula:
//
//	k(x1, x2) = exp(-sum((x1 - x2)^2) / (2 * sigma^2))
//
// Important notes:
// - Panics if input vectors have different lengths
// - Returns 1.0 for identical points, values near 0.0 for distant points.
func (gp *PairwiseGP) RBFKernel(x1, x2 []float64) float64 {
	gp.mu.RLock()
	sigma := gp.sigma
	gp.mu.RUnlock()

	return rbfKernel(x1, x2, sigma)
}

// Fit trains the model on the given points and pairwise comparisons.
//
// Parameters:
// - X: Training points, all of the same dimensionality
// - comps: Comparisons indexing into X, winner-first
//
// Returns:
// - error: ErrDimensionMismatch or ErrInvalidComparison on bad input,
//   ErrNoConvergence when no candidate length scale reaches the latent
//   posterior mode within the iteration cap
//
// If a ModelState was loaded beforehand, its latent values seed the Newton
// iterations and its length scale joins the candidate grid, which speeds up
// refits on grown datasets considerably.
func (gp *PairwiseGP) Fit(X [][]float64, comps []Comparison) error {
	n := len(X)
	if n == 0 {
		return fmt.Errorf("%w: empty dataset", ErrDimensionMismatch)
	}

	dim := len(X[0])
	for i, x := range X {
		if len(x) != dim {
			return fmt.Errorf("%w: point %d has dim %d, want %d", ErrDimensionMismatch, i, len(x), dim)
		}
	}

	for i, c := range comps {
		if c.Winner < 0 || c.Winner >= n || c.Loser < 0 || c.Loser >= n {
			return fmt.Errorf("%w: comparison %d is (%d, %d) over %d points", ErrInvalidComparison, i, c.Winner, c.Loser, n)
		}

		if c.Winner == c.Loser {
			return fmt.Errorf("%w: comparison %d pits point %d against itself", ErrInvalidComparison, i, c.Winner)
		}
	}

	gp.mu.Lock()
	defer gp.mu.Unlock()

	points := clonePoints(X)

	// Seed latent values from the warm-start state; new points start at 0.
	init := make([]float64, n)
	copy(init, gp.warmLatent)

	candidates := sigmaGrid
	if gp.warmSigma > 0 {
		candidates = append([]float64{gp.warmSigma}, sigmaGrid...)
	}

	// Select the length scale by Laplace-approximate marginal likelihood.
	bestLML := math.Inf(-1)

	var (
		bestSigma  float64
		bestLatent []float64
		lastErr    error
	)

	for _, sigma := range candidates {
		latent, lml, err := fitLatentMode(points, comps, sigma, init)
		if err != nil {
			lastErr = err

			continue
		}

		if lml > bestLML {
			bestLML = lml
			bestSigma = sigma
			bestLatent = latent
		}
	}

	if bestLatent == nil {
		return fmt.Errorf("%w: no candidate length scale converged: %v", ErrNoConvergence, lastErr)
	}

	// Factor the posterior solve matrix at the winning length scale.
	jitter := kernelJitter + predictJitter

	gram := mat.NewSymDense(n, nil)

	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := rbfKernel(points[i], points[j], bestSigma)
			if i == j {
				v += jitter
			}

			gram.SetSym(i, j, v)
		}
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(gram); !ok {
		return fmt.Errorf("%w: kernel matrix is not positive definite", ErrNoConvergence)
	}

	alpha := mat.NewVecDense(n, nil)
	if err := chol.SolveVecTo(alpha, mat.NewVecDense(n, bestLatent)); err != nil {
		return fmt.Errorf("%w: posterior solve failed: %v", ErrNoConvergence, err)
	}

	gp.X = points
	gp.latent = bestLatent
	gp.sigma = bestSigma
	gp.chol = chol
	gp.alpha = alpha
	gp.fitted = true

	return nil
}

// Predict returns the posterior mean and variance of the latent utility at
// a query point.
//
// Returns (0, 1) if the model has not been fitted, matching the prior.
// Variance is clamped at zero against floating-point round-off.
//
// Thread safety:
// - Protected by read mutex; multiple predictions can proceed in parallel.
func (gp *PairwiseGP) Predict(x []float64) (mean, variance float64) {
	gp.mu.RLock()
	defer gp.mu.RUnlock()

	if !gp.fitted {
		return 0, 1
	}

	n := len(gp.X)

	k := mat.NewVecDense(n, nil)
	for i := range gp.X {
		k.SetVec(i, rbfKernel(x, gp.X[i], gp.sigma))
	}

	mean = mat.Dot(k, gp.alpha)

	var v mat.VecDense
	if err := gp.chol.SolveVecTo(&v, k); err != nil {
		return mean, 1
	}

	variance = 1 - mat.Dot(k, &v)
	if variance < 0 {
		variance = 0
	}

	return mean, variance
}

// State returns a snapshot of the fitted parameters, suitable for warm
// starting a refit on a grown dataset via LoadState.
func (gp *PairwiseGP) State() ModelState {
	gp.mu.RLock()
	defer gp.mu.RUnlock()

	return ModelState{
		Sigma:  gp.sigma,
		Latent: cloneVector(gp.latent),
	}
}

// LoadState seeds the next Fit from a previously fitted model's state.
// Latent values map positionally onto the new dataset; points beyond the
// snapshot start at zero.
func (gp *PairwiseGP) LoadState(state ModelState) {
	gp.mu.Lock()
	defer gp.mu.Unlock()

	gp.warmSigma = state.Sigma
	gp.warmLatent = cloneVector(state.Latent)
}

// Sigma returns the current kernel length scale.
func (gp *PairwiseGP) Sigma() float64 {
	gp.mu.RLock()
	defer gp.mu.RUnlock()

	return gp.sigma
}

//////
// Factory.
//////

// NewPairwiseGP creates a new, unfitted preference model with default
// parameters suitable for inputs normalized to the unit cube.
//
// Best practices:
// - Create a new instance (or reuse via LoadState) per dataset
// - Don't share instances between independent optimization runs.
func NewPairwiseGP() *PairwiseGP {
	return &PairwiseGP{
		sigma: defaultSigma,
	}
}

// InitAndFitModel constructs a PairwiseGP from the current points and
// comparisons, optionally seeded from a previous model's state for faster
// convergence, and fits it.
//
// This is the FitFunc the trial loop uses when none is injected.
func InitAndFitModel(X [][]float64, comps []Comparison, warm *ModelState) (*PairwiseGP, error) {
	model := NewPairwiseGP()

	if warm != nil {
		model.LoadState(*warm)
	}

	if err := model.Fit(X, comps); err != nil {
		return nil, err
	}

	return model, nil
}

//////
// Helpers.
//////

// rbfKernel is the lock-free RBF kernel used during fitting, where the
// length scale under evaluation is not yet the model's.
func rbfKernel(x1, x2 []float64, sigma float64) float64 {
	if len(x1) != len(x2) {
		panic("input vectors must have the same length")
	}

	var sum float64

	for i := range x1 {
		diff := x1[i] - x2[i]

		sum += diff * diff
	}

	return math.Exp(-sum / (2 * sigma * sigma))
}

// fitLatentMode drives the latent utilities to their posterior mode under
// the probit comparison likelihood and the GP prior at the given length
// scale, using Newton iterations, and returns the mode together with the
// Laplace-approximate log marginal likelihood.
//
// The update is the standard self-consistent form
//
//	f ← K (I + W K)⁻¹ (W f + ∇log p(comps | f))
//
// where W is the negative Hessian of the log likelihood.
func fitLatentMode(X [][]float64, comps []Comparison, sigma float64, init []float64) ([]float64, float64, error) {
	n := len(X)

	gram := mat.NewDense(n, n, nil)

	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := rbfKernel(X[i], X[j], sigma)
			if i == j {
				v += kernelJitter
			}

			gram.Set(i, j, v)
			gram.Set(j, i, v)
		}
	}

	f := cloneVector(init)
	converged := false

	for iter := 0; iter < newtonMaxIter; iter++ {
		grad, hess := pairwiseGradHess(f, comps)

		b := mat.NewVecDense(n, nil)

		var wf mat.VecDense
		wf.MulVec(hess, mat.NewVecDense(n, f))

		for i := 0; i < n; i++ {
			b.SetVec(i, wf.AtVec(i)+grad[i])
		}

		var v mat.VecDense
		if err := v.SolveVec(identityPlus(hess, gram), b); err != nil {
			return nil, 0, fmt.Errorf("%w: newton solve failed: %v", ErrNoConvergence, err)
		}

		var fNew mat.VecDense
		fNew.MulVec(gram, &v)

		var step float64

		for i := 0; i < n; i++ {
			if d := math.Abs(fNew.AtVec(i) - f[i]); d > step {
				step = d
			}

			f[i] = fNew.AtVec(i)
		}

		if step < newtonTol {
			converged = true

			break
		}
	}

	if !converged {
		return nil, 0, fmt.Errorf("%w after %d iterations (sigma=%g)", ErrNoConvergence, newtonMaxIter, sigma)
	}

	// Laplace approximation to the log marginal likelihood at the mode:
	// log p(comps | f̂) − ½ f̂ᵀK⁻¹f̂ − ½ log|I + W K|.
	fv := mat.NewVecDense(n, f)

	var kInvF mat.VecDense
	if err := kInvF.SolveVec(gram, fv); err != nil {
		return nil, 0, fmt.Errorf("%w: prior solve failed: %v", ErrNoConvergence, err)
	}

	_, hess := pairwiseGradHess(f, comps)

	var lu mat.LU
	lu.Factorize(identityPlus(hess, gram))

	logDet, sign := lu.LogDet()
	if sign <= 0 {
		return nil, 0, fmt.Errorf("%w: indefinite laplace factor (sigma=%g)", ErrNoConvergence, sigma)
	}

	lml := pairwiseLogLikelihood(f, comps) - 0.5*mat.Dot(fv, &kInvF) - 0.5*logDet

	return f, lml, nil
}

// pairwiseGradHess returns the gradient of the probit comparison log
// likelihood and its negative Hessian W at the latent values f.
func pairwiseGradHess(f []float64, comps []Comparison) ([]float64, *mat.Dense) {
	n := len(f)

	grad := make([]float64, n)
	hess := mat.NewDense(n, n, nil)

	for _, c := range comps {
		z := (f[c.Winner] - f[c.Loser]) / likelihoodScale

		cdf := normalCDF(z)
		if cdf < minProb {
			cdf = minProb
		}

		ratio := normalPDF(z) / cdf

		grad[c.Winner] += ratio / likelihoodScale
		grad[c.Loser] -= ratio / likelihoodScale

		h := ratio * (z + ratio) / (likelihoodScale * likelihoodScale)

		hess.Set(c.Winner, c.Winner, hess.At(c.Winner, c.Winner)+h)
		hess.Set(c.Loser, c.Loser, hess.At(c.Loser, c.Loser)+h)
		hess.Set(c.Winner, c.Loser, hess.At(c.Winner, c.Loser)-h)
		hess.Set(c.Loser, c.Winner, hess.At(c.Loser, c.Winner)-h)
	}

	return grad, hess
}

// pairwiseLogLikelihood returns the probit comparison log likelihood at f.
func pairwiseLogLikelihood(f []float64, comps []Comparison) float64 {
	var sum float64

	for _, c := range comps {
		cdf := normalCDF((f[c.Winner] - f[c.Loser]) / likelihoodScale)
		if cdf < minProb {
			cdf = minProb
		}

		sum += math.Log(cdf)
	}

	return sum
}

// identityPlus returns I + W·K.
func identityPlus(w, k *mat.Dense) *mat.Dense {
	n, _ := w.Dims()

	var wk mat.Dense
	wk.Mul(w, k)

	out := mat.NewDense(n, n, nil)

	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			v := wk.At(i, j)
			if i == j {
				v++
			}

			out.Set(i, j, v)
		}
	}

	return out
}
