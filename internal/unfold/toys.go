package unfold

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// ErrNegativeThrow is returned when NoNegative is set and a bin cannot be
// thrown non-negative within the redraw limit.
var ErrNegativeThrow = errors.New("toy throw stays negative")

const (
	// DefaultToys is used when ToyConfig.N is zero.
	DefaultToys = 1000

	maxThrowAttempts = 1000
)

// ThrowMode selects how each input bin is fluctuated.
type ThrowMode int

const (
	// ThrowGaussian draws from a normal distribution with the bin error as
	// width.
	ThrowGaussian ThrowMode = iota
	// ThrowPoisson draws a Poisson count with the bin value as mean and
	// ignores the errors.
	ThrowPoisson
)

func (m ThrowMode) String() string {
	switch m {
	case ThrowGaussian:
		return "gaussian"
	case ThrowPoisson:
		return "poisson"
	}
	return fmt.Sprintf("ThrowMode(%d)", int(m))
}

// ParseThrowMode accepts "gaussian" or "poisson".
func ParseThrowMode(s string) (ThrowMode, error) {
	switch s {
	case "gaussian", "Gaussian", "":
		return ThrowGaussian, nil
	case "poisson", "Poisson":
		return ThrowPoisson, nil
	}
	return 0, fmt.Errorf("unknown throw mode %q", s)
}

// ToyConfig controls PropagateToys.
type ToyConfig struct {
	N          int
	Mode       ThrowMode
	NoNegative bool
	Seed       uint64
}

// ToyResult holds the per-bin sample moments of the propagated toys.
type ToyResult struct {
	N          int
	Mean       []float64
	StdDev     []float64
	Covariance *mat.SymDense
}

// PropagateToys fluctuates input N times within its errors, multiplies each
// replica by m and returns the sample mean, standard deviation and
// covariance of the outputs.
func PropagateToys(input, errs []float64, m mat.Matrix, cfg ToyConfig) (*ToyResult, error) {
	rows, cols := m.Dims()
	if len(input) != cols {
		return nil, fmt.Errorf("input has %d bins, matrix expects %d", len(input), cols)
	}
	if cfg.Mode == ThrowGaussian && len(errs) != len(input) {
		return nil, fmt.Errorf("%d errors for %d input bins", len(errs), len(input))
	}
	n := cfg.N
	if n == 0 {
		n = DefaultToys
	}
	if n < 2 {
		return nil, fmt.Errorf("need at least 2 toys, got %d", n)
	}
	for i, e := range errs {
		if e < 0 || math.IsNaN(e) {
			return nil, fmt.Errorf("input bin %d has error %g", i, e)
		}
	}

	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))
	var (
		toys  = mat.NewDense(n, rows, nil)
		mean  = make([]float64, rows)
		m2    = make([]float64, rows)
		throw = mat.NewVecDense(cols, nil)
		out   = mat.NewVecDense(rows, nil)
	)
	for k := 0; k < n; k++ {
		for i := range input {
			v, err := throwBin(rng, cfg, input[i], errs, i)
			if err != nil {
				return nil, fmt.Errorf("toy %d: %w", k, err)
			}
			throw.SetVec(i, v)
		}
		out.MulVec(m, throw)
		toys.SetRow(k, out.RawVector().Data)

		// Welford update.
		for j := 0; j < rows; j++ {
			x := out.AtVec(j)
			d := x - mean[j]
			mean[j] += d / float64(k+1)
			m2[j] += d * (x - mean[j])
		}
		tracef("toy %d: %v", k, out.RawVector().Data)
	}

	res := &ToyResult{N: n, Mean: mean, StdDev: make([]float64, rows), Covariance: mat.NewSymDense(rows, nil)}
	for j := range m2 {
		res.StdDev[j] = math.Sqrt(m2[j] / float64(n-1))
	}
	stat.CovarianceMatrix(res.Covariance, toys, nil)
	diagf("propagated %d %s toys through %dx%d matrix, max stddev %.4g", n, cfg.Mode, rows, cols, floats.Max(res.StdDev))
	return res, nil
}

func throwBin(rng *rand.Rand, cfg ToyConfig, value float64, errs []float64, i int) (float64, error) {
	switch cfg.Mode {
	case ThrowPoisson:
		if value <= 0 {
			return 0, nil
		}
		return distuv.Poisson{Lambda: value, Src: rng}.Rand(), nil
	default:
		sigma := errs[i]
		if sigma == 0 {
			if cfg.NoNegative && value < 0 {
				return 0, fmt.Errorf("%w: bin %d is %g with zero error", ErrNegativeThrow, i, value)
			}
			return value, nil
		}
		d := distuv.Normal{Mu: value, Sigma: sigma, Src: rng}
		for attempt := 0; attempt < maxThrowAttempts; attempt++ {
			v := d.Rand()
			if !cfg.NoNegative || v >= 0 {
				return v, nil
			}
		}
		return 0, fmt.Errorf("%w: bin %d (%g ± %g) after %d draws", ErrNegativeThrow, i, value, sigma, maxThrowAttempts)
	}
}
