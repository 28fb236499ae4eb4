// Package unfold builds detector response matrices from true-versus-reco
// migration tables and inverts them with a truncated singular value
// decomposition. Statistical errors are carried through the inverse by toy
// Monte Carlo.
//
// Migration tables are indexed [true bin][reco bin]. The normalised response
// A is indexed [reco bin][true bin], so A·truth folds a true spectrum and
// A⁺·reco unfolds a measured one.
package unfold

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/smearceptance/internal/hist"
)

var (
	// ErrSingular is returned when no singular value survives truncation.
	ErrSingular = errors.New("response matrix has no usable singular values")
	// ErrInversionClosure is returned when the pseudo-inverse fails to
	// reproduce the truncated response.
	ErrInversionClosure = errors.New("pseudo-inverse does not reproduce the response matrix")
	// ErrTruncationCap is returned when the unfolded spectrum stays
	// negative up to the maximum truncation.
	ErrTruncationCap = errors.New("unfolded spectrum still negative at the truncation cap")
)

// ClosureTolerance is the floor on the relative Frobenius norm of
// Aₖ·A⁺·Aₖ − Aₖ. The limit actually applied grows with the conditioning of
// the retained singular values, see closureLimit.
const ClosureTolerance = 1e-9

// closureSlack multiplies the n·ε·cond(Aₖ) rounding estimate.
const closureSlack = 10

const machineEpsilon = 2.220446049250313e-16

// Response is an immutable decomposed response matrix. Changing the
// truncation builds a new Response.
type Response struct {
	migration *mat.Dense

	// A is the column-normalised response, reco bins × true bins.
	A *mat.Dense
	// Inverse is the truncated pseudo-inverse, true bins × reco bins.
	Inverse *mat.Dense
	// Singular holds every singular value of A in decreasing order.
	Singular []float64
	// Rank counts the singular values above numerical noise.
	Rank int
	// Truncation is the number of smallest non-zero singular values
	// dropped from the inverse.
	Truncation int
	// Closure is the relative residual of the Moore-Penrose check.
	Closure float64
	// ClosureLimit is the residual bound Closure was checked against.
	ClosureLimit float64
	// TrueCounts holds the per-true-bin migration totals used for
	// normalisation.
	TrueCounts []float64
}

// BuildResponse normalises a migration table (true × reco) per true bin and
// decomposes it, zeroing the truncate smallest non-zero singular values
// before forming the pseudo-inverse.
func BuildResponse(migration mat.Matrix, truncate int) (*Response, error) {
	nTrue, nReco := migration.Dims()
	if nTrue == 0 || nReco == 0 {
		return nil, fmt.Errorf("%w: empty migration matrix", ErrSingular)
	}
	if truncate < 0 {
		return nil, fmt.Errorf("truncation must be non-negative, got %d", truncate)
	}

	r := &Response{
		migration:  mat.DenseCopyOf(migration),
		A:          mat.NewDense(nReco, nTrue, nil),
		Truncation: truncate,
		TrueCounts: make([]float64, nTrue),
	}
	for t := 0; t < nTrue; t++ {
		row := mat.Row(nil, t, r.migration)
		for c, v := range row {
			if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("migration bin (%d, %d) holds %g", t, c, v)
			}
		}
		sum := floats.Sum(row)
		r.TrueCounts[t] = sum
		if sum == 0 {
			diagf("true bin %d has no entries; its response column is zero", t)
			continue
		}
		floats.Scale(1/sum, row)
		r.A.SetCol(t, row)
	}

	var svd mat.SVD
	if ok := svd.Factorize(r.A, mat.SVDThin); !ok {
		return nil, fmt.Errorf("%w: SVD did not converge", ErrSingular)
	}
	r.Singular = svd.Values(nil)
	r.Rank = numericalRank(r.Singular, nReco, nTrue)
	keep := r.Rank - truncate
	if keep <= 0 {
		return nil, fmt.Errorf("%w: rank %d, truncation %d", ErrSingular, r.Rank, truncate)
	}

	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	uk := u.Slice(0, nReco, 0, keep)
	vk := v.Slice(0, nTrue, 0, keep)

	// A⁺ = Vₖ Σₖ⁻¹ Uₖᵀ and Aₖ = Uₖ Σₖ Vₖᵀ.
	inv := make([]float64, keep)
	for i := range inv {
		inv[i] = 1 / r.Singular[i]
	}
	var vs, us mat.Dense
	vs.Mul(vk, mat.NewDiagDense(keep, inv))
	r.Inverse = mat.NewDense(nTrue, nReco, nil)
	r.Inverse.Mul(&vs, uk.T())

	us.Mul(uk, mat.NewDiagDense(keep, r.Singular[:keep]))
	ak := mat.NewDense(nReco, nTrue, nil)
	ak.Mul(&us, vk.T())

	r.Closure = closure(ak, r.Inverse)
	r.ClosureLimit = closureLimit(r.Singular[:keep], nReco, nTrue)
	diagf("response %dx%d: rank %d, truncation %d, closure %.3g (limit %.3g)", nReco, nTrue, r.Rank, truncate, r.Closure, r.ClosureLimit)
	if !(r.Closure <= r.ClosureLimit) {
		opsf("pseudo-inverse closure %.3g exceeds tolerance %.3g", r.Closure, r.ClosureLimit)
		return nil, fmt.Errorf("%w: residual %.3g > %.3g", ErrInversionClosure, r.Closure, r.ClosureLimit)
	}
	return r, nil
}

// ResponseFromHist builds a response from a 2D histogram with true values on
// the x axis and reco values on the y axis.
func ResponseFromHist(h *hist.Hist, truncate int) (*Response, error) {
	m, err := MigrationFromHist(h)
	if err != nil {
		return nil, err
	}
	return BuildResponse(m, truncate)
}

// MigrationFromHist converts a 2D histogram (x true, y reco) into a
// migration matrix.
func MigrationFromHist(h *hist.Hist) (*mat.Dense, error) {
	if h.Dim() != 2 {
		return nil, fmt.Errorf("migration histogram %q must be 2D, got %dD", h.Name, h.Dim())
	}
	nTrue, nReco := h.Axes[0].NBins(), h.Axes[1].NBins()
	m := mat.NewDense(nTrue, nReco, nil)
	for t := 0; t < nTrue; t++ {
		for r := 0; r < nReco; r++ {
			m.Set(t, r, h.At(t, r))
		}
	}
	return m, nil
}

// WithTruncation decomposes the same migration table with a different
// truncation.
func (r *Response) WithTruncation(k int) (*Response, error) {
	return BuildResponse(r.migration, k)
}

// Migration returns a copy of the migration table the response was built
// from.
func (r *Response) Migration() *mat.Dense {
	return mat.DenseCopyOf(r.migration)
}

// Retained returns the number of singular values kept in the inverse.
func (r *Response) Retained() int {
	return r.Rank - r.Truncation
}

// Fold applies the response to a true spectrum.
func (r *Response) Fold(truth []float64) ([]float64, error) {
	return apply(r.A, truth)
}

// Unfold applies the pseudo-inverse to a reco spectrum.
func (r *Response) Unfold(reco []float64) ([]float64, error) {
	return apply(r.Inverse, reco)
}

func apply(m mat.Matrix, x []float64) ([]float64, error) {
	rows, cols := m.Dims()
	if len(x) != cols {
		return nil, fmt.Errorf("spectrum has %d bins, matrix expects %d", len(x), cols)
	}
	out := mat.NewVecDense(rows, nil)
	out.MulVec(m, mat.NewVecDense(cols, append([]float64(nil), x...)))
	return out.RawVector().Data, nil
}

// numericalRank counts singular values above the LAPACK-style noise floor.
func numericalRank(s []float64, rows, cols int) int {
	if len(s) == 0 || s[0] == 0 {
		return 0
	}
	tol := float64(max(rows, cols)) * s[0] * machineEpsilon
	n := 0
	for _, v := range s {
		if v > tol {
			n++
		}
	}
	return n
}

// closureLimit scales the rounding expected in Aₖ·A⁺·Aₖ with the condition
// number of the kept singular values, never going below
// ClosureTolerance.
func closureLimit(kept []float64, rows, cols int) float64 {
	cond := kept[0] / kept[len(kept)-1]
	return math.Max(ClosureTolerance, closureSlack*float64(max(rows, cols))*machineEpsilon*cond)
}

// closure returns ‖Aₖ·A⁺·Aₖ − Aₖ‖_F / ‖Aₖ‖_F.
func closure(ak, pinv *mat.Dense) float64 {
	var tmp, back mat.Dense
	tmp.Mul(ak, pinv)
	back.Mul(&tmp, ak)
	back.Sub(&back, ak)
	norm := mat.Norm(ak, 2)
	if norm == 0 {
		return 0
	}
	return mat.Norm(&back, 2) / norm
}
