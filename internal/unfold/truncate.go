package unfold

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// negativeTolerance is the fraction of the largest unfolded bin below zero
// that still counts as non-negative.
const negativeTolerance = 1e-9

// AutoTruncate unfolds reco with increasing truncation, starting at zero,
// and returns the first response whose unfolded spectrum has no negative
// bin. A truncation whose pseudo-inverse fails closure is skipped like a
// negative spectrum. Running out of singular values or passing maxTruncation returns
// ErrTruncationCap.
func AutoTruncate(migration mat.Matrix, reco []float64, maxTruncation int) (*Response, []float64, error) {
	if maxTruncation < 0 {
		return nil, nil, fmt.Errorf("maximum truncation must be non-negative, got %d", maxTruncation)
	}
	for k := 0; k <= maxTruncation; k++ {
		r, err := BuildResponse(migration, k)
		if errors.Is(err, ErrSingular) && k > 0 {
			break
		}
		if errors.Is(err, ErrInversionClosure) && k < maxTruncation {
			diagf("truncation %d: %v, retrying", k, err)
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		unfolded, err := r.Unfold(reco)
		if err != nil {
			return nil, nil, err
		}
		if idx := firstNegative(unfolded); idx >= 0 {
			diagf("truncation %d: unfolded bin %d is %.4g, retrying", k, idx, unfolded[idx])
			continue
		}
		diagf("truncation %d gives a non-negative spectrum (%d of %d singular values kept)", k, r.Retained(), len(r.Singular))
		return r, unfolded, nil
	}
	opsf("no truncation up to %d yields a non-negative spectrum", maxTruncation)
	return nil, nil, fmt.Errorf("%w (max %d)", ErrTruncationCap, maxTruncation)
}

// firstNegative returns the index of the first bin below the tolerance, or
// -1.
func firstNegative(v []float64) int {
	if len(v) == 0 {
		return -1
	}
	scale := math.Max(math.Abs(floats.Max(v)), math.Abs(floats.Min(v)))
	for i, x := range v {
		if x < -negativeTolerance*scale {
			return i
		}
	}
	return -1
}
