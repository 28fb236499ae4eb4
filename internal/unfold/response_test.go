package unfold

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/smearceptance/internal/hist"
)

// gaussianMigration is an n×n migration with a gaussian reco spread of width
// bins around each true bin.
func gaussianMigration(n int, width float64) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for t := 0; t < n; t++ {
		for r := 0; r < n; r++ {
			d := float64(t - r)
			m.Set(t, r, 1000*math.Exp(-d*d/(2*width*width)))
		}
	}
	return m
}

// wellConditioned is a diagonally dominant 4x4 migration table.
func wellConditioned() *mat.Dense {
	return mat.NewDense(4, 4, []float64{
		80, 15, 4, 1,
		10, 75, 10, 5,
		3, 12, 78, 7,
		1, 4, 15, 80,
	})
}

func TestBuildResponse_Normalisation(t *testing.T) {
	r, err := BuildResponse(wellConditioned(), 0)
	require.NoError(t, err)

	for col := 0; col < 4; col++ {
		assert.InDelta(t, 1, floats.Sum(mat.Col(nil, col, r.A)), 1e-12, "column %d", col)
	}
	assert.Equal(t, []float64{100, 100, 100, 100}, r.TrueCounts)
	assert.Equal(t, 4, r.Rank)
	assert.Equal(t, 4, r.Retained())
	assert.LessOrEqual(t, r.Closure, r.ClosureLimit)
	assert.GreaterOrEqual(t, r.ClosureLimit, ClosureTolerance)
	for i := 1; i < len(r.Singular); i++ {
		assert.GreaterOrEqual(t, r.Singular[i-1], r.Singular[i])
	}

	truth := []float64{120, 300, 80, 40}
	reco, err := r.Fold(truth)
	require.NoError(t, err)
	assert.InDelta(t, floats.Sum(truth), floats.Sum(reco), 1e-9, "folding conserves events")
	back, err := r.Unfold(reco)
	require.NoError(t, err)
	assert.True(t, floats.EqualApprox(truth, back, 1e-9), "got %v", back)

	_, err = r.Unfold([]float64{1, 2})
	assert.Error(t, err)
}

func TestBuildResponse_TruncationMonotonic(t *testing.T) {
	base, err := BuildResponse(wellConditioned(), 0)
	require.NoError(t, err)

	prev := base.Retained() + 1
	for k := 0; k < base.Rank; k++ {
		r, err := base.WithTruncation(k)
		require.NoError(t, err, "k=%d", k)
		assert.Less(t, r.Retained(), prev, "k=%d keeps fewer singular values", k)
		assert.LessOrEqual(t, r.Closure, r.ClosureLimit, "k=%d", k)
		assert.Equal(t, k, r.Truncation)
		prev = r.Retained()
	}

	_, err = base.WithTruncation(base.Rank)
	assert.ErrorIs(t, err, ErrSingular)
	_, err = base.WithTruncation(-1)
	assert.Error(t, err)

	assert.True(t, mat.Equal(wellConditioned(), base.Migration()), "migration kept intact")
}

func TestBuildResponse_EmptyTrueBin(t *testing.T) {
	m := mat.NewDense(3, 3, []float64{
		10, 0, 0,
		0, 0, 0,
		0, 2, 8,
	})
	r, err := BuildResponse(m, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Rank)
	assert.Zero(t, mat.Norm(r.A.ColView(1), 2))
	assert.Equal(t, []float64{10, 0, 10}, r.TrueCounts)
}

func TestBuildResponse_Errors(t *testing.T) {
	_, err := BuildResponse(mat.NewDense(2, 2, []float64{1, -1, 0, 1}), 0)
	assert.Error(t, err)

	_, err = BuildResponse(mat.NewDense(2, 2, nil), 0)
	assert.ErrorIs(t, err, ErrSingular)
}

func TestMigrationFromHist(t *testing.T) {
	// x (true) varies fastest: content[t + 2*r].
	h, err := hist.FromTable("migration", []float64{9, 1, 2, 8}, []float64{0, 1, 2}, []float64{0, 1, 2})
	require.NoError(t, err)
	m, err := MigrationFromHist(h)
	require.NoError(t, err)
	assert.True(t, mat.Equal(mat.NewDense(2, 2, []float64{9, 2, 1, 8}), m))

	r, err := ResponseFromHist(h, 0)
	require.NoError(t, err)
	assert.InDelta(t, 9.0/11, r.A.At(0, 0), 1e-12)

	h1, err := hist.FromTable("flat", []float64{1, 2}, []float64{0, 1, 2})
	require.NoError(t, err)
	_, err = MigrationFromHist(h1)
	assert.Error(t, err)
}

func TestAutoTruncate(t *testing.T) {
	// Nearly degenerate columns make the direct inverse oscillate.
	m := mat.NewDense(2, 2, []float64{
		50, 50,
		49, 51,
	})
	reco := []float64{50, 48}

	direct, err := BuildResponse(m, 0)
	require.NoError(t, err)
	unfolded, err := direct.Unfold(reco)
	require.NoError(t, err)
	require.Less(t, floats.Min(unfolded), 0.0)

	r, got, err := AutoTruncate(m, reco, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Truncation)
	for i, v := range got {
		assert.GreaterOrEqual(t, v, 0.0, "bin %d", i)
	}

	_, _, err = AutoTruncate(m, reco, 0)
	assert.ErrorIs(t, err, ErrTruncationCap)

	r, got, err = AutoTruncate(wellConditioned(), []float64{100, 100, 100, 100}, 2)
	require.NoError(t, err)
	assert.Zero(t, r.Truncation)
	assert.Len(t, got, 4)
}

func TestAutoTruncate_OutOfSingularValues(t *testing.T) {
	// Negative reco counts stay negative for every truncation the rank
	// allows.
	m := mat.NewDense(2, 2, []float64{
		3, 1,
		1, 3,
	})
	_, _, err := AutoTruncate(m, []float64{-1, -1}, 10)
	assert.ErrorIs(t, err, ErrTruncationCap)
}

func TestFirstNegative(t *testing.T) {
	assert.Equal(t, -1, firstNegative(nil))
	assert.Equal(t, -1, firstNegative([]float64{1e3, -1e-10}))
	assert.Equal(t, 1, firstNegative([]float64{1e3, -1}))
}

func TestBuildResponse_IllConditioned(t *testing.T) {
	for _, width := range []float64{2, 2.5, 3} {
		t.Run(fmt.Sprintf("width %g", width), func(t *testing.T) {
			r, err := BuildResponse(gaussianMigration(20, width), 0)
			require.NoError(t, err)
			assert.LessOrEqual(t, r.Closure, r.ClosureLimit)
			assert.Positive(t, r.Rank)
		})
	}

	limit := closureLimit([]float64{1, 1e-10}, 20, 20)
	assert.Greater(t, limit, ClosureTolerance, "limit grows with conditioning")
	assert.Equal(t, ClosureTolerance, closureLimit([]float64{1, 0.5}, 4, 4))
}

func TestAutoTruncate_IllConditioned(t *testing.T) {
	m := gaussianMigration(20, 2.5)
	truth := make([]float64, 20)
	for i := range truth {
		truth[i] = 200 + 10*float64(i)
	}
	folded, err := BuildResponse(m, 0)
	require.NoError(t, err)
	reco, err := folded.Fold(truth)
	require.NoError(t, err)

	r, got, err := AutoTruncate(m, reco, 15)
	require.NoError(t, err)
	require.NotNil(t, r)
	for i, v := range got {
		assert.GreaterOrEqual(t, v, 0.0, "bin %d", i)
		assert.InDelta(t, truth[i], v, 1, "bin %d", i)
	}
}
