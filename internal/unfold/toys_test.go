package unfold

import (
	"bytes"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestPropagateToys_ZeroErrorsMatchDirectProduct(t *testing.T) {
	r, err := BuildResponse(wellConditioned(), 0)
	require.NoError(t, err)
	input := []float64{90, 110, 95, 105}

	res, err := PropagateToys(input, make([]float64, 4), r.Inverse, ToyConfig{Seed: 3})
	require.NoError(t, err)
	assert.Equal(t, DefaultToys, res.N)

	direct, err := r.Unfold(input)
	require.NoError(t, err)
	assert.Equal(t, direct, res.Mean)
	assert.Equal(t, make([]float64, 4), res.StdDev)
	assert.InDelta(t, 0, mat.Norm(res.Covariance, 2), 1e-18)
}

func TestPropagateToys_GaussianWidths(t *testing.T) {
	// Output bin 0 is x0 + x1, bin 1 is x0 - x1.
	m := mat.NewDense(2, 2, []float64{1, 1, 1, -1})
	res, err := PropagateToys([]float64{100, 50}, []float64{3, 4}, m, ToyConfig{N: 20000, Seed: 11})
	require.NoError(t, err)

	assert.InDelta(t, 150, res.Mean[0], 0.2)
	assert.InDelta(t, 50, res.Mean[1], 0.2)
	assert.InDelta(t, 5, res.StdDev[0], 0.1)
	assert.InDelta(t, 5, res.StdDev[1], 0.1)
	assert.InDelta(t, 9-16, res.Covariance.At(0, 1), 0.6)
	assert.InDelta(t, res.StdDev[0]*res.StdDev[0], res.Covariance.At(0, 0), 1e-6)
}

func TestPropagateToys_Reproducible(t *testing.T) {
	m := mat.NewDense(1, 2, []float64{1, 2})
	run := func(seed uint64) *ToyResult {
		res, err := PropagateToys([]float64{10, 20}, []float64{1, 1}, m, ToyConfig{N: 50, Seed: seed})
		require.NoError(t, err)
		return res
	}
	a, b := run(1), run(1)
	if diff := cmp.Diff(a.Mean, b.Mean); diff != "" {
		t.Errorf("same seed, different means (-a +b):\n%s", diff)
	}
	assert.NotEqual(t, a.Mean, run(2).Mean)
}

func TestPropagateToys_NoNegative(t *testing.T) {
	id := mat.NewDense(1, 1, []float64{1})
	res, err := PropagateToys([]float64{0.5}, []float64{2}, id, ToyConfig{N: 500, NoNegative: true, Seed: 5})
	require.NoError(t, err)
	assert.Greater(t, res.Mean[0], 0.5, "truncated at zero, the mean moves up")

	_, err = PropagateToys([]float64{-50}, []float64{1}, id, ToyConfig{N: 10, NoNegative: true})
	assert.ErrorIs(t, err, ErrNegativeThrow)
	_, err = PropagateToys([]float64{-1}, []float64{0}, id, ToyConfig{N: 10, NoNegative: true})
	assert.ErrorIs(t, err, ErrNegativeThrow)
}

func TestPropagateToys_Poisson(t *testing.T) {
	id := mat.NewDense(2, 2, []float64{1, 0, 0, 1})
	res, err := PropagateToys([]float64{25, 0}, nil, id, ToyConfig{N: 20000, Mode: ThrowPoisson, Seed: 8})
	require.NoError(t, err)
	assert.InDelta(t, 25, res.Mean[0], 0.2)
	assert.InDelta(t, 5, res.StdDev[0], 0.1)
	assert.Zero(t, res.Mean[1])
	for _, v := range mat.Col(nil, 0, res.Covariance) {
		assert.False(t, math.IsNaN(v))
	}
}

func TestPropagateToys_Errors(t *testing.T) {
	m := mat.NewDense(1, 2, []float64{1, 1})
	tests := []struct {
		name  string
		input []float64
		errs  []float64
		cfg   ToyConfig
	}{
		{"input size", []float64{1}, []float64{1}, ToyConfig{}},
		{"error size", []float64{1, 2}, []float64{1}, ToyConfig{}},
		{"negative error", []float64{1, 2}, []float64{1, -1}, ToyConfig{}},
		{"one toy", []float64{1, 2}, []float64{1, 1}, ToyConfig{N: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := PropagateToys(tt.input, tt.errs, m, tt.cfg)
			assert.Error(t, err)
		})
	}
}

func TestParseThrowMode(t *testing.T) {
	for _, s := range []string{"gaussian", "Gaussian", ""} {
		m, err := ParseThrowMode(s)
		require.NoError(t, err)
		assert.Equal(t, ThrowGaussian, m)
	}
	m, err := ParseThrowMode("poisson")
	require.NoError(t, err)
	assert.Equal(t, "poisson", m.String())
	_, err = ParseThrowMode("uniform")
	assert.Error(t, err)
}

func TestSetLogWriters(t *testing.T) {
	var diag bytes.Buffer
	SetLogWriters(nil, &diag, nil)
	defer SetLogWriters(nil, nil, nil)

	_, err := BuildResponse(wellConditioned(), 1)
	require.NoError(t, err)
	assert.Contains(t, diag.String(), "[unfold] ")
	assert.Contains(t, diag.String(), "truncation 1")
}
