package smear

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/smearceptance/internal/confnode"
	"github.com/banshee-data/smearceptance/internal/particle"
	"github.com/banshee-data/smearceptance/internal/reco"
)

func gaussSmearer(specs ...*confnode.Node) *confnode.Node {
	return confnode.New("GaussianSmearer", map[string]string{"Name": "gs"}, specs...)
}

// muonAt returns a final-state muon with momentum magnitude p along z.
func muonAt(p float64) particle.Particle {
	m, _ := particle.Mass(particle.PDGMuon)
	return particle.New(particle.PDGMuon, r3.Vec{Z: p}, m, particle.StatusFinal)
}

func TestGaussianSmearer_FractionalMomentum(t *testing.T) {
	c := build(t, gaussSmearer(confnode.New("GaussSmear", map[string]string{
		"PDG": "13", "Type": "Frac", "Kinematic": "Momentum", "Width": "0.1",
	})))

	const n = 10000
	values := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		ri, err := Smearcept(c, particle.NewEvent(muonAt(1000)))
		require.NoError(t, err)
		require.Equal(t, 1, ri.NumTracks())
		p := r3.Norm(ri.RecObjMom[0])
		require.Greater(t, p, 0.0)
		values = append(values, p)

		dir := r3.Unit(ri.RecObjMom[0])
		require.InDelta(t, 1.0, dir.Z, 1e-12, "momentum smearing keeps direction")
	}
	mean, std := stat.MeanStdDev(values, nil)
	assert.InDelta(t, 1000, mean, 5)
	assert.InDelta(t, 100, std, 5)
}

func TestGaussianSmearer_CosThetaBounds(t *testing.T) {
	c := build(t, gaussSmearer(confnode.New("GaussSmear", map[string]string{
		"PDG": "13", "Type": "Abs", "Kinematic": "CosTheta", "Width": "0.8",
	})))

	for i := 0; i < 2000; i++ {
		ri, err := Smearcept(c, particle.NewEvent(muonAt(500)))
		require.NoError(t, err)
		ct := particle.FromMomentum(ri.RecObjMom[0], 0, particle.KinCosTheta)
		require.GreaterOrEqual(t, ct, -1.0)
		require.LessOrEqual(t, ct, 1.0)
		assert.InDelta(t, 500, r3.Norm(ri.RecObjMom[0]), 1e-9, "angular smearing keeps magnitude")
	}
	assert.Positive(t, c.Stats().Redraws, "a width of 0.8 around cos=1 must redraw")
}

func TestGaussianSmearer_KEPositive(t *testing.T) {
	c := build(t, gaussSmearer(confnode.New("GaussSmear", map[string]string{
		"PDG": "2212", "Type": "Abs", "Kinematic": "KE", "Width": "30",
	})))
	for i := 0; i < 1000; i++ {
		ri, err := Smearcept(c, particle.NewEvent(final(particle.PDGProton, 20, r3.Vec{X: 1})))
		require.NoError(t, err)
		m, _ := particle.Mass(particle.PDGProton)
		require.Greater(t, particle.FromMomentum(ri.RecObjMom[0], m, particle.KinKE), 0.0)
	}
}

func TestGaussianSmearer_SequentialSpecs(t *testing.T) {
	c := build(t, gaussSmearer(
		confnode.New("GaussSmear", map[string]string{"PDG": "13", "Kinematic": "Momentum", "Width": "0"}),
		confnode.New("GaussSmear", map[string]string{"PDG": "13", "Kinematic": "Theta", "Width": "0"}),
	))
	mu := muonAt(750)
	ri, err := Smearcept(c, particle.NewEvent(mu))
	require.NoError(t, err)
	assert.InDelta(t, 0, r3.Norm(r3.Sub(mu.Mom, ri.RecObjMom[0])), 1e-9, "zero widths leave the track unchanged")
}

func TestGaussianSmearer_Degenerate(t *testing.T) {
	c := build(t, gaussSmearer(confnode.New("GaussSmear", map[string]string{
		"PDG": "13", "Type": "Abs", "Kinematic": "CosTheta", "Width": "1e12",
	})))
	_, err := Smearcept(c, particle.NewEvent(muonAt(500)))
	assert.ErrorIs(t, err, ErrDegenerateSmear)
	assert.Equal(t, maxSmearAttempts, c.Stats().Redraws)
}

func TestGaussianSmearer_FuncWidth(t *testing.T) {
	params := confnode.New("Params", map[string]string{"a": "0", "b": "0"})
	c := build(t, gaussSmearer(confnode.New("GaussSmear", map[string]string{
		"PDG": "13", "Type": "Func", "Kinematic": "Momentum", "Function": "[a] + b*sqrt(x)",
	}, params)))

	mu := muonAt(400)
	ri, err := Smearcept(c, particle.NewEvent(mu))
	require.NoError(t, err)
	assert.InDelta(t, 400, r3.Norm(ri.RecObjMom[0]), 1e-9)
}

func TestWidthFunc(t *testing.T) {
	f, err := newWidthFunc("[a] + b*x", map[string]float64{"a": 5, "b": 0.02})
	require.NoError(t, err)
	v, err := f.eval(100)
	require.NoError(t, err)
	assert.InDelta(t, 7, v, 1e-12)

	f, err = newWidthFunc("[0] * pow(x, [1])", map[string]float64{"0": 2, "1": 0.5})
	require.NoError(t, err)
	v, err = f.eval(16)
	require.NoError(t, err)
	assert.InDelta(t, 8, v, 1e-12)

	_, err = newWidthFunc("[c] * x", map[string]float64{"a": 1})
	assert.Error(t, err)

	_, err = newWidthFunc("x +", nil)
	assert.Error(t, err)

	_, err = newWidthFunc("'text'", nil)
	assert.Error(t, err)
}

func TestGaussianSmearer_VisibleEnergyFloor(t *testing.T) {
	c := build(t, gaussSmearer(confnode.New("VisESmear", map[string]string{
		"PDG": "2112", "Type": "Abs", "Kinematic": "KEVis", "Width": "1000",
	})))
	var zeros int
	for i := 0; i < 500; i++ {
		ri, err := Smearcept(c, particle.NewEvent(final(particle.PDGNeutron, 5, r3.Vec{Z: 1})))
		require.NoError(t, err)
		require.Len(t, ri.RecVisibleEnergy, 1)
		require.GreaterOrEqual(t, ri.RecVisibleEnergy[0], 0.0)
		if ri.RecVisibleEnergy[0] == 0 {
			zeros++
		}
	}
	assert.Positive(t, zeros, "wide smear around 5 MeV must clamp some deposits to zero")
}

func TestGaussianSmearer_Refine(t *testing.T) {
	c := build(t, gaussSmearer(
		confnode.New("GaussSmear", map[string]string{"PDG": "13", "Type": "Frac", "Width": "0.05"}),
		confnode.New("VisESmear", map[string]string{"PDG": "2112", "Type": "Abs", "Kinematic": "KEVis", "Width": "0"}),
	))
	ri := reco.New()
	ri.AddTrack(r3.Vec{X: 300}, particle.PDGMuon, 0)
	ri.AddTrack(r3.Vec{Y: 200}, particle.PDGProton, 1)
	ri.AddVisibleEnergy(42, particle.PDGNeutron)

	require.NoError(t, Refine(c, ri))
	require.NoError(t, ri.Validate())
	assert.NotEqual(t, r3.Vec{X: 300}, ri.RecObjMom[0])
	assert.Zero(t, ri.RecObjMom[0].Y, "direction kept")
	assert.Equal(t, r3.Vec{Y: 200}, ri.RecObjMom[1], "unconfigured species untouched")
	assert.Equal(t, []float64{42}, ri.RecVisibleEnergy)
}

func TestGaussianSmearer_ConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		spec *confnode.Node
	}{
		{"bad type", confnode.New("GaussSmear", map[string]string{"PDG": "13", "Type": "Wide", "Width": "1"})},
		{"bad kinematic", confnode.New("GaussSmear", map[string]string{"PDG": "13", "Kinematic": "Mass", "Width": "1"})},
		{"phi not allowed", confnode.New("GaussSmear", map[string]string{"PDG": "13", "Kinematic": "Phi", "Width": "1"})},
		{"missing width", confnode.New("GaussSmear", map[string]string{"PDG": "13"})},
		{"negative width", confnode.New("GaussSmear", map[string]string{"PDG": "13", "Width": "-1"})},
		{"missing function", confnode.New("GaussSmear", map[string]string{"PDG": "13", "Type": "Func"})},
		{"bad vis kinematic", confnode.New("VisESmear", map[string]string{"PDG": "13", "Kinematic": "Momentum", "Width": "1"})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewBuilder(1, "").Build(gaussSmearer(tt.spec))
			assert.ErrorIs(t, err, confnode.ErrConfig)
		})
	}
}

func TestPhysical(t *testing.T) {
	assert.False(t, physical(particle.KinMomentum, 0))
	assert.True(t, physical(particle.KinKE, 1e-9))
	assert.True(t, physical(particle.KinCosTheta, -1))
	assert.False(t, physical(particle.KinCosTheta, 1.0001))
	assert.True(t, physical(particle.KinTheta, -7))
	assert.False(t, physical(particle.KinTheta, math.NaN()))
}
