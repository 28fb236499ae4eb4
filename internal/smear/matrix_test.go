package smear

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/smearceptance/internal/confnode"
	"github.com/banshee-data/smearceptance/internal/particle"
	"github.com/banshee-data/smearceptance/internal/reco"
)

// Slices [0,100) empty, [100,200) -> reco [300,400), [200,300) -> reco [0,100).
const migrationContent = "0,0,1, 0,0,0, 0,0,0, 0,1,0"

func matrixNode(smearAttrs map[string]string, extra ...*confnode.Node) *confnode.Node {
	attrs := map[string]string{
		"PDG":     "13",
		"XEdges":  "0,100,200,300",
		"YEdges":  "0,100,200,300,400",
		"Content": migrationContent,
	}
	for k, v := range smearAttrs {
		attrs[k] = v
	}
	children := append([]*confnode.Node{confnode.New("Smear", attrs)}, extra...)
	return confnode.New("TrackedMomentumMatrixSmearer", map[string]string{"Name": "ms"}, children...)
}

func TestMatrixSmearer_Slices(t *testing.T) {
	tests := []struct {
		name  string
		attrs map[string]string
	}{
		{"MeV", nil},
		{"GeV unit", map[string]string{"XEdges": "0,0.1,0.2,0.3", "YEdges": "0,0.1,0.2,0.3,0.4", "Unit": "GeV"}},
		{"explicit scale", map[string]string{"XEdges": "0,0.1,0.2,0.3", "YEdges": "0,0.1,0.2,0.3,0.4", "UnitsScale": "1000"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := build(t, matrixNode(tt.attrs))
			for i := 0; i < 200; i++ {
				mu := muonAt(150)
				mu.Mom = r3.Vec{X: 90, Y: 120}
				ri, err := Smearcept(c, particle.NewEvent(mu))
				require.NoError(t, err)
				require.Equal(t, 1, ri.NumTracks())
				p := r3.Norm(ri.RecObjMom[0])
				require.GreaterOrEqual(t, p, 300.0)
				require.Less(t, p, 400.0)
				assert.InDelta(t, 0.6, ri.RecObjMom[0].X/p, 1e-12, "direction kept")
			}
		})
	}
}

func TestMatrixSmearer_DropsAndCounts(t *testing.T) {
	c := build(t, matrixNode(nil))
	ev := particle.NewEvent(
		muonAt(50),  // empty slice
		muonAt(500), // above range
		muonAt(250), // reco in [0,100)
		final(particle.PDGProton, 100, r3.Vec{Z: 1}),
	)
	ri, err := Smearcept(c, ev)
	require.NoError(t, err)
	require.Equal(t, 1, ri.NumTracks())
	assert.Equal(t, []int{2}, ri.TrueLinkedPartIdx)
	assert.Less(t, r3.Norm(ri.RecObjMom[0]), 100.0)

	st := c.Stats()
	assert.Equal(t, 4, st.Particles)
	assert.Equal(t, 1, st.EmptySlice)
	assert.Equal(t, 1, st.OutOfRange)
	assert.Equal(t, 1, st.Ignored)
	assert.Equal(t, 1, st.Tracks)
}

func TestMatrixSmearer_TotalEnergyBelowMass(t *testing.T) {
	c := build(t, confnode.New("MatrixSmearer", nil,
		confnode.New("Smear", map[string]string{
			"PDG": "13", "Kinematics": "TE", "XEdges": "0,1000", "YEdges": "0,50", "Content": "1",
		})))
	ri, err := Smearcept(c, particle.NewEvent(muonAt(50)))
	require.NoError(t, err)
	assert.Zero(t, ri.NumTracks())
	assert.Equal(t, 1, c.Stats().NaN)
}

func TestMatrixSmearer_Fallback(t *testing.T) {
	c := build(t, matrixNode(nil,
		confnode.New("GaussSmear", map[string]string{"PDG": "2212", "Width": "0"}),
		confnode.New("VisESmear", map[string]string{"PDG": "2112", "Width": "0"}),
	))
	proton := final(particle.PDGProton, 100, r3.Vec{Z: 1})
	neutron := final(particle.PDGNeutron, 30, r3.Vec{X: 1})
	ri, err := Smearcept(c, particle.NewEvent(muonAt(150), proton, neutron))
	require.NoError(t, err)

	require.Equal(t, []int{particle.PDGMuon, particle.PDGProton}, ri.RecObjClass)
	assert.Equal(t, proton.Mom, ri.RecObjMom[1])
	require.Len(t, ri.RecVisibleEnergy, 1)
	assert.InDelta(t, 30, ri.RecVisibleEnergy[0], 1e-9)
	assert.Equal(t, 2, c.Stats().Fallback)
}

func TestMatrixSmearer_NestedFallbackAndRefine(t *testing.T) {
	c := build(t, matrixNode(nil,
		confnode.New("GaussianSmearer", nil,
			confnode.New("GaussSmear", map[string]string{"PDG": "2212", "Width": "0"}))))

	ri := reco.New()
	ri.AddTrack(r3.Vec{Z: 150}, particle.PDGMuon, 0)
	ri.AddTrack(r3.Vec{Z: 900}, particle.PDGMuon, 1)
	ri.AddTrack(r3.Vec{Y: 80}, particle.PDGProton, 2)
	require.NoError(t, Refine(c, ri))
	require.NoError(t, ri.Validate())

	require.Equal(t, []int{0, 2}, ri.TrueLinkedPartIdx, "out-of-range track removed")
	assert.GreaterOrEqual(t, ri.RecObjMom[0].Z, 300.0)
	assert.Equal(t, r3.Vec{Y: 80}, ri.RecObjMom[1])
}

func TestMatrixSmearer_ConfigErrors(t *testing.T) {
	tests := []struct {
		name  string
		attrs map[string]string
		drop  string
	}{
		{"1D histogram", map[string]string{"Content": "1,1,1"}, "YEdges"},
		{"bad kinematics", map[string]string{"Kinematics": "CosTheta"}, ""},
		{"bad unit", map[string]string{"Unit": "parsec"}, ""},
		{"scale and unit", map[string]string{"Unit": "GeV", "UnitsScale": "1000"}, ""},
		{"content size", map[string]string{"Content": "1,2"}, ""},
		{"missing file", map[string]string{"InputFile": "nope.root", "HistName": "h"}, ""},
		{"no pdg", nil, "PDG"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := matrixNode(tt.attrs)
			delete(n.Children[0].Attrs, tt.drop)
			_, err := NewBuilder(1, t.TempDir()).Build(n)
			assert.ErrorIs(t, err, confnode.ErrConfig)
		})
	}
}
