package eventio

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/smearceptance/internal/particle"
	"github.com/banshee-data/smearceptance/internal/reco"
)

const sample = `{"id": 7, "weight": 0.5, "particles": [{"pdg": 13, "px": 0, "py": 0, "pz": 300}, {"pdg": 2112, "px": 10, "py": 0, "pz": 0, "e": 939.62, "status": "initial"}]}

{"particles": [{"pdg": 22, "px": 0, "py": 5, "pz": 0}]}
`

func TestReader(t *testing.T) {
	r := NewReader(strings.NewReader(sample))

	ev, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, int64(7), ev.ID)
	assert.Equal(t, 0.5, ev.Weight)
	require.Len(t, ev.Particles, 2)

	mu := ev.Particles[0]
	m, _ := particle.Mass(particle.PDGMuon)
	assert.InDelta(t, m, mu.M(), 1e-9, "energy from table mass")
	assert.True(t, mu.IsFinal())
	assert.Equal(t, particle.StatusInitial, ev.Particles[1].Status)
	assert.Equal(t, 939.62, ev.Particles[1].E)

	ev, err = r.Next()
	require.NoError(t, err)
	assert.Equal(t, int64(3), ev.ID, "blank line skipped, id from line number")
	assert.Equal(t, 1.0, ev.Weight)
	assert.InDelta(t, 5, ev.Particles[0].E, 1e-12)

	_, err = r.Next()
	assert.Equal(t, io.EOF, err)
}

func TestReader_Errors(t *testing.T) {
	tests := []struct {
		name string
		line string
		want string
	}{
		{"bad json", `{"particles": [}`, "line 1"},
		{"unknown status", `{"particles": [{"pdg": 13, "status": "virtual"}]}`, "virtual"},
		{"unknown mass", `{"particles": [{"pdg": 999999, "pz": 1}]}`, "999999"},
		{"off shell", `{"particles": [{"pdg": 13, "pz": 100, "e": 50}]}`, "below momentum"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewReader(strings.NewReader(tt.line)).Next()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestWriter_RoundTrip(t *testing.T) {
	ev := particle.NewEvent(
		particle.NewFromKE(particle.PDGProton, 50, r3.Vec{X: 1}, particle.StatusFinal),
		particle.NewFromKE(particle.PDGPiPlus, 20, r3.Vec{Y: 1}, particle.StatusIntermediate),
	)
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteEvent(EncodeEvent(1, 2, ev)))
	require.NoError(t, w.Flush())
	assert.Equal(t, 1, w.Count())

	got, err := NewReader(&buf).Next()
	require.NoError(t, err)
	if diff := cmp.Diff(ev.Particles, got.Particles); diff != "" {
		t.Errorf("particles differ (-want +got):\n%s", diff)
	}
	assert.Equal(t, 2.0, got.Weight)
}

func TestWriter_Reco(t *testing.T) {
	ri := reco.New()
	ri.AddTrack(r3.Vec{Z: 100}, 13, 0)
	ri.AddVisibleEnergy(12.5, 2112)

	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteReco(4, ri))
	require.NoError(t, w.WriteReco(5, reco.New()))
	require.NoError(t, w.Flush())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"id":4`)
	assert.Contains(t, lines[0], `"rec_visible_energy":[12.5]`)
	assert.Contains(t, lines[0], `"true_contrib_pdgs":[2112]`)
}
