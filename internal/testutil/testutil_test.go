package testutil

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/smearceptance/internal/eventio"
	"github.com/banshee-data/smearceptance/internal/particle"
)

func TestAssertions(t *testing.T) {
	t.Parallel()
	AssertNoError(t, nil)
	AssertError(t, os.ErrNotExist)
}

func TestWriteFile(t *testing.T) {
	path := WriteFile(t, "nd.yaml", "a: 1\n")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "a: 1\n", string(data))
}

func TestFinal(t *testing.T) {
	mu := Final(particle.PDGMuon, 200)
	assert.True(t, mu.IsFinal())
	assert.InDelta(t, 200, mu.KE(), 1e-9)
	assert.Zero(t, mu.Mom.X)
}

func TestEventsJSONL(t *testing.T) {
	events := MuonSample(4, 0, 400)
	require.Len(t, events, 4)
	assert.InDelta(t, 50, events[0].Particles[0].KE(), 1e-9)
	assert.InDelta(t, 350, events[3].Particles[0].KE(), 1e-9)

	r := eventio.NewReader(strings.NewReader(EventsJSONL(t, events...)))
	for i := range events {
		ev, err := r.Next()
		require.NoError(t, err)
		assert.Equal(t, int64(i+1), ev.ID)
		assert.InDelta(t, events[i].Particles[0].E, ev.Particles[0].E, 1e-9)
	}
}
