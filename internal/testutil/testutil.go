// Package testutil provides shared test fixtures for smearing runs.
package testutil

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/smearceptance/internal/eventio"
	"github.com/banshee-data/smearceptance/internal/particle"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t testing.TB, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// WriteFile writes body to name inside a fresh temp dir and returns the path.
func WriteFile(t testing.TB, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

// Final returns a final-state particle of the table mass with kinetic
// energy ke (MeV) along +z.
func Final(pdg int, ke float64) particle.Particle {
	return particle.NewFromKE(pdg, ke, r3.Vec{Z: 1}, particle.StatusFinal)
}

// EventsJSONL encodes events as JSON lines numbered from 1.
func EventsJSONL(t testing.TB, events ...*particle.Event) string {
	t.Helper()
	var buf bytes.Buffer
	w := eventio.NewWriter(&buf)
	for i, ev := range events {
		if err := w.WriteEvent(eventio.EncodeEvent(int64(i+1), 1, ev)); err != nil {
			t.Fatalf("encode event %d: %v", i+1, err)
		}
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("flush events: %v", err)
	}
	return buf.String()
}

// MuonSample returns n single-muon events with kinetic energies spread
// evenly over [lo, hi).
func MuonSample(n int, lo, hi float64) []*particle.Event {
	events := make([]*particle.Event, n)
	for i := range events {
		ke := lo + (hi-lo)*(float64(i)+0.5)/float64(n)
		events[i] = particle.NewEvent(Final(particle.PDGMuon, ke))
	}
	return events
}
