package reco

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestInfo_AddAndValidate(t *testing.T) {
	ri := New()
	if ri.Weight != 1 {
		t.Fatalf("Weight = %v, want 1", ri.Weight)
	}

	ri.AddTrack(r3.Vec{Z: 100}, 13, 2)
	ri.AddTrack(r3.Vec{X: 50}, 2212, 3)
	ri.AddVisibleEnergy(12.5, 2112)

	if err := ri.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
	if ri.NumTracks() != 2 {
		t.Errorf("NumTracks() = %d, want 2", ri.NumTracks())
	}
	if ri.TotalVisibleEnergy() != 12.5 {
		t.Errorf("TotalVisibleEnergy() = %v, want 12.5", ri.TotalVisibleEnergy())
	}
}

func TestInfo_RemoveTrack(t *testing.T) {
	ri := New()
	ri.AddTrack(r3.Vec{Z: 1}, 13, 0)
	ri.AddTrack(r3.Vec{Z: 2}, 211, 1)
	ri.AddTrack(r3.Vec{Z: 3}, 2212, 2)

	ri.RemoveTrack(1)

	want := &Info{
		RecObjMom:         []r3.Vec{{Z: 1}, {Z: 3}},
		RecObjClass:       []int{13, 2212},
		TrueLinkedPartIdx: []int{0, 2},
		Weight:            1,
	}
	if diff := cmp.Diff(want, ri); diff != "" {
		t.Errorf("RemoveTrack mismatch (-want +got):\n%s", diff)
	}
}

func TestInfo_Merge(t *testing.T) {
	a := New()
	a.AddTrack(r3.Vec{Z: 1}, 13, 0)
	b := New()
	b.Weight = 0.5
	b.AddVisibleEnergy(4, 111)

	a.Merge(b)
	a.Merge(nil)

	if err := a.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
	if a.Weight != 0.5 {
		t.Errorf("Weight = %v, want 0.5", a.Weight)
	}
	if len(a.RecVisibleEnergy) != 1 || a.TrueContribPDGs[0] != 111 {
		t.Errorf("visible energy not merged: %+v", a)
	}
}

func TestInfo_ValidateMisaligned(t *testing.T) {
	ri := New()
	ri.RecObjMom = append(ri.RecObjMom, r3.Vec{})
	if err := ri.Validate(); err == nil {
		t.Error("expected error for misaligned tracks")
	}

	ri = New()
	ri.RecVisibleEnergy = []float64{1}
	if err := ri.Validate(); err == nil {
		t.Error("expected error for misaligned deposits")
	}
}
