// Package reco defines the per-event output record of a smearing chain.
package reco

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"
)

// Info holds the reconstructed view of one event: tracks resolved into
// individual objects, and visible energy that was not.
//
// RecObjMom, RecObjClass and TrueLinkedPartIdx are index-aligned, as are
// RecVisibleEnergy and TrueContribPDGs.
type Info struct {
	RecObjMom         []r3.Vec `json:"rec_obj_mom"`
	RecObjClass       []int    `json:"rec_obj_class"`
	TrueLinkedPartIdx []int    `json:"true_linked_part_idx"`

	RecVisibleEnergy []float64 `json:"rec_visible_energy"`
	TrueContribPDGs  []int     `json:"true_contrib_pdgs"`

	Weight float64 `json:"weight"`
}

// New returns an empty record with unit weight.
func New() *Info {
	return &Info{Weight: 1}
}

// AddTrack appends a reconstructed track linked to true particle index idx.
func (ri *Info) AddTrack(mom r3.Vec, pdg, idx int) {
	ri.RecObjMom = append(ri.RecObjMom, mom)
	ri.RecObjClass = append(ri.RecObjClass, pdg)
	ri.TrueLinkedPartIdx = append(ri.TrueLinkedPartIdx, idx)
}

// AddVisibleEnergy appends a deposit attributed to true species pdg.
func (ri *Info) AddVisibleEnergy(e float64, pdg int) {
	ri.RecVisibleEnergy = append(ri.RecVisibleEnergy, e)
	ri.TrueContribPDGs = append(ri.TrueContribPDGs, pdg)
}

// Merge appends all tracks and deposits of other. Weights multiply.
func (ri *Info) Merge(other *Info) {
	if other == nil {
		return
	}
	ri.RecObjMom = append(ri.RecObjMom, other.RecObjMom...)
	ri.RecObjClass = append(ri.RecObjClass, other.RecObjClass...)
	ri.TrueLinkedPartIdx = append(ri.TrueLinkedPartIdx, other.TrueLinkedPartIdx...)
	ri.RecVisibleEnergy = append(ri.RecVisibleEnergy, other.RecVisibleEnergy...)
	ri.TrueContribPDGs = append(ri.TrueContribPDGs, other.TrueContribPDGs...)
	ri.Weight *= other.Weight
}

// RemoveTrack drops track i, keeping the parallel slices aligned.
func (ri *Info) RemoveTrack(i int) {
	ri.RecObjMom = append(ri.RecObjMom[:i], ri.RecObjMom[i+1:]...)
	ri.RecObjClass = append(ri.RecObjClass[:i], ri.RecObjClass[i+1:]...)
	ri.TrueLinkedPartIdx = append(ri.TrueLinkedPartIdx[:i], ri.TrueLinkedPartIdx[i+1:]...)
}

// NumTracks returns the number of reconstructed tracks.
func (ri *Info) NumTracks() int { return len(ri.RecObjMom) }

// TotalVisibleEnergy sums all visible-energy deposits.
func (ri *Info) TotalVisibleEnergy() float64 {
	var sum float64
	for _, e := range ri.RecVisibleEnergy {
		sum += e
	}
	return sum
}

// Validate checks the index-alignment invariants.
func (ri *Info) Validate() error {
	if len(ri.RecObjMom) != len(ri.RecObjClass) {
		return fmt.Errorf("reco info: %d track momenta but %d classes", len(ri.RecObjMom), len(ri.RecObjClass))
	}
	if len(ri.TrueLinkedPartIdx) != len(ri.RecObjMom) {
		return fmt.Errorf("reco info: %d track momenta but %d true links", len(ri.RecObjMom), len(ri.TrueLinkedPartIdx))
	}
	if len(ri.RecVisibleEnergy) != len(ri.TrueContribPDGs) {
		return fmt.Errorf("reco info: %d visible deposits but %d contributing species", len(ri.RecVisibleEnergy), len(ri.TrueContribPDGs))
	}
	return nil
}
