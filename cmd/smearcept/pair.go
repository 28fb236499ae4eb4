package main

import (
	"github.com/banshee-data/smearceptance/internal/particle"
	"github.com/banshee-data/smearceptance/internal/reco"
)

// pair is the true and reconstructed value of one event's observable.
type pair struct {
	True, Reco float64
	// Reconstructed is false when the selected truth left no reco object.
	Reconstructed bool
}

// selectPair extracts the observable k from an event and its reco record.
// Visible-energy variables sum every final-state particle and deposit of
// the selected species; other variables follow the highest-momentum final
// particle and the track linked to it. ok is false when the event has no
// matching final-state particle.
func selectPair(ev *particle.Event, ri *reco.Info, k particle.KinVar, pdg int) (pr pair, ok bool) {
	if k == particle.KinKEVis || k == particle.KinTEVis {
		return visiblePair(ev, ri, k, pdg)
	}

	lead := -1
	for i := range ev.Particles {
		p := &ev.Particles[i]
		if !p.IsFinal() || !matchPDG(p.PDG, pdg) {
			continue
		}
		if lead < 0 || p.P() > ev.Particles[lead].P() {
			lead = i
		}
	}
	if lead < 0 {
		return pair{}, false
	}
	p := &ev.Particles[lead]
	pr.True = particle.Kinematic(p, k)
	for j, idx := range ri.TrueLinkedPartIdx {
		if idx != lead {
			continue
		}
		m, known := particle.Mass(ri.RecObjClass[j])
		if !known {
			m = p.M()
		}
		pr.Reco = particle.FromMomentum(ri.RecObjMom[j], m, k)
		pr.Reconstructed = true
		break
	}
	return pr, true
}

func visiblePair(ev *particle.Event, ri *reco.Info, k particle.KinVar, pdg int) (pr pair, ok bool) {
	for i := range ev.Particles {
		p := &ev.Particles[i]
		if p.IsFinal() && matchPDG(p.PDG, pdg) {
			pr.True += particle.Kinematic(p, k)
			ok = true
		}
	}
	for j, e := range ri.RecVisibleEnergy {
		if matchPDG(ri.TrueContribPDGs[j], pdg) {
			pr.Reco += e
			pr.Reconstructed = true
		}
	}
	return pr, ok
}

// matchPDG selects every species when want is zero.
func matchPDG(pdg, want int) bool {
	return want == 0 || pdg == want
}
