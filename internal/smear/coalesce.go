package smear

import "github.com/banshee-data/smearceptance/internal/reco"

// VisECoalescer merges visible-energy deposits sharing a true species into a
// single deposit, keeping the order in which species first appear. It only
// refines existing reco info.
type VisECoalescer struct {
	name  string
	stats Stats
}

func (*VisECoalescer) sealed() {}

// Name returns the instance name.
func (vc *VisECoalescer) Name() string { return vc.name }

// Stats returns the counters accumulated so far.
func (vc *VisECoalescer) Stats() Stats { return vc.stats }

// Refine coalesces the deposits of ri in place.
func (vc *VisECoalescer) Refine(ri *reco.Info) {
	if len(ri.RecVisibleEnergy) < 2 {
		vc.stats.Deposits += len(ri.RecVisibleEnergy)
		return
	}
	pos := make(map[int]int, len(ri.TrueContribPDGs))
	energies := ri.RecVisibleEnergy[:0:0]
	pdgs := ri.TrueContribPDGs[:0:0]
	for j, pdg := range ri.TrueContribPDGs {
		if k, ok := pos[pdg]; ok {
			energies[k] += ri.RecVisibleEnergy[j]
			continue
		}
		pos[pdg] = len(energies)
		energies = append(energies, ri.RecVisibleEnergy[j])
		pdgs = append(pdgs, pdg)
	}
	vc.stats.Deposits += len(energies)
	ri.RecVisibleEnergy, ri.TrueContribPDGs = energies, pdgs
}
