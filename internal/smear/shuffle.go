package smear

import (
	"github.com/banshee-data/smearceptance/internal/confnode"
	"github.com/banshee-data/smearceptance/internal/particle"
)

type shuffleRule struct {
	from     map[int]bool
	to       map[int]bool
	fraction float64
}

// EnergyShuffler moves a fraction of the kinetic energy of "from" species
// evenly onto "to" species before any acceptance or smearing runs. It
// mutates the event in place and is never part of a refine chain.
type EnergyShuffler struct {
	name  string
	rules []shuffleRule
	stats Stats
}

func (*EnergyShuffler) sealed() {}

// Name returns the instance name.
func (es *EnergyShuffler) Name() string { return es.name }

// Stats returns the counters accumulated so far. EnergyLost sums pooled
// energy that had no recipient.
func (es *EnergyShuffler) Stats() Stats { return es.stats }

// Apply runs every rule, in order, over the final-state particles of ev.
func (es *EnergyShuffler) Apply(ev *particle.Event) {
	for r := range es.rules {
		es.applyRule(&es.rules[r], r, ev)
	}
}

func (es *EnergyShuffler) applyRule(rule *shuffleRule, r int, ev *particle.Event) {
	var (
		pool       float64
		recipients int
	)
	for i := range ev.Particles {
		p := &ev.Particles[i]
		if !p.IsFinal() {
			continue
		}
		if rule.from[p.PDG] {
			es.stats.Particles++
			ke := p.KE()
			removed := rule.fraction * ke
			p.SetKE(ke - removed)
			pool += removed
		}
		if rule.to[p.PDG] {
			recipients++
		}
	}
	if pool == 0 {
		return
	}
	if recipients == 0 {
		es.stats.EnergyLost += pool
		diagf("%s: rule %d: %.3f MeV lost, no recipient particles", es.name, r, pool)
		return
	}

	share := pool / float64(recipients)
	for i := range ev.Particles {
		p := &ev.Particles[i]
		if p.IsFinal() && rule.to[p.PDG] {
			p.SetKE(p.KE() + share)
			es.stats.Tracks++
		}
	}
	tracef("%s: rule %d: %.3f MeV shared over %d particle(s)", es.name, r, pool, recipients)
}

func newEnergyShuffler(name string, n *confnode.Node) (*EnergyShuffler, error) {
	es := &EnergyShuffler{name: name}
	for _, sn := range n.ChildrenOf("Shuffle") {
		from, err := sn.PDGList("From")
		if err != nil {
			return nil, err
		}
		to, err := sn.PDGList("To")
		if err != nil {
			return nil, err
		}
		frac, err := sn.Float("Fraction")
		if err != nil {
			return nil, err
		}
		if frac < 0 || frac > 1 {
			return nil, sn.Errorf("attribute \"Fraction\" must be in [0, 1], got %g", frac)
		}
		es.rules = append(es.rules, shuffleRule{from: pdgSet(from), to: pdgSet(to), fraction: frac})
		diagf("%s: shuffle %.3g of KE from %v to %v", name, frac, from, to)
	}
	if len(es.rules) == 0 {
		return nil, n.Errorf("no Shuffle elements")
	}
	return es, nil
}

func pdgSet(pdgs []int) map[int]bool {
	out := make(map[int]bool, len(pdgs))
	for _, p := range pdgs {
		out[p] = true
	}
	return out
}
