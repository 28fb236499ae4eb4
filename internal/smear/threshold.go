package smear

import (
	"math"
	"sort"

	"github.com/banshee-data/smearceptance/internal/confnode"
	"github.com/banshee-data/smearceptance/internal/particle"
	"github.com/banshee-data/smearceptance/internal/reco"
)

type thresholdKind int

const (
	threshMomentum thresholdKind = iota
	threshKE
	threshCosThetaMax
	threshCosThetaMin
	threshAbsCosThetaMax
	threshAbsCosThetaMin
)

// recoThreshold is one reconstruction cut. Energy-type cuts are strict lower
// bounds on momentum or KE; angular cuts bound cos(theta) or |cos(theta)|.
type recoThreshold struct {
	kind  thresholdKind
	value float64
}

func (t recoThreshold) isEnergy() bool {
	return t.kind == threshMomentum || t.kind == threshKE
}

func (t recoThreshold) pass(p *particle.Particle) bool {
	switch t.kind {
	case threshMomentum:
		return p.P() > t.value
	case threshKE:
		return p.KE() > t.value
	}
	ct := particle.Kinematic(p, particle.KinCosTheta)
	switch t.kind {
	case threshCosThetaMax:
		return ct < t.value
	case threshCosThetaMin:
		return ct > t.value
	case threshAbsCosThetaMax:
		return math.Abs(ct) < t.value
	case threshAbsCosThetaMin:
		return math.Abs(ct) > t.value
	}
	return false
}

// visThreshold decides whether a particle that is not tracked still deposits
// visible energy.
type visThreshold struct {
	onMomentum bool
	value      float64
	useKE      bool
	fraction   float64
}

func (v *visThreshold) deposit(p *particle.Particle) (float64, bool) {
	x := p.KE()
	if v.onMomentum {
		x = p.P()
	}
	if !(x > v.value) {
		return 0, false
	}
	if v.useKE {
		return v.fraction * p.KE(), true
	}
	return v.fraction * p.E, true
}

type speciesThresholds struct {
	reco []recoThreshold
	vis  *visThreshold
}

// outcome is what happened to one particle.
type outcome int

const (
	outcomeIgnored outcome = iota
	outcomeTrack
	outcomeVisible
	outcomeRejected
)

// ThresholdAccepter reconstructs particles that clear per-species cuts, at
// their true momentum. Particles failing an energy cut, or with no cuts
// configured, may still contribute visible energy. Particles failing only
// angular cuts contribute nothing.
type ThresholdAccepter struct {
	name    string
	species map[int]*speciesThresholds
	stats   Stats
}

func (*ThresholdAccepter) sealed() {}

// Name returns the instance name.
func (ta *ThresholdAccepter) Name() string { return ta.name }

// Stats returns the counters accumulated so far.
func (ta *ThresholdAccepter) Stats() Stats { return ta.stats }

// Species returns the configured species codes in ascending order.
func (ta *ThresholdAccepter) Species() []int {
	out := make([]int, 0, len(ta.species))
	for pdg := range ta.species {
		out = append(out, pdg)
	}
	sort.Ints(out)
	return out
}

// Smearcept processes every final-state particle of ev.
func (ta *ThresholdAccepter) Smearcept(ev *particle.Event) *reco.Info {
	ri := reco.New()
	for i := range ev.Particles {
		p := &ev.Particles[i]
		if !p.IsFinal() {
			continue
		}
		ta.accept(p, i, ri)
	}
	return ri
}

// accept applies the cuts to a single particle and records the result in ri.
func (ta *ThresholdAccepter) accept(p *particle.Particle, idx int, ri *reco.Info) outcome {
	ta.stats.Particles++
	cfg, ok := ta.species[p.PDG]
	if !ok {
		ta.stats.Ignored++
		tracef("%s: particle %d (PDG %d) not configured", ta.name, idx, p.PDG)
		return outcomeIgnored
	}

	passed := len(cfg.reco) > 0
	failedEnergy := len(cfg.reco) == 0
	for _, t := range cfg.reco {
		if t.pass(p) {
			continue
		}
		passed = false
		if t.isEnergy() {
			failedEnergy = true
		}
	}

	switch {
	case passed:
		ri.AddTrack(p.Mom, p.PDG, idx)
		ta.stats.Tracks++
		tracef("%s: particle %d (PDG %d) tracked, p=%.3f MeV", ta.name, idx, p.PDG, p.P())
		return outcomeTrack
	case failedEnergy && cfg.vis != nil:
		if e, ok := cfg.vis.deposit(p); ok {
			ri.AddVisibleEnergy(e, p.PDG)
			ta.stats.Deposits++
			tracef("%s: particle %d (PDG %d) deposits %.3f MeV", ta.name, idx, p.PDG, e)
			return outcomeVisible
		}
	}
	ta.stats.Rejected++
	tracef("%s: particle %d (PDG %d) rejected (energy cut failed: %t)", ta.name, idx, p.PDG, failedEnergy)
	return outcomeRejected
}

// Reconstruction-threshold attribute names. Energy-valued attributes accept
// unit suffixes such as RecoThresholdKE_GeV.
var recoThresholdAttrs = []struct {
	key    string
	kind   thresholdKind
	energy bool
}{
	{"RecoThresholdMomentum", threshMomentum, true},
	{"RecoThresholdKE", threshKE, true},
	{"RecoThresholdCosTheta_Max", threshCosThetaMax, false},
	{"RecoThresholdCosTheta_Min", threshCosThetaMin, false},
	{"RecoThresholdAbsCosTheta_Max", threshAbsCosThetaMax, false},
	{"RecoThresholdAbsCosTheta_Min", threshAbsCosThetaMin, false},
}

func newThresholdAccepter(name string, n *confnode.Node) (*ThresholdAccepter, error) {
	ta := &ThresholdAccepter{name: name, species: map[int]*speciesThresholds{}}
	entry := func(pdg int) *speciesThresholds {
		s, ok := ta.species[pdg]
		if !ok {
			s = &speciesThresholds{}
			ta.species[pdg] = s
		}
		return s
	}

	for _, rn := range n.ChildrenOf("RecoThreshold") {
		pdgs, err := rn.PDGList("PDG")
		if err != nil {
			return nil, err
		}
		cuts, err := parseRecoThresholds(rn)
		if err != nil {
			return nil, err
		}
		if len(cuts) == 0 {
			return nil, rn.Errorf("no reconstruction threshold attributes given")
		}
		for _, pdg := range pdgs {
			s := entry(pdg)
			s.reco = append(s.reco, cuts...)
		}
	}

	for _, vn := range n.ChildrenOf("VisThreshold") {
		pdgs, err := vn.PDGList("PDG")
		if err != nil {
			return nil, err
		}
		vis, err := parseVisThreshold(vn)
		if err != nil {
			return nil, err
		}
		for _, pdg := range pdgs {
			s := entry(pdg)
			if s.vis != nil {
				return nil, vn.Errorf("second visibility threshold for PDG %d", pdg)
			}
			s.vis = vis
		}
	}

	if len(ta.species) == 0 {
		return nil, n.Errorf("no RecoThreshold or VisThreshold elements")
	}
	for _, pdg := range ta.Species() {
		s := ta.species[pdg]
		diagf("%s: PDG %d: %d reconstruction threshold(s), visibility threshold: %t", name, pdg, len(s.reco), s.vis != nil)
	}
	return ta, nil
}

func parseRecoThresholds(n *confnode.Node) ([]recoThreshold, error) {
	var out []recoThreshold
	for _, a := range recoThresholdAttrs {
		var (
			v   float64
			ok  bool
			err error
		)
		if a.energy {
			v, ok, err = n.Energy(a.key)
		} else if ok = n.Has(a.key); ok {
			v, err = n.Float(a.key)
		}
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, recoThreshold{kind: a.kind, value: v})
		}
	}
	return out, nil
}

func parseVisThreshold(n *confnode.Node) (*visThreshold, error) {
	ke, hasKE, err := n.Energy("VisThresholdKE")
	if err != nil {
		return nil, err
	}
	mom, hasMom, err := n.Energy("VisThresholdMomentum")
	if err != nil {
		return nil, err
	}
	vis := &visThreshold{}
	switch {
	case hasKE && hasMom:
		return nil, n.Errorf("only one of VisThresholdKE and VisThresholdMomentum may be given")
	case hasKE:
		vis.value = ke
	case hasMom:
		vis.onMomentum, vis.value = true, mom
	default:
		return nil, n.Errorf("missing VisThresholdKE or VisThresholdMomentum")
	}

	switch contrib := n.StringOr("Contrib", "KE"); contrib {
	case "KE":
		vis.useKE = true
	case "TE":
	default:
		return nil, n.Errorf("attribute \"Contrib\": want KE or TE, got %q", contrib)
	}

	if vis.fraction, err = n.FloatOr("Fraction", 1); err != nil {
		return nil, err
	}
	if vis.fraction < 0 {
		return nil, n.Errorf("attribute \"Fraction\" must not be negative, got %g", vis.fraction)
	}
	return vis, nil
}
