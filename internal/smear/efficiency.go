package smear

import (
	"math"
	"math/rand/v2"

	"github.com/banshee-data/smearceptance/internal/confnode"
	"github.com/banshee-data/smearceptance/internal/hist"
	"github.com/banshee-data/smearceptance/internal/particle"
	"github.com/banshee-data/smearceptance/internal/reco"
)

// efficiencyAxis binds one histogram axis to a kinematic variable.
type efficiencyAxis struct {
	kin   particle.KinVar
	scale float64
}

type efficiencyCurve struct {
	h           *hist.Hist
	axes        []efficiencyAxis
	interpolate bool
}

// probability returns the clamped efficiency for p. inRange is false when
// any coordinate fell outside the histogram.
func (c *efficiencyCurve) probability(p *particle.Particle) (eff float64, inRange bool) {
	var x [hist.MaxDims]float64
	for d, ax := range c.axes {
		x[d] = particle.Kinematic(p, ax.kin) / ax.scale
	}
	if c.interpolate {
		eff, inRange = c.h.Interpolate(x[:len(c.axes)]...)
	} else {
		eff, inRange = c.h.Lookup(x[:len(c.axes)]...)
	}
	return math.Max(0, math.Min(1, eff)), inRange
}

// EfficiencyApplicator accepts particles at random with a per-species
// probability read from a 1-3 dimensional efficiency curve. Rejected and
// unmapped particles are handed to the fallback ThresholdAccepter, if any.
type EfficiencyApplicator struct {
	name     string
	curves   map[int]*efficiencyCurve
	fallback *ThresholdAccepter
	rng      *rand.Rand
	stats    Stats
}

func (*EfficiencyApplicator) sealed() {}

// Name returns the instance name.
func (ea *EfficiencyApplicator) Name() string { return ea.name }

// Stats returns the counters accumulated so far, fallback decisions included.
func (ea *EfficiencyApplicator) Stats() Stats {
	if ea.fallback == nil {
		return ea.stats
	}
	fb := ea.fallback.Stats()
	fb.Particles = 0
	return ea.stats.Add(fb)
}

// Smearcept processes every final-state particle of ev.
func (ea *EfficiencyApplicator) Smearcept(ev *particle.Event) *reco.Info {
	ri := reco.New()
	for i := range ev.Particles {
		p := &ev.Particles[i]
		if !p.IsFinal() {
			continue
		}
		ea.stats.Particles++

		curve, ok := ea.curves[p.PDG]
		if !ok {
			ea.toFallback(p, i, ri)
			continue
		}
		eff, inRange := curve.probability(p)
		if !inRange {
			ea.stats.OutOfRange++
			opsf("%s: PDG %d outside efficiency histogram %q range, using edge bin (eff=%.3f)", ea.name, p.PDG, curve.h.Name, eff)
		}
		if ea.rng.Float64() < eff {
			ri.AddTrack(p.Mom, p.PDG, i)
			ea.stats.Tracks++
			tracef("%s: particle %d (PDG %d) accepted, eff=%.3f", ea.name, i, p.PDG, eff)
			continue
		}
		tracef("%s: particle %d (PDG %d) failed efficiency, eff=%.3f", ea.name, i, p.PDG, eff)
		ea.toFallback(p, i, ri)
	}
	return ri
}

func (ea *EfficiencyApplicator) toFallback(p *particle.Particle, idx int, ri *reco.Info) {
	if ea.fallback == nil {
		ea.stats.Rejected++
		return
	}
	ea.stats.Fallback++
	ea.fallback.accept(p, idx, ri)
}

// efficiencyAxes lists the variables an efficiency axis may be bound to.
var efficiencyAxes = map[particle.KinVar]bool{
	particle.KinMomentum: true,
	particle.KinKE:       true,
	particle.KinTheta:    true,
	particle.KinCosTheta: true,
	particle.KinPhi:      true,
}

func buildEfficiencyApplicator(b *Builder, n *confnode.Node, path string) (Component, error) {
	seed, err := b.seedFor(n, path)
	if err != nil {
		return nil, err
	}
	ea := &EfficiencyApplicator{
		name:   instanceName(n),
		curves: map[int]*efficiencyCurve{},
		rng:    newRNG(seed),
	}

	for _, en := range n.ChildrenOf("Efficiency") {
		pdgs, err := en.PDGList("PDG")
		if err != nil {
			return nil, err
		}
		curve, err := parseEfficiencyCurve(b, en)
		if err != nil {
			return nil, err
		}
		for _, pdg := range pdgs {
			if _, dup := ea.curves[pdg]; dup {
				return nil, en.Errorf("second efficiency curve for PDG %d", pdg)
			}
			ea.curves[pdg] = curve
		}
		diagf("%s: efficiency %q (%dD, interpolate=%t) for PDG %v", ea.name, curve.h.Name, curve.h.Dim(), curve.interpolate, pdgs)
	}
	if len(ea.curves) == 0 {
		return nil, n.Errorf("no Efficiency elements")
	}

	// The fallback is configured with the same RecoThreshold and
	// VisThreshold elements a ThresholdAccepter takes, given directly.
	if len(n.ChildrenOf("RecoThreshold")) > 0 || len(n.ChildrenOf("VisThreshold")) > 0 {
		fb, err := newThresholdAccepter(ea.name+"/fallback", n)
		if err != nil {
			return nil, err
		}
		ea.fallback = fb
	}
	return ea, nil
}

func parseEfficiencyCurve(b *Builder, n *confnode.Node) (*efficiencyCurve, error) {
	h, err := b.histogram(n)
	if err != nil {
		return nil, err
	}
	interp, err := n.BoolOr("Interpolate", false)
	if err != nil {
		return nil, err
	}
	curve := &efficiencyCurve{h: h, interpolate: interp}

	prefixes := []string{"XAxis", "YAxis", "ZAxis"}
	for d := 0; d < h.Dim(); d++ {
		name, err := n.String(prefixes[d])
		if err != nil {
			return nil, err
		}
		kin, err := particle.ParseKinVar(name)
		if err != nil {
			return nil, n.Errorf("attribute %q: %v", prefixes[d], err)
		}
		if !efficiencyAxes[kin] {
			return nil, n.Errorf("attribute %q: %s cannot be an efficiency axis", prefixes[d], kin)
		}
		scale, err := axisScale(n, prefixes[d]+"Scale", prefixes[d]+"Unit")
		if err != nil {
			return nil, err
		}
		curve.axes = append(curve.axes, efficiencyAxis{kin: kin, scale: scale})
	}
	for d := h.Dim(); d < len(prefixes); d++ {
		if n.Has(prefixes[d]) {
			return nil, n.Errorf("attribute %q given for a %dD histogram", prefixes[d], h.Dim())
		}
	}
	return curve, nil
}
