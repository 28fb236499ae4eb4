package smear

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/banshee-data/smearceptance/internal/confnode"
	"github.com/banshee-data/smearceptance/internal/particle"
	"github.com/banshee-data/smearceptance/internal/reco"
)

// maxSmearAttempts bounds rejection sampling of a single value.
const maxSmearAttempts = 1000

// SmearKind selects how a gaussian width is obtained.
type SmearKind int

const (
	// SmearAbs uses a fixed width.
	SmearAbs SmearKind = iota
	// SmearFrac uses width × |x|.
	SmearFrac
	// SmearFunc evaluates a user function of x.
	SmearFunc
)

func (k SmearKind) String() string {
	switch k {
	case SmearAbs:
		return "Abs"
	case SmearFrac:
		return "Frac"
	case SmearFunc:
		return "Func"
	}
	return "Unknown"
}

func parseSmearKind(s string) (SmearKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "abs", "absolute":
		return SmearAbs, nil
	case "frac", "fractional":
		return SmearFrac, nil
	case "func", "function":
		return SmearFunc, nil
	}
	return 0, fmt.Errorf("unknown smear type %q", s)
}

type smearSpec struct {
	kin   particle.KinVar
	kind  SmearKind
	width float64
	fn    *widthFunc
}

func (s *smearSpec) sigma(x float64) (float64, error) {
	switch s.kind {
	case SmearFrac:
		return s.width * math.Abs(x), nil
	case SmearFunc:
		v, err := s.fn.eval(x)
		return math.Abs(v), err
	}
	return s.width, nil
}

// physical reports whether a smeared value is inside the variable's domain.
func physical(k particle.KinVar, v float64) bool {
	switch k {
	case particle.KinMomentum, particle.KinKE:
		return v > 0
	case particle.KinCosTheta:
		return v >= -1 && v <= 1
	}
	return !math.IsNaN(v)
}

// trackedSmearVars lists the variables a tracked smear may act on.
var trackedSmearVars = map[particle.KinVar]bool{
	particle.KinMomentum: true,
	particle.KinKE:       true,
	particle.KinCosTheta: true,
	particle.KinTheta:    true,
}

// GaussianSmearer perturbs tracked kinematics with a gaussian, one or more
// specs per species applied in sequence, and smears visible energy of
// untracked species with a single spec floored at zero.
type GaussianSmearer struct {
	name    string
	tracked map[int][]smearSpec
	visible map[int]smearSpec
	rng     *rand.Rand
	stats   Stats
}

func (*GaussianSmearer) sealed() {}

// Name returns the instance name.
func (gs *GaussianSmearer) Name() string { return gs.name }

// Stats returns the counters accumulated so far.
func (gs *GaussianSmearer) Stats() Stats { return gs.stats }

// Smearcept smears every configured final-state particle of ev.
func (gs *GaussianSmearer) Smearcept(ev *particle.Event) (*reco.Info, error) {
	ri := reco.New()
	for i := range ev.Particles {
		p := &ev.Particles[i]
		if !p.IsFinal() {
			continue
		}
		if err := gs.smearParticle(p, i, ri); err != nil {
			return nil, err
		}
	}
	return ri, nil
}

func (gs *GaussianSmearer) smearParticle(p *particle.Particle, idx int, ri *reco.Info) error {
	gs.stats.Particles++
	if specs, ok := gs.tracked[p.PDG]; ok {
		mom, err := gs.smearMomentum(p.Mom, p.M(), specs)
		if err != nil {
			return fmt.Errorf("GaussianSmearer %q: PDG %d: %w", gs.name, p.PDG, err)
		}
		if particle.HasNaN(mom) {
			gs.stats.NaN++
			opsf("%s: dropping particle %d (PDG %d): smeared momentum is NaN", gs.name, idx, p.PDG)
			return nil
		}
		ri.AddTrack(mom, p.PDG, idx)
		gs.stats.Tracks++
		return nil
	}
	if spec, ok := gs.visible[p.PDG]; ok {
		e, err := gs.smearVisible(particle.Kinematic(p, spec.kin), &spec)
		if err != nil {
			return fmt.Errorf("GaussianSmearer %q: PDG %d: %w", gs.name, p.PDG, err)
		}
		ri.AddVisibleEnergy(e, p.PDG)
		gs.stats.Deposits++
		return nil
	}
	gs.stats.Ignored++
	return nil
}

// Refine smears the tracks and deposits already in ri. Track kinematics are
// derived from the reconstructed momentum and the table mass of its class.
func (gs *GaussianSmearer) Refine(ri *reco.Info) error {
	for i := 0; i < len(ri.RecObjMom); {
		pdg := ri.RecObjClass[i]
		drop, err := gs.refineTrack(ri, i)
		if err != nil {
			return fmt.Errorf("GaussianSmearer %q: PDG %d: %w", gs.name, pdg, err)
		}
		if drop {
			ri.RemoveTrack(i)
			continue
		}
		i++
	}
	for j := range ri.RecVisibleEnergy {
		if err := gs.refineDeposit(ri, j); err != nil {
			return fmt.Errorf("GaussianSmearer %q: PDG %d: %w", gs.name, ri.TrueContribPDGs[j], err)
		}
	}
	return nil
}

// refineTrack smears track i in place. drop reports a NaN result.
func (gs *GaussianSmearer) refineTrack(ri *reco.Info, i int) (drop bool, err error) {
	pdg := ri.RecObjClass[i]
	specs, ok := gs.tracked[pdg]
	if !ok {
		return false, nil
	}
	gs.stats.Particles++
	mass, ok := particle.Mass(pdg)
	if !ok {
		tracef("%s: no table mass for PDG %d, treating as massless", gs.name, pdg)
	}
	mom, err := gs.smearMomentum(ri.RecObjMom[i], mass, specs)
	if err != nil {
		return false, err
	}
	if particle.HasNaN(mom) {
		gs.stats.NaN++
		opsf("%s: dropping track %d (PDG %d): smeared momentum is NaN", gs.name, i, pdg)
		return true, nil
	}
	ri.RecObjMom[i] = mom
	gs.stats.Tracks++
	return false, nil
}

func (gs *GaussianSmearer) refineDeposit(ri *reco.Info, j int) error {
	spec, ok := gs.visible[ri.TrueContribPDGs[j]]
	if !ok {
		return nil
	}
	e, err := gs.smearVisible(ri.RecVisibleEnergy[j], &spec)
	if err != nil {
		return err
	}
	ri.RecVisibleEnergy[j] = e
	gs.stats.Deposits++
	return nil
}

func (gs *GaussianSmearer) smearMomentum(mom r3.Vec, mass float64, specs []smearSpec) (r3.Vec, error) {
	for k := range specs {
		s := &specs[k]
		x := particle.FromMomentum(mom, mass, s.kin)
		v, err := gs.draw(x, s)
		if err != nil {
			return mom, err
		}
		mom = particle.WithKinematic(mom, mass, s.kin, v)
	}
	return mom, nil
}

// draw samples a gaussian around x, redrawing until the value is physical.
func (gs *GaussianSmearer) draw(x float64, s *smearSpec) (float64, error) {
	sigma, err := s.sigma(x)
	if err != nil {
		return 0, err
	}
	if sigma == 0 {
		return x, nil
	}
	if math.IsNaN(sigma) || math.IsInf(sigma, 0) {
		return 0, fmt.Errorf("%s smear of %s at %g: width is %g", s.kind, s.kin, x, sigma)
	}
	dist := distuv.Normal{Mu: x, Sigma: sigma, Src: gs.rng}
	for attempt := 0; attempt < maxSmearAttempts; attempt++ {
		v := dist.Rand()
		if physical(s.kin, v) {
			return v, nil
		}
		gs.stats.Redraws++
	}
	return 0, fmt.Errorf("%w: %s smear of %s at %g with width %g failed %d times",
		ErrDegenerateSmear, s.kind, s.kin, x, sigma, maxSmearAttempts)
}

func (gs *GaussianSmearer) smearVisible(e float64, s *smearSpec) (float64, error) {
	sigma, err := s.sigma(e)
	if err != nil {
		return 0, err
	}
	if sigma == 0 {
		return e, nil
	}
	v := distuv.Normal{Mu: e, Sigma: sigma, Src: gs.rng}.Rand()
	return math.Max(0, v), nil
}

func buildGaussianSmearer(b *Builder, n *confnode.Node, path string) (Component, error) {
	seed, err := b.seedFor(n, path)
	if err != nil {
		return nil, err
	}
	gs, err := newGaussianSmearer(instanceName(n), n, seed)
	if err != nil {
		return nil, err
	}
	return gs, nil
}

func newGaussianSmearer(name string, n *confnode.Node, seed uint64) (*GaussianSmearer, error) {
	gs := &GaussianSmearer{
		name:    name,
		tracked: map[int][]smearSpec{},
		visible: map[int]smearSpec{},
		rng:     newRNG(seed),
	}
	for _, sn := range n.ChildrenOf("GaussSmear") {
		pdgs, err := sn.PDGList("PDG")
		if err != nil {
			return nil, err
		}
		spec, err := parseSmearSpec(sn, particle.KinMomentum)
		if err != nil {
			return nil, err
		}
		if !trackedSmearVars[spec.kin] {
			return nil, sn.Errorf("attribute \"Kinematic\": %s cannot be smeared on a track", spec.kin)
		}
		for _, pdg := range pdgs {
			gs.tracked[pdg] = append(gs.tracked[pdg], spec)
		}
	}
	for _, sn := range n.ChildrenOf("VisESmear") {
		pdgs, err := sn.PDGList("PDG")
		if err != nil {
			return nil, err
		}
		spec, err := parseSmearSpec(sn, particle.KinKEVis)
		if err != nil {
			return nil, err
		}
		if spec.kin != particle.KinKEVis && spec.kin != particle.KinTEVis {
			return nil, sn.Errorf("attribute \"Kinematic\": want KEVis or TEVis, got %s", spec.kin)
		}
		for _, pdg := range pdgs {
			if _, dup := gs.visible[pdg]; dup {
				return nil, sn.Errorf("second visible-energy smear for PDG %d", pdg)
			}
			if _, tracked := gs.tracked[pdg]; tracked {
				return nil, sn.Errorf("PDG %d is both tracked and visible", pdg)
			}
			gs.visible[pdg] = spec
		}
	}
	if len(gs.tracked) == 0 && len(gs.visible) == 0 {
		return nil, n.Errorf("no GaussSmear or VisESmear elements")
	}
	diagf("%s: %d tracked species, %d visible-energy species", name, len(gs.tracked), len(gs.visible))
	return gs, nil
}

func parseSmearSpec(n *confnode.Node, defKin particle.KinVar) (smearSpec, error) {
	var spec smearSpec
	kind, err := parseSmearKind(n.StringOr("Type", "Abs"))
	if err != nil {
		return spec, n.Errorf("attribute \"Type\": %v", err)
	}
	spec.kind = kind

	spec.kin = defKin
	if n.Has("Kinematic") {
		k, err := particle.ParseKinVar(n.StringOr("Kinematic", ""))
		if err != nil {
			return spec, n.Errorf("attribute \"Kinematic\": %v", err)
		}
		spec.kin = k
	}

	if kind == SmearFunc {
		expr, err := n.String("Function")
		if err != nil {
			return spec, err
		}
		params := map[string]float64{}
		if pn, ok := n.Child("Params"); ok {
			for _, key := range pn.Keys() {
				v, err := pn.Float(key)
				if err != nil {
					return spec, err
				}
				params[key] = v
			}
		}
		if spec.fn, err = newWidthFunc(expr, params); err != nil {
			return spec, n.Errorf("%v", err)
		}
		return spec, nil
	}

	if spec.width, err = n.Float("Width"); err != nil {
		return spec, err
	}
	if spec.width < 0 {
		return spec, n.Errorf("attribute \"Width\" must not be negative, got %g", spec.width)
	}
	return spec, nil
}
