package smear

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/smearceptance/internal/confnode"
	"github.com/banshee-data/smearceptance/internal/hist"
	"github.com/banshee-data/smearceptance/internal/particle"
	"github.com/banshee-data/smearceptance/internal/reco"
)

// migration is the per-species true→reco response, sliced by true value.
type migration struct {
	name   string
	slices hist.Slices
	kin    particle.KinVar
	scale  float64
}

// MatrixSmearer replaces the momentum magnitude of tracked species with a
// value drawn from the reco distribution of its true-value slice. Unmapped
// species are passed to the fallback GaussianSmearer, if any.
type MatrixSmearer struct {
	name     string
	table    map[int]*migration
	fallback *GaussianSmearer
	rng      *rand.Rand
	stats    Stats
}

func (*MatrixSmearer) sealed() {}

// Name returns the instance name.
func (ms *MatrixSmearer) Name() string { return ms.name }

// Stats returns the counters accumulated so far, fallback decisions included.
func (ms *MatrixSmearer) Stats() Stats {
	if ms.fallback == nil {
		return ms.stats
	}
	fb := ms.fallback.Stats()
	fb.Particles = 0
	return ms.stats.Add(fb)
}

// Smearcept smears every mapped final-state particle of ev.
func (ms *MatrixSmearer) Smearcept(ev *particle.Event) (*reco.Info, error) {
	ri := reco.New()
	for i := range ev.Particles {
		p := &ev.Particles[i]
		if !p.IsFinal() {
			continue
		}
		ms.stats.Particles++
		m, ok := ms.table[p.PDG]
		if !ok {
			if err := ms.toFallback(p, i, ri); err != nil {
				return nil, err
			}
			continue
		}
		mom, ok := ms.smear(m, p.Mom, p.M(), p.PDG, i)
		if !ok {
			continue
		}
		ri.AddTrack(mom, p.PDG, i)
		ms.stats.Tracks++
	}
	return ri, nil
}

func (ms *MatrixSmearer) toFallback(p *particle.Particle, idx int, ri *reco.Info) error {
	if ms.fallback == nil {
		ms.stats.Ignored++
		return nil
	}
	ms.stats.Fallback++
	return ms.fallback.smearParticle(p, idx, ri)
}

// Refine re-smears mapped tracks of ri using the table mass of their class.
// Unmapped tracks and visible energy go to the fallback.
func (ms *MatrixSmearer) Refine(ri *reco.Info) error {
	for i := 0; i < len(ri.RecObjMom); {
		pdg := ri.RecObjClass[i]
		m, ok := ms.table[pdg]
		if !ok {
			drop := false
			if ms.fallback != nil {
				var err error
				if drop, err = ms.fallback.refineTrack(ri, i); err != nil {
					return fmt.Errorf("MatrixSmearer %q fallback: %w", ms.name, err)
				}
			}
			if drop {
				ri.RemoveTrack(i)
			} else {
				i++
			}
			continue
		}
		ms.stats.Particles++
		mass, _ := particle.Mass(pdg)
		mom, ok := ms.smear(m, ri.RecObjMom[i], mass, pdg, i)
		if !ok {
			ri.RemoveTrack(i)
			continue
		}
		ri.RecObjMom[i] = mom
		ms.stats.Tracks++
		i++
	}
	if ms.fallback != nil {
		for j := range ri.RecVisibleEnergy {
			if err := ms.fallback.refineDeposit(ri, j); err != nil {
				return fmt.Errorf("MatrixSmearer %q fallback: %w", ms.name, err)
			}
		}
	}
	return nil
}

// smear draws a new magnitude for mom. ok is false when the track must be
// dropped.
func (ms *MatrixSmearer) smear(m *migration, mom r3.Vec, mass float64, pdg, idx int) (r3.Vec, bool) {
	x := particle.FromMomentum(mom, mass, m.kin) / m.scale
	sl, ok := m.slices.Find(x)
	if !ok {
		ms.stats.OutOfRange++
		lo, hi := m.slices.Range()
		opsf("%s: dropping %d (PDG %d): true %s %.4g outside migration %q range [%g, %g)", ms.name, idx, pdg, m.kin, x, m.name, lo, hi)
		return r3.Vec{}, false
	}
	v, err := sl.Dist.Sample(ms.rng)
	if errors.Is(err, hist.ErrEmpty) {
		ms.stats.EmptySlice++
		opsf("%s: dropping %d (PDG %d): migration %q slice [%g, %g) is empty", ms.name, idx, pdg, m.name, sl.Low, sl.High)
		return r3.Vec{}, false
	}
	if err != nil {
		ms.stats.Rejected++
		opsf("%s: dropping %d (PDG %d): %v", ms.name, idx, pdg, err)
		return r3.Vec{}, false
	}
	out := particle.WithKinematic(mom, mass, m.kin, v*m.scale)
	if particle.HasNaN(out) {
		ms.stats.NaN++
		opsf("%s: dropping %d (PDG %d): reconstructed %s %.4g gives NaN momentum (mass %.4g)", ms.name, idx, pdg, m.kin, v*m.scale, mass)
		return r3.Vec{}, false
	}
	tracef("%s: %d (PDG %d) %s %.4g -> %.4g", ms.name, idx, pdg, m.kin, x*m.scale, v*m.scale)
	return out, true
}

var matrixSmearVars = map[particle.KinVar]bool{
	particle.KinMomentum: true,
	particle.KinKE:       true,
	particle.KinTE:       true,
}

func buildMatrixSmearer(b *Builder, n *confnode.Node, path string) (Component, error) {
	seed, err := b.seedFor(n, path)
	if err != nil {
		return nil, err
	}
	ms := &MatrixSmearer{
		name:  instanceName(n),
		table: map[int]*migration{},
		rng:   newRNG(seed),
	}

	for _, sn := range n.ChildrenOf("Smear") {
		pdgs, err := sn.PDGList("PDG")
		if err != nil {
			return nil, err
		}
		m, err := parseMigration(b, sn)
		if err != nil {
			return nil, err
		}
		for _, pdg := range pdgs {
			if _, dup := ms.table[pdg]; dup {
				return nil, sn.Errorf("second migration histogram for PDG %d", pdg)
			}
			ms.table[pdg] = m
		}
		lo, hi := m.slices.Range()
		diagf("%s: migration %q over %s [%g, %g) x%g MeV, %d slices, PDG %v", ms.name, m.name, m.kin, lo, hi, m.scale, len(m.slices), pdgs)
	}
	if len(ms.table) == 0 {
		return nil, n.Errorf("no Smear elements")
	}

	// Fallback: a nested GaussianSmearer element, or GaussSmear/VisESmear
	// elements given directly.
	if gn, ok := n.Child("GaussianSmearer"); ok {
		gseed, err := b.seedFor(gn, path+"/fallback")
		if err != nil {
			return nil, err
		}
		if ms.fallback, err = newGaussianSmearer(ms.name+"/fallback", gn, gseed); err != nil {
			return nil, err
		}
	} else if len(n.ChildrenOf("GaussSmear")) > 0 || len(n.ChildrenOf("VisESmear")) > 0 {
		if ms.fallback, err = newGaussianSmearer(ms.name+"/fallback", n, DeriveSeed(seed, "fallback")); err != nil {
			return nil, err
		}
	}
	return ms, nil
}

func parseMigration(b *Builder, n *confnode.Node) (*migration, error) {
	h, err := b.histogram(n)
	if err != nil {
		return nil, err
	}
	if h.Dim() != 2 {
		return nil, n.Errorf("migration histogram %q must be 2D, got %dD", h.Name, h.Dim())
	}
	kin, err := particle.ParseKinVar(n.StringOr("Kinematics", "Momentum"))
	if err != nil {
		return nil, n.Errorf("attribute \"Kinematics\": %v", err)
	}
	if !matrixSmearVars[kin] {
		return nil, n.Errorf("attribute \"Kinematics\": want Momentum, KE or TE, got %s", kin)
	}
	scale, err := axisScale(n, "UnitsScale", "Unit")
	if err != nil {
		return nil, err
	}
	slices, err := hist.SliceX(h)
	if err != nil {
		return nil, n.Errorf("%v", err)
	}
	return &migration{name: h.Name, slices: slices, kin: kin, scale: scale}, nil
}
