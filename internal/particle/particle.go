// Package particle owns the simulated-particle data model consumed by the
// smearing chain.
//
// Responsibilities: per-event particle records (species, 3-momentum, total
// energy, status), kinematic property access, and the mass-shell preserving
// kinetic-energy update used by the energy shuffler.
// Key types: Particle, Event, KinVar.
//
// Dependency rule: particle depends on nothing else in this module.
// Momenta and energies are in MeV.
package particle

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Status classifies a particle's role in the event record.
type Status int

const (
	// StatusFinal marks a final-state particle eligible for detection.
	StatusFinal Status = iota
	// StatusInitial marks an initial-state (beam or target) particle.
	StatusInitial
	// StatusIntermediate marks internal bookkeeping particles.
	StatusIntermediate
)

// String returns the config/JSON name of the status.
func (s Status) String() string {
	switch s {
	case StatusFinal:
		return "final"
	case StatusInitial:
		return "initial"
	case StatusIntermediate:
		return "intermediate"
	default:
		return "unknown"
	}
}

// Particle is one simulated particle. Only the energy shuffler mutates it,
// and only through SetKE.
type Particle struct {
	PDG    int
	Mom    r3.Vec // MeV
	E      float64
	Status Status
}

// New builds an on-shell particle from its species, 3-momentum and mass.
func New(pdg int, mom r3.Vec, mass float64, status Status) Particle {
	p := r3.Norm(mom)
	return Particle{
		PDG:    pdg,
		Mom:    mom,
		E:      math.Sqrt(p*p + mass*mass),
		Status: status,
	}
}

// NewFromKE builds an on-shell particle of the PDG table mass with the given
// kinetic energy along dir. dir need not be normalised.
func NewFromKE(pdg int, ke float64, dir r3.Vec, status Status) Particle {
	m, _ := Mass(pdg)
	pmag := MomentumFromKE(ke, m)
	return New(pdg, r3.Scale(pmag, unitOrZ(dir)), m, status)
}

// IsFinal reports whether the particle is in final observable state.
func (p *Particle) IsFinal() bool {
	return p.Status == StatusFinal
}

// P returns the momentum magnitude.
func (p *Particle) P() float64 {
	return r3.Norm(p.Mom)
}

// M returns the invariant mass implied by E and |p|. Slightly off-shell
// records are clamped to zero mass rather than returning NaN.
func (p *Particle) M() float64 {
	pm := p.P()
	m2 := p.E*p.E - pm*pm
	if m2 <= 0 {
		return 0
	}
	return math.Sqrt(m2)
}

// KE returns the kinetic energy E - m.
func (p *Particle) KE() float64 {
	return p.E - p.M()
}

// SetKE changes the kinetic energy in place. Direction and invariant mass are
// kept, so E² = |p|² + m² holds afterwards. Negative values clamp to zero.
func (p *Particle) SetKE(ke float64) {
	if ke < 0 {
		ke = 0
	}
	m := p.M()
	pmag := MomentumFromKE(ke, m)
	p.Mom = r3.Scale(pmag, unitOrZ(p.Mom))
	p.E = ke + m
}

// Event is the ordered particle record of one simulated interaction.
type Event struct {
	Particles []Particle
}

// NewEvent wraps particles into an event.
func NewEvent(particles ...Particle) *Event {
	return &Event{Particles: particles}
}

// NumFinal counts final-state particles.
func (e *Event) NumFinal() int {
	n := 0
	for i := range e.Particles {
		if e.Particles[i].IsFinal() {
			n++
		}
	}
	return n
}

// MomentumFromKE converts a kinetic energy to a momentum magnitude for mass m.
// It returns NaN for kinetic energies below zero.
func MomentumFromKE(ke, m float64) float64 {
	if ke < 0 {
		return math.NaN()
	}
	return math.Sqrt((ke+m)*(ke+m) - m*m)
}

// MomentumFromTE converts a total energy to a momentum magnitude for mass m.
// It returns NaN when te < m.
func MomentumFromTE(te, m float64) float64 {
	if te < m {
		return math.NaN()
	}
	return math.Sqrt(te*te - m*m)
}

// unitOrZ returns the unit vector along v, or +z for the zero vector so that
// energy added to a particle at rest still has a direction.
func unitOrZ(v r3.Vec) r3.Vec {
	if r3.Norm(v) == 0 {
		return r3.Vec{Z: 1}
	}
	return r3.Unit(v)
}
