package particle

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"
)

// KinVar names a scalar kinematic property of a particle.
type KinVar int

const (
	KinUnknown KinVar = iota
	KinMomentum
	KinKE
	KinTE
	KinCosTheta
	KinTheta
	KinPhi
	// KinKEVis and KinTEVis select the energy contributed to a
	// visible-energy deposit.
	KinKEVis
	KinTEVis
)

var kinNames = map[KinVar]string{
	KinMomentum: "Momentum",
	KinKE:       "KE",
	KinTE:       "TE",
	KinCosTheta: "CosTheta",
	KinTheta:    "Theta",
	KinPhi:      "Phi",
	KinKEVis:    "KEVis",
	KinTEVis:    "TEVis",
}

// String returns the config name of the variable.
func (k KinVar) String() string {
	if s, ok := kinNames[k]; ok {
		return s
	}
	return "Unknown"
}

// ParseKinVar parses a kinematic variable name. Matching is case-insensitive
// and accepts the historical "k" prefix ("kMomentum").
func ParseKinVar(s string) (KinVar, error) {
	name := strings.TrimSpace(s)
	if len(name) > 1 && name[0] == 'k' && name[1] >= 'A' && name[1] <= 'Z' {
		name = name[1:]
	}
	for k, n := range kinNames {
		if strings.EqualFold(n, name) {
			return k, nil
		}
	}
	switch strings.ToLower(name) {
	case "p", "mom":
		return KinMomentum, nil
	case "ekin", "kineticenergy":
		return KinKE, nil
	case "e", "totalenergy":
		return KinTE, nil
	}
	return KinUnknown, fmt.Errorf("unknown kinematic variable %q", s)
}

// IsEnergyLike reports whether the variable is a magnitude (momentum or
// energy) rather than an angle.
func (k KinVar) IsEnergyLike() bool {
	switch k {
	case KinMomentum, KinKE, KinTE, KinKEVis, KinTEVis:
		return true
	}
	return false
}

// Kinematic extracts k from a simulated particle using its own invariant mass.
func Kinematic(p *Particle, k KinVar) float64 {
	switch k {
	case KinKE, KinKEVis:
		return p.KE()
	case KinTE, KinTEVis:
		return p.E
	default:
		return FromMomentum(p.Mom, 0, k)
	}
}

// FromMomentum extracts k from a 3-momentum and a mass, as used for already
// reconstructed tracks where no energy is stored.
func FromMomentum(mom r3.Vec, mass float64, k KinVar) float64 {
	pmag := r3.Norm(mom)
	switch k {
	case KinMomentum:
		return pmag
	case KinKE, KinKEVis:
		return math.Sqrt(pmag*pmag+mass*mass) - mass
	case KinTE, KinTEVis:
		return math.Sqrt(pmag*pmag + mass*mass)
	case KinCosTheta:
		return cosTheta(mom)
	case KinTheta:
		return math.Acos(cosTheta(mom))
	case KinPhi:
		return math.Atan2(mom.Y, mom.X)
	}
	return math.NaN()
}

// WithKinematic returns mom modified so that FromMomentum(result, mass, k)
// equals v. Magnitude variables keep the direction; angular variables keep
// the magnitude and the other angle. The result may contain NaN when v is
// unphysical (for example a total energy below the mass).
func WithKinematic(mom r3.Vec, mass float64, k KinVar, v float64) r3.Vec {
	switch k {
	case KinMomentum:
		return r3.Scale(v, unitOrZ(mom))
	case KinKE, KinKEVis:
		return r3.Scale(MomentumFromKE(v, mass), unitOrZ(mom))
	case KinTE, KinTEVis:
		return r3.Scale(MomentumFromTE(v, mass), unitOrZ(mom))
	case KinCosTheta:
		return fromAngles(r3.Norm(mom), math.Acos(v), math.Atan2(mom.Y, mom.X))
	case KinTheta:
		return fromAngles(r3.Norm(mom), v, math.Atan2(mom.Y, mom.X))
	case KinPhi:
		return fromAngles(r3.Norm(mom), math.Acos(cosTheta(mom)), v)
	}
	return r3.Vec{X: math.NaN(), Y: math.NaN(), Z: math.NaN()}
}

// HasNaN reports whether any component of v is NaN.
func HasNaN(v r3.Vec) bool {
	return math.IsNaN(v.X) || math.IsNaN(v.Y) || math.IsNaN(v.Z)
}

func cosTheta(mom r3.Vec) float64 {
	pmag := r3.Norm(mom)
	if pmag == 0 {
		return 1
	}
	c := mom.Z / pmag
	return math.Max(-1, math.Min(1, c))
}

func fromAngles(pmag, theta, phi float64) r3.Vec {
	st := math.Sin(theta)
	return r3.Vec{
		X: pmag * st * math.Cos(phi),
		Y: pmag * st * math.Sin(phi),
		Z: pmag * math.Cos(theta),
	}
}
