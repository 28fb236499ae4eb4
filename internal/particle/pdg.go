package particle

import "math"

// PDG codes used throughout the smearing configuration.
const (
	PDGElectron = 11
	PDGNuE      = 12
	PDGMuon     = 13
	PDGNuMu     = 14
	PDGTau      = 15
	PDGNuTau    = 16
	PDGPhoton   = 22
	PDGPi0      = 111
	PDGPiPlus   = 211
	PDGK0L      = 130
	PDGK0S      = 310
	PDGKPlus    = 321
	PDGEta      = 221
	PDGNeutron  = 2112
	PDGProton   = 2212
	PDGLambda   = 3122
	PDGSigmaP   = 3222
	PDGSigma0   = 3212
	PDGSigmaM   = 3112
)

const atomicMassUnitMeV = 931.494

// masses in MeV, keyed by |PDG|.
var masses = map[int]float64{
	PDGElectron: 0.51099895,
	PDGNuE:      0,
	PDGMuon:     105.6583755,
	PDGNuMu:     0,
	PDGTau:      1776.86,
	PDGNuTau:    0,
	PDGPhoton:   0,
	PDGPi0:      134.9768,
	PDGPiPlus:   139.57039,
	PDGK0L:      497.611,
	PDGK0S:      497.611,
	PDGKPlus:    493.677,
	PDGEta:      547.862,
	PDGNeutron:  939.56542052,
	PDGProton:   938.27208816,
	PDGLambda:   1115.683,
	PDGSigmaP:   1189.37,
	PDGSigma0:   1192.642,
	PDGSigmaM:   1197.449,
}

// Mass returns the rest mass of a species in MeV. Nuclear codes
// (10LZZZAAAI) are approximated as A atomic mass units. ok is false for
// species with no known mass; the returned mass is then zero.
func Mass(pdg int) (m float64, ok bool) {
	apdg := int(math.Abs(float64(pdg)))
	if m, ok := masses[apdg]; ok {
		return m, true
	}
	if apdg > 1000000000 {
		a := (apdg / 10) % 1000
		return float64(a) * atomicMassUnitMeV, true
	}
	return 0, false
}

// IsNucleus reports whether pdg is a nuclear code.
func IsNucleus(pdg int) bool {
	return pdg > 1000000000 || pdg < -1000000000
}
