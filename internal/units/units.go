// Package units provides shared constants and conversions for energy units.
// Everything inside the smearing chain is expressed in MeV.
package units

import "strings"

// Unit constants
const (
	EV  = "eV"
	KeV = "keV"
	MeV = "MeV"
	GeV = "GeV"
	TeV = "TeV"
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{EV, KeV, MeV, GeV, TeV}

var scaleToMeV = map[string]float64{
	EV:  1e-6,
	KeV: 1e-3,
	MeV: 1,
	GeV: 1e3,
	TeV: 1e6,
}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	_, ok := scaleToMeV[unit]
	return ok
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return strings.Join(ValidUnits, ", ")
}

// ScaleToMeV returns the factor converting a value in unit to MeV.
// Unknown units return 1 and ok=false.
func ScaleToMeV(unit string) (scale float64, ok bool) {
	s, ok := scaleToMeV[unit]
	if !ok {
		return 1, false
	}
	return s, true
}

// ToMeV converts an energy or momentum in the given unit to MeV.
// Unknown units are treated as MeV.
func ToMeV(v float64, unit string) float64 {
	s, _ := ScaleToMeV(unit)
	return v * s
}

// SplitSuffix splits an attribute name such as "RecoThresholdKE_GeV" into its
// base name and unit. Names without a recognised unit suffix return unit "".
func SplitSuffix(name string) (base, unit string) {
	i := strings.LastIndexByte(name, '_')
	if i < 0 {
		return name, ""
	}
	if u := name[i+1:]; IsValid(u) {
		return name[:i], u
	}
	return name, ""
}
