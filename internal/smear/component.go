// Package smear implements the smearcepters: detector-response stages that
// turn true simulated particles into reconstructed tracks and visible-energy
// deposits.
//
// The set of stage kinds is closed. Component is sealed, and the role a
// stage plays in a chain (primary, refining, or pre-processing) is decided
// by type switch in Smearcept and Refine. Third-party stages enter only
// through the Extension interface, wrapped in *External.
//
// All per-species tables are built once by the constructors and only read
// during event processing. Each stage owns its random generator.
package smear

import (
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand/v2"

	"github.com/banshee-data/smearceptance/internal/particle"
	"github.com/banshee-data/smearceptance/internal/reco"
)

var (
	// ErrNotPrimary is returned when a refine-only stage is asked to
	// process raw events.
	ErrNotPrimary = errors.New("stage cannot be the primary smearcepter")
	// ErrNotChainable is returned when a primary-only stage is placed after
	// the first position of a chain.
	ErrNotChainable = errors.New("stage cannot refine an existing reco info")
	// ErrDegenerateSmear is returned when rejection sampling cannot find a
	// physical value.
	ErrDegenerateSmear = errors.New("smearing distribution is degenerate for the variable's domain")
)

// Component is one configured smearcepter.
type Component interface {
	// Name returns the instance name.
	Name() string
	// Stats returns the counters accumulated so far.
	Stats() Stats
	sealed()
}

// Stats counts per-particle outcomes of a stage.
type Stats struct {
	Particles  int // final-state particles examined
	Tracks     int // reconstructed tracks emitted or refined
	Deposits   int // visible-energy deposits emitted or refined
	Rejected   int // particles contributing nothing
	Ignored    int // species the stage is not configured for
	Fallback   int // particles handed to a fallback stage
	OutOfRange int // lookups outside histogram ranges
	EmptySlice int // migration slices without statistics
	NaN        int // tracks dropped for invalid momenta
	Redraws    int // rejection-sampling redraws
	EnergyLost float64
}

// Add returns the element-wise sum of two counters.
func (s Stats) Add(o Stats) Stats {
	return Stats{
		Particles:  s.Particles + o.Particles,
		Tracks:     s.Tracks + o.Tracks,
		Deposits:   s.Deposits + o.Deposits,
		Rejected:   s.Rejected + o.Rejected,
		Ignored:    s.Ignored + o.Ignored,
		Fallback:   s.Fallback + o.Fallback,
		OutOfRange: s.OutOfRange + o.OutOfRange,
		EmptySlice: s.EmptySlice + o.EmptySlice,
		NaN:        s.NaN + o.NaN,
		Redraws:    s.Redraws + o.Redraws,
		EnergyLost: s.EnergyLost + o.EnergyLost,
	}
}

// Smearcept runs c as the primary stage on one event.
func Smearcept(c Component, ev *particle.Event) (*reco.Info, error) {
	var (
		ri  *reco.Info
		err error
	)
	switch c := c.(type) {
	case *ThresholdAccepter:
		ri = c.Smearcept(ev)
	case *EfficiencyApplicator:
		ri = c.Smearcept(ev)
	case *GaussianSmearer:
		ri, err = c.Smearcept(ev)
	case *MatrixSmearer:
		ri, err = c.Smearcept(ev)
	case *MetaSmearcepter:
		ri, err = c.Smearcept(ev)
	case *External:
		ri, err = c.smearcept(ev)
	case *EnergyShuffler, *VisECoalescer:
		return nil, fmt.Errorf("%s %q: %w", kindOf(c), c.Name(), ErrNotPrimary)
	default:
		return nil, fmt.Errorf("unknown smearcepter %T", c)
	}
	if err != nil {
		return nil, err
	}
	if ri == nil {
		ri = reco.New()
	}
	if err := ri.Validate(); err != nil {
		return nil, fmt.Errorf("%s %q: %w", kindOf(c), c.Name(), err)
	}
	return ri, nil
}

// Refine runs c as a chained stage on an existing reco info.
func Refine(c Component, ri *reco.Info) error {
	switch c := c.(type) {
	case *GaussianSmearer:
		return c.Refine(ri)
	case *MatrixSmearer:
		return c.Refine(ri)
	case *VisECoalescer:
		c.Refine(ri)
		return nil
	case *MetaSmearcepter:
		return c.Refine(ri)
	case *External:
		return c.refine(ri)
	case *ThresholdAccepter, *EfficiencyApplicator, *EnergyShuffler:
		return fmt.Errorf("%s %q: %w", kindOf(c), c.Name(), ErrNotChainable)
	default:
		return fmt.Errorf("unknown smearcepter %T", c)
	}
}

// canPrimary and canRefine mirror the dispatch above and are used to reject
// impossible chains at construction time.
func canPrimary(c Component) bool {
	switch c := c.(type) {
	case *EnergyShuffler, *VisECoalescer:
		return false
	case *MetaSmearcepter:
		return c.primary != nil
	}
	return true
}

func canRefine(c Component) bool {
	switch c := c.(type) {
	case *ThresholdAccepter, *EfficiencyApplicator, *EnergyShuffler:
		return false
	case *MetaSmearcepter:
		if c.shuffler != nil {
			return false
		}
		for _, s := range c.chain {
			if !canRefine(s) {
				return false
			}
		}
		return c.primary == nil || canRefine(c.primary)
	}
	return true
}

func kindOf(c Component) string {
	switch c.(type) {
	case *ThresholdAccepter:
		return "ThresholdAccepter"
	case *EfficiencyApplicator:
		return "EfficiencyApplicator"
	case *GaussianSmearer:
		return "GaussianSmearer"
	case *MatrixSmearer:
		return "TrackedMomentumMatrixSmearer"
	case *EnergyShuffler:
		return "EnergyShuffler"
	case *VisECoalescer:
		return "VisECoalescer"
	case *MetaSmearcepter:
		return "MetaSmearcepter"
	case *External:
		return "External"
	}
	return fmt.Sprintf("%T", c)
}

// newRNG builds a stage generator from an explicit seed.
func newRNG(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// DeriveSeed combines a run seed with a stage path so that every stage of a
// configuration gets a distinct, reproducible stream.
func DeriveSeed(runSeed uint64, path string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(path))
	return runSeed ^ h.Sum64()
}
