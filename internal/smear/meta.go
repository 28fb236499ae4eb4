package smear

import (
	"fmt"

	"github.com/banshee-data/smearceptance/internal/confnode"
	"github.com/banshee-data/smearceptance/internal/particle"
	"github.com/banshee-data/smearceptance/internal/reco"
)

// MetaSmearcepter runs an ordered chain: an optional EnergyShuffler on the
// raw event, then the primary stage, then every further stage refining the
// primary's output.
type MetaSmearcepter struct {
	name     string
	shuffler *EnergyShuffler
	primary  Component
	chain    []Component
}

func (*MetaSmearcepter) sealed() {}

// Name returns the instance name.
func (ms *MetaSmearcepter) Name() string { return ms.name }

// Stats sums the counters of every stage.
func (ms *MetaSmearcepter) Stats() Stats {
	var s Stats
	for _, c := range ms.Stages() {
		s = s.Add(c.Stats())
	}
	return s
}

// Stages returns the stages in execution order.
func (ms *MetaSmearcepter) Stages() []Component {
	var out []Component
	if ms.shuffler != nil {
		out = append(out, ms.shuffler)
	}
	if ms.primary != nil {
		out = append(out, ms.primary)
	}
	return append(out, ms.chain...)
}

// NewMetaSmearcepter assembles a chain from already built stages. The
// shuffler, if present, is pulled out to run first.
func NewMetaSmearcepter(name string, stages ...Component) (*MetaSmearcepter, error) {
	ms := &MetaSmearcepter{name: name}
	for _, c := range stages {
		if es, ok := c.(*EnergyShuffler); ok {
			if ms.shuffler != nil {
				return nil, fmt.Errorf("%w: MetaSmearcepter %q: more than one EnergyShuffler", confnode.ErrConfig, name)
			}
			ms.shuffler = es
			continue
		}
		if ms.primary == nil {
			if !canPrimary(c) {
				return nil, fmt.Errorf("%w: MetaSmearcepter %q: %s %q: %w", confnode.ErrConfig, name, kindOf(c), c.Name(), ErrNotPrimary)
			}
			ms.primary = c
			continue
		}
		if !canRefine(c) {
			return nil, fmt.Errorf("%w: MetaSmearcepter %q: %s %q: %w", confnode.ErrConfig, name, kindOf(c), c.Name(), ErrNotChainable)
		}
		ms.chain = append(ms.chain, c)
	}
	if ms.primary == nil {
		return nil, fmt.Errorf("%w: MetaSmearcepter %q: no primary stage", confnode.ErrConfig, name)
	}
	return ms, nil
}

// Smearcept shuffles ev in place, then runs the chain.
func (ms *MetaSmearcepter) Smearcept(ev *particle.Event) (*reco.Info, error) {
	if ms.shuffler != nil {
		ms.shuffler.Apply(ev)
	}
	ri, err := Smearcept(ms.primary, ev)
	if err != nil {
		return nil, fmt.Errorf("MetaSmearcepter %q: %w", ms.name, err)
	}
	for _, c := range ms.chain {
		if err := Refine(c, ri); err != nil {
			return nil, fmt.Errorf("MetaSmearcepter %q: %w", ms.name, err)
		}
	}
	return ri, nil
}

// Refine runs every stage as a refinement of ri. A nested chain may only be
// refined when it has no shuffler.
func (ms *MetaSmearcepter) Refine(ri *reco.Info) error {
	if ms.shuffler != nil {
		return fmt.Errorf("MetaSmearcepter %q: %w", ms.name, ErrNotChainable)
	}
	for _, c := range append([]Component{ms.primary}, ms.chain...) {
		if err := Refine(c, ri); err != nil {
			return fmt.Errorf("MetaSmearcepter %q: %w", ms.name, err)
		}
	}
	return nil
}

func buildMetaSmearcepter(b *Builder, n *confnode.Node, path string) (Component, error) {
	if len(n.Children) == 0 {
		return nil, n.Errorf("no child smearcepters")
	}
	stages := make([]Component, 0, len(n.Children))
	for i, cn := range n.Children {
		c, err := b.buildChild(cn, path, i)
		if err != nil {
			return nil, err
		}
		stages = append(stages, c)
	}
	ms, err := NewMetaSmearcepter(instanceName(n), stages...)
	if err != nil {
		return nil, fmt.Errorf("%w (%s)", err, n.Source)
	}
	diagf("%s: %d stage(s), shuffler: %t", ms.name, len(ms.Stages()), ms.shuffler != nil)
	return ms, nil
}
