package smear

import (
	"fmt"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/banshee-data/smearceptance/internal/confnode"
	"github.com/banshee-data/smearceptance/internal/hist"
	"github.com/banshee-data/smearceptance/internal/particle"
	"github.com/banshee-data/smearceptance/internal/reco"
	"github.com/banshee-data/smearceptance/internal/units"
)

// Factory builds one component from its configuration node. path identifies
// the node within the configuration and feeds seed derivation.
type Factory func(b *Builder, n *confnode.Node, path string) (Component, error)

// Extension is the contract for stages implemented outside this package.
type Extension interface {
	Smearcept(ev *particle.Event) (*reco.Info, error)
	Refine(ri *reco.Info) error
}

// ExtensionFactory builds an Extension from its configuration node and the
// seed assigned to it.
type ExtensionFactory func(n *confnode.Node, seed uint64) (Extension, error)

// External adapts an Extension into the closed component set.
type External struct {
	name  string
	typ   string
	ext   Extension
	stats Stats
}

func (*External) sealed() {}

// Name returns the instance name.
func (e *External) Name() string { return e.name }

// Type returns the configuration type name the extension was built from.
func (e *External) Type() string { return e.typ }

// Stats returns the counters accumulated so far.
func (e *External) Stats() Stats { return e.stats }

func (e *External) smearcept(ev *particle.Event) (*reco.Info, error) {
	ri, err := e.ext.Smearcept(ev)
	if err != nil {
		return nil, fmt.Errorf("extension %s %q: %w", e.typ, e.name, err)
	}
	e.stats.Particles += ev.NumFinal()
	if ri != nil {
		e.stats.Tracks += ri.NumTracks()
		e.stats.Deposits += len(ri.RecVisibleEnergy)
	}
	return ri, nil
}

func (e *External) refine(ri *reco.Info) error {
	if err := e.ext.Refine(ri); err != nil {
		return fmt.Errorf("extension %s %q: %w", e.typ, e.name, err)
	}
	if err := ri.Validate(); err != nil {
		return fmt.Errorf("extension %s %q: %w", e.typ, e.name, err)
	}
	return nil
}

// Builder turns configuration nodes into components. It is used only during
// setup and is not safe for concurrent use.
type Builder struct {
	// Seed is the run seed that per-stage seeds are derived from.
	Seed uint64
	// BaseDir resolves relative InputFile attributes.
	BaseDir string

	factories  map[string]Factory
	extensions map[string]ExtensionFactory
	hists      map[string]*hist.Hist
}

// NewBuilder returns a builder knowing every built-in component type.
func NewBuilder(seed uint64, baseDir string) *Builder {
	return &Builder{
		Seed:       seed,
		BaseDir:    baseDir,
		factories:  DefaultFactories(),
		extensions: map[string]ExtensionFactory{},
		hists:      map[string]*hist.Hist{},
	}
}

// DefaultFactories returns the built-in type-name to constructor map.
func DefaultFactories() map[string]Factory {
	return map[string]Factory{
		"ThresholdAccepter": func(b *Builder, n *confnode.Node, path string) (Component, error) {
			return newThresholdAccepter(instanceName(n), n)
		},
		"EfficiencyApplicator":         buildEfficiencyApplicator,
		"GaussianSmearer":              buildGaussianSmearer,
		"TrackedMomentumMatrixSmearer": buildMatrixSmearer,
		"MatrixSmearer":                buildMatrixSmearer,
		"EnergyShuffler": func(b *Builder, n *confnode.Node, path string) (Component, error) {
			return newEnergyShuffler(instanceName(n), n)
		},
		"VisECoalescer": func(b *Builder, n *confnode.Node, path string) (Component, error) {
			return &VisECoalescer{name: instanceName(n)}, nil
		},
		"MetaSmearcepter": buildMetaSmearcepter,
	}
}

// RegisterExtension makes an externally implemented type available under
// typ. Built-in type names cannot be shadowed.
func (b *Builder) RegisterExtension(typ string, f ExtensionFactory) error {
	if _, ok := b.factories[typ]; ok {
		return fmt.Errorf("%w: type %q is built in", confnode.ErrConfig, typ)
	}
	if _, ok := b.extensions[typ]; ok {
		return fmt.Errorf("%w: extension type %q registered twice", confnode.ErrConfig, typ)
	}
	b.extensions[typ] = f
	return nil
}

// Types lists every type name the builder can construct.
func (b *Builder) Types() []string {
	out := make([]string, 0, len(b.factories)+len(b.extensions))
	for t := range b.factories {
		out = append(out, t)
	}
	for t := range b.extensions {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Build constructs the component described by a top-level node.
func (b *Builder) Build(n *confnode.Node) (Component, error) {
	return b.build(n, instanceName(n))
}

func (b *Builder) build(n *confnode.Node, path string) (Component, error) {
	if f, ok := b.factories[n.Type]; ok {
		return f(b, n, path)
	}
	if f, ok := b.extensions[n.Type]; ok {
		seed, err := b.seedFor(n, path)
		if err != nil {
			return nil, err
		}
		ext, err := f(n, seed)
		if err != nil {
			return nil, fmt.Errorf("%w: extension %s: %v", confnode.ErrConfig, n.Type, err)
		}
		return &External{name: instanceName(n), typ: n.Type, ext: ext}, nil
	}
	return nil, n.Errorf("unknown smearcepter type")
}

// buildChild constructs the i-th nested component of parent.
func (b *Builder) buildChild(n *confnode.Node, parentPath string, i int) (Component, error) {
	return b.build(n, parentPath+"/"+strconv.Itoa(i)+":"+instanceName(n))
}

// seedFor returns the node's explicit Seed attribute, or a seed derived from
// the run seed and the node's path.
func (b *Builder) seedFor(n *confnode.Node, path string) (uint64, error) {
	if n.Has("Seed") {
		return n.Uint64Or("Seed", 0)
	}
	return DeriveSeed(b.Seed, path), nil
}

// histogram loads the table a node refers to: InputFile plus HistName, or
// inline XEdges/YEdges/ZEdges with Content. File histograms are cached per
// path and name; callers get their own copy.
func (b *Builder) histogram(n *confnode.Node) (*hist.Hist, error) {
	if n.Has("InputFile") {
		file, err := n.String("InputFile")
		if err != nil {
			return nil, err
		}
		name, err := n.String("HistName")
		if err != nil {
			return nil, err
		}
		if !filepath.IsAbs(file) && b.BaseDir != "" {
			file = filepath.Join(b.BaseDir, file)
		}
		key := file + "#" + name
		if h, ok := b.hists[key]; ok {
			return h.Clone(), nil
		}
		h, err := hist.ReadFile(file, name)
		if err != nil {
			return nil, n.Errorf("%v", err)
		}
		b.hists[key] = h
		diagf("loaded histogram %q from %s (%d dims, integral %.4g)", name, file, h.Dim(), h.Integral())
		return h.Clone(), nil
	}

	var edges [][]float64
	for _, key := range []string{"XEdges", "YEdges", "ZEdges"} {
		if !n.Has(key) {
			break
		}
		e, err := n.FloatList(key)
		if err != nil {
			return nil, err
		}
		edges = append(edges, e)
	}
	if len(edges) == 0 {
		return nil, n.Errorf("needs InputFile and HistName, or inline XEdges and Content")
	}
	content, err := n.FloatList("Content")
	if err != nil {
		return nil, err
	}
	h, err := hist.FromTable(instanceName(n), content, edges...)
	if err != nil {
		return nil, n.Errorf("%v", err)
	}
	return h, nil
}

func instanceName(n *confnode.Node) string {
	if name := n.Name(); name != "" {
		return name
	}
	return n.Type
}

// axisScale reads a numeric scale factor or an energy unit name. A kinematic
// value in MeV is divided by the result before lookup.
func axisScale(n *confnode.Node, scaleKey, unitKey string) (float64, error) {
	if n.Has(scaleKey) && n.Has(unitKey) {
		return 0, n.Errorf("only one of %q and %q may be given", scaleKey, unitKey)
	}
	if n.Has(unitKey) {
		u := n.StringOr(unitKey, "")
		s, ok := units.ScaleToMeV(u)
		if !ok {
			return 0, n.Errorf("attribute %q: unknown energy unit %q", unitKey, u)
		}
		return s, nil
	}
	s, err := n.FloatOr(scaleKey, 1)
	if err != nil {
		return 0, err
	}
	if !(s > 0) {
		return 0, n.Errorf("attribute %q must be positive, got %g", scaleKey, s)
	}
	return s, nil
}
