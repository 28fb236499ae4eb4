package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/smearceptance/internal/confnode"
	"github.com/banshee-data/smearceptance/internal/monitoring"
	"github.com/banshee-data/smearceptance/internal/particle"
	"github.com/banshee-data/smearceptance/internal/reco"
	"github.com/banshee-data/smearceptance/internal/smear"
)

const config = `
smearcepters:
  - type: ThresholdAccepter
    Name: muon-only
    children:
      - type: RecoThreshold
        PDG: 13
        RecoThresholdKE_GeV: 0.05
  - type: MetaSmearcepter
    Name: smeared
    children:
      - type: ThresholdAccepter
        children:
          - type: RecoThreshold
            PDG: 13
            RecoThresholdKE: 0
      - type: GaussianSmearer
        children:
          - type: GaussSmear
            PDG: 13
            Width: 0
  - type: VisECoalescer
`

func newRegistry(t *testing.T) *Registry {
	t.Helper()
	original := monitoring.Logf
	monitoring.SetLogger(t.Logf)
	t.Cleanup(func() { monitoring.SetLogger(original) })
	return New(smear.NewBuilder(1, t.TempDir()))
}

func TestRegistry_LoadFile(t *testing.T) {
	r := newRegistry(t)
	path := filepath.Join(t.TempDir(), "chain.yaml")
	require.NoError(t, os.WriteFile(path, []byte(config), 0o644))
	require.NoError(t, r.LoadFile(path))

	infos := r.List()
	require.Len(t, infos, 3)
	assert.Equal(t, "VisECoalescer", infos[0].Name, "unnamed nodes register under their type")
	assert.Equal(t, "muon-only", infos[1].Name)
	assert.Equal(t, "smeared", infos[2].Name)
	assert.Equal(t, "MetaSmearcepter", infos[2].Type)
	assert.Contains(t, infos[2].Source, "chain.yaml:")

	m, _ := particle.Mass(particle.PDGMuon)
	ev := particle.NewEvent(
		particle.NewFromKE(particle.PDGMuon, 20, r3.Vec{Z: 1}, particle.StatusFinal),
		particle.New(particle.PDGMuon, r3.Vec{X: 400}, m, particle.StatusFinal),
	)

	ri, err := smear.Smearcept(r.MustGet("muon-only"), ev)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, ri.TrueLinkedPartIdx, "50 MeV cut given in GeV")

	ri, err = smear.Smearcept(r.MustGet("smeared"), ev)
	require.NoError(t, err)
	assert.Equal(t, 2, ri.NumTracks())
}

func TestRegistry_GetUnknown(t *testing.T) {
	r := newRegistry(t)
	_, err := r.Get("nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Panics(t, func() { r.MustGet("nope") })
}

func TestRegistry_DuplicateNames(t *testing.T) {
	node := func(name string) *confnode.Node {
		return confnode.New("VisECoalescer", map[string]string{"Name": name})
	}

	r := newRegistry(t)
	err := r.Load([]*confnode.Node{node("a"), node("a")})
	assert.ErrorIs(t, err, confnode.ErrConfig)
	assert.Empty(t, r.List(), "failed load registers nothing")

	require.NoError(t, r.Load([]*confnode.Node{node("a")}))
	assert.ErrorIs(t, r.Load([]*confnode.Node{node("a")}), confnode.ErrConfig)
	assert.Len(t, r.List(), 1)
}

func TestRegistry_BadConfig(t *testing.T) {
	r := newRegistry(t)
	err := r.Load([]*confnode.Node{confnode.New("NoSuchSmearer", nil)})
	assert.ErrorIs(t, err, confnode.ErrConfig)

	empty := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("smearcepters: []\n"), 0o644))
	assert.ErrorIs(t, r.LoadFile(empty), confnode.ErrConfig)
}

type passThrough struct{}

func (passThrough) Smearcept(ev *particle.Event) (*reco.Info, error) {
	ri := reco.New()
	for i, p := range ev.Particles {
		if p.IsFinal() {
			ri.AddTrack(p.Mom, p.PDG, i)
		}
	}
	return ri, nil
}

func (passThrough) Refine(*reco.Info) error { return nil }

func TestRegistry_Extensions(t *testing.T) {
	r := newRegistry(t)
	require.NoError(t, r.RegisterExtensions(map[string]smear.ExtensionFactory{
		"PassThrough": func(*confnode.Node, uint64) (smear.Extension, error) { return passThrough{}, nil },
	}))
	assert.Contains(t, r.Types(), "PassThrough")
	assert.Contains(t, r.Types(), "GaussianSmearer")

	require.NoError(t, r.Load([]*confnode.Node{confnode.New("PassThrough", map[string]string{"Name": "pt"})}))
	c := r.MustGet("pt")
	ext, ok := c.(*smear.External)
	require.True(t, ok)
	assert.Equal(t, "PassThrough", ext.Type())

	ri, err := smear.Smearcept(c, particle.NewEvent(particle.NewFromKE(particle.PDGProton, 10, r3.Vec{Y: 1}, particle.StatusFinal)))
	require.NoError(t, err)
	assert.Equal(t, []int{particle.PDGProton}, ri.RecObjClass)

	assert.ErrorIs(t, r.RegisterExtensions(map[string]smear.ExtensionFactory{"Broken": nil}), confnode.ErrConfig)
	assert.ErrorIs(t, r.RegisterExtensions(map[string]smear.ExtensionFactory{
		"MatrixSmearer": func(*confnode.Node, uint64) (smear.Extension, error) { return passThrough{}, nil },
	}), confnode.ErrConfig)
}

func TestLoadPlugin_Errors(t *testing.T) {
	r := newRegistry(t)
	assert.Error(t, r.LoadPlugin(filepath.Join(t.TempDir(), "missing.so")))
}

func TestPluginFactories(t *testing.T) {
	fn := func() map[string]smear.ExtensionFactory {
		return map[string]smear.ExtensionFactory{"X": nil}
	}
	got, err := pluginFactories(fn)
	require.NoError(t, err)
	assert.Contains(t, got, "X")

	got, err = pluginFactories(&fn)
	require.NoError(t, err)
	assert.Contains(t, got, "X")

	_, err = pluginFactories(42)
	assert.Error(t, err)
}
