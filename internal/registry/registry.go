// Package registry instantiates the named smearcepters of a configuration
// and hands them out by name. A Registry is built once per process and is
// read-only afterwards.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/banshee-data/smearceptance/internal/confnode"
	"github.com/banshee-data/smearceptance/internal/monitoring"
	"github.com/banshee-data/smearceptance/internal/smear"
)

// ErrNotFound is returned when no component has the requested name.
var ErrNotFound = errors.New("smearcepter not found")

// Info summarises a registered component.
type Info struct {
	Name   string `json:"name"`
	Type   string `json:"type"`
	Source string `json:"source,omitempty"`
}

type entry struct {
	component smear.Component
	info      Info
}

// Registry holds the components built from top-level configuration nodes.
type Registry struct {
	mu      sync.RWMutex
	builder *smear.Builder
	entries map[string]*entry
}

// New returns an empty registry that builds components with b.
func New(b *smear.Builder) *Registry {
	return &Registry{
		builder: b,
		entries: make(map[string]*entry),
	}
}

// Types lists every component type the registry can build, built-in and
// registered extensions alike.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.builder.Types()
}

// RegisterExtensions makes extension factories available to later Load
// calls. Types are registered in sorted order and the first failure stops
// registration.
func (r *Registry) RegisterExtensions(factories map[string]smear.ExtensionFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	types := make([]string, 0, len(factories))
	for t := range factories {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		if factories[t] == nil {
			return fmt.Errorf("%w: extension %q has no factory", confnode.ErrConfig, t)
		}
		if err := r.builder.RegisterExtension(t, factories[t]); err != nil {
			return err
		}
	}
	return nil
}

// Load builds every node and registers it under its Name attribute, or its
// type when unnamed. Names must be unique across all Load calls. Nothing is
// registered when any node fails.
func (r *Registry) Load(nodes []*confnode.Node) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	built := make(map[string]*entry, len(nodes))
	for _, n := range nodes {
		name := n.Name()
		if name == "" {
			name = n.Type
		}
		if _, ok := r.entries[name]; ok {
			return n.Errorf("smearcepter name %q already registered", name)
		}
		if _, ok := built[name]; ok {
			return n.Errorf("smearcepter name %q used twice", name)
		}
		c, err := r.builder.Build(n)
		if err != nil {
			return err
		}
		built[name] = &entry{component: c, info: Info{Name: name, Type: n.Type, Source: n.Source}}
	}
	for name, e := range built {
		r.entries[name] = e
		monitoring.Logf("registry: loaded %s %q", e.info.Type, name)
	}
	return nil
}

// LoadFile reads a YAML or XML configuration and loads its top-level nodes.
func (r *Registry) LoadFile(path string) error {
	nodes, err := confnode.Load(path)
	if err != nil {
		return err
	}
	if len(nodes) == 0 {
		return fmt.Errorf("%w: %s: no smearcepters defined", confnode.ErrConfig, path)
	}
	return r.Load(nodes)
}

// Get retrieves a component by name.
func (r *Registry) Get(name string) (smear.Component, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return e.component, nil
}

// MustGet is like Get but panics when the name is unknown. Intended for
// tests and program setup.
func (r *Registry) MustGet(name string) smear.Component {
	c, err := r.Get(name)
	if err != nil {
		panic(err)
	}
	return c
}

// List returns the registered components sorted by name.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]Info, 0, len(r.entries))
	for _, e := range r.entries {
		infos = append(infos, e.info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}
