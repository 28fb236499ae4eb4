package registry

import (
	"fmt"
	"plugin"

	"github.com/banshee-data/smearceptance/internal/monitoring"
	"github.com/banshee-data/smearceptance/internal/smear"
)

// PluginSymbol is the function a smearcepter plugin must export:
//
//	func SmearcepterFactories() map[string]smear.ExtensionFactory
const PluginSymbol = "SmearcepterFactories"

// LoadPlugin opens a Go plugin and registers the extension types it
// exports. It must be called before Load for configurations that use them.
func (r *Registry) LoadPlugin(path string) error {
	p, err := plugin.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open plugin %s: %w", path, err)
	}
	sym, err := p.Lookup(PluginSymbol)
	if err != nil {
		return fmt.Errorf("plugin %s: %w", path, err)
	}
	factories, err := pluginFactories(sym)
	if err != nil {
		return fmt.Errorf("plugin %s: %w", path, err)
	}
	if err := r.RegisterExtensions(factories); err != nil {
		return fmt.Errorf("plugin %s: %w", path, err)
	}
	monitoring.Logf("registry: plugin %s provided %d smearcepter type(s)", path, len(factories))
	return nil
}

// pluginFactories converts a looked-up symbol into the factory map.
func pluginFactories(sym plugin.Symbol) (map[string]smear.ExtensionFactory, error) {
	switch f := sym.(type) {
	case func() map[string]smear.ExtensionFactory:
		return f(), nil
	case *func() map[string]smear.ExtensionFactory:
		if f == nil || *f == nil {
			return nil, fmt.Errorf("%s is nil", PluginSymbol)
		}
		return (*f)(), nil
	default:
		return nil, fmt.Errorf("%s has type %T, want func() map[string]smear.ExtensionFactory", PluginSymbol, sym)
	}
}
