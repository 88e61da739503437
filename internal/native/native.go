// Package native holds the factories for native modules the dev server can
// register.
package native

import (
	"fmt"
	"sort"
	"sync"

	"github.com/vango-dev/hotshim/internal/config"
	"github.com/vango-dev/hotshim/internal/errors"
	"github.com/vango-dev/hotshim/pkg/shim"
)

// Catalog maps module paths to factories.
type Catalog struct {
	mu        sync.RWMutex
	factories map[string]shim.Factory
}

// NewCatalog creates a catalog holding the built-in modules.
func NewCatalog() *Catalog {
	c := &Catalog{factories: make(map[string]shim.Factory)}
	c.Register("Native.Something", Something)
	return c
}

// Register adds or replaces the factory for modulePath.
func (c *Catalog) Register(modulePath string, factory shim.Factory) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.factories[modulePath] = factory
}

// Paths returns the registered module paths in sorted order.
func (c *Catalog) Paths() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	paths := make([]string, 0, len(c.factories))
	for p := range c.factories {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Factory resolves the factory for a configured module. A built-in factory
// wins; otherwise the configured exports are published.
func (c *Catalog) Factory(m config.ModuleConfig) (shim.Factory, error) {
	c.mu.RLock()
	f, ok := c.factories[m.Path]
	c.mu.RUnlock()
	if ok {
		return f, nil
	}
	if m.Exports != nil {
		return Static(m.Exports), nil
	}
	return nil, errors.New("H123").
		WithDetail(fmt.Sprintf("module %s (%s) has no factory", m.Identity, m.Path)).
		WithSuggestion(`Add "exports" to the module in hotshim.json`)
}

// Something is the Native.Something module.
func Something() any {
	return map[string]any{
		"whatever": "yes",
	}
}

// Static returns a factory that publishes a fresh copy of exports on every
// call, so a registry entry is never shared with the config.
func Static(exports map[string]any) shim.Factory {
	return func() any {
		out := make(map[string]any, len(exports))
		for k, v := range exports {
			out[k] = v
		}
		return out
	}
}
