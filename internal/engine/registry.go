package engine

import (
	"fmt"
	"sort"
	"sync"

	"github.com/sakenw/transhub/internal/model"
)

// Factory builds an engine from its opaque configuration sub-structure
// (the engine_configs.<name> mapping). Factories validate their own
// config and return ConfigurationError on bad input.
type Factory func(cfg map[string]any) (Engine, error)

var registry = struct {
	mu sync.RWMutex
	m  map[string]Factory
}{m: map[string]Factory{}}

// Register makes an engine available under name. Shipped engines
// register from init; embedders may register their own before
// Coordinator.Initialize.
func Register(name string, factory Factory) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.m[name] = factory
}

// New instantiates the named engine with its configuration.
func New(name string, cfg map[string]any) (Engine, error) {
	registry.mu.RLock()
	factory, ok := registry.m[name]
	registry.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", model.ErrEngineNotFound, name)
	}
	return factory(cfg)
}

// Names lists the registered engine names, sorted.
func Names() []string {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	names := make([]string, 0, len(registry.m))
	for name := range registry.m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
