// Package registry provides an explicit, opt-in name -> factory mapping.
//
// Factories referencing each other (including self-references) cannot always
// be compiled in dependency order; Ref returns a late-bound handle that is
// only resolved when a nested build actually needs the target factory.
package registry

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/vk/blueprint"
)

// Registry holds compiled factories for a single application or test suite
// instance.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]*blueprint.Factory
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{factories: make(map[string]*blueprint.Factory)}
}

// Register stores a compiled factory under a name. Registering the same name
// twice is a programming error.
func (r *Registry) Register(name string, f *blueprint.Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[name]; exists {
		panic(fmt.Sprintf("factory with name '%s' already registered", name))
	}
	slog.Debug("Registering factory.", "name", name)
	r.factories[name] = f
}

// Lookup returns the factory registered under name.
func (r *Registry) Lookup(name string) (*blueprint.Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("registry: no factory registered under %q", name)
	}
	return f, nil
}

// Ref returns a late-bound reference to the named factory, usable wherever a
// blueprint.FactoryRef is expected. The name is resolved on first use, not at
// call time, so the target may be registered later.
func (r *Registry) Ref(name string) blueprint.FactoryRef {
	return &ref{registry: r, name: name}
}

type ref struct {
	registry *Registry
	name     string
}

func (rf *ref) Resolve() (*blueprint.Factory, error) {
	return rf.registry.Lookup(rf.name)
}
