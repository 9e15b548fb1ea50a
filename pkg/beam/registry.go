package beam

import (
	"fmt"
	"sync"
)

// Registry maps names to callable implementations so that data-driven
// definitions (for example compiled YAML manifests) can reference prisms,
// conditions and fallbacks by name. Lookup happens at compile time; a
// compiled Beam stores the interface values themselves.
type Registry struct {
	mu         sync.RWMutex
	prisms     map[string]registeredPrism
	conditions map[string]Condition
	fallbacks  map[string]Fallback
}

type registeredPrism struct {
	prism        Prism
	capabilities []string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		prisms:     make(map[string]registeredPrism),
		conditions: make(map[string]Condition),
		fallbacks:  make(map[string]Fallback),
	}
}

// RegisterPrism registers a prism under a unique name with optional
// capability tags.
func (r *Registry) RegisterPrism(name string, p Prism, capabilities ...string) error {
	if name == "" || p == nil {
		return fmt.Errorf("registry: prism name and implementation are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.prisms[name]; exists {
		return fmt.Errorf("registry: prism %q already registered", name)
	}
	r.prisms[name] = registeredPrism{prism: p, capabilities: capabilities}
	return nil
}

// RegisterCondition registers a branch condition under a unique name.
func (r *Registry) RegisterCondition(name string, c Condition) error {
	if name == "" || c == nil {
		return fmt.Errorf("registry: condition name and implementation are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.conditions[name]; exists {
		return fmt.Errorf("registry: condition %q already registered", name)
	}
	r.conditions[name] = c
	return nil
}

// RegisterFallback registers a fallback under a unique name.
func (r *Registry) RegisterFallback(name string, f Fallback) error {
	if name == "" || f == nil {
		return fmt.Errorf("registry: fallback name and implementation are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.fallbacks[name]; exists {
		return fmt.Errorf("registry: fallback %q already registered", name)
	}
	r.fallbacks[name] = f
	return nil
}

// Prism looks up a prism by name.
func (r *Registry) Prism(name string) (Prism, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.prisms[name]
	if !ok {
		return nil, fmt.Errorf("registry: prism %q not found", name)
	}
	return reg.prism, nil
}

// Condition looks up a condition by name.
func (r *Registry) Condition(name string) (Condition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conditions[name]
	if !ok {
		return nil, fmt.Errorf("registry: condition %q not found", name)
	}
	return c, nil
}

// Fallback looks up a fallback by name.
func (r *Registry) Fallback(name string) (Fallback, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.fallbacks[name]
	if !ok {
		return nil, fmt.Errorf("registry: fallback %q not found", name)
	}
	return f, nil
}

// FindByCapability returns the names of all prisms tagged with the given
// capability, in no particular order.
func (r *Registry) FindByCapability(capability string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	for name, reg := range r.prisms {
		for _, c := range reg.capabilities {
			if c == capability {
				names = append(names, name)
				break
			}
		}
	}
	return names
}
