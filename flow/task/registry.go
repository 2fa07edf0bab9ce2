package task

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps task names to handlers. Workers resolve every claimed task
// through one.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds handlers. Registering a name twice is an error: two handlers
// competing for the same task name is a deployment mistake.
func (r *Registry) Register(handlers ...Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, h := range handlers {
		name := h.Name()
		if name == "" {
			return fmt.Errorf("handler has no name")
		}
		if _, exists := r.handlers[name]; exists {
			return fmt.Errorf("task %q is already registered", name)
		}
		r.handlers[name] = h
	}
	return nil
}

// Lookup returns the handler registered under name.
func (r *Registry) Lookup(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// Names returns the registered task names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
