package refs

import "sync"

// Registry interns revision specs: adding a spec equal to a known one returns
// the instance registered first, so callers holding it keep their identity
// across reloads.
type Registry struct {
	mu    sync.RWMutex
	byKey map[string]*RevSpec
	order []*RevSpec
}

func NewRegistry() *Registry {
	return &Registry{byKey: map[string]*RevSpec{}}
}

// Add returns the canonical instance for spec and whether it was new.
func (r *Registry) Add(spec *RevSpec) (*RevSpec, bool) {
	key := spec.Key()
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byKey[key]; ok {
		return existing, false
	}
	r.byKey[key] = spec
	r.order = append(r.order, spec)
	return spec, true
}

func (r *Registry) Lookup(spec *RevSpec) (*RevSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	existing, ok := r.byKey[spec.Key()]
	return existing, ok
}

// All returns the registered specs in insertion order.
func (r *Registry) All() []*RevSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*RevSpec(nil), r.order...)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
