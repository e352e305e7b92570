package listener

import (
	"sort"
	"sync"
)

// Registry maps module ids to their running listener. A module is present
// only while its listener is bound and serving.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Listener
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*Listener)}
}

// Put stores l under module and returns the listener it replaced, if any.
func (r *Registry) Put(module string, l *Listener) *Listener {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.entries[module]
	r.entries[module] = l
	return prev
}

// Get returns the listener for module.
func (r *Registry) Get(module string) (*Listener, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.entries[module]
	return l, ok
}

// Remove deletes module's entry and returns it.
func (r *Registry) Remove(module string) (*Listener, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.entries[module]
	if ok {
		delete(r.entries, module)
	}
	return l, ok
}

// RemoveIf deletes module's entry only if it is still l. It reports whether it removed anything.
func (r *Registry) RemoveIf(module string, l *Listener) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.entries[module]; ok && cur == l {
		delete(r.entries, module)
		return true
	}
	return false
}

// Len returns the number of registered listeners.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Snapshot returns the registered listeners sorted by module id.
func (r *Registry) Snapshot() []*Listener {
	r.mu.RLock()
	out := make([]*Listener, 0, len(r.entries))
	for _, l := range r.entries {
		out = append(out, l)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].module < out[j].module })
	return out
}
