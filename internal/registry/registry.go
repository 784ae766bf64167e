package registry

import (
	"fmt"
	"sync"

	"github.com/nholik/service-sentinel/internal/service"
)

// Entry pairs a descriptor with its service implementation.
type Entry struct {
	Descriptor service.Descriptor
	Service    service.Service
}

// Registry holds all managed services in registration order.
type Registry struct {
	mu      sync.RWMutex
	order   []string
	entries map[string]Entry
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		entries: make(map[string]Entry),
	}
}

// Register adds a service. It fails without mutating the registry if the
// name is already present or if the registration would make the dependency
// graph cyclic. Dependencies on names registered later are allowed; the
// cycle check runs over every edge whose endpoints are both known.
func (r *Registry) Register(desc service.Descriptor, svc service.Service) error {
	if desc.Name == "" {
		return fmt.Errorf("descriptor name is required")
	}
	if svc == nil {
		return fmt.Errorf("service implementation is required for %s", desc.Name)
	}
	if desc.Criticality == "" {
		desc.Criticality = service.Required
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[desc.Name]; ok {
		return fmt.Errorf("%w: %s", service.ErrDuplicateService, desc.Name)
	}
	for _, dep := range desc.DependsOn {
		if dep == desc.Name {
			return fmt.Errorf("%w: %s depends on itself", service.ErrCyclicDependency, desc.Name)
		}
	}
	if cycle := r.wouldCycle(desc); cycle {
		return fmt.Errorf("%w: registering %s", service.ErrCyclicDependency, desc.Name)
	}

	r.entries[desc.Name] = Entry{Descriptor: desc, Service: svc}
	r.order = append(r.order, desc.Name)
	return nil
}

// Lookup returns the entry for a name.
func (r *Registry) Lookup(name string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[name]
	return entry, ok
}

// Names returns all registered names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Descriptors returns all descriptors keyed by name.
func (r *Registry) Descriptors() map[string]service.Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make(map[string]service.Descriptor, len(r.entries))
	for name, entry := range r.entries {
		result[name] = entry.Descriptor
	}
	return result
}

// Len returns the number of registered services.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// StartOrder computes a topological order over all registered services.
// Services whose dependencies are all satisfied are emitted in registration
// order (stable tie-break). It fails if any dependency is unregistered or
// if a cycle remains.
func (r *Registry) StartOrder() ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range r.order {
		for _, dep := range r.entries[name].Descriptor.DependsOn {
			if _, ok := r.entries[dep]; !ok {
				return nil, fmt.Errorf("%w: %s depends on unregistered %s", service.ErrUnknownService, name, dep)
			}
		}
	}

	order, ok := r.topoOrder(nil)
	if !ok {
		return nil, fmt.Errorf("%w: dependency graph is not a DAG", service.ErrCyclicDependency)
	}
	return order, nil
}

// wouldCycle runs a Kahn feasibility pass over the registered entries plus
// the candidate descriptor. Edges referencing not-yet-registered names are
// ignored; they cannot close a cycle until the other endpoint exists.
// Caller holds the lock.
func (r *Registry) wouldCycle(candidate service.Descriptor) bool {
	_, ok := r.topoOrder(&candidate)
	return !ok
}

// topoOrder performs Kahn's algorithm with registration-order tie-break.
// An extra candidate descriptor may be included. Caller holds the lock.
func (r *Registry) topoOrder(candidate *service.Descriptor) ([]string, bool) {
	names := append([]string(nil), r.order...)
	if candidate != nil {
		names = append(names, candidate.Name)
	}

	known := make(map[string]struct{}, len(names))
	for _, name := range names {
		known[name] = struct{}{}
	}

	deps := func(name string) []string {
		if candidate != nil && name == candidate.Name {
			return candidate.DependsOn
		}
		return r.entries[name].Descriptor.DependsOn
	}

	indegree := make(map[string]int, len(names))
	dependents := make(map[string][]string, len(names))
	for _, name := range names {
		for _, dep := range deps(name) {
			if _, ok := known[dep]; !ok {
				continue
			}
			indegree[name]++
			dependents[dep] = append(dependents[dep], name)
		}
	}

	order := make([]string, 0, len(names))
	remaining := append([]string(nil), names...)
	for len(remaining) > 0 {
		progressed := false
		next := remaining[:0]
		for _, name := range remaining {
			if indegree[name] == 0 {
				order = append(order, name)
				for _, dependent := range dependents[name] {
					indegree[dependent]--
				}
				progressed = true
				continue
			}
			next = append(next, name)
		}
		remaining = next
		if !progressed {
			return nil, false
		}
	}
	return order, true
}
