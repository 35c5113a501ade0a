package service

import (
	"sync"

	"github.com/dailymotiv/quote-service/internal/observ"
)

// Registry maps service names to live instances and guarantees at most one
// instance per name. It owns the instances it creates: callers obtain and
// tear down services through it instead of holding their own lifecycle.
// Construct one at process start and thread it through; there is no
// package-level instance.
type Registry struct {
	mu       sync.Mutex
	services map[string]Service
}

func NewRegistry() *Registry {
	return &Registry{services: make(map[string]Service)}
}

// Create returns the existing instance for name, or runs build and
// registers the result. Idempotent: racing creators all get the same
// instance and build runs at most once per live name.
func (r *Registry) Create(name string, build func() Service) Service {
	r.mu.Lock()
	defer r.mu.Unlock()
	if svc, ok := r.services[name]; ok {
		return svc
	}
	svc := build()
	r.services[name] = svc
	observ.Log("service_registered", map[string]any{
		"service": name,
		"total":   len(r.services),
	})
	return svc
}

// Get returns the instance registered under name, if any.
func (r *Registry) Get(name string) (Service, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	svc, ok := r.services[name]
	return svc, ok
}

// Destroy tears down and removes the named instance. No-op when absent.
func (r *Registry) Destroy(name string) {
	r.mu.Lock()
	svc, ok := r.services[name]
	if ok {
		delete(r.services, name)
	}
	r.mu.Unlock()
	if !ok {
		return
	}
	// Destroy outside the lock: instance teardown may block on its own
	// goroutines.
	svc.Destroy()
	observ.Log("service_destroyed", map[string]any{"service": name})
}

// DestroyAll tears down every registered instance and empties the map.
func (r *Registry) DestroyAll() {
	r.mu.Lock()
	victims := make(map[string]Service, len(r.services))
	for name, svc := range r.services {
		victims[name] = svc
	}
	r.services = make(map[string]Service)
	r.mu.Unlock()

	for name, svc := range victims {
		svc.Destroy()
		observ.Log("service_destroyed", map[string]any{"service": name})
	}
}

// Names lists registered service names; for observability only.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.services))
	for name := range r.services {
		names = append(names, name)
	}
	return names
}
