package bootstrap

import (
	"sync"

	"github.com/lihanrui2913/radon-os-sub001/internal/kernel"
)

// Registry is init's own bookkeeping of registered service providers: a
// small in-process map satisfying the Provider interface, used by the
// Handler serving init's children's bootstrap requests. Grounded on
// original_source/init/src/main.rs's add_child/ping_service bookkeeping,
// simplified to a plain guarded map since init here runs in one Go
// process rather than tracking children across address spaces.
type Registry struct {
	mu       sync.RWMutex
	services map[string]*kernel.Endpoint
}

// NewRegistry creates an empty service registry.
func NewRegistry() *Registry {
	return &Registry{services: make(map[string]*kernel.Endpoint)}
}

func (r *Registry) Resolve(name string) (*kernel.Endpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ep, ok := r.services[name]
	if !ok {
		return nil, kernel.NewError("bootstrap.resolve", kernel.StatusNotFound, nil)
	}

	return ep, nil
}

func (r *Registry) Register(name string, channel *kernel.Endpoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.services[name]; exists {
		return kernel.NewError("bootstrap.register", kernel.StatusAlreadyExists, nil)
	}

	r.services[name] = channel

	return nil
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.services))
	for n := range r.services {
		names = append(names, n)
	}

	return names
}

// Registered reports whether name has been registered, the
// Go-synchronous analog of the original's "poll bootstrap until child
// invokes RegisterProvider" wait (spec §4.8) -- here a caller loops on
// this instead of servicing an event loop, since Handler.ServeOne
// already drives the registration side.
func (r *Registry) Registered(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.services[name]

	return ok
}
