// Package nameserver implements the by-name/by-id service registry a
// freshly spawned process's bootstrap handler forwards GetService/
// RegisterProvider requests to once the chain of custody runs past init
// itself (spec §4.8, "the small upcall by which a child process asks its
// parent for named services").
package nameserver

import (
	"sort"
	"sync"

	"github.com/lihanrui2913/radon-os-sub001/internal/bootstrap"
	"github.com/lihanrui2913/radon-os-sub001/internal/kernel"
)

// Service is one registered provider: its name, the channel endpoint
// clients are handed a clone of, and bookkeeping fields mirrored from
// the original's RegisteredService. Grounded directly on
// original_source/nameserver/src/server/registry.rs.
type Service struct {
	ID               uint64
	Name             string
	Description      string
	Privileged       bool
	RegisteredAt     int64
	OwnerID          uint64
	Channel          *kernel.Endpoint
	ConnectionCount  uint64
}

// Registry is the name server's service table: two indices (by name, by
// id) behind one lock, matching the original's by_name/by_id BTreeMaps
// behind separate RwLocks -- collapsed to a single mutex here since this
// simulation has no contention profile that benefits from splitting
// reader/writer paths across two locks.
type Registry struct {
	mu          sync.RWMutex
	maxServices int
	nextID      uint64
	byName      map[string]*Service
	byID        map[uint64]*Service
}

// NewRegistry creates an empty registry accepting up to maxServices
// entries.
func NewRegistry(maxServices int) *Registry {
	return &Registry{
		maxServices: maxServices,
		nextID:      1,
		byName:      make(map[string]*Service),
		byID:        make(map[uint64]*Service),
	}
}

// Register adds a new service, failing with AlreadyExists if the name
// is taken or OutOfMemory if the registry is at capacity (spec §4.8's
// analog of the original's ResourceExhausted/AlreadyExists errors).
func (r *Registry) Register(name, description string, privileged bool, ownerID uint64, channel *kernel.Endpoint) (*Service, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.byName) >= r.maxServices {
		return nil, kernel.NewError("nameserver.register", kernel.StatusOutOfMemory, nil)
	}

	if _, exists := r.byName[name]; exists {
		return nil, kernel.NewError("nameserver.register", kernel.StatusAlreadyExists, nil)
	}

	svc := &Service{
		ID:           r.nextID,
		Name:         name,
		Description:  description,
		Privileged:   privileged,
		RegisteredAt: kernel.MonotonicNow(),
		OwnerID:      ownerID,
		Channel:      channel,
	}
	r.nextID++

	r.byName[name] = svc
	r.byID[svc.ID] = svc

	return svc, nil
}

// Lookup finds a service by name.
func (r *Registry) Lookup(name string) (*Service, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	svc, ok := r.byName[name]

	return svc, ok
}

// LookupByID finds a service by id.
func (r *Registry) LookupByID(id uint64) (*Service, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	svc, ok := r.byID[id]

	return svc, ok
}

// Remove drops a service by name, reporting whether one was present.
func (r *Registry) Remove(name string) (*Service, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	svc, ok := r.byName[name]
	if !ok {
		return nil, false
	}

	delete(r.byName, name)
	delete(r.byID, svc.ID)

	return svc, true
}

// List returns every registered service whose name has the given
// prefix, skipping offset entries and returning at most limit.
func (r *Registry) List(prefix string, offset, limit int) []*Service {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*Service

	for name, svc := range r.byName {
		if hasPrefix(name, prefix) {
			matched = append(matched, svc)
		}
	}

	sortServicesByName(matched)

	if offset >= len(matched) {
		return nil
	}

	end := offset + limit
	if limit <= 0 || end > len(matched) {
		end = len(matched)
	}

	return matched[offset:end]
}

// Count reports the number of registered services.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.byName)
}

func hasPrefix(name, prefix string) bool {
	return len(name) >= len(prefix) && name[:len(prefix)] == prefix
}

func sortServicesByName(svcs []*Service) {
	sort.Slice(svcs, func(i, j int) bool { return svcs[i].Name < svcs[j].Name })
}

// Resolve/Register/Names implement bootstrap.Provider, letting a name
// server process sit directly behind a bootstrap.Handler so that other
// processes' GetService("NAMESERVER")-obtained channel forwards straight
// into this registry's own protocol (distinct from the registry's own
// Register, which tracks privilege and ownership metadata the bootstrap
// path doesn't carry).
var _ bootstrap.Provider = (*providerAdapter)(nil)

type providerAdapter struct{ r *Registry }

// AsProvider adapts r to bootstrap.Provider for serving plain
// GetService/RegisterProvider traffic without the name server's richer
// Lookup/Watch protocol.
func (r *Registry) AsProvider() bootstrap.Provider { return &providerAdapter{r: r} }

func (p *providerAdapter) Resolve(name string) (*kernel.Endpoint, error) {
	svc, ok := p.r.Lookup(name)
	if !ok {
		return nil, kernel.NewError("nameserver.resolve", kernel.StatusNotFound, nil)
	}

	return svc.Channel, nil
}

func (p *providerAdapter) Register(name string, channel *kernel.Endpoint) error {
	_, err := p.r.Register(name, "", false, 0, channel)
	return err
}

func (p *providerAdapter) Names() []string {
	r := p.r

	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.byName))
	for n := range r.byName {
		names = append(names, n)
	}

	return names
}
