package component

import (
	"fmt"
	"sync"

	"presenced/internal/models"
)

// Route delivers packets to a connected external component.
type Route interface {
	Deliver(presence models.Presence) error
}

// ProbeRequest is a presence probe waiting for its target component to
// connect.
type ProbeRequest struct {
	Prober models.Address
	Probee models.Address
}

// Registry tracks connected component routes by domain along with probes
// addressed to components that have not connected yet.
type Registry struct {
	mu      sync.RWMutex
	routes  map[string]Route
	pending map[string][]ProbeRequest
}

// NewRegistry creates an empty component registry
func NewRegistry() *Registry {
	return &Registry{
		routes:  make(map[string]Route),
		pending: make(map[string][]ProbeRequest),
	}
}

// AddRoute registers a component under its domain and drains the probes that
// were waiting for it. The caller answers the returned probes.
func (r *Registry) AddRoute(domain string, route Route) []ProbeRequest {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.routes[domain] = route
	drained := r.pending[domain]
	delete(r.pending, domain)
	return drained
}

// RemoveRoute drops a component route.
func (r *Registry) RemoveRoute(domain string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.routes, domain)
}

// HasRoute reports whether a connected component serves the address's domain.
func (r *Registry) HasRoute(addr models.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.routes[addr.Domain]
	return ok
}

// RouteTo hands a packet to the component serving the address's domain.
func (r *Registry) RouteTo(addr models.Address, presence models.Presence) error {
	r.mu.RLock()
	route, ok := r.routes[addr.Domain]
	r.mu.RUnlock()

	if !ok {
		return fmt.Errorf("no component route for domain %s", addr.Domain)
	}
	return route.Deliver(presence)
}

// AddPendingProbe queues a probe for a component that has not connected yet.
func (r *Registry) AddPendingProbe(prober, probee models.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending[probee.Domain] = append(r.pending[probee.Domain], ProbeRequest{Prober: prober, Probee: probee})
}

// PendingProbes returns the probes queued for a domain.
func (r *Registry) PendingProbes(domain string) []ProbeRequest {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]ProbeRequest(nil), r.pending[domain]...)
}
