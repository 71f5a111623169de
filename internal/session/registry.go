package session

import (
	"errors"
	"sync"

	"presenced/internal/models"
)

// Session is one connected resource of a user together with the presence it
// last broadcast.
type Session struct {
	Address  models.Address
	Presence models.Presence
}

// Registry is the in-memory directory of connected sessions. Sessions are
// kept in registration order per user; presence aggregation relies on that
// order for its tie-break.
type Registry struct {
	mu     sync.RWMutex
	byUser map[string][]*Session
	// direct presences sent by a session to explicit recipients,
	// keyed by the session's full address
	direct map[string]map[string]struct{}
}

// NewRegistry creates an empty session registry
func NewRegistry() *Registry {
	return &Registry{
		byUser: make(map[string][]*Session),
		direct: make(map[string]map[string]struct{}),
	}
}

// Add registers a session under its full address. Re-adding an address
// replaces its presence in place, keeping the original registration order.
func (r *Registry) Add(addr models.Address, presence models.Presence) error {
	if addr.Node == "" || addr.Resource == "" {
		return errors.New("session address must be a full address")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.byUser[addr.Node] {
		if s.Address == addr {
			s.Presence = presence
			return nil
		}
	}
	r.byUser[addr.Node] = append(r.byUser[addr.Node], &Session{Address: addr, Presence: presence})
	return nil
}

// Remove drops a session and any direct presences it registered.
func (r *Registry) Remove(addr models.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sessions := r.byUser[addr.Node]
	for i, s := range sessions {
		if s.Address == addr {
			r.byUser[addr.Node] = append(sessions[:i], sessions[i+1:]...)
			break
		}
	}
	if len(r.byUser[addr.Node]) == 0 {
		delete(r.byUser, addr.Node)
	}
	delete(r.direct, addr.String())
}

// SetPresence updates the broadcast presence of a registered session.
func (r *Registry) SetPresence(addr models.Address, presence models.Presence) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.byUser[addr.Node] {
		if s.Address == addr {
			s.Presence = presence
			return
		}
	}
}

// Sessions returns snapshots of a user's sessions in registration order.
func (r *Registry) Sessions(username string) []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := r.byUser[username]
	out := make([]Session, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, *s)
	}
	return out
}

// SessionCount returns the number of connected sessions for a user.
func (r *Registry) SessionCount(username string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[username])
}

// ActiveSessionCount returns the number of sessions currently broadcasting
// an available presence.
func (r *Registry) ActiveSessionCount(username string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, s := range r.byUser[username] {
		if s.Presence.Type == models.TypeAvailable {
			n++
		}
	}
	return n
}

// RegisterDirectPresence records that a session sent an available presence
// directly to a recipient rather than broadcasting it.
func (r *Registry) RegisterDirectPresence(from, to models.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := from.String()
	if r.direct[key] == nil {
		r.direct[key] = make(map[string]struct{})
	}
	r.direct[key][to.Bare().String()] = struct{}{}
}

// UnregisterDirectPresence forgets a previously recorded direct presence.
func (r *Registry) UnregisterDirectPresence(from, to models.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if set, ok := r.direct[from.String()]; ok {
		delete(set, to.Bare().String())
		if len(set) == 0 {
			delete(r.direct, from.String())
		}
	}
}

// HasDirectPresence reports whether a session sent a direct presence to the
// recipient. Recipients match on their bare address.
func (r *Registry) HasDirectPresence(from, to models.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set, ok := r.direct[from.String()]
	if !ok {
		return false
	}
	_, ok = set[to.Bare().String()]
	return ok
}
