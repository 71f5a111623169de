package privacy

import (
	"sync"

	"presenced/internal/models"
)

// Action is the outcome of a matching privacy rule
type Action string

const (
	Allow Action = "allow"
	Block Action = "block"
)

// Rule matches outgoing presences by their destination. A rule with a zero
// Address matches every destination.
type Rule struct {
	Action  Action
	Address models.Address
}

func (r Rule) matches(to models.Address) bool {
	if r.Address.IsZero() {
		return true
	}
	return r.Address.EqualsBare(to)
}

// List is an ordered set of rules evaluated per outgoing presence. The first
// matching rule decides; no match means the packet passes.
type List struct {
	Name  string
	Rules []Rule
}

// Blocks reports whether the list blocks the given outgoing presence.
// A nil list blocks nothing.
func (l *List) Blocks(presence models.Presence) bool {
	if l == nil {
		return false
	}
	for _, rule := range l.Rules {
		if rule.matches(presence.To) {
			return rule.Action == Block
		}
	}
	return false
}

// Manager keeps the per-user default lists and per-session active lists.
type Manager struct {
	mu       sync.RWMutex
	defaults map[string]*List
	active   map[string]*List
}

// NewManager creates an empty privacy list manager
func NewManager() *Manager {
	return &Manager{
		defaults: make(map[string]*List),
		active:   make(map[string]*List),
	}
}

// SetDefault installs a user's default list. A nil list removes it.
func (m *Manager) SetDefault(username string, list *List) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if list == nil {
		delete(m.defaults, username)
		return
	}
	m.defaults[username] = list
}

// SetActive installs the active list for one session. A nil list removes it.
func (m *Manager) SetActive(addr models.Address, list *List) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if list == nil {
		delete(m.active, addr.String())
		return
	}
	m.active[addr.String()] = list
}

// Default returns a user's default list, or nil.
func (m *Manager) Default(username string) *List {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.defaults[username]
}

// Effective returns the list governing a session's outgoing presence: the
// session's active list when set, else the user's default list, else nil.
func (m *Manager) Effective(addr models.Address) *List {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if list, ok := m.active[addr.String()]; ok {
		return list
	}
	return m.defaults[addr.Node]
}
