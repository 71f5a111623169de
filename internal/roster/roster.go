package roster

import (
	"errors"
	"sync"

	"presenced/internal/models"
)

// ErrItemNotFound is returned when an owner has no roster entry for a contact.
var ErrItemNotFound = errors.New("roster item not found")

// Memory is an in-memory subscription source keyed by owner and contact bare
// address. The presence manager only ever reads subscription records; the
// mutating verbs exist for the composition root and tests.
type Memory struct {
	mu    sync.RWMutex
	items map[string]map[string]models.SubscriptionRecord
}

// NewMemory creates an empty roster
func NewMemory() *Memory {
	return &Memory{items: make(map[string]map[string]models.SubscriptionRecord)}
}

// Set records the subscription state between an owner and a contact.
func (m *Memory) Set(owner string, contact models.Address, record models.SubscriptionRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.items[owner] == nil {
		m.items[owner] = make(map[string]models.SubscriptionRecord)
	}
	m.items[owner][contact.Bare().String()] = record
}

// Remove deletes a roster entry.
func (m *Memory) Remove(owner string, contact models.Address) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entries, ok := m.items[owner]; ok {
		delete(entries, contact.Bare().String())
		if len(entries) == 0 {
			delete(m.items, owner)
		}
	}
}

// Subscription returns the owner's subscription record for the contact.
// Contacts match on their bare address.
func (m *Memory) Subscription(owner string, contact models.Address) (models.SubscriptionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries, ok := m.items[owner]
	if !ok {
		return models.SubscriptionRecord{}, ErrItemNotFound
	}
	record, ok := entries[contact.Bare().String()]
	if !ok {
		return models.SubscriptionRecord{}, ErrItemNotFound
	}
	return record, nil
}
