package roster

import (
	"errors"
	"testing"

	"presenced/internal/models"
)

func addr(s string) models.Address {
	a, err := models.ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

func TestMemory_SubscriptionLookup(t *testing.T) {
	m := NewMemory()

	_, err := m.Subscription("alice", addr("bob@example.org"))
	if !errors.Is(err, ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound, got %v", err)
	}

	m.Set("alice", addr("bob@example.org"), models.SubscriptionRecord{Subscription: models.SubBoth})

	rec, err := m.Subscription("alice", addr("bob@example.org"))
	if err != nil {
		t.Fatalf("Subscription failed: %v", err)
	}
	if rec.Subscription != models.SubBoth {
		t.Errorf("Subscription = %v, want both", rec.Subscription)
	}
}

func TestMemory_ContactsMatchOnBareAddress(t *testing.T) {
	m := NewMemory()
	m.Set("alice", addr("bob@example.org/desk"), models.SubscriptionRecord{Subscription: models.SubFrom})

	rec, err := m.Subscription("alice", addr("bob@example.org/phone"))
	if err != nil {
		t.Fatalf("full-address lookup failed: %v", err)
	}
	if rec.Subscription != models.SubFrom {
		t.Errorf("Subscription = %v, want from", rec.Subscription)
	}
}

func TestMemory_Remove(t *testing.T) {
	m := NewMemory()
	m.Set("alice", addr("bob@example.org"), models.SubscriptionRecord{Subscription: models.SubTo})
	m.Remove("alice", addr("bob@example.org"))

	if _, err := m.Subscription("alice", addr("bob@example.org")); !errors.Is(err, ErrItemNotFound) {
		t.Errorf("entry survived Remove: %v", err)
	}
}

func TestMemory_OwnersAreIsolated(t *testing.T) {
	m := NewMemory()
	m.Set("alice", addr("carol@example.org"), models.SubscriptionRecord{Subscription: models.SubBoth})

	if _, err := m.Subscription("bob", addr("carol@example.org")); !errors.Is(err, ErrItemNotFound) {
		t.Errorf("one owner's roster leaked into another's: %v", err)
	}
}
