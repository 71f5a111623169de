package privacy

import (
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

func presenceTo(to models.Address) models.Presence {
	return models.Presence{Type: models.TypeAvailable, To: to}
}

func TestList_Blocks(t *testing.T) {
	bob := addr("bob@example.org")

	tests := []struct {
		name string
		list *List
		to   models.Address
		want bool
	}{
		{"nil list blocks nothing", nil, bob, false},
		{"empty list passes", &List{Name: "empty"}, bob, false},
		{
			"block rule matches bare address",
			&List{Rules: []Rule{{Action: Block, Address: bob}}},
			addr("bob@example.org/desk"),
			true,
		},
		{
			"first matching rule wins",
			&List{Rules: []Rule{{Action: Allow, Address: bob}, {Action: Block}}},
			bob,
			false,
		},
		{
			"zero-address rule matches everything",
			&List{Rules: []Rule{{Action: Block}}},
			addr("carol@example.org"),
			true,
		},
		{
			"no matching rule passes",
			&List{Rules: []Rule{{Action: Block, Address: bob}}},
			addr("carol@example.org"),
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.list.Blocks(presenceTo(tt.to)); got != tt.want {
				t.Errorf("Blocks() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestManager_EffectivePrefersActiveList(t *testing.T) {
	m := NewManager()
	desk := addr("alice@example.org/desk")
	phone := addr("alice@example.org/phone")

	defaultList := &List{Name: "default"}
	activeList := &List{Name: "active"}

	m.SetDefault("alice", defaultList)
	m.SetActive(desk, activeList)

	if got := m.Effective(desk); got != activeList {
		t.Errorf("Effective(desk) = %v, want active list", got)
	}
	if got := m.Effective(phone); got != defaultList {
		t.Errorf("Effective(phone) = %v, want default list", got)
	}

	m.SetActive(desk, nil)
	if got := m.Effective(desk); got != defaultList {
		t.Errorf("Effective after clearing active = %v, want default list", got)
	}

	m.SetDefault("alice", nil)
	if got := m.Effective(desk); got != nil {
		t.Errorf("Effective with no lists = %v, want nil", got)
	}
}

func TestManager_Default(t *testing.T) {
	m := NewManager()

	if m.Default("alice") != nil {
		t.Errorf("expected nil default for unknown user")
	}

	list := &List{Name: "default"}
	m.SetDefault("alice", list)
	if m.Default("alice") != list {
		t.Errorf("Default did not return installed list")
	}
	if m.Default("bob") != nil {
		t.Errorf("default leaked across users")
	}
}
