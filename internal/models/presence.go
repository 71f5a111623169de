package models

import (
	"encoding/json"
	"errors"
)

// PresenceType represents the type of a presence packet
type PresenceType string

const (
	TypeAvailable   PresenceType = "available"
	TypeUnavailable PresenceType = "unavailable"
	TypeProbe       PresenceType = "probe"
	TypeError       PresenceType = "error"
)

// IsValid checks if the presence type is valid
func (pt PresenceType) IsValid() bool {
	switch pt {
	case TypeAvailable, TypeUnavailable, TypeProbe, TypeError:
		return true
	default:
		return false
	}
}

// Show represents the availability sub-state advertised by a session
type Show string

const (
	ShowNone Show = "" // plain available
	ShowChat Show = "chat"
	ShowAway Show = "away"
	ShowXA   Show = "xa"
	ShowDND  Show = "dnd"
)

// IsValid checks if the show value is valid
func (s Show) IsValid() bool {
	switch s {
	case ShowNone, ShowChat, ShowAway, ShowXA, ShowDND:
		return true
	default:
		return false
	}
}

// Rank orders show values by availability. A higher rank means the session
// is considered more available when aggregating across sessions.
func (s Show) Rank() int {
	switch s {
	case ShowChat:
		return 4
	case ShowNone:
		return 3
	case ShowAway:
		return 2
	case ShowXA:
		return 1
	case ShowDND:
		return 0
	default:
		return -1
	}
}

// ErrorCondition carries the reason attached to an error-type presence
type ErrorCondition string

const (
	ConditionForbidden     ErrorCondition = "forbidden"
	ConditionNotAuthorized ErrorCondition = "not-authorized"
)

// Presence is a snapshot of a user's availability. Extensions hold arbitrary
// sub-payloads this subsystem carries opaquely.
type Presence struct {
	Type       PresenceType               `json:"type"`
	Show       Show                       `json:"show,omitempty"`
	Status     string                     `json:"status,omitempty"`
	Priority   int                        `json:"priority,omitempty"`
	Extensions map[string]json.RawMessage `json:"extensions,omitempty"`
	Error      ErrorCondition             `json:"error,omitempty"`
	From       Address                    `json:"from,omitempty"`
	To         Address                    `json:"to,omitempty"`
}

// Validate validates the presence data
func (p *Presence) Validate() error {
	if !p.Type.IsValid() {
		return errors.New("invalid presence type")
	}
	if !p.Show.IsValid() {
		return errors.New("invalid show value")
	}
	return nil
}

// HasChildContent reports whether the presence carries anything beyond its
// type: a show value, status text or extension payloads.
func (p *Presence) HasChildContent() bool {
	return p.Show != ShowNone || p.Status != "" || len(p.Extensions) > 0
}

// Copy returns a deep copy the caller may address freely.
func (p Presence) Copy() Presence {
	out := p
	if p.Extensions != nil {
		out.Extensions = make(map[string]json.RawMessage, len(p.Extensions))
		for k, v := range p.Extensions {
			out.Extensions[k] = append(json.RawMessage(nil), v...)
		}
	}
	return out
}

// Marshal serializes the presence into the opaque blob format used for
// offline storage.
func (p Presence) Marshal() ([]byte, error) {
	return json.Marshal(p)
}

// UnmarshalPresence reconstructs a presence from its stored blob.
func UnmarshalPresence(data []byte) (Presence, error) {
	var p Presence
	if err := json.Unmarshal(data, &p); err != nil {
		return Presence{}, err
	}
	return p, nil
}
