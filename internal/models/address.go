package models

import (
	"errors"
	"strings"
)

// Address identifies a user, component or server, optionally down to a
// single connected resource. The bare form (no resource) names the account.
type Address struct {
	Node     string `json:"node,omitempty"`
	Domain   string `json:"domain"`
	Resource string `json:"resource,omitempty"`
}

// NewAddress builds an address from its parts.
func NewAddress(node, domain, resource string) Address {
	return Address{Node: node, Domain: domain, Resource: resource}
}

// ParseAddress parses "node@domain/resource" where node and resource are optional.
func ParseAddress(s string) (Address, error) {
	if s == "" {
		return Address{}, errors.New("empty address")
	}

	var addr Address
	rest := s
	if i := strings.Index(rest, "/"); i >= 0 {
		addr.Resource = rest[i+1:]
		rest = rest[:i]
	}
	if i := strings.Index(rest, "@"); i >= 0 {
		addr.Node = rest[:i]
		rest = rest[i+1:]
	}
	addr.Domain = rest

	if addr.Domain == "" {
		return Address{}, errors.New("address has no domain")
	}
	return addr, nil
}

// String renders the address in node@domain/resource form.
func (a Address) String() string {
	var b strings.Builder
	if a.Node != "" {
		b.WriteString(a.Node)
		b.WriteString("@")
	}
	b.WriteString(a.Domain)
	if a.Resource != "" {
		b.WriteString("/")
		b.WriteString(a.Resource)
	}
	return b.String()
}

// Bare returns the address without its resource.
func (a Address) Bare() Address {
	return Address{Node: a.Node, Domain: a.Domain}
}

// IsBare reports whether the address carries no resource.
func (a Address) IsBare() bool {
	return a.Resource == ""
}

// IsZero reports whether the address is unset.
func (a Address) IsZero() bool {
	return a == Address{}
}

// EqualsBare compares node and domain only, ignoring the resource.
func (a Address) EqualsBare(other Address) bool {
	return a.Node == other.Node && a.Domain == other.Domain
}
