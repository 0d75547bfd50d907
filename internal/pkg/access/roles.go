// Package access holds the role hierarchy, the resource permission map and
// scope helpers an integration carries.
package access

import "strings"

// Role is one of the configured integration roles.
type Role string

const (
	RoleGuest    Role = "guest"
	RoleUser     Role = "user"
	RoleService  Role = "service"
	RoleReadonly Role = "readonly"
	RoleAdmin    Role = "admin"
)

// Hierarchy maps a role to its rank. Roles missing from the map rank 0.
type Hierarchy map[Role]int

// DefaultHierarchy returns the built-in ranking. service and readonly share a rank.
func DefaultHierarchy() Hierarchy {
	return Hierarchy{
		RoleGuest:    1,
		RoleUser:     2,
		RoleService:  3,
		RoleReadonly: 3,
		RoleAdmin:    4,
	}
}

// Rank returns the rank of role, or 0 for unknown roles.
func (h Hierarchy) Rank(role Role) int {
	return h[Role(strings.TrimSpace(string(role)))]
}

// Satisfies reports whether an integration holding have may access a route
// that requires want. An integration without a role is unrestricted, and so
// is a route without a requirement.
func (h Hierarchy) Satisfies(have, want Role) bool {
	if strings.TrimSpace(string(have)) == "" || strings.TrimSpace(string(want)) == "" {
		return true
	}
	return h.Rank(have) >= h.Rank(want)
}

// Clone returns a copy that callers may not use to mutate the original.
func (h Hierarchy) Clone() Hierarchy {
	out := make(Hierarchy, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}
