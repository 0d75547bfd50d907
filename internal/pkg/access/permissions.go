package access

import (
	"sort"
	"strings"
)

// PermissionMap maps a resource name to the actions allowed on it.
type PermissionMap map[string][]string

// Has reports whether action is allowed on resource.
func (p PermissionMap) Has(resource, action string) bool {
	actions, ok := p[resource]
	if !ok {
		return false
	}
	for _, a := range actions {
		if a == action {
			return true
		}
	}
	return false
}

// Grant adds action to resource. It returns the updated map; a nil receiver is allowed.
func (p PermissionMap) Grant(resource, action string) PermissionMap {
	out := p.Clone()
	if out.Has(resource, action) {
		return out
	}
	out[resource] = append(out[resource], action)
	return out
}

// Revoke removes action from resource and drops the resource once it has no actions left.
func (p PermissionMap) Revoke(resource, action string) PermissionMap {
	out := p.Clone()
	actions, ok := out[resource]
	if !ok {
		return out
	}
	kept := make([]string, 0, len(actions))
	for _, a := range actions {
		if a != action {
			kept = append(kept, a)
		}
	}
	if len(kept) == 0 {
		delete(out, resource)
		return out
	}
	out[resource] = kept
	return out
}

// Set replaces the actions of resource with a de-duplicated copy of actions.
// Order of first appearance is kept.
func (p PermissionMap) Set(resource string, actions []string) PermissionMap {
	out := p.Clone()
	out[resource] = dedupe(actions)
	return out
}

// Actions returns the actions allowed on resource, never nil.
func (p PermissionMap) Actions(resource string) []string {
	actions := p[resource]
	out := make([]string, len(actions))
	copy(out, actions)
	return out
}

// Resources returns the resource names in sorted order.
func (p PermissionMap) Resources() []string {
	out := make([]string, 0, len(p))
	for r := range p {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

func (p PermissionMap) Clone() PermissionMap {
	out := make(PermissionMap, len(p))
	for r, actions := range p {
		cp := make([]string, len(actions))
		copy(cp, actions)
		out[r] = cp
	}
	return out
}

// Requirement is a route-declared "resource:action" pair.
type Requirement struct {
	Resource string
	Action   string
}

// ParseRequirement splits "resource:action". Entries without a colon are
// not requirements and report ok=false.
func ParseRequirement(raw string) (Requirement, bool) {
	resource, action, found := strings.Cut(strings.TrimSpace(raw), ":")
	if !found {
		return Requirement{}, false
	}
	return Requirement{Resource: resource, Action: action}, true
}

// HasAll reports whether every parseable requirement in required is held.
func (p PermissionMap) HasAll(required []string) bool {
	for _, raw := range required {
		req, ok := ParseRequirement(raw)
		if !ok {
			continue
		}
		if !p.Has(req.Resource, req.Action) {
			return false
		}
	}
	return true
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
