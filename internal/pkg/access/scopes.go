package access

// ScopeSet is an ordered set of scope names.
type ScopeSet []string

func (s ScopeSet) Has(scope string) bool {
	for _, v := range s {
		if v == scope {
			return true
		}
	}
	return false
}

// Add appends scope unless it is already present.
func (s ScopeSet) Add(scope string) ScopeSet {
	if s.Has(scope) {
		return s
	}
	out := make(ScopeSet, len(s), len(s)+1)
	copy(out, s)
	return append(out, scope)
}

func (s ScopeSet) Remove(scope string) ScopeSet {
	out := make(ScopeSet, 0, len(s))
	for _, v := range s {
		if v != scope {
			out = append(out, v)
		}
	}
	return out
}

// Intersect returns the requested scopes that are allowed, in request order.
// Unknown scopes are dropped silently.
func (s ScopeSet) Intersect(requested []string) []string {
	out := make([]string, 0, len(requested))
	for _, r := range requested {
		if s.Has(r) {
			out = append(out, r)
		}
	}
	return out
}
