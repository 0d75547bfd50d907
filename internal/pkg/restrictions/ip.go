// Package restrictions evaluates the contextual access rules stored on an
// integration: caller IP, caller country and time of day.
package restrictions

import (
	"net/netip"
	"strings"
)

// IPWhitelist is the ip_whitelist block of an integration. Entries are bare
// addresses or CIDR blocks.
type IPWhitelist struct {
	RequireWhitelist bool     `json:"require_whitelist"`
	AllowedIPs       []string `json:"allowed_ips"`
	BlockedIPs       []string `json:"blocked_ips"`
}

// Allows reports whether ip may call. Without require_whitelist every
// caller passes. Otherwise a blocked match denies, an allowed match passes
// and anything else is denied.
func (w IPWhitelist) Allows(ip string) bool {
	if !w.RequireWhitelist {
		return true
	}
	for _, pattern := range w.BlockedIPs {
		if IPMatches(ip, pattern) {
			return false
		}
	}
	for _, pattern := range w.AllowedIPs {
		if IPMatches(ip, pattern) {
			return true
		}
	}
	return false
}

// AddAllowed appends ip to the allow list unless it is already there.
func (w IPWhitelist) AddAllowed(ip string) IPWhitelist {
	for _, v := range w.AllowedIPs {
		if v == ip {
			return w
		}
	}
	out := w
	out.AllowedIPs = append(append([]string{}, w.AllowedIPs...), ip)
	return out
}

func (w IPWhitelist) RemoveAllowed(ip string) IPWhitelist {
	out := w
	out.AllowedIPs = make([]string, 0, len(w.AllowedIPs))
	for _, v := range w.AllowedIPs {
		if v != ip {
			out.AllowedIPs = append(out.AllowedIPs, v)
		}
	}
	return out
}

// IPMatches compares ip against a bare address or a network/prefix pattern.
func IPMatches(ip, pattern string) bool {
	ip = strings.TrimSpace(ip)
	pattern = strings.TrimSpace(pattern)
	if ip == "" || pattern == "" {
		return false
	}
	if ip == pattern {
		return true
	}

	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()

	if strings.Contains(pattern, "/") {
		prefix, err := netip.ParsePrefix(pattern)
		if err != nil {
			return false
		}
		network := prefix.Masked()
		if network.Addr().Is4() != addr.Is4() {
			return false
		}
		return network.Contains(addr)
	}

	other, err := netip.ParseAddr(pattern)
	if err != nil {
		return false
	}
	return other.Unmap() == addr
}

// ValidPattern reports whether pattern is a parseable address or CIDR block.
func ValidPattern(pattern string) bool {
	pattern = strings.TrimSpace(pattern)
	if strings.Contains(pattern, "/") {
		_, err := netip.ParsePrefix(pattern)
		return err == nil
	}
	_, err := netip.ParseAddr(pattern)
	return err == nil
}
