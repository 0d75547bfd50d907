// Package ratelimit resolves the effective request limits of an integration
// and provides the shared counter storage used by the limiter middleware.
package ratelimit

import (
	"regexp"
	"strconv"
	"time"
)

// DefaultKey selects the flat limits when no scope override applies.
const DefaultKey = "default"

var compactLimit = regexp.MustCompile(`(\d+)/(minute|hour|day)`)

// Limits is the rate_limits block of an integration. ScopeLimits holds
// compact overrides such as "100/minute" keyed by scope or permission.
type Limits struct {
	RequestsPerMinute *int              `json:"requests_per_minute"`
	RequestsPerHour   *int              `json:"requests_per_hour"`
	RequestsPerDay    *int              `json:"requests_per_day"`
	BurstLimit        *int              `json:"burst_limit"`
	ScopeLimits       map[string]string `json:"scope_limits,omitempty"`
}

// Effective is a resolved limit set. Nil fields are not limited.
type Effective struct {
	RequestsPerMinute *int `json:"requests_per_minute"`
	RequestsPerHour   *int `json:"requests_per_hour"`
	RequestsPerDay    *int `json:"requests_per_day"`
	BurstLimit        *int `json:"burst_limit"`
}

// Resolve returns the limits for key. A scope override replaces the flat
// limits entirely; an override that does not parse yields no limits.
func (l Limits) Resolve(key string) Effective {
	if key == "" {
		key = DefaultKey
	}
	if raw, ok := l.ScopeLimits[key]; ok {
		return ParseCompact(raw)
	}
	return Effective{
		RequestsPerMinute: l.RequestsPerMinute,
		RequestsPerHour:   l.RequestsPerHour,
		RequestsPerDay:    l.RequestsPerDay,
		BurstLimit:        l.BurstLimit,
	}
}

// ParseCompact parses "N/minute", "N/hour" or "N/day".
func ParseCompact(raw string) Effective {
	m := compactLimit.FindStringSubmatch(raw)
	if m == nil {
		return Effective{}
	}
	count, err := strconv.Atoi(m[1])
	if err != nil {
		return Effective{}
	}
	switch m[2] {
	case "minute":
		return Effective{RequestsPerMinute: &count}
	case "hour":
		return Effective{RequestsPerHour: &count}
	default:
		return Effective{RequestsPerDay: &count}
	}
}

// Window picks the finest configured period for a counting limiter.
func (e Effective) Window() (limit int, window time.Duration, ok bool) {
	switch {
	case e.RequestsPerMinute != nil:
		return *e.RequestsPerMinute, time.Minute, true
	case e.RequestsPerHour != nil:
		return *e.RequestsPerHour, time.Hour, true
	case e.RequestsPerDay != nil:
		return *e.RequestsPerDay, 24 * time.Hour, true
	}
	return 0, 0, false
}

// IntPtr is a convenience for building Limits literals.
func IntPtr(v int) *int {
	return &v
}
