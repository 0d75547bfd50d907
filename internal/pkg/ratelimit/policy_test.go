package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveFlatLimits(t *testing.T) {
	l := Limits{
		RequestsPerMinute: IntPtr(60),
		RequestsPerHour:   IntPtr(1000),
		BurstLimit:        IntPtr(100),
	}

	got := l.Resolve("")
	require.NotNil(t, got.RequestsPerMinute)
	assert.Equal(t, 60, *got.RequestsPerMinute)
	assert.Equal(t, 1000, *got.RequestsPerHour)
	assert.Nil(t, got.RequestsPerDay, "absent fields stay unset")
	assert.Equal(t, 100, *got.BurstLimit)
}

func TestResolveScopeOverride(t *testing.T) {
	l := Limits{
		RequestsPerMinute: IntPtr(60),
		ScopeLimits: map[string]string{
			"analytics": "100/minute",
			"files":     "5000/day",
			"webhooks":  "20/hour",
			"broken":    "lots",
		},
	}

	got := l.Resolve("analytics")
	assert.Equal(t, Effective{RequestsPerMinute: IntPtr(100)}, got)

	got = l.Resolve("files")
	assert.Equal(t, Effective{RequestsPerDay: IntPtr(5000)}, got)

	got = l.Resolve("webhooks")
	assert.Equal(t, Effective{RequestsPerHour: IntPtr(20)}, got)

	assert.Equal(t, Effective{}, l.Resolve("broken"))

	got = l.Resolve("posts")
	assert.Equal(t, 60, *got.RequestsPerMinute, "unknown key falls back to flat limits")
}

func TestEffectiveWindow(t *testing.T) {
	limit, window, ok := Effective{RequestsPerHour: IntPtr(10), RequestsPerDay: IntPtr(50)}.Window()
	require.True(t, ok)
	assert.Equal(t, 10, limit)
	assert.Equal(t, time.Hour, window)

	_, _, ok = Effective{BurstLimit: IntPtr(3)}.Window()
	assert.False(t, ok)
}
