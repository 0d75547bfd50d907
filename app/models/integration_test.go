package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/ManuelReschke/IntegrationGate/internal/pkg/access"
	"github.com/ManuelReschke/IntegrationGate/internal/pkg/ratelimit"
	"github.com/ManuelReschke/IntegrationGate/internal/pkg/restrictions"
)

func newIntegration() *Integration {
	return &Integration{
		Name:         "CRM sync",
		ClientID:     "client",
		ClientSecret: "legacy",
		Status:       STATUS_ACTIVE,
		Role:         "user",
		UserID:       1,
	}
}

func TestIntegrationPermissions(t *testing.T) {
	i := newIntegration()

	assert.False(t, i.HasPermission("posts", "read"))

	i.GrantPermission("posts", "read")
	i.GrantPermission("posts", "create")
	assert.True(t, i.HasPermission("posts", "read"))
	assert.Equal(t, []string{"read", "create"}, i.GetResourcePermissions("posts"))

	i.RevokePermission("posts", "read")
	i.RevokePermission("posts", "create")
	_, present := i.GetPermissions()["posts"]
	assert.False(t, present, "empty resource is removed")

	i.SetResourcePermissions("files", []string{"upload", "upload", "download"})
	assert.Equal(t, []string{"upload", "download"}, i.GetResourcePermissions("files"))
}

func TestIntegrationRole(t *testing.T) {
	h := access.DefaultHierarchy()
	i := newIntegration()

	assert.True(t, i.HasRole(h, access.RoleGuest))
	assert.True(t, i.HasRole(h, access.RoleUser))
	assert.False(t, i.HasRole(h, access.RoleAdmin))

	i.SetRole(access.RoleAdmin)
	assert.Equal(t, "admin", i.Role)
	assert.True(t, i.HasRole(h, access.RoleAdmin))

	i.Role = ""
	assert.True(t, i.HasRole(h, access.RoleAdmin), "no role is unrestricted")
}

func TestIntegrationScopes(t *testing.T) {
	i := newIntegration()
	i.AddScope("read")
	i.AddScope("write")
	i.AddScope("read")

	assert.Equal(t, datatypes.JSONSlice[string]{"read", "write"}, i.AllowedScopes)
	assert.True(t, i.HasScope("write"))
	assert.Equal(t, []string{"read"}, i.ValidateScopes([]string{"read", "admin"}))

	i.RemoveScope("write")
	assert.False(t, i.HasScope("write"))
}

func TestIntegrationRestrictions(t *testing.T) {
	i := newIntegration()
	assert.True(t, i.IsIPAllowed("8.8.8.8"), "no whitelist configured")

	i.IPWhitelist = datatypes.NewJSONType(restrictions.IPWhitelist{RequireWhitelist: true})
	i.AddAllowedIP("10.0.0.0/8")
	assert.True(t, i.IsIPAllowed("10.1.2.3"))
	assert.False(t, i.IsIPAllowed("11.0.0.0"))
	i.RemoveAllowedIP("10.0.0.0/8")
	assert.False(t, i.IsIPAllowed("10.1.2.3"))

	i.GeoRestrictions = datatypes.NewJSONType(restrictions.GeoRestrictions{
		AllowedCountries: []string{"DE", "US"},
		BlockedCountries: []string{"US"},
	})
	assert.True(t, i.IsCountryAllowed("DE"))
	assert.False(t, i.IsCountryAllowed("US"))

	i.TimeRestrictions = datatypes.NewJSONType(restrictions.TimeRestrictions{
		AllowedHours: &restrictions.HourWindow{Start: "09:00", End: "17:00"},
	})
	assert.True(t, i.IsTimeAllowed(time.Date(2024, 7, 1, 10, 30, 0, 0, time.UTC)))
	assert.False(t, i.IsTimeAllowed(time.Date(2024, 7, 1, 8, 0, 0, 0, time.UTC)))
}

func TestIntegrationRateLimit(t *testing.T) {
	i := newIntegration()
	i.RateLimits = datatypes.NewJSONType(ratelimit.Limits{
		RequestsPerMinute: ratelimit.IntPtr(60),
		ScopeLimits:       map[string]string{"analytics": "100/hour"},
	})

	assert.Equal(t, 60, *i.GetRateLimit("").RequestsPerMinute)
	assert.Equal(t, 100, *i.GetRateLimit("analytics").RequestsPerHour)
}

func TestIntegrationRedirectURIs(t *testing.T) {
	i := newIntegration()
	i.AddRedirectURI("https://a.example.com/cb")
	i.AddRedirectURI("https://b.example.com/cb")
	i.AddRedirectURI("https://a.example.com/cb")

	assert.Len(t, i.RedirectURIs, 2)
	assert.True(t, i.IsValidRedirectURI("https://b.example.com/cb"))

	i.RemoveRedirectURI("https://a.example.com/cb")
	assert.Equal(t, datatypes.JSONSlice[string]{"https://b.example.com/cb"}, i.RedirectURIs)

	assert.True(t, IsAbsoluteURL("https://example.com/x"))
	assert.False(t, IsAbsoluteURL("/relative/path"))
	assert.False(t, IsAbsoluteURL("not a url"))
}

func TestIntegrationJSONHidesSecret(t *testing.T) {
	i := newIntegration()
	i.GrantPermission("posts", "read")

	raw, err := json.Marshal(i)
	require.NoError(t, err)

	assert.NotContains(t, string(raw), "legacy")
	assert.NotContains(t, string(raw), "client_secret")
	assert.Contains(t, string(raw), `"permissions":{"posts":["read"]}`)
}

func TestIntegrationValidate(t *testing.T) {
	i := newIntegration()
	require.NoError(t, i.Validate())

	i.Status = "paused"
	assert.Error(t, i.Validate())

	i.Status = STATUS_ACTIVE
	i.Name = ""
	assert.Error(t, i.Validate())
}
