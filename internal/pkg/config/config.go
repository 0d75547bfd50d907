// Package config builds the immutable engine configuration that is handed
// to the gate, the secret manager and the integration service.
package config

import (
	"time"

	"github.com/ManuelReschke/IntegrationGate/app/models"
	"github.com/ManuelReschke/IntegrationGate/internal/pkg/access"
	"github.com/ManuelReschke/IntegrationGate/internal/pkg/env"
	"github.com/ManuelReschke/IntegrationGate/internal/pkg/ratelimit"
	"github.com/ManuelReschke/IntegrationGate/internal/pkg/restrictions"
)

const (
	StatusActive   = models.STATUS_ACTIVE
	StatusInactive = models.STATUS_INACTIVE
)

// Defaults are applied to new integrations that leave a block empty.
type Defaults struct {
	Role            access.Role
	Permissions     access.PermissionMap
	AllowedScopes   []string
	DefaultScopes   []string
	IPWhitelist     restrictions.IPWhitelist
	GeoRestrictions restrictions.GeoRestrictions
	TimeRestriction restrictions.TimeRestrictions
	RateLimits      ratelimit.Limits
}

type Pagination struct {
	PerPage    int
	MaxPerPage int
}

// Config is read once at startup. Accessors return copies so that no caller
// can change shared state.
type Config struct {
	clientIDLength     int
	clientSecretLength int
	secretKeyLength    int
	defaultStatus      string
	defaults           Defaults
	hierarchy          access.Hierarchy
	catalog            access.Catalog
	pagination         Pagination
	now                func() time.Time
}

// Option customises a Config built by New.
type Option func(*Config)

func WithClock(now func() time.Time) Option {
	return func(c *Config) { c.now = now }
}

func WithLengths(clientID, clientSecret, secretKey int) Option {
	return func(c *Config) {
		if clientID > 0 {
			c.clientIDLength = clientID
		}
		if clientSecret > 0 {
			c.clientSecretLength = clientSecret
		}
		if secretKey > 0 {
			c.secretKeyLength = secretKey
		}
	}
}

func WithDefaultStatus(status string) Option {
	return func(c *Config) {
		if status == StatusActive || status == StatusInactive {
			c.defaultStatus = status
		}
	}
}

func WithDefaultRole(role access.Role) Option {
	return func(c *Config) { c.defaults.Role = role }
}

// WithDefaultScopes sets the scopes given to integrations created without
// any. Nil keeps the current value.
func WithDefaultScopes(allowed, defaults []string) Option {
	return func(c *Config) {
		if allowed != nil {
			c.defaults.AllowedScopes = append([]string{}, allowed...)
		}
		if defaults != nil {
			c.defaults.DefaultScopes = append([]string{}, defaults...)
		}
	}
}

func WithPagination(perPage, maxPerPage int) Option {
	return func(c *Config) {
		if perPage > 0 {
			c.pagination.PerPage = perPage
		}
		if maxPerPage > 0 {
			c.pagination.MaxPerPage = maxPerPage
		}
	}
}

func WithHierarchy(h access.Hierarchy) Option {
	return func(c *Config) { c.hierarchy = h.Clone() }
}

// New returns the built-in configuration with opts applied.
func New(opts ...Option) *Config {
	c := &Config{
		clientIDLength:     40,
		clientSecretLength: 80,
		secretKeyLength:    80,
		defaultStatus:      StatusActive,
		defaults: Defaults{
			Role:            access.RoleUser,
			Permissions:     access.PermissionMap{},
			AllowedScopes:   []string{},
			DefaultScopes:   []string{},
			IPWhitelist:     restrictions.IPWhitelist{AllowedIPs: []string{}, BlockedIPs: []string{}},
			GeoRestrictions: restrictions.GeoRestrictions{AllowedCountries: []string{}, BlockedCountries: []string{}},
			TimeRestriction: restrictions.TimeRestrictions{Timezone: "UTC"},
			RateLimits: ratelimit.Limits{
				RequestsPerMinute: ratelimit.IntPtr(60),
				RequestsPerHour:   ratelimit.IntPtr(1000),
				RequestsPerDay:    ratelimit.IntPtr(10000),
				BurstLimit:        ratelimit.IntPtr(100),
			},
		},
		hierarchy: access.DefaultHierarchy(),
		catalog: access.Catalog{
			Roles: map[access.Role]string{
				access.RoleAdmin:    "Full access to all resources",
				access.RoleUser:     "Standard user access",
				access.RoleGuest:    "Limited read-only access",
				access.RoleService:  "Service account access",
				access.RoleReadonly: "Read-only access to all resources",
			},
			Resources: map[string][]string{
				"users":     {"create", "read", "update", "delete"},
				"posts":     {"create", "read", "update", "delete"},
				"comments":  {"create", "read", "update", "delete"},
				"analytics": {"read"},
				"admin":     {"settings", "users", "system"},
				"files":     {"upload", "download", "delete"},
				"webhooks":  {"create", "read", "update", "delete"},
			},
			Scopes: map[string]string{
				"read":      "Read access to basic information",
				"write":     "Write access to create/update resources",
				"delete":    "Delete access to remove resources",
				"admin":     "Administrative access",
				"user":      "User profile access",
				"posts":     "Posts management access",
				"analytics": "Analytics data access",
				"files":     "File management access",
				"webhooks":  "Webhook management access",
			},
		},
		pagination: Pagination{PerPage: 15, MaxPerPage: 100},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FromEnv reads the INTEGRATION_* variables on top of the built-in values.
func FromEnv(opts ...Option) *Config {
	base := []Option{
		WithLengths(
			env.GetEnvInt("INTEGRATION_CLIENT_ID_LENGTH", 40),
			env.GetEnvInt("INTEGRATION_CLIENT_SECRET_LENGTH", 80),
			env.GetEnvInt("INTEGRATION_SECRET_KEY_LENGTH", 80),
		),
		WithDefaultStatus(env.GetEnv("INTEGRATION_DEFAULT_STATUS", StatusActive)),
		WithDefaultRole(access.Role(env.GetEnv("INTEGRATION_DEFAULT_ROLE", string(access.RoleUser)))),
		WithDefaultScopes(
			env.GetEnvList("INTEGRATION_ALLOWED_SCOPES", nil),
			env.GetEnvList("INTEGRATION_DEFAULT_SCOPES", nil),
		),
		WithPagination(
			env.GetEnvInt("INTEGRATION_PER_PAGE", 15),
			env.GetEnvInt("INTEGRATION_MAX_PER_PAGE", 100),
		),
	}
	return New(append(base, opts...)...)
}

func (c *Config) ClientIDLength() int     { return c.clientIDLength }
func (c *Config) ClientSecretLength() int { return c.clientSecretLength }
func (c *Config) SecretKeyLength() int    { return c.secretKeyLength }
func (c *Config) DefaultStatus() string   { return c.defaultStatus }
func (c *Config) Pagination() Pagination  { return c.pagination }
func (c *Config) Now() time.Time          { return c.now() }

func (c *Config) Hierarchy() access.Hierarchy { return c.hierarchy.Clone() }

// Catalog is shared read-only; callers must not modify the returned maps.
func (c *Config) Catalog() access.Catalog { return c.catalog }

// Defaults returns a deep enough copy for callers to mutate freely.
func (c *Config) Defaults() Defaults {
	d := c.defaults
	d.Permissions = d.Permissions.Clone()
	d.AllowedScopes = append([]string{}, d.AllowedScopes...)
	d.DefaultScopes = append([]string{}, d.DefaultScopes...)
	d.IPWhitelist.AllowedIPs = append([]string{}, d.IPWhitelist.AllowedIPs...)
	d.IPWhitelist.BlockedIPs = append([]string{}, d.IPWhitelist.BlockedIPs...)
	d.GeoRestrictions.AllowedCountries = append([]string{}, d.GeoRestrictions.AllowedCountries...)
	d.GeoRestrictions.BlockedCountries = append([]string{}, d.GeoRestrictions.BlockedCountries...)
	rl := d.RateLimits
	rl.RequestsPerMinute = copyInt(rl.RequestsPerMinute)
	rl.RequestsPerHour = copyInt(rl.RequestsPerHour)
	rl.RequestsPerDay = copyInt(rl.RequestsPerDay)
	rl.BurstLimit = copyInt(rl.BurstLimit)
	if rl.ScopeLimits != nil {
		scoped := make(map[string]string, len(rl.ScopeLimits))
		for k, v := range rl.ScopeLimits {
			scoped[k] = v
		}
		rl.ScopeLimits = scoped
	}
	d.RateLimits = rl
	return d
}

// ClampPerPage applies the configured default and maximum page sizes.
func (c *Config) ClampPerPage(requested int) int {
	if requested <= 0 {
		return c.pagination.PerPage
	}
	if requested > c.pagination.MaxPerPage {
		return c.pagination.MaxPerPage
	}
	return requested
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}
