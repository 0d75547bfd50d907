package models

import (
	"net/url"
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/ManuelReschke/IntegrationGate/internal/pkg/access"
	"github.com/ManuelReschke/IntegrationGate/internal/pkg/ratelimit"
	"github.com/ManuelReschke/IntegrationGate/internal/pkg/restrictions"
)

const (
	STATUS_ACTIVE   = "active"
	STATUS_INACTIVE = "inactive"
)

// Integration is a registered API client with its credentials and access policy.
type Integration struct {
	ID               uint                                              `gorm:"primaryKey" json:"id"`
	Name             string                                            `gorm:"type:varchar(255);not null" json:"name" validate:"required,max=255"`
	Description      string                                            `gorm:"type:text" json:"description" validate:"max=1000"`
	ClientID         string                                            `gorm:"column:client_id;type:varchar(100);uniqueIndex;not null" json:"client_id"`
	ClientSecret     string                                            `gorm:"column:client_secret;type:varchar(255);not null" json:"-"`
	RedirectURIs     datatypes.JSONSlice[string]                       `gorm:"column:redirect_uris;type:json" json:"redirect_uris" validate:"dive,max=500"`
	Status           string                                            `gorm:"type:varchar(20);default:'active';index:idx_integrations_user_status,priority:2" json:"status" validate:"oneof=active inactive"`
	Role             string                                            `gorm:"type:varchar(50);index" json:"role"`
	Permissions      datatypes.JSONType[access.PermissionMap]          `gorm:"column:permissions;type:json" json:"permissions"`
	AllowedScopes    datatypes.JSONSlice[string]                       `gorm:"column:allowed_scopes;type:json" json:"allowed_scopes"`
	DefaultScopes    datatypes.JSONSlice[string]                       `gorm:"column:default_scopes;type:json" json:"default_scopes"`
	IPWhitelist      datatypes.JSONType[restrictions.IPWhitelist]      `gorm:"column:ip_whitelist;type:json" json:"ip_whitelist"`
	GeoRestrictions  datatypes.JSONType[restrictions.GeoRestrictions]  `gorm:"column:geo_restrictions;type:json" json:"geo_restrictions"`
	TimeRestrictions datatypes.JSONType[restrictions.TimeRestrictions] `gorm:"column:time_restrictions;type:json" json:"time_restrictions"`
	RateLimits       datatypes.JSONType[ratelimit.Limits]              `gorm:"column:rate_limits;type:json" json:"rate_limits"`
	UserID           uint                                              `gorm:"not null;index:idx_integrations_user_status,priority:1" json:"user_id"`
	Metadata         datatypes.JSONMap                                 `gorm:"type:json" json:"metadata"`
	Secrets          []IntegrationSecret                               `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	CreatedAt        time.Time                                         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time                                         `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt        gorm.DeletedAt                                    `gorm:"index" json:"-"`
}

func (Integration) TableName() string {
	return "integrations"
}

func (i *Integration) Validate() error {
	v := validator.New()

	return v.Struct(i)
}

func (i *Integration) IsActive() bool {
	return i.Status == STATUS_ACTIVE
}

func (i *Integration) IsInactive() bool {
	return i.Status == STATUS_INACTIVE
}

func (i *Integration) RoleValue() access.Role {
	return access.Role(i.Role)
}

// SetRole replaces the role. Catalog membership is checked when the
// integration is saved.
func (i *Integration) SetRole(role access.Role) {
	i.Role = string(role)
}

// HasRole reports whether the integration's role satisfies required.
func (i *Integration) HasRole(h access.Hierarchy, required access.Role) bool {
	return h.Satisfies(i.RoleValue(), required)
}

func (i *Integration) GetPermissions() access.PermissionMap {
	return i.Permissions.Data()
}

func (i *Integration) HasPermission(resource, action string) bool {
	return i.GetPermissions().Has(resource, action)
}

func (i *Integration) GetResourcePermissions(resource string) []string {
	return i.GetPermissions().Actions(resource)
}

func (i *Integration) GrantPermission(resource, action string) {
	i.Permissions = datatypes.NewJSONType(i.GetPermissions().Grant(resource, action))
}

func (i *Integration) RevokePermission(resource, action string) {
	i.Permissions = datatypes.NewJSONType(i.GetPermissions().Revoke(resource, action))
}

func (i *Integration) SetResourcePermissions(resource string, actions []string) {
	i.Permissions = datatypes.NewJSONType(i.GetPermissions().Set(resource, actions))
}

func (i *Integration) Scopes() access.ScopeSet {
	return access.ScopeSet(i.AllowedScopes)
}

func (i *Integration) HasScope(scope string) bool {
	return i.Scopes().Has(scope)
}

func (i *Integration) AddScope(scope string) {
	i.AllowedScopes = datatypes.JSONSlice[string](i.Scopes().Add(scope))
}

func (i *Integration) RemoveScope(scope string) {
	i.AllowedScopes = datatypes.JSONSlice[string](i.Scopes().Remove(scope))
}

// ValidateScopes returns the requested scopes the integration holds.
func (i *Integration) ValidateScopes(requested []string) []string {
	return i.Scopes().Intersect(requested)
}

func (i *Integration) IsIPAllowed(ip string) bool {
	return i.IPWhitelist.Data().Allows(ip)
}

func (i *Integration) AddAllowedIP(ip string) {
	i.IPWhitelist = datatypes.NewJSONType(i.IPWhitelist.Data().AddAllowed(ip))
}

func (i *Integration) RemoveAllowedIP(ip string) {
	i.IPWhitelist = datatypes.NewJSONType(i.IPWhitelist.Data().RemoveAllowed(ip))
}

func (i *Integration) IsCountryAllowed(country string) bool {
	return i.GeoRestrictions.Data().Allows(country)
}

func (i *Integration) IsTimeAllowed(now time.Time) bool {
	return i.TimeRestrictions.Data().Allows(now)
}

// GetRateLimit resolves the limits for key, "default" when empty.
func (i *Integration) GetRateLimit(key string) ratelimit.Effective {
	return i.RateLimits.Data().Resolve(key)
}

// IsValidRedirectURI reports whether uri is one of the registered redirect URIs.
func (i *Integration) IsValidRedirectURI(uri string) bool {
	for _, v := range i.RedirectURIs {
		if v == uri {
			return true
		}
	}
	return false
}

func (i *Integration) AddRedirectURI(uri string) {
	if i.IsValidRedirectURI(uri) {
		return
	}
	next := make(datatypes.JSONSlice[string], 0, len(i.RedirectURIs)+1)
	next = append(next, i.RedirectURIs...)
	i.RedirectURIs = append(next, uri)
}

func (i *Integration) RemoveRedirectURI(uri string) {
	next := make(datatypes.JSONSlice[string], 0, len(i.RedirectURIs))
	for _, v := range i.RedirectURIs {
		if v != uri {
			next = append(next, v)
		}
	}
	i.RedirectURIs = next
}

// IsAbsoluteURL accepts URLs with a scheme and a host.
func IsAbsoluteURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return u.IsAbs() && u.Host != ""
}
