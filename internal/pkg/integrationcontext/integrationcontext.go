package integrationcontext

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/IntegrationGate/app/models"
	"github.com/ManuelReschke/IntegrationGate/internal/pkg/access"
)

// IntegrationContext represents the integration that passed the gate for a request
type IntegrationContext struct {
	IntegrationID uint                 `json:"integration_id"`
	ClientID      string               `json:"client_id"`
	Name          string               `json:"name"`
	UserID        uint                 `json:"user_id"`
	Role          string               `json:"role"`
	Scopes        []string             `json:"scopes"`
	Permissions   access.PermissionMap `json:"permissions"`
	// SecretID is 0 when the legacy client secret authenticated the call.
	SecretID      uint                 `json:"secret_id,omitempty"`
	Authenticated bool                 `json:"authenticated"`
}

// FromIntegration builds the context for an allowed integration.
func FromIntegration(i *models.Integration, secret *models.IntegrationSecret) IntegrationContext {
	ic := IntegrationContext{
		IntegrationID: i.ID,
		ClientID:      i.ClientID,
		Name:          i.Name,
		UserID:        i.UserID,
		Role:          i.Role,
		Scopes:        i.Scopes(),
		Permissions:   i.GetPermissions(),
		Authenticated: true,
	}
	if secret != nil {
		ic.SecretID = secret.ID
	}
	return ic
}

// Set stores the context and the resolved integration in Locals.
func Set(c *fiber.Ctx, i *models.Integration, secret *models.IntegrationSecret) IntegrationContext {
	ic := FromIntegration(i, secret)
	c.Locals(KeyContext, ic)
	c.Locals(KeyIntegration, i)
	c.Locals(KeyIntegrationID, i.ID)
	c.Locals(KeyClientID, i.ClientID)
	c.Locals(KeySecretID, ic.SecretID)
	return ic
}

// GetIntegrationContext returns an unauthenticated context if none is set.
func GetIntegrationContext(c *fiber.Ctx) IntegrationContext {
	if ctx, ok := c.Locals(KeyContext).(IntegrationContext); ok {
		return ctx
	}
	return IntegrationContext{}
}

// GetIntegration returns the resolved integration, or nil.
func GetIntegration(c *fiber.Ctx) *models.Integration {
	i, _ := c.Locals(KeyIntegration).(*models.Integration)
	return i
}

func IsAuthenticated(c *fiber.Ctx) bool {
	return GetIntegrationContext(c).Authenticated
}

func GetIntegrationID(c *fiber.Ctx) uint {
	return GetIntegrationContext(c).IntegrationID
}

func GetClientID(c *fiber.Ctx) string {
	return GetIntegrationContext(c).ClientID
}
