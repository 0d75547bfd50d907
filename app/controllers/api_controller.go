package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/IntegrationGate/internal/pkg/integrationcontext"
	"github.com/ManuelReschke/IntegrationGate/internal/pkg/ratelimit"
)

// HandleMe returns the integration that passed the gate and its effective
// limits. Query: scope selects a scope override.
func HandleMe(c *fiber.Ctx) error {
	i := integrationcontext.GetIntegration(c)
	if i == nil {
		return jsonError(c, fiber.StatusUnauthorized, "invalid_credentials", "Invalid client credentials")
	}
	scope := c.Query("scope", ratelimit.DefaultKey)
	return c.JSON(fiber.Map{
		"integration": integrationcontext.GetIntegrationContext(c),
		"rate_limits": fiber.Map{
			"scope":     scope,
			"effective": i.GetRateLimit(scope),
		},
	})
}

// HandleEcho answers protected sample routes with the caller's identity.
func HandleEcho(c *fiber.Ctx) error {
	ctx := integrationcontext.GetIntegrationContext(c)
	return c.JSON(fiber.Map{
		"message":   "ok",
		"route":     c.Route().Path,
		"client_id": ctx.ClientID,
		"role":      ctx.Role,
	})
}
