package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/IntegrationGate/app/controllers"
	"github.com/ManuelReschke/IntegrationGate/internal/pkg/middleware"
)

// AdminRouter installs the management API under /api/admin.
type AdminRouter struct {
	deps Dependencies
	svc  services
}

func (h AdminRouter) InstallRouter(app *fiber.App) {
	var verdicts controllers.VerdictReader
	if h.deps.Verdicts != nil {
		verdicts = h.deps.Verdicts
	}
	integrations := controllers.NewIntegrationController(h.svc.integrations, h.deps.Dispatcher, h.deps.Repos.AuditLog, verdicts)
	secrets := controllers.NewSecretController(h.svc.integrations, h.svc.secrets, h.deps.Config, h.deps.Dispatcher)

	adminGroup := app.Group("/api/admin", middleware.AdminToken(h.deps.AdminToken))

	adminGroup.Get("/integrations", integrations.HandleList)
	adminGroup.Post("/integrations", integrations.HandleCreate)
	adminGroup.Get("/integrations/:id", integrations.HandleShow)
	adminGroup.Put("/integrations/:id", integrations.HandleUpdate)
	adminGroup.Patch("/integrations/:id", integrations.HandleUpdate)
	adminGroup.Delete("/integrations/:id", integrations.HandleDelete)
	adminGroup.Post("/integrations/:id/activate", integrations.HandleActivate)
	adminGroup.Post("/integrations/:id/deactivate", integrations.HandleDeactivate)
	adminGroup.Post("/integrations/:id/regenerate-secret", integrations.HandleRegenerateSecret)
	adminGroup.Get("/integrations/:id/verdicts", integrations.HandleVerdicts)
	adminGroup.Get("/integrations/:id/audit", integrations.HandleAudit)

	// Secret management
	adminGroup.Get("/integrations/:id/secrets", secrets.HandleList)
	adminGroup.Post("/integrations/:id/secrets", secrets.HandleCreate)
	adminGroup.Post("/integrations/:id/secrets/rotate", secrets.HandleRotate)
	adminGroup.Post("/integrations/:id/secrets/cleanup", secrets.HandleCleanup)
	adminGroup.Get("/integrations/:id/secrets/:secretId", secrets.HandleShow)
	adminGroup.Put("/integrations/:id/secrets/:secretId", secrets.HandleUpdate)
	adminGroup.Delete("/integrations/:id/secrets/:secretId", secrets.HandleDelete)
	adminGroup.Post("/integrations/:id/secrets/:secretId/activate", secrets.HandleActivate)
	adminGroup.Post("/integrations/:id/secrets/:secretId/deactivate", secrets.HandleDeactivate)
	adminGroup.Post("/integrations/:id/secrets/:secretId/expiration", secrets.HandleSetExpiration)
	adminGroup.Delete("/integrations/:id/secrets/:secretId/expiration", secrets.HandleRemoveExpiration)
}

func NewAdminRouter(deps Dependencies, svc services) *AdminRouter {
	return &AdminRouter{deps: deps, svc: svc}
}
