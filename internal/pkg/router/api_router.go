package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/IntegrationGate/app/controllers"
	"github.com/ManuelReschke/IntegrationGate/internal/pkg/access"
	"github.com/ManuelReschke/IntegrationGate/internal/pkg/middleware"
)

// ApiRouter installs the routes integrations call with their credentials.
type ApiRouter struct {
	deps Dependencies
	svc  services
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api")
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	v1 := api.Group("/v1")
	v1.Get("/me", h.protect(middleware.Requirements{}, "", controllers.HandleMe)...)

	v1.Get("/posts", h.protect(middleware.Requirements{Role: access.RoleUser, Permissions: []string{"posts:read"}}, "posts", controllers.HandleEcho)...)
	v1.Post("/posts", h.protect(middleware.Requirements{Role: access.RoleUser, Permissions: []string{"posts:create"}}, "posts", controllers.HandleEcho)...)
	v1.Get("/analytics", h.protect(middleware.Requirements{Role: access.RoleService, Permissions: []string{"analytics:read"}}, "analytics", controllers.HandleEcho)...)
	v1.Post("/files", h.protect(middleware.Requirements{Permissions: []string{"files:upload"}}, "files", controllers.HandleEcho)...)
	v1.Delete("/users/:id", h.protect(middleware.Requirements{Role: access.RoleAdmin, Permissions: []string{"users:delete"}}, "", controllers.HandleEcho)...)
}

// protect puts the gate and the rate limit for scope in front of handler.
func (h ApiRouter) protect(reqs middleware.Requirements, scope string, handler fiber.Handler) []fiber.Handler {
	var recorders []middleware.VerdictRecorder
	if h.deps.Verdicts != nil {
		recorders = append(recorders, h.deps.Verdicts)
	}
	return []fiber.Handler{
		middleware.IntegrationAuth(h.svc.gate, reqs, recorders...),
		middleware.IntegrationRateLimit(h.deps.Config, h.deps.LimiterStorage, scope),
		handler,
	}
}

func NewApiRouter(deps Dependencies, svc services) *ApiRouter {
	return &ApiRouter{deps: deps, svc: svc}
}
