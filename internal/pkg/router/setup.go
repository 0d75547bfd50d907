package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/IntegrationGate/app/repository"
	"github.com/ManuelReschke/IntegrationGate/internal/pkg/config"
	"github.com/ManuelReschke/IntegrationGate/internal/pkg/credentials"
	"github.com/ManuelReschke/IntegrationGate/internal/pkg/events"
	"github.com/ManuelReschke/IntegrationGate/internal/pkg/gate"
	"github.com/ManuelReschke/IntegrationGate/internal/pkg/metrics/counter"
)

type Router interface {
	InstallRouter(app *fiber.App)
}

// Dependencies are built once by the server and shared by all routers.
type Dependencies struct {
	Config     *config.Config
	Repos      *repository.Repositories
	Dispatcher *events.Dispatcher
	// Verdicts may be nil when no cache is configured.
	Verdicts *counter.Counter
	// LimiterStorage nil selects fiber's in-memory limiter store.
	LimiterStorage fiber.Storage
	AdminToken     string
}

type services struct {
	gate         *gate.Gate
	integrations *credentials.IntegrationService
	secrets      *credentials.SecretManager
}

func newServices(deps Dependencies) services {
	return services{
		gate:         gate.New(deps.Config, gate.NewRepositoryStore(deps.Repos.Integration, deps.Repos.Secret)),
		integrations: credentials.NewIntegrationService(deps.Repos.Integration, deps.Repos.Secret, deps.Config),
		secrets:      credentials.NewSecretManager(deps.Repos.Secret, deps.Config),
	}
}

func InstallRouter(app *fiber.App, deps Dependencies) {
	svc := newServices(deps)
	setup(app, NewApiRouter(deps, svc), NewAdminRouter(deps, svc))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
