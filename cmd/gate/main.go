package main

import (
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/ManuelReschke/IntegrationGate/app/repository"
	"github.com/ManuelReschke/IntegrationGate/internal/pkg/cache"
	"github.com/ManuelReschke/IntegrationGate/internal/pkg/config"
	"github.com/ManuelReschke/IntegrationGate/internal/pkg/database"
	"github.com/ManuelReschke/IntegrationGate/internal/pkg/env"
	"github.com/ManuelReschke/IntegrationGate/internal/pkg/events"
	"github.com/ManuelReschke/IntegrationGate/internal/pkg/metrics/counter"
	"github.com/ManuelReschke/IntegrationGate/internal/pkg/ratelimit"
	"github.com/ManuelReschke/IntegrationGate/internal/pkg/router"
)

func main() {
	app := NewApplication()
	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	repository.InitializeFactory(database.GetDB())
	repos := repository.GetGlobalRepositories()

	dispatcher := events.NewDispatcher()
	dispatcher.Listen(events.ActivityLogger{})
	dispatcher.Listen(events.NewAuditRecorder(repos.AuditLog))

	// init fiber app
	app := fiber.New(fiber.Config{
		AppName:     "IntegrationGate",
		BodyLimit:   1 << 20,
		ProxyHeader: env.GetEnv("APP_PROXY_HEADER", ""),
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	app.Get("/metrics", basicauth.New(basicauth.Config{
		Users: map[string]string{
			env.GetEnv("METRICS_USER", "admin"): env.GetEnv("METRICS_PASSWORD", "test"),
		},
	}), monitor.New())

	// ROUTER
	router.InstallRouter(app, router.Dependencies{
		Config:         config.FromEnv(),
		Repos:          repos,
		Dispatcher:     dispatcher,
		Verdicts:       counter.Default(),
		LimiterStorage: ratelimit.NewStorage(),
		AdminToken:     env.GetEnv("ADMIN_TOKEN", ""),
	})

	return app
}
