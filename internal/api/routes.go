package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/routerdiscovery/engine/internal/registry"
	"github.com/routerdiscovery/engine/internal/repository"
	"github.com/routerdiscovery/engine/internal/scheduler"
	"github.com/routerdiscovery/engine/internal/vault"
)

// RegisterRoutes wires every handler group onto app under the /api prefix,
// plus the health check the teacher's bootstrap always exposes.
func RegisterRoutes(app *fiber.App, repo repository.Repository, v *vault.Vault, reg *registry.Registry, sched *scheduler.Scheduler) {
	apiGroup := app.Group("/api")
	apiGroup.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	NewRouterHandler(repo, v, sched).RegisterRoutes(apiGroup)
	NewScannerHandler(repo, reg, v).RegisterRoutes(apiGroup)
}
