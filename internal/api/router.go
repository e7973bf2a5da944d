// Package api wires the HTTP and websocket routes.
package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/vetlab/backend/internal/api/handlers"
	"github.com/vetlab/backend/internal/catalog"
	"github.com/vetlab/backend/internal/dashboard"
	"github.com/vetlab/backend/internal/metrics"
	"github.com/vetlab/backend/internal/middleware/validation"
	"github.com/vetlab/backend/internal/session"
)

type Deps struct {
	Catalog    *catalog.Catalog
	Sessions   *session.Manager
	Dashboard  *dashboard.Aggregator
	Validation validation.Config

	// Live is optional; without it /sessions/:id/live answers 404.
	Live handlers.LiveReader

	// Ready reports whether backing stores are reachable. Nil means always ready.
	Ready func() error
}

// Register mounts every route on app. Global middleware is left to the caller.
func Register(app *fiber.App, d Deps) {
	procedureHandler := handlers.NewProcedureHandler(d.Catalog)
	sessionHandler := handlers.NewSessionHandler(d.Sessions, d.Live)
	dashboardHandler := handlers.NewDashboardHandler(d.Dashboard)
	wsHandler := handlers.NewWebSocketHandler(d.Sessions, d.Validation)

	app.Get("/metrics", metrics.MetricsHandler())

	api := app.Group("/api/v1")

	api.Get("/procedures", procedureHandler.List)
	api.Get("/procedures/:id", procedureHandler.Get)

	api.Post("/sessions", validation.Start(d.Validation), sessionHandler.Start)
	api.Get("/sessions/:id", sessionHandler.Get)
	api.Get("/sessions/:id/live", sessionHandler.Live)
	api.Post("/sessions/:id/decisions", validation.Decision(d.Validation), sessionHandler.Decide)
	api.Post("/sessions/:id/advance", validation.Advance(d.Validation), sessionHandler.Advance)
	api.Post("/sessions/:id/complete", sessionHandler.Complete)

	api.Get("/dashboard/:userId", dashboardHandler.Get)
	api.Get("/cache/stats", dashboardHandler.CacheStats)

	api.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	api.Get("/ws", websocket.New(wsHandler.HandleConnection))

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	api.Get("/ready", func(c *fiber.Ctx) error {
		if d.Ready != nil {
			if err := d.Ready(); err != nil {
				return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
					"status": "unavailable",
					"error":  err.Error(),
				})
			}
		}
		return c.JSON(fiber.Map{
			"status":     "ready",
			"procedures": d.Catalog.Len(),
		})
	})
}
