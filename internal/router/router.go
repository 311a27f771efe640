package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-lms-api/internal/config"
	"github.com/noah-isme/gema-lms-api/internal/handler"
	"github.com/noah-isme/gema-lms-api/internal/middleware"
	"github.com/noah-isme/gema-lms-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	ResourceHandler     *handler.ResourceHandler
	SubmissionHandler   *handler.SubmissionHandler
	GradingHandler      *handler.GradingHandler
	ContentHandler      *handler.ContentHandler
	NotificationHandler *handler.NotificationHandler
	ActivityHandler     *handler.ActivityHandler
	JWTMiddleware       fiber.Handler
	SubmitRateLimit     fiber.Handler
	HealthProbes        []handler.HealthProbe
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.HealthProbes...))

	v2 := app.Group("/api/v2")

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}
	protected := v2.Group("", jwtMiddleware, middleware.RequireUser())

	if deps.ResourceHandler != nil {
		deps.ResourceHandler.Register(protected)
	}

	if deps.SubmissionHandler != nil {
		var guards []fiber.Handler
		if deps.SubmitRateLimit != nil {
			guards = append(guards, deps.SubmitRateLimit)
		}
		deps.SubmissionHandler.Register(protected, guards...)
	}

	if deps.GradingHandler != nil {
		deps.GradingHandler.Register(protected)
	}

	if deps.ContentHandler != nil {
		deps.ContentHandler.Register(protected)
	}

	if deps.NotificationHandler != nil {
		deps.NotificationHandler.Register(protected)
	}

	if deps.ActivityHandler != nil {
		deps.ActivityHandler.Register(protected)
	}
}
