package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gradeflow-api/internal/config"
	"github.com/noah-isme/gradeflow-api/internal/handler"
	"github.com/noah-isme/gradeflow-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	IntakeHandler *handler.IntakeHandler
	ResultHandler *handler.ResultHandler
	RubricHandler *handler.RubricHandler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))
	app.Get("/metrics", observability.MetricsHandler())

	if deps.IntakeHandler != nil {
		submissions := api.Group("/submissions")
		deps.IntakeHandler.Register(submissions)

		if deps.ResultHandler != nil {
			deps.ResultHandler.Register(submissions)
		}
	}

	if deps.RubricHandler != nil {
		rubrics := api.Group("/rubrics")
		deps.RubricHandler.Register(rubrics)
	}
}
