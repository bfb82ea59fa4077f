package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ManuelReschke/LabelFox/internal/pkg/env"
)

// HttpRouter serves health and metrics endpoints.
type HttpRouter struct {
	MetricsUser     string
	MetricsPassword string
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	protected := func(c *fiber.Ctx) error { return c.Next() }
	if h.MetricsPassword != "" {
		protected = basicauth.New(basicauth.Config{
			Users: map[string]string{h.MetricsUser: h.MetricsPassword},
		})
	}
	app.Get("/metrics", protected, adaptor.HTTPHandler(promhttp.Handler()))
	app.Get("/monitor", protected, monitor.New())
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{
		MetricsUser:     env.GetEnv("METRICS_USER", "admin"),
		MetricsPassword: env.GetEnv("METRICS_PASSWORD", ""),
	}
}
