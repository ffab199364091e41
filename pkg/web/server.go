package web

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	recoverer "github.com/gofiber/fiber/v3/middleware/recover"

	"github.com/dukex/stepflow/pkg/metrics"
)

// Server serves the HTTP API.
type Server struct {
	handlers *APIHandlers
	logger   *slog.Logger
	app      *fiber.App
}

func NewServer(handlers *APIHandlers, log *slog.Logger) *Server {
	return &Server{
		handlers: handlers,
		logger:   log.With("module", "web"),
	}
}

// App builds the fiber application with every route mounted.
func (s *Server) App() *fiber.App {
	h := s.handlers

	app := fiber.New()
	app.Use(recoverer.New())
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Stepflow API")
	})

	a := app.Group("/automations")
	a.Get("/", h.GetAutomations)
	a.Post("/", h.CreateAutomation)
	a.Get("/:id", h.GetAutomation)
	a.Put("/:id", h.UpdateAutomation)
	a.Delete("/:id", h.DeleteAutomation)
	a.Post("/:id/validate", h.ValidateAutomation)
	a.Post("/:id/trigger", h.TriggerAutomation)
	a.Post("/:id/rows/:tableId/:rowId", h.RowAction)

	app.All("/webhooks/:id", h.Webhook)
	app.Get("/kinds", h.GetKinds)
	app.Get("/health", h.HealthCheck)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	return app
}

// Start listens on port until ctx is cancelled.
func (s *Server) Start(ctx context.Context, port int) error {
	s.app = s.App()

	go func() {
		<-ctx.Done()

		if err := s.app.Shutdown(); err != nil {
			s.logger.Error("Failed to shut down HTTP server", "error", err)
		}
	}()

	s.logger.InfoContext(ctx, "Starting HTTP server", "port", port)

	return s.app.Listen(":" + strconv.Itoa(port))
}
