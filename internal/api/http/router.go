package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/spec-kit/session-service/internal/api/http/handlers"
	"github.com/spec-kit/session-service/internal/auth"
	"github.com/spec-kit/session-service/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Sessions       *handlers.SessionHandler
	AuthMiddleware *auth.AuthMiddleware
	Metrics        *observability.Metrics
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	if cfg.Health != nil {
		app.Get("/health/live", cfg.Health.Live)
		app.Get("/health/ready", cfg.Health.Ready)
	}
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))
	}

	authGroup := app.Group("/api/auth")
	authGroup.Post("/register", cfg.Sessions.Register)
	authGroup.Post("/login", cfg.Sessions.Login)
	authGroup.Get("/refresh", cfg.Sessions.Refresh)
	authGroup.Post("/logout", cfg.Sessions.Logout)

	// Verb-per-operation aliases used by the web client.
	authGroup.Put("", cfg.Sessions.Login)
	authGroup.Post("", cfg.Sessions.Register)
	authGroup.Delete("", cfg.Sessions.Logout)

	authGroup.Get("/me", cfg.AuthMiddleware.Handle, auth.RequireRole(), cfg.Sessions.Me)
}
