package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-desk/internal/api/http/handlers"
	"github.com/spec-kit/ticket-desk/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Metrics        *handlers.MetricsHandler
	Auth           *handlers.AuthHandler
	Users          *handlers.UsersHandler
	Tickets        *handlers.TicketsHandler
	AuthMiddleware *auth.AuthMiddleware
	AdminRoles     []string
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", cfg.Metrics.Snapshot)

	app.Post("/auth/login", cfg.Auth.Login)

	users := app.Group("/users", cfg.AuthMiddleware.Handle, auth.RequireRoles(cfg.AdminRoles...))
	users.Get("", cfg.Users.ListUsers)
	users.Post("", cfg.Users.CreateUser)
	users.Patch("", cfg.Users.UpdateUser)
	users.Delete("", cfg.Users.DeleteUser)

	tickets := app.Group("/tickets", cfg.AuthMiddleware.Handle, auth.RequireAnyRole())
	tickets.Get("", cfg.Tickets.ListTickets)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Post("", cfg.Tickets.CreateTicket)
	tickets.Patch("", cfg.Tickets.UpdateTicket)
	tickets.Delete("", cfg.Tickets.DeleteTicket)
}
