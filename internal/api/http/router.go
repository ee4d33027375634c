package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/terratile/support-service/internal/api/http/handlers"
	"github.com/terratile/support-service/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health    *handlers.HealthHandler
	Tickets   *handlers.TicketsHandler
	AgentAuth *auth.AgentAuth
}

// RegisterRoutes wires HTTP routes. Ticket creation and lookup are
// customer-facing; listing, replies, status changes, and deletion are
// agent-only.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	tickets := app.Group("/tickets")
	tickets.Post("", cfg.Tickets.CreateTicket)
	tickets.Get("/:id", cfg.Tickets.GetTicket)

	agent := tickets.Group("", cfg.AgentAuth.Handle)
	agent.Get("", cfg.Tickets.ListTickets)
	agent.Post("/:id/reply", cfg.Tickets.AddReply)
	agent.Patch("/:id/status", cfg.Tickets.UpdateStatus)
	agent.Delete("/:id", cfg.Tickets.DeleteTicket)
}
