package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-service/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// StoreRoutes bundles dependencies for the ticket store API.
type StoreRoutes struct {
	Health         *handlers.HealthHandler
	Tickets        *handlers.TicketsHandler
	AuthMiddleware *auth.AuthMiddleware
}

// HelpdeskRoutes bundles dependencies for the reporter and operator API.
type HelpdeskRoutes struct {
	Health         *handlers.HealthHandler
	Intake         *handlers.IntakeHandler
	Resolution     *handlers.ResolutionHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterStoreRoutes wires the primary ticket store.
func RegisterStoreRoutes(app *fiber.App, cfg StoreRoutes) {
	registerHealth(app, cfg.Health)

	tickets := app.Group("/tickets", cfg.AuthMiddleware.Handle, auth.RequireRole(domain.RoleService, domain.RoleOperator))
	tickets.Get("/", cfg.Tickets.ListTickets)
	tickets.Post("/", cfg.Tickets.CreateTicket)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Get("/:id/photo", cfg.Tickets.GetPhoto)
	tickets.Get("/:id/history", cfg.Tickets.ListHistory)
	tickets.Post("/:id/confirm", cfg.Tickets.ConfirmTicket)
	tickets.Post("/:id/decline", cfg.Tickets.DeclineTicket)
}

// RegisterHelpdeskRoutes wires intake and resolution.
func RegisterHelpdeskRoutes(app *fiber.App, cfg HelpdeskRoutes) {
	registerHealth(app, cfg.Health)

	intake := app.Group("/intake", cfg.AuthMiddleware.Handle, auth.RequireRole(domain.RoleReporter, domain.RoleOperator))
	intake.Get("/divisions", cfg.Intake.Divisions)
	intake.Post("/sessions", cfg.Intake.Open)
	intake.Get("/sessions/:id", cfg.Intake.Get)
	intake.Post("/sessions/:id/start", cfg.Intake.Begin)
	intake.Post("/sessions/:id/messages", cfg.Intake.Say)
	intake.Post("/sessions/:id/division", cfg.Intake.ChooseDivision)
	intake.Post("/sessions/:id/photo", cfg.Intake.AttachPhoto)
	intake.Post("/sessions/:id/submit", cfg.Intake.Submit)

	staff := app.Group("/staff", cfg.AuthMiddleware.Handle, auth.RequireRole(domain.RoleOperator))
	staff.Get("/tickets", cfg.Resolution.ListTickets)
	staff.Post("/tickets/:id/confirm", cfg.Resolution.Confirm)
	staff.Post("/tickets/:id/decline", cfg.Resolution.Decline)
	staff.Post("/tickets/:id/finalize", cfg.Resolution.Finalize)
}

func registerHealth(app *fiber.App, health *handlers.HealthHandler) {
	app.Get("/health/live", health.Live)
	app.Get("/health/ready", health.Ready)
	app.Get("/health/metrics", health.Metrics)
}
