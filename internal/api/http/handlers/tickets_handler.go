package handlers

import (
	"context"
	"mime"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-service/internal/api/dto"
	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/service"
	"github.com/spec-kit/helpdesk-service/internal/ticketstore"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util"
)

// TicketRules is the store-side ticket service.
type TicketRules interface {
	CreateTicket(ctx context.Context, actor service.Actor, input service.TicketCreateInput) (*domain.Ticket, error)
	ListTickets(ctx context.Context, status domain.TicketStatus) ([]domain.Ticket, error)
	GetTicket(ctx context.Context, id string) (*domain.Ticket, error)
	GetPhoto(ctx context.Context, id string) (*domain.File, error)
	ConfirmTicket(ctx context.Context, actor service.Actor, id string, input service.TicketConfirmInput) (*domain.Ticket, error)
	DeclineTicket(ctx context.Context, actor service.Actor, id string, input service.TicketDeclineInput) (*domain.Ticket, error)
	ListHistory(ctx context.Context, id string) ([]domain.TicketHistory, error)
}

// TicketsHandler serves the primary ticket store API.
type TicketsHandler struct {
	service TicketRules
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService TicketRules) *TicketsHandler {
	return &TicketsHandler{service: ticketService}
}

// ListTickets GET /tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	tickets, err := h.service.ListTickets(c.UserContext(), domain.TicketStatus(c.Query("status")))
	if err != nil {
		return err
	}
	rows := make([]dto.TicketRow, 0, len(tickets))
	for i := range tickets {
		rows = append(rows, ticketstore.RowFromTicket(tickets[i]))
	}
	return c.JSON(dto.ListTicketsResponse{Rows: rows})
}

// CreateTicket POST /tickets (multipart).
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	photo, err := formFile(c, "photo")
	if err != nil {
		return err
	}
	ticket, err := h.service.CreateTicket(c.UserContext(), actor, service.TicketCreateInput{
		ReporterName: c.FormValue("name"),
		Division:     c.FormValue("division"),
		Priority:     domain.TicketPriority(c.FormValue("priority")),
		Description:  c.FormValue("description"),
		Photo:        photo,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(dto.CreateTicketResponse{
		OK:       true,
		TicketID: ticket.Number,
		Row:      ticketstore.RowFromTicket(*ticket),
	})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	ticket, err := h.service.GetTicket(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(ticketstore.RowFromTicket(*ticket))
}

// GetPhoto GET /tickets/:id/photo.
func (h *TicketsHandler) GetPhoto(c *fiber.Ctx) error {
	photo, err := h.service.GetPhoto(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, photo.ContentType)
	c.Set(fiber.HeaderContentDisposition, mime.FormatMediaType("inline", map[string]string{"filename": photo.Name}))
	return c.Send(photo.Data)
}

// ListHistory GET /tickets/:id/history.
func (h *TicketsHandler) ListHistory(c *fiber.Ctx) error {
	history, err := h.service.ListHistory(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	rows := make([]dto.TicketHistoryRow, 0, len(history))
	for _, entry := range history {
		rows = append(rows, dto.TicketHistoryRow{
			ID:               entry.ID,
			Operator:         entry.Operator,
			OldStatus:        entry.OldStatus,
			NewStatus:        entry.NewStatus,
			SharePointItemID: entry.SharePointItemID,
			Notes:            entry.Notes,
			CreatedAt:        entry.CreatedAt,
		})
	}
	return c.JSON(fiber.Map{"rows": rows})
}

// ConfirmTicket POST /tickets/:id/confirm.
func (h *TicketsHandler) ConfirmTicket(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.ConfirmTicketRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if _, err := h.service.ConfirmTicket(c.UserContext(), actor, c.Params("id"), service.TicketConfirmInput{
		Operator:         req.Operator,
		Assignee:         req.Assignee,
		Notes:            req.Notes,
		SharePointItemID: req.SharePointItemID,
		Status:           req.Status,
	}); err != nil {
		return err
	}
	return c.JSON(dto.OKResponse{OK: true})
}

// DeclineTicket POST /tickets/:id/decline.
func (h *TicketsHandler) DeclineTicket(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.DeclineTicketRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if _, err := h.service.DeclineTicket(c.UserContext(), actor, c.Params("id"), service.TicketDeclineInput{
		Notes:            req.Notes,
		Operator:         req.Operator,
		SharePointItemID: req.SharePointItemID,
		Status:           req.Status,
	}); err != nil {
		return err
	}
	return c.JSON(dto.OKResponse{OK: true})
}

func actorFrom(c *fiber.Ctx) (service.Actor, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return service.Actor{}, apperrors.NewUnauthorized("authentication required")
	}
	return service.Actor{SubjectID: principal.SubjectID, Name: principal.DisplayName(), Role: principal.Role}, nil
}
