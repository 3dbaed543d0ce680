package handlers

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-service/internal/api/dto"
	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/resolution"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util"
)

// PendingTickets lists tickets from the primary store.
type PendingTickets interface {
	List(ctx context.Context, status domain.TicketStatus) ([]domain.Ticket, error)
}

// Resolver runs the resolution workflow.
type Resolver interface {
	Confirm(ctx context.Context, req resolution.ConfirmRequest) (*resolution.Result, error)
	Decline(ctx context.Context, req resolution.DeclineRequest) (*resolution.Result, error)
	Finalize(ctx context.Context, req resolution.FinalizeRequest) (*resolution.Result, error)
}

// ResolutionHandler exposes the operator console endpoints.
type ResolutionHandler struct {
	tickets  PendingTickets
	workflow Resolver
}

// NewResolutionHandler constructs handler.
func NewResolutionHandler(tickets PendingTickets, workflow Resolver) *ResolutionHandler {
	return &ResolutionHandler{tickets: tickets, workflow: workflow}
}

// formTimeLayouts are accepted for the reported and finished timestamps.
var formTimeLayouts = []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02 15:04", "2006-01-02"}

// ListTickets GET /staff/tickets. Without a status filter only pending
// tickets are listed; status=all lists everything.
func (h *ResolutionHandler) ListTickets(c *fiber.Ctx) error {
	status := domain.TicketStatus(strings.TrimSpace(c.Query("status")))
	switch {
	case status == "":
		status = domain.TicketStatusNew
	case strings.EqualFold(string(status), "all"):
		status = ""
	case !status.Valid():
		return apperrors.NewValidationError("status tidak valid", map[string]any{"status": string(status)})
	}
	tickets, err := h.tickets.List(c.UserContext(), status)
	if err != nil {
		return err
	}
	items := make([]dto.StaffTicket, 0, len(tickets))
	for i := range tickets {
		items = append(items, staffTicket(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Confirm POST /staff/tickets/:id/confirm (multipart with optional "proof").
func (h *ResolutionHandler) Confirm(c *fiber.Ctx) error {
	operator, err := operatorFrom(c)
	if err != nil {
		return err
	}
	proof, err := formFile(c, "proof")
	if err != nil {
		return err
	}
	form, err := resolutionForm(c)
	if err != nil {
		return err
	}
	result, err := h.workflow.Confirm(c.UserContext(), resolution.ConfirmRequest{
		TicketID: c.Params("id"),
		Form:     form,
		Notes:    c.FormValue("notes"),
		Proof:    proof,
		Operator: operator,
	})
	return h.respond(c, result, err)
}

// Decline POST /staff/tickets/:id/decline.
func (h *ResolutionHandler) Decline(c *fiber.Ctx) error {
	operator, err := operatorFrom(c)
	if err != nil {
		return err
	}
	proof, err := formFile(c, "proof")
	if err != nil {
		return err
	}
	reason := c.FormValue("reason")
	if !isMultipart(c) {
		var req dto.ResolveDeclineRequest
		if err := parseBody(c, &req); err != nil {
			return err
		}
		reason = req.Reason
	}
	result, err := h.workflow.Decline(c.UserContext(), resolution.DeclineRequest{
		TicketID: c.Params("id"),
		Reason:   reason,
		Proof:    proof,
		Operator: operator,
	})
	return h.respond(c, result, err)
}

// Finalize POST /staff/tickets/:id/finalize repeats the store update after a
// finalization failure.
func (h *ResolutionHandler) Finalize(c *fiber.Ctx) error {
	operator, err := operatorFrom(c)
	if err != nil {
		return err
	}
	var req dto.ResolveFinalizeRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	result, err := h.workflow.Finalize(c.UserContext(), resolution.FinalizeRequest{
		TicketID: c.Params("id"),
		RemoteID: req.SharePointItemID,
		Decline:  req.Decline,
		Status:   req.Status,
		Assignee: req.Assignee,
		Notes:    req.Notes,
		Operator: operator,
	})
	return h.respond(c, result, err)
}

// respond renders a workflow outcome. A partial result, as left by a
// finalization failure, is returned alongside the error so the operator
// keeps the remote record id.
func (h *ResolutionHandler) respond(c *fiber.Ctx, result *resolution.Result, err error) error {
	if err != nil && result != nil {
		domainErr := apperrors.ToDomainError(err)
		return c.Status(domainErr.HTTPStatus).JSON(fiber.Map{
			"error": dto.ErrorBody{
				Code:    domainErr.Code,
				Message: apperrors.DisplayMessage(domainErr),
				Details: domainErr.Details,
			},
			"data": result,
		})
	}
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": result})
}

func resolutionForm(c *fiber.Ctx) (domain.ResolutionForm, error) {
	reportedAt, err := formTime(c, "reportedAt")
	if err != nil {
		return domain.ResolutionForm{}, err
	}
	finishedAt, err := formTime(c, "finishedAt")
	if err != nil {
		return domain.ResolutionForm{}, err
	}
	return domain.ResolutionForm{
		Title:       c.FormValue("title"),
		Description: c.FormValue("description"),
		Priority:    domain.TicketPriority(c.FormValue("priority")),
		Status:      domain.TicketStatus(c.FormValue("status")),
		ReportedAt:  reportedAt,
		FinishedAt:  finishedAt,
		Assignee:    c.FormValue("assignee"),
		Division:    c.FormValue("division"),
		TicketType:  c.FormValue("ticketType"),
		Requestor:   c.FormValue("requestor"),
	}, nil
}

func formTime(c *fiber.Ctx, field string) (time.Time, error) {
	value := strings.TrimSpace(c.FormValue(field))
	if value == "" {
		return time.Time{}, nil
	}
	for _, layout := range formTimeLayouts {
		if parsed, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, apperrors.NewValidationError("format waktu tidak valid", map[string]any{"field": field, "value": value})
}

func operatorFrom(c *fiber.Ctx) (resolution.Operator, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return resolution.Operator{}, apperrors.NewUnauthorized("authentication required")
	}
	return resolution.Operator{ID: principal.SubjectID, Name: principal.DisplayName()}, nil
}

func staffTicket(ticket *domain.Ticket) dto.StaffTicket {
	return dto.StaffTicket{
		ID:           ticket.ID,
		TicketNumber: ticket.Number,
		CreatedAt:    ticket.CreatedAt,
		Name:         ticket.ReporterName,
		Division:     ticket.Division,
		Priority:     ticket.Priority,
		Description:  ticket.Description,
		Status:       ticket.Status,
		Photo:        ticket.Photo,
	}
}
