package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-service/internal/api/dto"
	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/intake"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util"
)

// IntakeConversations drives reporter conversations.
type IntakeConversations interface {
	Catalog() intake.Catalog
	Open(owner intake.Owner) (*intake.Session, error)
	Get(owner intake.Owner, id string) (*intake.Session, error)
	Begin(owner intake.Owner, id string) (*intake.Session, error)
	Say(owner intake.Owner, id, text string) (*intake.Session, error)
	ChooseDivision(owner intake.Owner, id, division string) (*intake.Session, error)
	AttachPhoto(owner intake.Owner, id string, file domain.File) (*intake.Session, error)
	Submit(ctx context.Context, owner intake.Owner, id string) (*intake.Session, error)
}

// IntakeHandler exposes the reporter conversation.
type IntakeHandler struct {
	service IntakeConversations
}

// NewIntakeHandler constructs handler.
func NewIntakeHandler(conversations IntakeConversations) *IntakeHandler {
	return &IntakeHandler{service: conversations}
}

// Divisions GET /intake/divisions.
func (h *IntakeHandler) Divisions(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": dto.CatalogResponse{Divisions: h.service.Catalog().Divisions}})
}

// Open POST /intake/sessions.
func (h *IntakeHandler) Open(c *fiber.Ctx) error {
	owner, err := ownerFrom(c)
	if err != nil {
		return err
	}
	session, err := h.service.Open(owner)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": sessionResponse(session)})
}

// Get GET /intake/sessions/:id.
func (h *IntakeHandler) Get(c *fiber.Ctx) error {
	return h.respond(c, func(owner intake.Owner, id string) (*intake.Session, error) {
		return h.service.Get(owner, id)
	})
}

// Begin POST /intake/sessions/:id/start.
func (h *IntakeHandler) Begin(c *fiber.Ctx) error {
	return h.respond(c, h.service.Begin)
}

// Say POST /intake/sessions/:id/messages.
func (h *IntakeHandler) Say(c *fiber.Ctx) error {
	var req dto.IntakeMessageRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	return h.respond(c, func(owner intake.Owner, id string) (*intake.Session, error) {
		return h.service.Say(owner, id, req.Text)
	})
}

// ChooseDivision POST /intake/sessions/:id/division.
func (h *IntakeHandler) ChooseDivision(c *fiber.Ctx) error {
	var req dto.IntakeDivisionRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	return h.respond(c, func(owner intake.Owner, id string) (*intake.Session, error) {
		return h.service.ChooseDivision(owner, id, req.Division)
	})
}

// AttachPhoto POST /intake/sessions/:id/photo (multipart, field "photo").
func (h *IntakeHandler) AttachPhoto(c *fiber.Ctx) error {
	photo, err := formFile(c, "photo")
	if err != nil {
		return err
	}
	if photo == nil {
		return apperrors.NewValidationError("foto wajib dipilih", nil)
	}
	return h.respond(c, func(owner intake.Owner, id string) (*intake.Session, error) {
		return h.service.AttachPhoto(owner, id, *photo)
	})
}

// Submit POST /intake/sessions/:id/submit. A failed submission answers
// with the error and the retained draft.
func (h *IntakeHandler) Submit(c *fiber.Ctx) error {
	owner, err := ownerFrom(c)
	if err != nil {
		return err
	}
	session, err := h.service.Submit(c.UserContext(), owner, c.Params("id"))
	if err != nil && session != nil {
		domainErr := apperrors.ToDomainError(err)
		return c.Status(domainErr.HTTPStatus).JSON(fiber.Map{
			"error": dto.ErrorBody{
				Code:    domainErr.Code,
				Message: apperrors.DisplayMessage(domainErr),
				Details: domainErr.Details,
			},
			"data": sessionResponse(session),
		})
	}
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": sessionResponse(session)})
}

func (h *IntakeHandler) respond(c *fiber.Ctx, op func(owner intake.Owner, id string) (*intake.Session, error)) error {
	owner, err := ownerFrom(c)
	if err != nil {
		return err
	}
	session, err := op(owner, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": sessionResponse(session)})
}

func ownerFrom(c *fiber.Ctx) (intake.Owner, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return intake.Owner{}, apperrors.NewUnauthorized("authentication required")
	}
	return intake.Owner{ID: principal.SubjectID, Name: principal.DisplayName()}, nil
}

func sessionResponse(session *intake.Session) dto.IntakeSessionResponse {
	state := session.State
	resp := dto.IntakeSessionResponse{
		ID:           session.ID,
		Stage:        string(state.Stage),
		Complaint:    state.Complaint,
		Division:     state.Division,
		CanSubmit:    intake.CanSubmit(state),
		TicketNumber: state.TicketNumber,
		LastError:    state.LastError,
		Transcript:   make([]dto.IntakeTurn, 0, len(state.Transcript)),
		UpdatedAt:    session.UpdatedAt,
	}
	if state.Photo != nil {
		resp.Photo = &dto.IntakePhotoSummary{
			Name:        state.Photo.Name,
			ContentType: state.Photo.ContentType,
			Size:        state.Photo.Size,
		}
	}
	if recap, ok := state.Recap(); ok {
		resp.Recap = &dto.IntakeRecap{Complaint: recap.Complaint, Division: recap.Division, Priority: recap.Priority}
	}
	for _, turn := range state.Transcript {
		resp.Transcript = append(resp.Transcript, dto.IntakeTurn{Speaker: string(turn.Speaker), Text: turn.Text})
	}
	return resp
}
