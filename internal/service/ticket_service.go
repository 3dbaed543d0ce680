package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util"
)

// TicketService enforces the primary store's rules.
type TicketService struct {
	tickets    repository.TicketRepository
	photos     repository.PhotoRepository
	history    repository.TicketHistoryRepository
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// TicketDependencies bundles repositories for ticket service.
type TicketDependencies struct {
	TicketRepo  repository.TicketRepository
	PhotoRepo   repository.PhotoRepository
	HistoryRepo repository.TicketHistoryRepository
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	ReporterName string
	Division     string
	Priority     domain.TicketPriority
	Description  string
	Photo        *domain.File
}

// TicketConfirmInput finalizes a ticket as handled.
type TicketConfirmInput struct {
	Operator         string
	Assignee         string
	Notes            string
	SharePointItemID string
	Status           domain.TicketStatus
}

// TicketDeclineInput finalizes a ticket as rejected.
type TicketDeclineInput struct {
	Notes            string
	Operator         string
	SharePointItemID string
	Status           domain.TicketStatus
}

// Actor identifies the caller of a store operation.
type Actor struct {
	SubjectID string
	Name      string
	Role      domain.Role
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TicketService{
		tickets:    deps.TicketRepo,
		photos:     deps.PhotoRepo,
		history:    deps.HistoryRepo,
		dispatcher: deps.Dispatcher,
		logger:     logger.Named("tickets"),
	}
}

// CreateTicket stores a new pending ticket. An omitted priority is derived
// from the division.
func (s *TicketService) CreateTicket(ctx context.Context, actor Actor, input TicketCreateInput) (*domain.Ticket, error) {
	ticket := &domain.Ticket{
		ReporterName: strings.TrimSpace(input.ReporterName),
		Division:     strings.TrimSpace(input.Division),
		Priority:     input.Priority,
		Description:  strings.TrimSpace(input.Description),
		Status:       domain.TicketStatusNew,
	}

	missing := []string{}
	if ticket.ReporterName == "" {
		missing = append(missing, "name")
	}
	if ticket.Division == "" {
		missing = append(missing, "division")
	}
	if ticket.Description == "" {
		missing = append(missing, "description")
	}
	if len(missing) > 0 {
		return nil, apperrors.NewValidationError(strings.Join(missing, ", ")+" wajib diisi", map[string]any{"missing": missing})
	}
	if ticket.Priority == "" {
		ticket.Priority = domain.DerivePriority(ticket.Division)
	}
	if !ticket.Priority.Valid() {
		return nil, apperrors.NewValidationError("prioritas tidak valid", map[string]any{"priority": string(ticket.Priority)})
	}

	var photo *domain.File
	if input.Photo != nil {
		if err := domain.ValidatePhoto(*input.Photo); err != nil {
			return nil, err
		}
		normalized := *input.Photo
		normalized.ContentType = domain.PhotoContentType(normalized)
		if strings.TrimSpace(normalized.Name) == "" {
			normalized.Name = "foto" + normalized.Extension()
		}
		photo = &normalized
	}

	if err := s.tickets.Create(ctx, ticket, photo); err != nil {
		return nil, err
	}
	s.logger.Info("ticket created", zap.String("ticket_id", ticket.ID), zap.Int64("number", ticket.Number))
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		Actor:    eventActor(actor),
		Payload: events.TicketCreatedPayload{
			Number:   ticket.Number,
			Division: ticket.Division,
			Priority: ticket.Priority,
			HasPhoto: photo != nil,
		},
	})
	return ticket, nil
}

// ListTickets returns tickets newest first, optionally filtered by status.
func (s *TicketService) ListTickets(ctx context.Context, status domain.TicketStatus) ([]domain.Ticket, error) {
	filter := repository.TicketFilter{}
	if status != "" {
		if !status.Valid() {
			return nil, apperrors.NewValidationError("status tidak valid", map[string]any{"status": string(status)})
		}
		filter.Status = &status
	}
	return s.tickets.List(ctx, filter)
}

// GetTicket fetches one ticket.
func (s *TicketService) GetTicket(ctx context.Context, id string) (*domain.Ticket, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"id": id})
	}
	ticket, err := s.tickets.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundAs("ticket", id, err)
	}
	return ticket, nil
}

// GetPhoto returns the intake photo of a ticket.
func (s *TicketService) GetPhoto(ctx context.Context, id string) (*domain.File, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperrors.NewNotFound("photo", map[string]any{"id": id})
	}
	photo, err := s.photos.GetByTicket(ctx, id)
	if err != nil {
		return nil, notFoundAs("photo", id, err)
	}
	return photo, nil
}

// ConfirmTicket moves a pending ticket to a confirmation status.
func (s *TicketService) ConfirmTicket(ctx context.Context, actor Actor, id string, input TicketConfirmInput) (*domain.Ticket, error) {
	status := input.Status
	if status == "" {
		status = domain.TicketStatusDone
	}
	if !status.IsConfirmation() {
		return nil, apperrors.NewValidationError("status konfirmasi tidak valid", map[string]any{"status": string(status)})
	}
	return s.finalize(ctx, actor, repository.Finalization{
		TicketID:         id,
		Status:           status,
		Assignee:         strings.TrimSpace(input.Assignee),
		Notes:            strings.TrimSpace(input.Notes),
		Operator:         strings.TrimSpace(input.Operator),
		SharePointItemID: strings.TrimSpace(input.SharePointItemID),
	})
}

// DeclineTicket moves a pending ticket to Ditolak.
func (s *TicketService) DeclineTicket(ctx context.Context, actor Actor, id string, input TicketDeclineInput) (*domain.Ticket, error) {
	if input.Status != "" && input.Status != domain.TicketStatusDeclined {
		return nil, apperrors.NewValidationError("status penolakan harus Ditolak", map[string]any{"status": string(input.Status)})
	}
	if strings.TrimSpace(input.Notes) == "" {
		return nil, apperrors.NewValidationError("alasan penolakan wajib diisi", nil)
	}
	return s.finalize(ctx, actor, repository.Finalization{
		TicketID:         id,
		Status:           domain.TicketStatusDeclined,
		Notes:            strings.TrimSpace(input.Notes),
		Operator:         strings.TrimSpace(input.Operator),
		SharePointItemID: strings.TrimSpace(input.SharePointItemID),
	})
}

// ListHistory returns the status changes of a ticket.
func (s *TicketService) ListHistory(ctx context.Context, id string) ([]domain.TicketHistory, error) {
	if _, err := s.GetTicket(ctx, id); err != nil {
		return nil, err
	}
	return s.history.ListByTicket(ctx, id)
}

func (s *TicketService) finalize(ctx context.Context, actor Actor, update repository.Finalization) (*domain.Ticket, error) {
	if update.Operator == "" {
		return nil, apperrors.NewValidationError("operator wajib diisi", nil)
	}
	if !domain.CanTransition(domain.TicketStatusNew, update.Status) {
		return nil, apperrors.NewValidationError("status tidak valid", map[string]any{"status": string(update.Status)})
	}
	if _, err := uuid.Parse(update.TicketID); err != nil {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"id": update.TicketID})
	}

	ticket, err := s.tickets.Finalize(ctx, update)
	if errors.Is(err, repository.ErrNotPending) {
		return nil, apperrors.NewConflict("ticket already finalized", map[string]any{"id": update.TicketID})
	}
	if err != nil {
		return nil, notFoundAs("ticket", update.TicketID, err)
	}

	if err := s.recordStatusChange(ctx, ticket, update); err != nil {
		// The ticket is already updated; a missing audit row is not worth failing the caller.
		s.logger.Error("record status change", zap.String("ticket_id", ticket.ID), zap.Error(err))
	}
	s.logger.Info("ticket finalized",
		zap.String("ticket_id", ticket.ID),
		zap.String("status", string(ticket.Status)),
		zap.String("sharepoint_item_id", ticket.SharePointItemID))
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketStatusChanged,
		TicketID: ticket.ID,
		Actor:    eventActor(actor),
		Payload: events.TicketStatusChangedPayload{
			OldStatus:        domain.TicketStatusNew,
			NewStatus:        ticket.Status,
			SharePointItemID: ticket.SharePointItemID,
		},
	})
	return ticket, nil
}

func (s *TicketService) recordStatusChange(ctx context.Context, ticket *domain.Ticket, update repository.Finalization) error {
	if s.history == nil {
		return nil
	}
	entry := &domain.TicketHistory{
		TicketID:         ticket.ID,
		Operator:         update.Operator,
		OldStatus:        domain.TicketStatusNew,
		NewStatus:        update.Status,
		SharePointItemID: update.SharePointItemID,
		Notes:            update.Notes,
	}
	return s.history.Create(ctx, entry)
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func eventActor(actor Actor) events.Actor {
	return events.Actor{Role: actor.Role, SubjectID: actor.SubjectID, Name: actor.Name}
}

func notFoundAs(resource, id string, err error) error {
	if apperrors.ToDomainError(err).Code == apperrors.CodeNotFound {
		return apperrors.NewNotFound(resource, map[string]any{"id": id})
	}
	return err
}
