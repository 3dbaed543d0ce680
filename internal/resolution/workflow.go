package resolution

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/ticketstore"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util"
)

// TicketStore is the part of the primary store the workflow drives.
type TicketStore interface {
	Get(ctx context.Context, id string) (*domain.Ticket, error)
	Confirm(ctx context.Context, id string, in ticketstore.Confirmation) error
	Decline(ctx context.Context, id string, in ticketstore.Declination) error
	Fetch(ctx context.Context, ref domain.AttachmentRef) (*domain.File, error)
}

// RecordCreator creates the remote list record.
type RecordCreator interface {
	CreateItem(ctx context.Context, fields domain.RemoteFields) (string, error)
}

// AttachmentUploader stores a file against a remote record.
type AttachmentUploader interface {
	Upload(ctx context.Context, itemID string, file domain.File) (*domain.Descriptor, error)
}

// Operator is the authenticated staff member resolving a ticket.
type Operator struct {
	ID   string
	Name string
}

// ConfirmRequest closes a ticket as handled.
type ConfirmRequest struct {
	TicketID string
	Form     domain.ResolutionForm
	Notes    string
	Proof    *domain.File
	Operator Operator
}

// DeclineRequest closes a ticket as rejected.
type DeclineRequest struct {
	TicketID string
	Reason   string
	Proof    *domain.File
	Operator Operator
}

// FinalizeRequest repeats only the store update for a ticket whose remote
// record already exists.
type FinalizeRequest struct {
	TicketID string
	RemoteID string
	Decline  bool
	Status   domain.TicketStatus
	Assignee string
	Notes    string
	Operator Operator
}

// Slot names the two attachment positions of a remote record.
type Slot string

const (
	SlotIncident Slot = "incident"
	SlotProof    Slot = "proof"
)

// SlotOutcome reports what happened to one attachment slot.
type SlotOutcome struct {
	Attempted  bool               `json:"attempted"`
	Descriptor *domain.Descriptor `json:"descriptor,omitempty"`
	Code       string             `json:"code,omitempty"`
	Error      string             `json:"error,omitempty"`
}

// Result summarises a completed workflow.
type Result struct {
	TicketID string              `json:"ticketId"`
	RemoteID string              `json:"sharePointItemId"`
	Status   domain.TicketStatus `json:"status"`
	Incident SlotOutcome         `json:"incident"`
	Proof    SlotOutcome         `json:"proof"`
}

// Workflow confirms or declines pending tickets: remote record first, then
// best-effort attachments, then the store update.
type Workflow struct {
	store      TicketStore
	records    RecordCreator
	uploader   AttachmentUploader
	locker     Locker
	dispatcher events.Dispatcher
	logger     *zap.Logger
	now        func() time.Time
}

// Dependencies bundles workflow collaborators.
type Dependencies struct {
	Store      TicketStore
	Records    RecordCreator
	Uploader   AttachmentUploader
	Locker     Locker
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	Now        func() time.Time
}

// NewWorkflow constructs the workflow.
func NewWorkflow(deps Dependencies) *Workflow {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	locker := deps.Locker
	if locker == nil {
		locker = NewLocalLocker()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Workflow{
		store:      deps.Store,
		records:    deps.Records,
		uploader:   deps.Uploader,
		locker:     locker,
		dispatcher: deps.Dispatcher,
		logger:     logger.Named("resolution"),
		now:        now,
	}
}

// Confirm runs the confirm path.
func (w *Workflow) Confirm(ctx context.Context, req ConfirmRequest) (*Result, error) {
	status, err := ConfirmStatus(req.Form.Status)
	if err != nil {
		return nil, err
	}
	release, ticket, err := w.begin(ctx, req.TicketID)
	if err != nil {
		return nil, err
	}
	defer release()

	fields, err := BuildConfirmFields(*ticket, req.Form, w.now())
	if err != nil {
		return nil, err
	}
	result, err := w.createRecord(ctx, ticket, fields)
	if err != nil {
		return nil, err
	}
	result.Status = status
	w.uploadAttachments(ctx, ticket, req.Proof, req.Operator, result)

	confirmation := ticketstore.Confirmation{
		Operator:         req.Operator.Name,
		Assignee:         strings.TrimSpace(req.Form.Assignee),
		Notes:            strings.TrimSpace(req.Notes),
		SharePointItemID: result.RemoteID,
		Status:           status,
	}
	if err := w.store.Confirm(ctx, ticket.ID, confirmation); err != nil {
		return result, w.finalizationFailed(ctx, ticket.ID, result.RemoteID, req.Operator, err)
	}

	w.publish(ctx, events.EventTicketResolved, ticket.ID, req.Operator, events.TicketResolvedPayload{
		RemoteID: result.RemoteID,
		Status:   status,
		Assignee: confirmation.Assignee,
	})
	w.logger.Info("ticket confirmed",
		zap.String("ticket_id", ticket.ID),
		zap.String("remote_id", result.RemoteID),
		zap.String("status", string(status)))
	return result, nil
}

// Decline runs the decline path.
func (w *Workflow) Decline(ctx context.Context, req DeclineRequest) (*Result, error) {
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, apperrors.NewValidationError("alasan penolakan wajib diisi", nil)
	}
	release, ticket, err := w.begin(ctx, req.TicketID)
	if err != nil {
		return nil, err
	}
	defer release()

	fields, err := BuildDeclineFields(*ticket, req.Operator.Name, reason, w.now())
	if err != nil {
		return nil, err
	}
	result, err := w.createRecord(ctx, ticket, fields)
	if err != nil {
		return nil, err
	}
	result.Status = domain.TicketStatusDeclined
	w.uploadAttachments(ctx, ticket, req.Proof, req.Operator, result)

	declination := ticketstore.Declination{
		Reason:           reason,
		Operator:         req.Operator.Name,
		SharePointItemID: result.RemoteID,
	}
	if err := w.store.Decline(ctx, ticket.ID, declination); err != nil {
		return result, w.finalizationFailed(ctx, ticket.ID, result.RemoteID, req.Operator, err)
	}

	w.publish(ctx, events.EventTicketDeclined, ticket.ID, req.Operator, events.TicketDeclinedPayload{
		RemoteID: result.RemoteID,
		Reason:   reason,
	})
	w.logger.Info("ticket declined", zap.String("ticket_id", ticket.ID), zap.String("remote_id", result.RemoteID))
	return result, nil
}

// Finalize repeats the store update after an earlier finalization failure.
// No remote record is created and no attachment is uploaded.
func (w *Workflow) Finalize(ctx context.Context, req FinalizeRequest) (*Result, error) {
	remoteID := strings.TrimSpace(req.RemoteID)
	if remoteID == "" {
		return nil, apperrors.NewValidationError("sharePointItemId wajib diisi", nil)
	}
	var status domain.TicketStatus
	if req.Decline {
		if strings.TrimSpace(req.Notes) == "" {
			return nil, apperrors.NewValidationError("alasan penolakan wajib diisi", nil)
		}
		status = domain.TicketStatusDeclined
	} else {
		var err error
		if status, err = ConfirmStatus(req.Status); err != nil {
			return nil, err
		}
	}

	release, ticket, err := w.begin(ctx, req.TicketID)
	if err != nil {
		return nil, err
	}
	defer release()

	result := &Result{TicketID: ticket.ID, RemoteID: remoteID, Status: status}
	if req.Decline {
		err = w.store.Decline(ctx, ticket.ID, ticketstore.Declination{
			Reason:           strings.TrimSpace(req.Notes),
			Operator:         req.Operator.Name,
			SharePointItemID: remoteID,
		})
	} else {
		err = w.store.Confirm(ctx, ticket.ID, ticketstore.Confirmation{
			Operator:         req.Operator.Name,
			Assignee:         strings.TrimSpace(req.Assignee),
			Notes:            strings.TrimSpace(req.Notes),
			SharePointItemID: remoteID,
			Status:           status,
		})
	}
	if err != nil {
		return result, w.finalizationFailed(ctx, ticket.ID, remoteID, req.Operator, err)
	}

	eventType := events.EventTicketResolved
	var payload interface{} = events.TicketResolvedPayload{RemoteID: remoteID, Status: status, Assignee: req.Assignee}
	if req.Decline {
		eventType = events.EventTicketDeclined
		payload = events.TicketDeclinedPayload{RemoteID: remoteID, Reason: req.Notes}
	}
	w.publish(ctx, eventType, ticket.ID, req.Operator, payload)
	w.logger.Info("ticket finalized on retry", zap.String("ticket_id", ticket.ID), zap.String("remote_id", remoteID))
	return result, nil
}

// begin takes the ticket lock and loads the ticket, which must still be pending.
func (w *Workflow) begin(ctx context.Context, ticketID string) (func(), *domain.Ticket, error) {
	ticketID = strings.TrimSpace(ticketID)
	if ticketID == "" {
		return nil, nil, apperrors.NewValidationError("ticket id wajib diisi", nil)
	}
	release, err := w.locker.Acquire(ctx, ticketID)
	if err != nil {
		return nil, nil, err
	}
	ticket, err := w.store.Get(ctx, ticketID)
	if err != nil {
		release()
		return nil, nil, err
	}
	if ticket.Status != domain.TicketStatusNew {
		release()
		return nil, nil, apperrors.NewConflict("tiket sudah diproses", map[string]any{
			"ticketId": ticket.ID,
			"status":   string(ticket.Status),
		})
	}
	return release, ticket, nil
}

func (w *Workflow) createRecord(ctx context.Context, ticket *domain.Ticket, fields domain.RemoteFields) (*Result, error) {
	remoteID, err := w.records.CreateItem(ctx, fields)
	if err != nil {
		w.logger.Error("remote record creation failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
		return nil, apperrors.NewRecordCreationFailure(err)
	}
	w.logger.Info("remote record created", zap.String("ticket_id", ticket.ID), zap.String("remote_id", remoteID))
	return &Result{TicketID: ticket.ID, RemoteID: remoteID}, nil
}

// uploadAttachments fills both slots in order. Failures are recorded on the
// result and never returned.
func (w *Workflow) uploadAttachments(ctx context.Context, ticket *domain.Ticket, proof *domain.File, op Operator, result *Result) {
	if ticket.Photo != nil {
		result.Incident = w.uploadSlot(ctx, ticket.ID, result.RemoteID, SlotIncident, op, func() (*domain.File, error) {
			file, err := w.store.Fetch(ctx, *ticket.Photo)
			if err != nil {
				return nil, err
			}
			if file.Name == "" {
				file.Name = "foto-tiket-" + ticket.ID + file.Extension()
			}
			return file, nil
		})
	}
	if proof != nil {
		result.Proof = w.uploadSlot(ctx, ticket.ID, result.RemoteID, SlotProof, op, func() (*domain.File, error) {
			if err := domain.ValidatePhoto(*proof); err != nil {
				return nil, err
			}
			file := *proof
			if file.Name == "" {
				file.Name = "bukti-" + ticket.ID + file.Extension()
			}
			return &file, nil
		})
	}
}

func (w *Workflow) uploadSlot(ctx context.Context, ticketID, remoteID string, slot Slot, op Operator, load func() (*domain.File, error)) SlotOutcome {
	outcome := SlotOutcome{Attempted: true}
	file, err := load()
	if err == nil {
		outcome.Descriptor, err = w.uploader.Upload(ctx, remoteID, *file)
	}
	if err != nil {
		domainErr := apperrors.ToDomainError(err)
		outcome.Code = domainErr.Code
		outcome.Error = apperrors.DisplayMessage(err)
		w.logger.Warn("attachment upload failed",
			zap.String("ticket_id", ticketID),
			zap.String("remote_id", remoteID),
			zap.String("slot", string(slot)),
			zap.Error(err))
		w.publish(ctx, events.EventAttachmentUploadFailed, ticketID, op, events.AttachmentUploadFailedPayload{
			RemoteID: remoteID,
			Slot:     string(slot),
			Code:     domainErr.Code,
			Error:    err.Error(),
		})
	}
	return outcome
}

func (w *Workflow) finalizationFailed(ctx context.Context, ticketID, remoteID string, op Operator, err error) error {
	wrapped := apperrors.NewFinalizationFailure(remoteID, err)
	w.logger.Error("ticket finalization failed",
		zap.String("ticket_id", ticketID),
		zap.String("remote_id", remoteID),
		zap.Error(err))
	w.publish(ctx, events.EventTicketFinalizationFailed, ticketID, op, events.TicketFinalizationFailedPayload{
		RemoteID: remoteID,
		Code:     apperrors.ToDomainError(err).Code,
		Error:    err.Error(),
	})
	return wrapped
}

func (w *Workflow) publish(ctx context.Context, eventType events.EventType, ticketID string, op Operator, payload interface{}) {
	if w.dispatcher == nil {
		return
	}
	_ = w.dispatcher.Publish(ctx, events.Event{
		Type:      eventType,
		TicketID:  ticketID,
		Actor:     events.Actor{Role: domain.RoleOperator, SubjectID: op.ID, Name: op.Name},
		Timestamp: w.now().UTC(),
		Payload:   payload,
	})
}
