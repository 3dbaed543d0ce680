package events

import (
	"time"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated            EventType = "ticket_created"
	EventTicketStatusChanged      EventType = "ticket_status_changed"
	EventTicketResolved           EventType = "ticket_resolved"
	EventTicketDeclined           EventType = "ticket_declined"
	EventAttachmentUploadFailed   EventType = "attachment_upload_failed"
	EventTicketFinalizationFailed EventType = "ticket_finalization_failed"
)

// Actor identifies who caused an event.
type Actor struct {
	Role      domain.Role `json:"role"`
	SubjectID string      `json:"subject_id,omitempty"`
	Name      string      `json:"name,omitempty"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Number   int64                 `json:"number"`
	Division string                `json:"division"`
	Priority domain.TicketPriority `json:"priority"`
	HasPhoto bool                  `json:"has_photo"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus        domain.TicketStatus `json:"old_status"`
	NewStatus        domain.TicketStatus `json:"new_status"`
	SharePointItemID string              `json:"sharepoint_item_id,omitempty"`
}

// TicketResolvedPayload payload.
type TicketResolvedPayload struct {
	RemoteID string              `json:"remote_id"`
	Status   domain.TicketStatus `json:"status"`
	Assignee string              `json:"assignee,omitempty"`
}

// TicketDeclinedPayload payload.
type TicketDeclinedPayload struct {
	RemoteID string `json:"remote_id"`
	Reason   string `json:"reason"`
}

// AttachmentUploadFailedPayload payload.
type AttachmentUploadFailedPayload struct {
	RemoteID string `json:"remote_id"`
	Slot     string `json:"slot"`
	Code     string `json:"code"`
	Error    string `json:"error"`
}

// TicketFinalizationFailedPayload payload.
type TicketFinalizationFailedPayload struct {
	RemoteID string `json:"remote_id"`
	Code     string `json:"code"`
	Error    string `json:"error"`
}
