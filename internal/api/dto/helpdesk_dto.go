package dto

import (
	"time"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// TicketHistoryRow is one status change returned by GET /tickets/:id/history.
type TicketHistoryRow struct {
	ID               string              `json:"id"`
	Operator         string              `json:"operator"`
	OldStatus        domain.TicketStatus `json:"oldStatus"`
	NewStatus        domain.TicketStatus `json:"newStatus"`
	SharePointItemID string              `json:"sharePointItemId,omitempty"`
	Notes            string              `json:"notes,omitempty"`
	CreatedAt        time.Time           `json:"createdAt"`
}

// IntakeMessageRequest carries one free-text reply.
type IntakeMessageRequest struct {
	Text string `json:"text"`
}

// IntakeDivisionRequest carries the chosen division.
type IntakeDivisionRequest struct {
	Division string `json:"division"`
}

// IntakePhotoSummary describes the selected photo without its bytes.
type IntakePhotoSummary struct {
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Size        int    `json:"size"`
}

// IntakeRecap is the summary card shown once the division is known.
type IntakeRecap struct {
	Complaint string                `json:"complaint"`
	Division  string                `json:"division"`
	Priority  domain.TicketPriority `json:"priority"`
}

// IntakeTurn is one transcript line.
type IntakeTurn struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// IntakeSessionResponse renders a conversation session.
type IntakeSessionResponse struct {
	ID           string              `json:"id"`
	Stage        string              `json:"stage"`
	Complaint    string              `json:"complaint,omitempty"`
	Division     string              `json:"division,omitempty"`
	Photo        *IntakePhotoSummary `json:"photo,omitempty"`
	Recap        *IntakeRecap        `json:"recap,omitempty"`
	CanSubmit    bool                `json:"canSubmit"`
	TicketNumber int64               `json:"ticketNumber,omitempty"`
	LastError    string              `json:"lastError,omitempty"`
	Transcript   []IntakeTurn        `json:"transcript"`
	UpdatedAt    time.Time           `json:"updatedAt"`
}

// CatalogResponse lists the selectable divisions.
type CatalogResponse struct {
	Divisions []string `json:"divisions"`
}

// StaffTicket is a pending ticket as shown to operators.
type StaffTicket struct {
	ID           string                `json:"id"`
	TicketNumber int64                 `json:"ticketNumber"`
	CreatedAt    time.Time             `json:"createdAt"`
	Name         string                `json:"name"`
	Division     string                `json:"division"`
	Priority     domain.TicketPriority `json:"priority"`
	Description  string                `json:"description"`
	Status       domain.TicketStatus   `json:"status"`
	Photo        *domain.AttachmentRef `json:"photo,omitempty"`
}

// ResolveDeclineRequest declines a ticket from the operator console.
type ResolveDeclineRequest struct {
	Reason string `json:"reason"`
}

// ResolveFinalizeRequest repeats finalization with a known remote record.
type ResolveFinalizeRequest struct {
	SharePointItemID string              `json:"sharePointItemId"`
	Decline          bool                `json:"decline"`
	Status           domain.TicketStatus `json:"status"`
	Assignee         string              `json:"assignee"`
	Notes            string              `json:"notes"`
}
