package dto

import (
	"encoding/json"
	"time"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// TicketRow is the wire form of a ticket in the primary store.
type TicketRow struct {
	ID               string                `json:"id"`
	TicketNumber     int64                 `json:"ticketNumber"`
	CreatedAt        time.Time             `json:"createdAt"`
	UpdatedAt        time.Time             `json:"updatedAt"`
	Name             string                `json:"name"`
	Division         string                `json:"division"`
	Priority         domain.TicketPriority `json:"priority"`
	Description      string                `json:"description"`
	Status           domain.TicketStatus   `json:"status"`
	Photo            json.RawMessage       `json:"photo,omitempty"`
	Assignee         string                `json:"assignee,omitempty"`
	Notes            string                `json:"notes,omitempty"`
	Operator         string                `json:"operator,omitempty"`
	SharePointItemID string                `json:"sharePointItemId,omitempty"`
}

// ListTicketsResponse answers GET /tickets.
type ListTicketsResponse struct {
	Rows []TicketRow `json:"rows"`
}

// CreateTicketResponse answers POST /tickets. TicketID is the
// human-readable ticket number.
type CreateTicketResponse struct {
	OK       bool      `json:"ok"`
	TicketID int64     `json:"ticketId"`
	Row      TicketRow `json:"row"`
}

// ConfirmTicketRequest payload.
type ConfirmTicketRequest struct {
	Operator         string              `json:"operator"`
	Assignee         string              `json:"assignee,omitempty"`
	Notes            string              `json:"notes,omitempty"`
	SharePointItemID string              `json:"sharePointItemId,omitempty"`
	Status           domain.TicketStatus `json:"status"`
}

// DeclineTicketRequest payload.
type DeclineTicketRequest struct {
	Notes            string              `json:"notes"`
	Operator         string              `json:"operator"`
	SharePointItemID string              `json:"sharePointItemId,omitempty"`
	Status           domain.TicketStatus `json:"status"`
}

// OKResponse answers confirm and decline.
type OKResponse struct {
	OK bool `json:"ok"`
}

// ErrorBody is the error envelope rendered by the error middleware.
type ErrorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}
