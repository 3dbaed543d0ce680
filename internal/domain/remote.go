package domain

import "time"

// Field names of the SharePoint list that mirrors resolved tickets.
const (
	RemoteFieldTitle        = "Title"
	RemoteFieldDescription  = "Description"
	RemoteFieldPriority     = "Priority"
	RemoteFieldStatus       = "Status"
	RemoteFieldDivision     = "Divisi"
	RemoteFieldReportedAt   = "DateReported"
	RemoteFieldFinishedAt   = "DateFinished"
	RemoteFieldAssignee     = "AssignedTo"
	RemoteFieldTicketType   = "TicketType"
	RemoteFieldRequestor    = "Requestor"
	RemoteFieldTicketNumber = "TicketNumber"
)

// RemoteFields is the flat, primitive-only payload of a remote list item.
type RemoteFields map[string]any

// ResolutionForm is what an operator fills in to confirm a ticket.
type ResolutionForm struct {
	Title       string
	Description string
	Priority    TicketPriority
	Status      TicketStatus
	ReportedAt  time.Time
	FinishedAt  time.Time
	Assignee    string
	Division    string
	TicketType  string
	Requestor   string
}
