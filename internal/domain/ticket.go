package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusNew        TicketStatus = "Belum"
	TicketStatusConfirmed  TicketStatus = "Terkonfirmasi"
	TicketStatusInProgress TicketStatus = "Dalam Proses"
	TicketStatusDone       TicketStatus = "Selesai"
	TicketStatusDeclined   TicketStatus = "Ditolak"
)

// TicketPriority enumerates SLA urgency.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "Low"
	TicketPriorityNormal TicketPriority = "Normal"
	TicketPriorityHigh   TicketPriority = "High"
	TicketPriorityUrgent TicketPriority = "Urgent"
)

// Ticket is the authoritative helpdesk request held by the primary store.
type Ticket struct {
	ID               string
	Number           int64
	CreatedAt        time.Time
	ReporterName     string
	Division         string
	Priority         TicketPriority
	Description      string
	Status           TicketStatus
	Photo            *AttachmentRef
	Assignee         string
	Notes            string
	Operator         string
	SharePointItemID string
	UpdatedAt        time.Time
}

var allowedTransitions = map[TicketStatus][]TicketStatus{
	TicketStatusNew:        {TicketStatusConfirmed, TicketStatusInProgress, TicketStatusDone, TicketStatusDeclined},
	TicketStatusConfirmed:  {TicketStatusInProgress, TicketStatusDone},
	TicketStatusInProgress: {TicketStatusDone},
	TicketStatusDone:       {},
	TicketStatusDeclined:   {},
}

// CanTransition reports whether current may move to next.
func CanTransition(current, next TicketStatus) bool {
	for _, candidate := range allowedTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s TicketStatus) Terminal() bool {
	return s == TicketStatusDone || s == TicketStatusDeclined
}

// Valid reports whether s is a known status.
func (s TicketStatus) Valid() bool {
	_, ok := allowedTransitions[s]
	return ok
}

// IsConfirmation reports whether s is a status the confirm path may set.
func (s TicketStatus) IsConfirmation() bool {
	return s == TicketStatusConfirmed || s == TicketStatusInProgress || s == TicketStatusDone
}

// Valid reports whether p is a known priority.
func (p TicketPriority) Valid() bool {
	switch p {
	case TicketPriorityLow, TicketPriorityNormal, TicketPriorityHigh, TicketPriorityUrgent:
		return true
	}
	return false
}
