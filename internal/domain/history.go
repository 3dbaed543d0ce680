package domain

import "time"

// TicketHistory records one status change made by the store.
type TicketHistory struct {
	ID               string
	TicketID         string
	Operator         string
	OldStatus        TicketStatus
	NewStatus        TicketStatus
	SharePointItemID string
	Notes            string
	CreatedAt        time.Time
}
