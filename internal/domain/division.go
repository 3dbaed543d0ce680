package domain

// UrgentDivision is the sentinel division whose tickets are always urgent.
const UrgentDivision = "BOD (Urgent)"

// DefaultDivisions is the division list offered by the intake selector.
var DefaultDivisions = []string{
	UrgentDivision,
	"TI & System",
	"Finance & Accounting",
	"Human Capital",
	"General Affair",
	"Marketing",
	"Operasional",
	"Legal",
}

// DerivePriority maps a division to the ticket priority. Every place that
// shows or sends a priority for a new ticket goes through here.
func DerivePriority(division string) TicketPriority {
	if division == UrgentDivision {
		return TicketPriorityUrgent
	}
	return TicketPriorityNormal
}
