package resolution

import (
	"fmt"
	"strings"
	"time"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util"
)

const (
	maxTitleLength   = 255
	declineTimestamp = "02 Jan 2006 15:04 MST"
)

// ConfirmStatus resolves the status requested on the confirm path.
func ConfirmStatus(requested domain.TicketStatus) (domain.TicketStatus, error) {
	if requested == "" {
		return domain.TicketStatusDone, nil
	}
	if !requested.IsConfirmation() {
		return "", apperrors.NewValidationError("status konfirmasi tidak valid", map[string]any{"status": string(requested)})
	}
	return requested, nil
}

// BuildConfirmFields maps the operator form onto the remote list fields.
// Blank form values fall back to what the ticket already carries.
func BuildConfirmFields(ticket domain.Ticket, form domain.ResolutionForm, now time.Time) (domain.RemoteFields, error) {
	status, err := ConfirmStatus(form.Status)
	if err != nil {
		return nil, err
	}
	priority := form.Priority
	if priority == "" {
		priority = ticket.Priority
	}
	if priority != "" && !priority.Valid() {
		return nil, apperrors.NewValidationError("prioritas tidak valid", map[string]any{"priority": string(priority)})
	}

	description := firstNonBlank(form.Description, ticket.Description)
	fields := domain.RemoteFields{
		domain.RemoteFieldTitle:        apperrors.Truncate(firstNonBlank(form.Title, description, fmt.Sprintf("Tiket #%d", ticket.Number)), maxTitleLength),
		domain.RemoteFieldDescription:  description,
		domain.RemoteFieldPriority:     priority,
		domain.RemoteFieldStatus:       status,
		domain.RemoteFieldDivision:     firstNonBlank(form.Division, ticket.Division),
		domain.RemoteFieldReportedAt:   firstTime(form.ReportedAt, ticket.CreatedAt),
		domain.RemoteFieldAssignee:     strings.TrimSpace(form.Assignee),
		domain.RemoteFieldTicketType:   strings.TrimSpace(form.TicketType),
		domain.RemoteFieldRequestor:    firstNonBlank(form.Requestor, ticket.ReporterName),
		domain.RemoteFieldTicketNumber: ticket.Number,
	}
	switch {
	case !form.FinishedAt.IsZero():
		fields[domain.RemoteFieldFinishedAt] = form.FinishedAt
	case status == domain.TicketStatusDone:
		fields[domain.RemoteFieldFinishedAt] = now
	}
	return fields, nil
}

// BuildDeclineFields folds operator, time and reason into one description
// block and forces the Ditolak status.
func BuildDeclineFields(ticket domain.Ticket, operator, reason string, now time.Time) (domain.RemoteFields, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperrors.NewValidationError("alasan penolakan wajib diisi", nil)
	}
	return domain.RemoteFields{
		domain.RemoteFieldTitle:        apperrors.Truncate(firstNonBlank(ticket.Description, fmt.Sprintf("Tiket #%d", ticket.Number)), maxTitleLength),
		domain.RemoteFieldDescription:  DeclineNote(operator, reason, now),
		domain.RemoteFieldPriority:     ticket.Priority,
		domain.RemoteFieldStatus:       domain.TicketStatusDeclined,
		domain.RemoteFieldDivision:     ticket.Division,
		domain.RemoteFieldReportedAt:   ticket.CreatedAt,
		domain.RemoteFieldRequestor:    ticket.ReporterName,
		domain.RemoteFieldTicketNumber: ticket.Number,
	}, nil
}

// DeclineNote renders the descriptive block stored for a declined ticket.
func DeclineNote(operator, reason string, at time.Time) string {
	if strings.TrimSpace(operator) == "" {
		operator = "operator"
	}
	return fmt.Sprintf("Ditolak oleh %s pada %s.\nAlasan: %s", operator, at.Format(declineTimestamp), reason)
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func firstTime(values ...time.Time) time.Time {
	for _, v := range values {
		if !v.IsZero() {
			return v
		}
	}
	return time.Time{}
}
