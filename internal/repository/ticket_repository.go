package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// ErrNotPending is returned when a finalization targets a ticket that has
// already left the Belum status.
var ErrNotPending = errors.New("ticket is not pending")

// TicketFilter captures list parameters.
type TicketFilter struct {
	Status *domain.TicketStatus
	Limit  int
	Offset int
}

// Finalization is the single update a pending ticket receives.
type Finalization struct {
	TicketID         string
	Status           domain.TicketStatus
	Assignee         string
	Notes            string
	Operator         string
	SharePointItemID string
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket, photo *domain.File) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	Finalize(ctx context.Context, update Finalization) (*domain.Ticket, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `
        t.id, t.ticket_number, t.reporter_name, t.division, t.priority, t.description, t.status,
        t.assignee, t.notes, t.operator, t.sharepoint_item_id, t.created_at, t.updated_at,
        p.file_name, p.content_type`

const ticketFrom = `FROM tickets t LEFT JOIN ticket_photos p ON p.ticket_id = t.id`

// Create inserts the ticket and its photo in one transaction. The database
// assigns id, number and timestamps.
func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket, photo *domain.File) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		const insertTicket = `
            INSERT INTO tickets (reporter_name, division, priority, description, status)
            VALUES ($1,$2,$3,$4,$5)
            RETURNING id, ticket_number, created_at, updated_at`
		if err := tx.QueryRow(ctx, insertTicket,
			ticket.ReporterName,
			ticket.Division,
			ticket.Priority,
			ticket.Description,
			ticket.Status,
		).Scan(&ticket.ID, &ticket.Number, &ticket.CreatedAt, &ticket.UpdatedAt); err != nil {
			return fmt.Errorf("insert ticket: %w", err)
		}

		if photo == nil {
			return nil
		}
		const insertPhoto = `
            INSERT INTO ticket_photos (ticket_id, file_name, content_type, size_bytes, data)
            VALUES ($1,$2,$3,$4,$5)`
		if _, err := tx.Exec(ctx, insertPhoto, ticket.ID, photo.Name, photo.ContentType, photo.Size(), photo.Data); err != nil {
			return fmt.Errorf("insert ticket photo: %w", err)
		}
		ticket.Photo = photoRef(ticket.ID, &photo.Name, &photo.ContentType)
		return nil
	})
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s %s WHERE t.id=$1`, ticketColumns, ticketFrom)
	return scanTicket(r.pool.QueryRow(ctx, query, id))
}

func (r *ticketRepository) List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	clauses := []string{"1=1"}
	args := []any{}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		clauses = append(clauses, fmt.Sprintf("t.status=$%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`SELECT %s %s WHERE %s ORDER BY t.created_at DESC, t.ticket_number DESC LIMIT %d OFFSET %d`,
		ticketColumns, ticketFrom, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.Ticket{}
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

// Finalize applies the update only while the ticket is still Belum, so two
// concurrent finalizations cannot both succeed.
func (r *ticketRepository) Finalize(ctx context.Context, update Finalization) (*domain.Ticket, error) {
	const query = `
        UPDATE tickets SET status=$1, assignee=$2, notes=$3, operator=$4, sharepoint_item_id=$5, updated_at=NOW()
        WHERE id=$6 AND status=$7`
	cmd, err := r.pool.Exec(ctx, query,
		update.Status,
		update.Assignee,
		update.Notes,
		update.Operator,
		update.SharePointItemID,
		update.TicketID,
		domain.TicketStatusNew,
	)
	if err != nil {
		return nil, err
	}
	if cmd.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, update.TicketID); err != nil {
			return nil, err
		}
		return nil, ErrNotPending
	}
	return r.GetByID(ctx, update.TicketID)
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var (
		ticket      domain.Ticket
		fileName    *string
		contentType *string
	)
	if err := row.Scan(
		&ticket.ID,
		&ticket.Number,
		&ticket.ReporterName,
		&ticket.Division,
		&ticket.Priority,
		&ticket.Description,
		&ticket.Status,
		&ticket.Assignee,
		&ticket.Notes,
		&ticket.Operator,
		&ticket.SharePointItemID,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&fileName,
		&contentType,
	); err != nil {
		return nil, err
	}
	ticket.Photo = photoRef(ticket.ID, fileName, contentType)
	return &ticket, nil
}

// PhotoPath is where the store serves a ticket's photo.
func PhotoPath(ticketID string) string {
	return "/tickets/" + ticketID + "/photo"
}

func photoRef(ticketID string, fileName, contentType *string) *domain.AttachmentRef {
	if fileName == nil {
		return nil
	}
	ref := domain.URLRef(PhotoPath(ticketID))
	ref.FileName = *fileName
	if contentType != nil {
		ref.ContentType = *contentType
	}
	return ref
}
