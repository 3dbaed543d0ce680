package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// PhotoRepository reads intake photos stored alongside tickets.
type PhotoRepository interface {
	GetByTicket(ctx context.Context, ticketID string) (*domain.File, error)
}

type photoRepository struct {
	pool *pgxpool.Pool
}

// NewPhotoRepository constructs repository.
func NewPhotoRepository(pool *pgxpool.Pool) PhotoRepository {
	return &photoRepository{pool: pool}
}

func (r *photoRepository) GetByTicket(ctx context.Context, ticketID string) (*domain.File, error) {
	const query = `SELECT file_name, content_type, data FROM ticket_photos WHERE ticket_id=$1`
	var file domain.File
	if err := r.pool.QueryRow(ctx, query, ticketID).Scan(&file.Name, &file.ContentType, &file.Data); err != nil {
		return nil, err
	}
	return &file, nil
}
