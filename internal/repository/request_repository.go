package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/request-tracker/internal/domain"
)

// RequestFilter narrows request listings.
type RequestFilter struct {
	CreatedBy *string
	Status    *domain.RequestStatus
}

// RequestRepository encapsulates request persistence.
type RequestRepository interface {
	Create(ctx context.Context, request *domain.Request) error
	GetByID(ctx context.Context, id string) (*domain.Request, error)
	UpdateStatus(ctx context.Context, id string, status domain.RequestStatus, assigneeID string) (*domain.Request, error)
	List(ctx context.Context, filter RequestFilter) ([]domain.Request, error)
}

type requestRepository struct {
	pool *pgxpool.Pool
}

// NewRequestRepository instantiates repository.
func NewRequestRepository(pool *pgxpool.Pool) RequestRepository {
	return &requestRepository{pool: pool}
}

const requestColumns = `id, public_id, title, description, type, priority, status,
               created_by, assigned_to, created_at, updated_at`

func (r *requestRepository) Create(ctx context.Context, request *domain.Request) error {
	const query = `
        INSERT INTO requests (public_id, title, description, type, priority, status, created_by)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		request.PublicID,
		request.Title,
		request.Description,
		request.Type,
		request.Priority,
		request.Status,
		request.CreatedBy,
	).Scan(&request.ID, &request.CreatedAt, &request.UpdatedAt)
}

func (r *requestRepository) GetByID(ctx context.Context, id string) (*domain.Request, error) {
	query := fmt.Sprintf(`SELECT %s FROM requests WHERE id=$1`, requestColumns)
	var request domain.Request
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&request.ID,
		&request.PublicID,
		&request.Title,
		&request.Description,
		&request.Type,
		&request.Priority,
		&request.Status,
		&request.CreatedBy,
		&request.AssignedTo,
		&request.CreatedAt,
		&request.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &request, nil
}

func (r *requestRepository) UpdateStatus(ctx context.Context, id string, status domain.RequestStatus, assigneeID string) (*domain.Request, error) {
	query := fmt.Sprintf(`
        UPDATE requests SET status=$1, assigned_to=$2, updated_at=NOW()
        WHERE id=$3
        RETURNING %s`, requestColumns)
	var request domain.Request
	if err := r.pool.QueryRow(ctx, query, status, assigneeID, id).Scan(
		&request.ID,
		&request.PublicID,
		&request.Title,
		&request.Description,
		&request.Type,
		&request.Priority,
		&request.Status,
		&request.CreatedBy,
		&request.AssignedTo,
		&request.CreatedAt,
		&request.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &request, nil
}

func (r *requestRepository) List(ctx context.Context, filter RequestFilter) ([]domain.Request, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.CreatedBy != nil {
		args = append(args, *filter.CreatedBy)
		clauses = append(clauses, fmt.Sprintf("created_by=$%d", len(args)))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		clauses = append(clauses, fmt.Sprintf("status=$%d", len(args)))
	}

	// Without a status filter, closed requests sort after everything else
	// while recency order is kept within each partition.
	orderBy := "created_at DESC"
	if filter.Status == nil {
		orderBy = "(status = 'closed') ASC, created_at DESC"
	}

	query := fmt.Sprintf(`SELECT %s FROM requests WHERE %s ORDER BY %s`,
		requestColumns, strings.Join(clauses, " AND "), orderBy)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRequests(rows)
}

func scanRequests(rows pgx.Rows) ([]domain.Request, error) {
	var result []domain.Request
	for rows.Next() {
		var request domain.Request
		if err := rows.Scan(
			&request.ID,
			&request.PublicID,
			&request.Title,
			&request.Description,
			&request.Type,
			&request.Priority,
			&request.Status,
			&request.CreatedBy,
			&request.AssignedTo,
			&request.CreatedAt,
			&request.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, request)
	}
	return result, rows.Err()
}
