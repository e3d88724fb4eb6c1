package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/request-tracker/internal/domain"
)

// RequestLogRepository stores append-only audit entries.
type RequestLogRepository interface {
	Create(ctx context.Context, log *domain.RequestLog) error
	ListByRequest(ctx context.Context, requestID string) ([]domain.RequestLog, error)
}

type requestLogRepository struct {
	pool *pgxpool.Pool
}

// NewRequestLogRepository builds repository.
func NewRequestLogRepository(pool *pgxpool.Pool) RequestLogRepository {
	return &requestLogRepository{pool: pool}
}

func (r *requestLogRepository) Create(ctx context.Context, log *domain.RequestLog) error {
	details := log.Details
	if details == nil {
		details = domain.RawDetails{}
	}
	raw, err := json.Marshal(details)
	if err != nil {
		return err
	}

	const query = `
        INSERT INTO request_logs (request_id, event, details)
        VALUES ($1,$2,$3)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		log.RequestID,
		log.Event,
		raw,
	).Scan(&log.ID, &log.CreatedAt)
}

func (r *requestLogRepository) ListByRequest(ctx context.Context, requestID string) ([]domain.RequestLog, error) {
	// Newest-first; the serial id breaks creation-timestamp ties by
	// insertion order.
	const query = `
        SELECT id, request_id, event, details, created_at
        FROM request_logs WHERE request_id=$1
        ORDER BY created_at DESC, id DESC`
	rows, err := r.pool.Query(ctx, query, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.RequestLog
	for rows.Next() {
		var (
			log domain.RequestLog
			raw []byte
		)
		if err := rows.Scan(
			&log.ID,
			&log.RequestID,
			&log.Event,
			&raw,
			&log.CreatedAt,
		); err != nil {
			return nil, err
		}
		details, err := domain.DecodeLogDetails(log.Event, raw)
		if err != nil {
			return nil, err
		}
		log.Details = details
		result = append(result, log)
	}
	return result, rows.Err()
}
