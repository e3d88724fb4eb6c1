package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/spec-kit/request-tracker/internal/domain"
	"github.com/spec-kit/request-tracker/internal/repository"
)

// In-memory stand-ins for the Postgres repositories. They mirror the SQL
// contracts, including pgx.ErrNoRows for missing rows and the closed-last
// ordering rule of the request listing.

type memoryRequestRepo struct {
	mu       sync.Mutex
	rows     map[string]*domain.Request
	seq      int
	base     time.Time
	failWith error
}

func newMemoryRequestRepo() *memoryRequestRepo {
	return &memoryRequestRepo{
		rows: make(map[string]*domain.Request),
		base: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (r *memoryRequestRepo) Create(_ context.Context, request *domain.Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return r.failWith
	}
	r.seq++
	request.ID = uuid.NewString()
	request.CreatedAt = r.base.Add(time.Duration(r.seq) * time.Minute)
	request.UpdatedAt = request.CreatedAt
	clone := *request
	r.rows[request.ID] = &clone
	return nil
}

func (r *memoryRequestRepo) GetByID(_ context.Context, id string) (*domain.Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return nil, r.failWith
	}
	row, ok := r.rows[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *row
	return &clone, nil
}

func (r *memoryRequestRepo) UpdateStatus(_ context.Context, id string, status domain.RequestStatus, assigneeID string) (*domain.Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return nil, r.failWith
	}
	row, ok := r.rows[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	r.seq++
	assignee := assigneeID
	row.Status = status
	row.AssignedTo = &assignee
	row.UpdatedAt = r.base.Add(time.Duration(r.seq) * time.Minute)
	clone := *row
	return &clone, nil
}

func (r *memoryRequestRepo) List(_ context.Context, filter repository.RequestFilter) ([]domain.Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return nil, r.failWith
	}
	var result []domain.Request
	for _, row := range r.rows {
		if filter.CreatedBy != nil && row.CreatedBy != *filter.CreatedBy {
			continue
		}
		if filter.Status != nil && row.Status != *filter.Status {
			continue
		}
		result = append(result, *row)
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if filter.Status == nil {
		sort.SliceStable(result, func(i, j int) bool {
			return result[i].Status != domain.RequestStatusClosed &&
				result[j].Status == domain.RequestStatusClosed
		})
	}
	return result, nil
}

type memoryLogRepo struct {
	mu       sync.Mutex
	logs     []domain.RequestLog
	seq      int64
	base     time.Time
	failWith error

	// frozenClock makes every entry share one timestamp so ordering falls
	// back to insertion order.
	frozenClock bool
}

func newMemoryLogRepo() *memoryLogRepo {
	return &memoryLogRepo{base: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (r *memoryLogRepo) Create(_ context.Context, log *domain.RequestLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return r.failWith
	}
	r.seq++
	log.ID = r.seq
	if r.frozenClock {
		log.CreatedAt = r.base
	} else {
		log.CreatedAt = r.base.Add(time.Duration(r.seq) * time.Second)
	}
	r.logs = append(r.logs, *log)
	return nil
}

func (r *memoryLogRepo) ListByRequest(_ context.Context, requestID string) ([]domain.RequestLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return nil, r.failWith
	}
	var result []domain.RequestLog
	for _, log := range r.logs {
		if log.RequestID == requestID {
			result = append(result, log)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})
	return result, nil
}

func (r *memoryLogRepo) forRequest(requestID string) []domain.RequestLog {
	logs, _ := r.ListByRequest(context.Background(), requestID)
	return logs
}

type memoryProfileRepo struct {
	mu       sync.Mutex
	rows     map[string]*domain.Profile
	failWith error
}

func newMemoryProfileRepo() *memoryProfileRepo {
	return &memoryProfileRepo{rows: make(map[string]*domain.Profile)}
}

func (r *memoryProfileRepo) Create(_ context.Context, profile *domain.Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.Email == profile.Email {
			return &pgconn.PgError{Code: "23505"}
		}
	}
	profile.ID = uuid.NewString()
	profile.CreatedAt = time.Now()
	profile.UpdatedAt = profile.CreatedAt
	clone := *profile
	r.rows[profile.ID] = &clone
	return nil
}

func (r *memoryProfileRepo) GetByID(_ context.Context, id string) (*domain.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return nil, r.failWith
	}
	row, ok := r.rows[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *row
	return &clone, nil
}

func (r *memoryProfileRepo) GetByEmail(_ context.Context, email string) (*domain.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return nil, r.failWith
	}
	for _, row := range r.rows {
		if row.Email == email {
			clone := *row
			return &clone, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *memoryProfileRepo) add(email string, name *string) *domain.Profile {
	profile := &domain.Profile{Email: email, Name: name, PasswordHash: "x"}
	_ = r.Create(context.Background(), profile)
	return profile
}
