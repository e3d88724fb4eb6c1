package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/request-tracker/internal/domain"
	"github.com/spec-kit/request-tracker/internal/events"
	"github.com/spec-kit/request-tracker/internal/repository"
	apperrors "github.com/spec-kit/request-tracker/pkg/util"
)

// RequestService coordinates the request lifecycle: it enforces the schema and
// status vocabulary at the boundary and hands committed mutations to the
// activity trail and the event dispatcher.
type RequestService struct {
	requests   repository.RequestRepository
	activity   *ActivityService
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// RequestDependencies bundles collaborators for the request service.
type RequestDependencies struct {
	RequestRepo repository.RequestRepository
	Activity    *ActivityService
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
}

// RequestCreateInput describes the creation payload.
type RequestCreateInput struct {
	Title       string
	Description string
	Type        domain.RequestType
	Priority    domain.RequestPriority
}

// RequestListFilter describes listing filters.
type RequestListFilter struct {
	CreatedBy *string
	Status    *domain.RequestStatus
}

// NewRequestService constructs the service.
func NewRequestService(deps RequestDependencies) *RequestService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RequestService{
		requests:   deps.RequestRepo,
		activity:   deps.Activity,
		dispatcher: deps.Dispatcher,
		logger:     logger,
	}
}

// Create persists a new request with status forced to open and no assignee,
// records the creation in the activity trail and publishes a creation event
// for side-effect subscribers.
func (s *RequestService) Create(ctx context.Context, creatorID string, input RequestCreateInput) (*domain.Request, error) {
	if strings.TrimSpace(creatorID) == "" {
		return nil, apperrors.NewValidationError("creator required", nil)
	}
	title := strings.TrimSpace(input.Title)
	description := strings.TrimSpace(input.Description)
	if title == "" || description == "" {
		return nil, apperrors.NewValidationError("title and description required", nil)
	}
	if !input.Type.Valid() {
		return nil, apperrors.NewValidationError("unknown request type", map[string]any{"type": string(input.Type)})
	}
	if !input.Priority.Valid() {
		return nil, apperrors.NewValidationError("unknown priority", map[string]any{"priority": string(input.Priority)})
	}

	publicID := generatePublicID()
	request := &domain.Request{
		PublicID:    &publicID,
		Title:       title,
		Description: description,
		Type:        input.Type,
		Priority:    input.Priority,
		Status:      domain.RequestStatusOpen,
		CreatedBy:   creatorID,
	}
	if err := s.requests.Create(ctx, request); err != nil {
		return nil, apperrors.NewStoreUnavailable(err)
	}

	s.recordActivity(ctx, request.ID, domain.LogEventRequestCreated, domain.CreatedDetails{
		PublicID:  request.PublicID,
		Source:    "api",
		CreatedBy: request.CreatedBy,
	})
	s.publishEvent(ctx, events.Event{
		Type:      events.EventRequestCreated,
		RequestID: request.ID,
		ActorID:   creatorID,
		Payload: events.RequestCreatedPayload{
			PublicID:    request.PublicID,
			Title:       request.Title,
			Description: request.Description,
			Type:        request.Type,
			Priority:    request.Priority,
			CreatedBy:   request.CreatedBy,
			CreatedAt:   request.CreatedAt,
			UpdatedAt:   request.UpdatedAt,
		},
	})
	return request, nil
}

// Get fetches the current record.
func (s *RequestService) Get(ctx context.Context, id string) (*domain.Request, error) {
	request, err := s.requests.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("request", map[string]any{"id": id})
		}
		return nil, apperrors.NewStoreUnavailable(err)
	}
	return request, nil
}

// List returns requests most-recent-first. Without a status filter, closed
// requests sort to the end while recency is preserved within each partition.
func (s *RequestService) List(ctx context.Context, filter RequestListFilter) ([]domain.Request, error) {
	requests, err := s.requests.List(ctx, repository.RequestFilter{
		CreatedBy: filter.CreatedBy,
		Status:    filter.Status,
	})
	if err != nil {
		return nil, apperrors.NewStoreUnavailable(err)
	}
	return requests, nil
}

// Transition moves a request to newStatus, attributing the actor as assignee.
// Transitioning to the current status is a no-op: the record is returned
// unchanged and no activity is recorded.
func (s *RequestService) Transition(ctx context.Context, id string, newStatus domain.RequestStatus, actorID string) (*domain.Request, error) {
	if !newStatus.Valid() {
		return nil, apperrors.NewInvalidTransition(string(newStatus))
	}
	if strings.TrimSpace(actorID) == "" {
		return nil, apperrors.NewValidationError("actor required", nil)
	}

	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status == newStatus {
		return current, nil
	}

	updated, err := s.requests.UpdateStatus(ctx, id, newStatus, actorID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("request", map[string]any{"id": id})
		}
		return nil, apperrors.NewStoreUnavailable(err)
	}

	s.recordActivity(ctx, updated.ID, domain.LogEventStatusChanged, domain.StatusChangedDetails{
		OldStatus: current.Status,
		NewStatus: newStatus,
		ChangedBy: actorID,
	})
	s.publishEvent(ctx, events.Event{
		Type:      events.EventRequestStatusChanged,
		RequestID: updated.ID,
		ActorID:   actorID,
		Payload: events.RequestStatusChangedPayload{
			OldStatus: current.Status,
			NewStatus: newStatus,
			ChangedBy: actorID,
		},
	})
	return updated, nil
}

// Reopen moves a closed request back into triage. It is a convenience over
// Transition and relies on callers invoking it only for closed requests; the
// only guard beyond that convention is the regular same-status no-op rule.
func (s *RequestService) Reopen(ctx context.Context, id, actorID string) (*domain.Request, error) {
	return s.Transition(ctx, id, domain.RequestStatusInProgress, actorID)
}

// recordActivity appends an audit line for a committed mutation. The mutation
// has already been returned as successful, so a failed append is logged and
// tolerated; the trail is advisory, never the source of truth for status.
func (s *RequestService) recordActivity(ctx context.Context, requestID, event string, details domain.LogDetails) {
	if s.activity == nil {
		return
	}
	if err := s.activity.Append(ctx, requestID, event, details); err != nil {
		s.logger.Warn("activity append failed",
			zap.String("request_id", requestID),
			zap.String("event", event),
			zap.Error(err))
	}
}

func (s *RequestService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func generatePublicID() string {
	return "REQ-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}
