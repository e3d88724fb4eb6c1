package dto

import (
	"time"

	"github.com/spec-kit/request-tracker/internal/domain"
)

// CreateRequestRequest payload.
type CreateRequestRequest struct {
	Title       string                 `json:"title"`
	Description string                 `json:"description"`
	Type        domain.RequestType     `json:"type"`
	Priority    domain.RequestPriority `json:"priority"`
}

// UpdateStatusRequest payload.
type UpdateStatusRequest struct {
	Status domain.RequestStatus `json:"status"`
}

// RequestSummary response.
type RequestSummary struct {
	ID         string                 `json:"id"`
	PublicID   *string                `json:"public_id"`
	Title      string                 `json:"title"`
	Type       domain.RequestType     `json:"type"`
	Priority   domain.RequestPriority `json:"priority"`
	Status     domain.RequestStatus   `json:"status"`
	CreatedBy  string                 `json:"created_by"`
	AssignedTo *string                `json:"assigned_to"`
	CreatedAt  time.Time              `json:"created_at"`
	UpdatedAt  time.Time              `json:"updated_at"`
}

// RequestDetailResponse provides full request info with its activity timeline.
type RequestDetailResponse struct {
	RequestSummary
	Description string                  `json:"description"`
	Activity    []ActivityEntryResponse `json:"activity"`
}

// ActivityEntryResponse represents one audit timeline row.
type ActivityEntryResponse struct {
	ID        int64             `json:"id"`
	Event     string            `json:"event"`
	Details   domain.LogDetails `json:"details"`
	ActorName string            `json:"actor_name,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}
