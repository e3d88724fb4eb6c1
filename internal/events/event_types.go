package events

import (
	"time"

	"github.com/spec-kit/request-tracker/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventRequestCreated       EventType = "request_created"
	EventRequestStatusChanged EventType = "request_status_changed"
)

// Event represents a lifecycle event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	RequestID string      `json:"request_id"`
	ActorID   string      `json:"actor_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// RequestCreatedPayload carries the persisted record of a new request.
type RequestCreatedPayload struct {
	PublicID    *string                `json:"public_id,omitempty"`
	Title       string                 `json:"title"`
	Description string                 `json:"description"`
	Type        domain.RequestType     `json:"type"`
	Priority    domain.RequestPriority `json:"priority"`
	CreatedBy   string                 `json:"created_by"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

// RequestStatusChangedPayload records a status transition.
type RequestStatusChangedPayload struct {
	OldStatus domain.RequestStatus `json:"old_status"`
	NewStatus domain.RequestStatus `json:"new_status"`
	ChangedBy string               `json:"changed_by"`
}
