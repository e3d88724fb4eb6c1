package domain

import "time"

// RequestStatus enumerates lifecycle states for requests.
type RequestStatus string

const (
	RequestStatusOpen       RequestStatus = "open"
	RequestStatusInProgress RequestStatus = "in-progress"
	RequestStatusCompleted  RequestStatus = "completed"
	RequestStatusClosed     RequestStatus = "closed"
)

// Valid reports whether the status is part of the lifecycle vocabulary.
func (s RequestStatus) Valid() bool {
	switch s {
	case RequestStatusOpen, RequestStatusInProgress, RequestStatusCompleted, RequestStatusClosed:
		return true
	}
	return false
}

// RequestPriority enumerates urgency levels.
type RequestPriority string

const (
	RequestPriorityLow    RequestPriority = "low"
	RequestPriorityMedium RequestPriority = "medium"
	RequestPriorityHigh   RequestPriority = "high"
)

// Valid reports whether the priority is part of the vocabulary.
func (p RequestPriority) Valid() bool {
	switch p {
	case RequestPriorityLow, RequestPriorityMedium, RequestPriorityHigh:
		return true
	}
	return false
}

// RequestType enumerates the kinds of work a request can track.
type RequestType string

const (
	RequestTypeBug      RequestType = "bug"
	RequestTypeFeature  RequestType = "feature"
	RequestTypeSupport  RequestType = "support"
	RequestTypeQuestion RequestType = "question"
	RequestTypeOther    RequestType = "other"
)

// Valid reports whether the type is part of the vocabulary.
func (t RequestType) Valid() bool {
	switch t {
	case RequestTypeBug, RequestTypeFeature, RequestTypeSupport, RequestTypeQuestion, RequestTypeOther:
		return true
	}
	return false
}

// Request is the aggregate for tracked work items. A request is created once
// with status open and no assignee; afterwards only status transitions mutate
// it, and each transition attributes the acting user as assignee. Requests are
// never physically deleted.
type Request struct {
	ID          string
	PublicID    *string
	Title       string
	Description string
	Type        RequestType
	Priority    RequestPriority
	Status      RequestStatus
	CreatedBy   string
	AssignedTo  *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
