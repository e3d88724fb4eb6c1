package domain

import (
	"encoding/json"
	"time"
)

// Event tags produced by the core. Tags are open-ended text; consumers may
// record additional kinds, the store only requires a non-empty tag.
const (
	LogEventRequestCreated = "REQUEST_CREATED"
	LogEventStatusChanged  = "STATUS_CHANGED"
)

// LogDetails is the kind-specific payload attached to a RequestLog. One shape
// exists per event tag the core produces; unknown tags fall back to RawDetails.
type LogDetails interface {
	// ActorRef returns the acting user id referenced by the payload, or ""
	// when the payload carries none.
	ActorRef() string
}

// CreatedDetails is the REQUEST_CREATED payload.
type CreatedDetails struct {
	PublicID  *string `json:"public_id,omitempty"`
	Source    string  `json:"source,omitempty"`
	CreatedBy string  `json:"created_by"`
}

// ActorRef returns the creating user id.
func (d CreatedDetails) ActorRef() string { return d.CreatedBy }

// StatusChangedDetails is the STATUS_CHANGED payload.
type StatusChangedDetails struct {
	OldStatus RequestStatus `json:"old_status"`
	NewStatus RequestStatus `json:"new_status"`
	ChangedBy string        `json:"changed_by"`
}

// ActorRef returns the transitioning user id.
func (d StatusChangedDetails) ActorRef() string { return d.ChangedBy }

// RawDetails carries payloads of event tags the core does not produce itself.
type RawDetails map[string]any

// ActorRef returns the conventional changed_by key when present.
func (d RawDetails) ActorRef() string {
	if v, ok := d["changed_by"].(string); ok {
		return v
	}
	return ""
}

// RequestLog is an immutable audit trail entry for a request. Entries are
// ordered by creation timestamp, ties broken by insertion order (id).
type RequestLog struct {
	ID        int64
	RequestID string
	Event     string
	Details   LogDetails
	CreatedAt time.Time
}

// DecodeLogDetails unmarshals a raw details payload into the typed shape for
// the given event tag, falling back to RawDetails for unknown tags.
func DecodeLogDetails(event string, raw []byte) (LogDetails, error) {
	if len(raw) == 0 {
		return RawDetails{}, nil
	}
	switch event {
	case LogEventRequestCreated:
		var d CreatedDetails
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, err
		}
		return d, nil
	case LogEventStatusChanged:
		var d StatusChangedDetails
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, err
		}
		return d, nil
	default:
		var d RawDetails
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, err
		}
		return d, nil
	}
}
