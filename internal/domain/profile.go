package domain

import (
	"strings"
	"time"
)

// UnknownActorName is the placeholder shown when an actor cannot be resolved.
const UnknownActorName = "Unknown"

// Profile is the minimal identity used to attribute events and ownership.
// Requests and logs reference profiles by id only.
type Profile struct {
	ID           string
	Email        string
	Name         *string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// DisplayName resolves the human-facing label for the profile: the name when
// set, else the local part of the email, else the Unknown placeholder.
func (p *Profile) DisplayName() string {
	if p == nil {
		return UnknownActorName
	}
	if p.Name != nil && strings.TrimSpace(*p.Name) != "" {
		return *p.Name
	}
	if p.Email != "" {
		return strings.SplitN(p.Email, "@", 2)[0]
	}
	return UnknownActorName
}
