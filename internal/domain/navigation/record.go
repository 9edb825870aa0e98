package navigation

import (
	"errors"
	"strings"
	"time"

	"fieldnav/internal/domain/geo"
)

// SessionRecord is the lifecycle row kept in `navigation_sessions`.
// Routes themselves are never stored.
type SessionRecord struct {
	ID                 string
	TechnicianID       string
	JobID              *string
	DestinationAddress *string
	Destination        *geo.Coordinate
	State              State
	LastErrorCode      *string
	StartedAt          time.Time
	UpdatedAt          time.Time
	EndedAt            *time.Time
}

var (
	ErrMissingSessionID    = errors.New("session id is required")
	ErrMissingTechnicianID = errors.New("technician id is required")
)

// Validate checks the row before it is written.
func (r *SessionRecord) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return ErrMissingSessionID
	}
	if strings.TrimSpace(r.TechnicianID) == "" {
		return ErrMissingTechnicianID
	}
	if !r.State.Valid() {
		return ErrInvalidState
	}
	if r.Destination != nil {
		if err := r.Destination.Validate(); err != nil {
			return err
		}
	}
	return nil
}
