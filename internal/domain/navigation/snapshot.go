package navigation

import (
	"time"

	"fieldnav/internal/domain/geo"
)

// Snapshot is the read-only view of a session handed to renderers and APIs.
type Snapshot struct {
	SessionID               string
	State                   State
	Origin                  *geo.Coordinate
	Destination             *geo.Coordinate
	CurrentRoute            *Route
	StepIndex               int
	ETA                     time.Time
	DistanceRemainingMeters float64
	LastError               error
	LastPosition            *PositionSample
	Degraded                bool
	PendingGeneration       uint64
	TakenAt                 time.Time
}

// CurrentStep returns the step under the cursor, if any.
func (s Snapshot) CurrentStep() (RouteStep, bool) {
	if s.CurrentRoute == nil || s.StepIndex < 0 || s.StepIndex >= len(s.CurrentRoute.Steps) {
		return RouteStep{}, false
	}
	return s.CurrentRoute.Steps[s.StepIndex], true
}

// WithProgress fills ETA and remaining distance from the route and cursor.
func (s Snapshot) WithProgress() Snapshot {
	if s.CurrentRoute == nil {
		s.ETA = time.Time{}
		s.DistanceRemainingMeters = 0
		return s
	}
	meters, seconds := s.CurrentRoute.RemainingFrom(s.StepIndex)
	s.DistanceRemainingMeters = meters
	s.ETA = s.TakenAt.Add(time.Duration(seconds * float64(time.Second)))
	return s
}
