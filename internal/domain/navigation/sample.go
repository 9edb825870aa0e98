package navigation

import (
	"time"

	"fieldnav/internal/domain/geo"
)

// PositionSample is one accepted reading from the position source.
type PositionSample struct {
	Coord          geo.Coordinate
	Timestamp      time.Time
	AccuracyMeters float64
}

// NewerThan reports whether s was taken strictly after prev.
func (s PositionSample) NewerThan(prev PositionSample) bool {
	return s.Timestamp.After(prev.Timestamp)
}
