package navigation

import (
	"fieldnav/internal/domain/geo"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// RouteStep is a single turn-by-turn instruction.
type RouteStep struct {
	InstructionText string
	DistanceMeters  float64
	DurationSeconds float64
	StartCoord      geo.Coordinate
	EndCoord        geo.Coordinate
}

// Route is the primary route returned by a directions provider.
// Routes are never mutated after a session accepts them.
type Route struct {
	Steps                []RouteStep
	TotalDistanceMeters  float64
	TotalDurationSeconds float64
	Generation           uint64
	Geometry             []geo.Coordinate
}

// Validate rejects routes the step cursor cannot walk.
func (r *Route) Validate() error {
	if r == nil || len(r.Steps) == 0 {
		return ErrEmptyRoute
	}
	return nil
}

// RemainingFrom sums distance and duration of steps[index:].
func (r *Route) RemainingFrom(index int) (meters, seconds float64) {
	if r == nil {
		return 0, 0
	}
	if index < 0 {
		index = 0
	}
	for i := index; i < len(r.Steps); i++ {
		meters += r.Steps[i].DistanceMeters
		seconds += r.Steps[i].DurationSeconds
	}
	return meters, seconds
}

// LineString returns the route polyline; step endpoints are used when no geometry was supplied.
func (r *Route) LineString() orb.LineString {
	if r == nil {
		return nil
	}
	if len(r.Geometry) > 0 {
		ls := make(orb.LineString, 0, len(r.Geometry))
		for _, c := range r.Geometry {
			ls = append(ls, c.Point())
		}
		return ls
	}

	ls := make(orb.LineString, 0, len(r.Steps)+1)
	for i, s := range r.Steps {
		if i == 0 {
			ls = append(ls, s.StartCoord.Point())
		}
		ls = append(ls, s.EndCoord.Point())
	}
	return ls
}

// Feature wraps the polyline as a GeoJSON feature for map renderers.
func (r *Route) Feature() *geojson.Feature {
	if r == nil {
		return nil
	}
	f := geojson.NewFeature(r.LineString())
	f.Properties["generation"] = r.Generation
	f.Properties["distance_meters"] = r.TotalDistanceMeters
	f.Properties["duration_seconds"] = r.TotalDurationSeconds
	return f
}
