package ports

import (
	"context"
	"time"

	"fieldnav/internal/domain/navigation"
)

// ----- DTOs for Navigation Service -----

// GeoPoint represents a simple latitude/longitude pair.
type GeoPoint struct {
	Latitude  float64 `json:"latitude" validate:"latitude"`
	Longitude float64 `json:"longitude" validate:"longitude"`
}

// StartNavigationInput is the validated input for POST /technicians/{technician_id}/navigation.
type StartNavigationInput struct {
	TechnicianID        string    // from path
	JobID               string    `json:"job_id"`
	DestinationAddress  string    `json:"destination_address"`
	Destination         *GeoPoint `json:"destination,omitempty"`
	FallbackDestination *GeoPoint `json:"fallback_destination,omitempty"`
	Origin              *GeoPoint `json:"origin,omitempty"` // fixed origin; otherwise the first position sample
}

// StepView is one instruction as rendered to clients.
type StepView struct {
	Index           int      `json:"index"`
	Instruction     string   `json:"instruction"`
	DistanceMeters  float64  `json:"distance_meters"`
	DurationSeconds float64  `json:"duration_seconds"`
	Start           GeoPoint `json:"start"`
	End             GeoPoint `json:"end"`
}

// RouteView is the accepted route as rendered to clients.
type RouteView struct {
	Generation           uint64     `json:"generation"`
	TotalDistanceMeters  float64    `json:"total_distance_meters"`
	TotalDurationSeconds float64    `json:"total_duration_seconds"`
	Steps                []StepView `json:"steps"`
	Geometry             any        `json:"geometry,omitempty"` // GeoJSON feature
}

// NavigationView is the API shape of a session snapshot.
type NavigationView struct {
	SessionID               string     `json:"session_id"`
	TechnicianID            string     `json:"technician_id"`
	JobID                   string     `json:"job_id,omitempty"`
	State                   string     `json:"state"`
	StepIndex               int        `json:"step_index"`
	CurrentStep             *StepView  `json:"current_step,omitempty"`
	Route                   *RouteView `json:"route,omitempty"`
	ETA                     *time.Time `json:"eta,omitempty"`
	DistanceRemainingMeters float64    `json:"distance_remaining_meters"`
	LastPosition            *GeoPoint  `json:"last_position,omitempty"`
	Degraded                bool       `json:"degraded"`
	Generation              uint64     `json:"generation"`
	ErrorCode               string     `json:"error_code,omitempty"`
	ErrorMessage            string     `json:"error_message,omitempty"`
	UpdatedAt               time.Time  `json:"updated_at"`
}

// UpdatePositionInput is the validated input for POST /technicians/{technician_id}/location.
type UpdatePositionInput struct {
	TechnicianID   string    // from path
	Latitude       float64   `json:"latitude" validate:"latitude"`
	Longitude      float64   `json:"longitude" validate:"longitude"`
	AccuracyMeters float64   `json:"accuracy_meters" validate:"gte=0"`
	Timestamp      time.Time `json:"timestamp"`
}

// PositionFeed is a technician's live position stream as seen by the transport layer.
type PositionFeed interface {
	Push(update PositionUpdate)
	Close()
}

// ProgressBroadcaster pushes fleet progress to dispatch screens.
// body is an encoded contracts.NavigationProgressMessage.
type ProgressBroadcaster interface {
	BroadcastProgress(body []byte)
}

// ----- Navigation Service Interface -----

// NavigationService hosts one navigation session per technician.
type NavigationService interface {
	StartNavigation(ctx context.Context, in StartNavigationInput) (NavigationView, error)
	CancelNavigation(ctx context.Context, technicianID string) (NavigationView, error)
	Recalculate(ctx context.Context, technicianID string) (NavigationView, error)
	StepNext(ctx context.Context, technicianID string) (NavigationView, error)
	StepPrevious(ctx context.Context, technicianID string) (NavigationView, error)
	GetSnapshot(ctx context.Context, technicianID string) (NavigationView, error)
	UpdatePosition(ctx context.Context, in UpdatePositionInput) error
	AttachPositionFeed(technicianID string) PositionFeed
	Subscribe(technicianID string, fn func(NavigationView)) (unsubscribe func())
	RunBackgroundConsumers(ctx context.Context)
	Shutdown(ctx context.Context)
}

// ToNavigationView converts an engine snapshot into its API shape.
func ToNavigationView(technicianID, jobID string, s navigation.Snapshot) NavigationView {
	v := NavigationView{
		SessionID:               s.SessionID,
		TechnicianID:            technicianID,
		JobID:                   jobID,
		State:                   s.State.String(),
		StepIndex:               s.StepIndex,
		DistanceRemainingMeters: s.DistanceRemainingMeters,
		Degraded:                s.Degraded,
		Generation:              s.PendingGeneration,
		UpdatedAt:               s.TakenAt,
	}
	if s.LastError != nil && !navigation.IsInternal(s.LastError) {
		v.ErrorCode = navigation.Code(s.LastError)
		v.ErrorMessage = s.LastError.Error()
	}
	if s.LastPosition != nil {
		v.LastPosition = &GeoPoint{Latitude: s.LastPosition.Coord.Lat, Longitude: s.LastPosition.Coord.Lng}
	}
	if r := s.CurrentRoute; r != nil {
		rv := &RouteView{
			Generation:           r.Generation,
			TotalDistanceMeters:  r.TotalDistanceMeters,
			TotalDurationSeconds: r.TotalDurationSeconds,
			Steps:                make([]StepView, 0, len(r.Steps)),
			Geometry:             r.Feature(),
		}
		for i, st := range r.Steps {
			rv.Steps = append(rv.Steps, toStepView(i, st))
		}
		v.Route = rv
		if st, ok := s.CurrentStep(); ok {
			cur := toStepView(s.StepIndex, st)
			v.CurrentStep = &cur
		}
		if !s.ETA.IsZero() {
			eta := s.ETA
			v.ETA = &eta
		}
	}
	return v
}

func toStepView(i int, st navigation.RouteStep) StepView {
	return StepView{
		Index:           i,
		Instruction:     st.InstructionText,
		DistanceMeters:  st.DistanceMeters,
		DurationSeconds: st.DurationSeconds,
		Start:           GeoPoint{Latitude: st.StartCoord.Lat, Longitude: st.StartCoord.Lng},
		End:             GeoPoint{Latitude: st.EndCoord.Lat, Longitude: st.EndCoord.Lng},
	}
}
