package contracts

import (
	"encoding/json"
	"time"
)

// Technician socket frame types.
const (
	WSTypeAuth                  = "auth"
	WSTypeLocationUpdate        = "location_update"
	WSTypeNavigationStart       = "navigation_start"
	WSTypeNavigationCancel      = "navigation_cancel"
	WSTypeNavigationRecalculate = "navigation_recalculate"
	WSTypeStepNext              = "step_next"
	WSTypeStepPrevious          = "step_previous"
	WSTypeNavigationSnapshot    = "navigation_snapshot"
	WSTypeFleetProgress         = "fleet_progress"
	WSTypeError                 = "error"
)

// WSInbound is the envelope every client frame arrives in.
type WSInbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// WSLocationUpdate is the data of a "location_update" frame.
type WSLocationUpdate struct {
	Latitude       float64   `json:"latitude" validate:"latitude"`
	Longitude      float64   `json:"longitude" validate:"longitude"`
	AccuracyMeters float64   `json:"accuracy_meters" validate:"gte=0"`
	Timestamp      time.Time `json:"timestamp"`
	// Denied is set by the client when the OS revoked location access.
	Denied bool `json:"denied,omitempty"`
}

// WSError mirrors "error" frames sent back to a socket.
type WSError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
