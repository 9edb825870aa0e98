package contracts

import "time"

// NavigationStatusMessage is published on every state change.
// Routing key: "nav.status.{state}" on ExchangeNavigationTopic.
type NavigationStatusMessage struct {
	SessionID    string    `json:"session_id"`
	TechnicianID string    `json:"technician_id"`
	JobID        string    `json:"job_id,omitempty"`
	State        string    `json:"state"` // IDLE|RESOLVING|ROUTE_READY|NAVIGATING|RECALCULATING|ARRIVED|CANCELLED|ERROR
	PrevState    string    `json:"prev_state,omitempty"`
	ErrorCode    string    `json:"error_code,omitempty"`
	Generation   uint64    `json:"generation"`
	Timestamp    time.Time `json:"timestamp"`
	Envelope
}

// NavigationProgressMessage is broadcast for dispatch views.
// Exchange: ExchangeNavProgressFanout (fanout, no routing key).
type NavigationProgressMessage struct {
	SessionID               string     `json:"session_id"`
	TechnicianID            string     `json:"technician_id"`
	JobID                   string     `json:"job_id,omitempty"`
	State                   string     `json:"state"`
	Location                *GeoPoint  `json:"location,omitempty"`
	Destination             *GeoPoint  `json:"destination,omitempty"`
	Step                    *StepBrief `json:"step,omitempty"`
	DistanceRemainingMeters float64    `json:"distance_remaining_meters"`
	ETA                     *time.Time `json:"eta,omitempty"`
	Degraded                bool       `json:"degraded"`
	Timestamp               time.Time  `json:"timestamp"`
	Envelope
}
