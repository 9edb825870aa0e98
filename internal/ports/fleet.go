package ports

import (
	"context"
	"time"
)

// ----- DTOs for Fleet Board -----

// FleetOverviewResult is the body of GET /dispatch/overview.
type FleetOverviewResult struct {
	Timestamp time.Time `json:"timestamp"`
	Open      struct {
		Total   int            `json:"total"`
		ByState map[string]int `json:"by_state"`
	} `json:"open_sessions"`
	Today struct {
		Started        int     `json:"started"`
		Arrived        int     `json:"arrived"`
		Cancelled      int     `json:"cancelled"`
		Failed         int     `json:"failed"`
		CompletionRate float64 `json:"completion_rate"`
	} `json:"today"`
}

// FleetSessionRow is one open session as shown on the fleet map.
// Live is set when this process hosts the session.
type FleetSessionRow struct {
	SessionID          string          `json:"session_id"`
	TechnicianID       string          `json:"technician_id"`
	JobID              string          `json:"job_id,omitempty"`
	DestinationAddress string          `json:"destination_address,omitempty"`
	Destination        *GeoPoint       `json:"destination,omitempty"`
	State              string          `json:"state"`
	LastErrorCode      string          `json:"last_error_code,omitempty"`
	StartedAt          time.Time       `json:"started_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
	Live               *NavigationView `json:"live,omitempty"`
}

// FleetSessionsResult is the body of GET /dispatch/sessions/active.
type FleetSessionsResult struct {
	Sessions   []FleetSessionRow `json:"sessions"`
	TotalCount int               `json:"total_count"`
	Page       int               `json:"page"`
	PageSize   int               `json:"page_size"`
}

// ----- Fleet Board Service Interface -----

// FleetService answers dispatch queries across all technicians.
type FleetService interface {
	GetOverview(ctx context.Context) (FleetOverviewResult, error)
	GetOpenSessions(ctx context.Context, page, pageSize string) (FleetSessionsResult, error)
	GetTechnicianSession(ctx context.Context, technicianID string) (FleetSessionRow, error)
}
