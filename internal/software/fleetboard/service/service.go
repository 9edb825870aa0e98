package service

import (
	"context"
	"time"

	"fieldnav/internal/ports"
)

// LiveSnapshots is the part of ports.NavigationService the fleet board reads.
type LiveSnapshots interface {
	GetSnapshot(ctx context.Context, technicianID string) (ports.NavigationView, error)
}

// fleetService encapsulates the fleet board service logic and dependencies.
type fleetService struct {
	uow   ports.UnitOfWork
	fleet ports.FleetRepository
	live  LiveSnapshots
	now   func() time.Time
}

// NewFleetService creates a new instance of the FleetService with the provided dependencies.
// live may be nil; rows are then served from the database only.
func NewFleetService(uow ports.UnitOfWork, fleet ports.FleetRepository, live LiveSnapshots) ports.FleetService {
	return &fleetService{uow: uow, fleet: fleet, live: live, now: time.Now}
}
