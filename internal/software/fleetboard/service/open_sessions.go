package service

import (
	"context"
	"strconv"
	"strings"

	"fieldnav/internal/domain/navigation"
	"fieldnav/internal/ports"
)

const maxPageSize = 100

// GetOpenSessions returns a paginated list of open sessions.
func (service *fleetService) GetOpenSessions(ctx context.Context, page, pageSize string) (ports.FleetSessionsResult, error) {
	// convert page and pageSize to integers with fallback defaults
	pageInt, err := strconv.Atoi(page)
	if err != nil || pageInt < 1 {
		pageInt = 1
	}
	sizeInt, err := strconv.Atoi(pageSize)
	if err != nil || sizeInt < 1 {
		sizeInt = 10
	}
	sizeInt = min(sizeInt, maxPageSize)

	res := ports.FleetSessionsResult{Page: pageInt, PageSize: sizeInt, Sessions: []ports.FleetSessionRow{}}

	var records []navigation.SessionRecord
	err = service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		open, err := service.fleet.CountOpenByState(txCtx)
		if err != nil {
			return err
		}
		for _, n := range open {
			res.TotalCount += n
		}

		records, err = service.fleet.ListOpen(txCtx, (pageInt-1)*sizeInt, sizeInt)
		return err
	})
	if err != nil {
		return ports.FleetSessionsResult{}, err
	}

	// live lookups happen outside the transaction
	for i := range records {
		res.Sessions = append(res.Sessions, service.row(ctx, &records[i]))
	}
	return res, nil
}

// GetTechnicianSession returns the technician's open session.
func (service *fleetService) GetTechnicianSession(ctx context.Context, technicianID string) (ports.FleetSessionRow, error) {
	technicianID = strings.TrimSpace(technicianID)

	var rec *navigation.SessionRecord
	err := service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		var err error
		rec, err = service.fleet.GetOpenForTechnician(txCtx, technicianID)
		return err
	})
	if err != nil {
		return ports.FleetSessionRow{}, err
	}
	return service.row(ctx, rec), nil
}

// row maps a record to its API shape and attaches the live view when it is the same session.
func (service *fleetService) row(ctx context.Context, rec *navigation.SessionRecord) ports.FleetSessionRow {
	out := ports.FleetSessionRow{
		SessionID:    rec.ID,
		TechnicianID: rec.TechnicianID,
		State:        rec.State.String(),
		StartedAt:    rec.StartedAt.UTC(),
		UpdatedAt:    rec.UpdatedAt.UTC(),
	}
	if rec.JobID != nil {
		out.JobID = *rec.JobID
	}
	if rec.DestinationAddress != nil {
		out.DestinationAddress = *rec.DestinationAddress
	}
	if rec.LastErrorCode != nil {
		out.LastErrorCode = *rec.LastErrorCode
	}
	if rec.Destination != nil {
		out.Destination = &ports.GeoPoint{Latitude: rec.Destination.Lat, Longitude: rec.Destination.Lng}
	}

	if service.live == nil {
		return out
	}
	view, err := service.live.GetSnapshot(ctx, rec.TechnicianID)
	if err == nil && view.SessionID == rec.ID {
		out.Live = &view
		out.State = view.State
	}
	return out
}
