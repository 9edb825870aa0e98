package postgres

import (
	"context"

	"fieldnav/internal/domain/geo"
	"fieldnav/internal/ports"
)

// LocationHistoryRepo archives technician position samples.
type LocationHistoryRepo struct{}

func NewLocationHistoryRepo() ports.LocationHistoryRepository {
	return &LocationHistoryRepo{}
}

// Archive inserts a single location_history record and fills its ID.
func (repo *LocationHistoryRepo) Archive(ctx context.Context, record *geo.LocationHistory) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	if err := record.Validate(); err != nil {
		return err
	}

	return tx.QueryRow(ctx, `
		INSERT INTO location_history (
			technician_id, session_id, latitude, longitude,
			accuracy_meters, recorded_at
		)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`,
		record.TechnicianID,
		record.SessionID,
		record.Latitude,
		record.Longitude,
		record.AccuracyMeters,
		record.RecordedAt,
	).Scan(&record.ID)
}
