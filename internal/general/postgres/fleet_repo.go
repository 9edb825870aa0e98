package postgres

import (
	"context"
	"errors"
	"time"

	"fieldnav/internal/domain/geo"
	"fieldnav/internal/domain/navigation"
	"fieldnav/internal/ports"

	"github.com/jackc/pgx/v5"
)

// FleetRepo answers dispatch queries over navigation_sessions.
type FleetRepo struct{}

func NewFleetRepo() ports.FleetRepository {
	return &FleetRepo{}
}

const sessionColumns = `
	id, technician_id, job_id, destination_address,
	destination_lat, destination_lng, state, last_error_code,
	started_at, updated_at, ended_at`

// CountOpenByState groups the sessions that have not ended by their last state.
func (repo *FleetRepo) CountOpenByState(ctx context.Context) (map[navigation.State]int, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
		SELECT state, COUNT(*)
		FROM navigation_sessions
		WHERE ended_at IS NULL
		GROUP BY state
	`)
	if err != nil {
		return nil, err
	}
	return collectStateCounts(rows)
}

// CountStartedBetween counts sessions started in [from, to).
func (repo *FleetRepo) CountStartedBetween(ctx context.Context, from, to time.Time) (int, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return 0, err
	}

	var n int
	err = tx.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM navigation_sessions
		WHERE started_at >= $1 AND started_at < $2
	`, from, to).Scan(&n)
	return n, err
}

// CountEndedByStateBetween groups sessions ended in [from, to) by terminal state.
func (repo *FleetRepo) CountEndedByStateBetween(ctx context.Context, from, to time.Time) (map[navigation.State]int, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
		SELECT state, COUNT(*)
		FROM navigation_sessions
		WHERE ended_at >= $1 AND ended_at < $2
		GROUP BY state
	`, from, to)
	if err != nil {
		return nil, err
	}
	return collectStateCounts(rows)
}

// ListOpen pages through open sessions, oldest first.
func (repo *FleetRepo) ListOpen(ctx context.Context, offset, limit int) ([]navigation.SessionRecord, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM navigation_sessions
		WHERE ended_at IS NULL
		ORDER BY started_at ASC, id ASC
		OFFSET $1 LIMIT $2
	`, offset, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []navigation.SessionRecord
	for rows.Next() {
		rec, err := scanSessionRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// GetOpenForTechnician returns the open session for a technician, if any.
func (repo *FleetRepo) GetOpenForTechnician(ctx context.Context, technicianID string) (*navigation.SessionRecord, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	rec, err := scanSessionRecord(tx.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM navigation_sessions
		WHERE technician_id = $1 AND ended_at IS NULL
		ORDER BY started_at DESC
		LIMIT 1
	`, technicianID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, navigation.ErrNoSession
	}
	return rec, err
}

func scanSessionRecord(row pgx.Row) (*navigation.SessionRecord, error) {
	var (
		rec       navigation.SessionRecord
		stateText string
		lat, lng  *float64
	)
	err := row.Scan(
		&rec.ID, &rec.TechnicianID, &rec.JobID, &rec.DestinationAddress,
		&lat, &lng, &stateText, &rec.LastErrorCode,
		&rec.StartedAt, &rec.UpdatedAt, &rec.EndedAt,
	)
	if err != nil {
		return nil, err
	}

	if rec.State, err = navigation.ParseState(stateText); err != nil {
		return nil, err
	}
	if lat != nil && lng != nil {
		rec.Destination = &geo.Coordinate{Lat: *lat, Lng: *lng}
	}
	return &rec, nil
}

func collectStateCounts(rows pgx.Rows) (map[navigation.State]int, error) {
	defer rows.Close()

	out := make(map[navigation.State]int)
	for rows.Next() {
		var (
			stateText string
			n         int
		)
		if err := rows.Scan(&stateText, &n); err != nil {
			return nil, err
		}
		state, err := navigation.ParseState(stateText)
		if err != nil {
			return nil, err
		}
		out[state] += n
	}
	return out, rows.Err()
}
