package postgres

import (
	"context"
	"errors"
	"time"

	"fieldnav/internal/domain/navigation"
	"fieldnav/internal/ports"
)

var ErrSessionNotFound = errors.New("navigation session not found")

// NavigationSessionRepo keeps one row per navigation session.
type NavigationSessionRepo struct{}

func NewNavigationSessionRepo() ports.NavigationSessionRepository {
	return &NavigationSessionRepo{}
}

// Start inserts the session row.
func (repo *NavigationSessionRepo) Start(ctx context.Context, rec *navigation.SessionRecord) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}
	if err := rec.Validate(); err != nil {
		return err
	}

	var lat, lng *float64
	if rec.Destination != nil {
		lat, lng = &rec.Destination.Lat, &rec.Destination.Lng
	}

	return tx.QueryRow(ctx, `
		INSERT INTO navigation_sessions (
			id, technician_id, job_id, destination_address,
			destination_lat, destination_lng, state, started_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		RETURNING updated_at
	`,
		rec.ID,
		rec.TechnicianID,
		rec.JobID,
		rec.DestinationAddress,
		lat,
		lng,
		rec.State.String(),
		rec.StartedAt,
	).Scan(&rec.UpdatedAt)
}

// UpdateState records a non-terminal transition.
func (repo *NavigationSessionRepo) UpdateState(ctx context.Context, sessionID string, state navigation.State, lastErrorCode string, at time.Time) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE navigation_sessions
		SET state = $2, last_error_code = NULLIF($3, ''), updated_at = $4
		WHERE id = $1 AND ended_at IS NULL
	`, sessionID, state.String(), lastErrorCode, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// End closes the row with its terminal state. Ending twice is a no-op.
func (repo *NavigationSessionRepo) End(ctx context.Context, sessionID string, state navigation.State, lastErrorCode string, endedAt time.Time) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		UPDATE navigation_sessions
		SET state = $2, last_error_code = NULLIF($3, ''), updated_at = $4, ended_at = $4
		WHERE id = $1 AND ended_at IS NULL
	`, sessionID, state.String(), lastErrorCode, endedAt)
	return err
}
