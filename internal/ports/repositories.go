package ports

import (
	"context"
	"time"

	"fieldnav/internal/domain/geo"
	"fieldnav/internal/domain/navigation"
	"fieldnav/internal/domain/user"
)

// UnitOfWork interface is used to manage transactions across multiple repository operations.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// UserRepository defines the methods for reading portal users.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*user.User, error)
}

// NavigationSessionRepository keeps the lifecycle of navigation sessions.
type NavigationSessionRepository interface {
	Start(ctx context.Context, rec *navigation.SessionRecord) error
	UpdateState(ctx context.Context, sessionID string, state navigation.State, lastErrorCode string, at time.Time) error
	End(ctx context.Context, sessionID string, state navigation.State, lastErrorCode string, endedAt time.Time) error
}

// FleetRepository is the read side of navigation_sessions used by dispatch screens.
type FleetRepository interface {
	CountOpenByState(ctx context.Context) (map[navigation.State]int, error)
	CountStartedBetween(ctx context.Context, from, to time.Time) (int, error)
	CountEndedByStateBetween(ctx context.Context, from, to time.Time) (map[navigation.State]int, error)
	ListOpen(ctx context.Context, offset, limit int) ([]navigation.SessionRecord, error)
	GetOpenForTechnician(ctx context.Context, technicianID string) (*navigation.SessionRecord, error)
}

// LocationHistoryRepository defines the methods for archiving location history data.
type LocationHistoryRepository interface {
	Archive(ctx context.Context, record *geo.LocationHistory) error
}
