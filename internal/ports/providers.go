package ports

import (
	"context"
	"time"

	"fieldnav/internal/domain/geo"
	"fieldnav/internal/domain/navigation"
)

// PositionUpdate is one delivery from a position source. Err is set when the
// source denied permission or failed; Sample is meaningless in that case.
type PositionUpdate struct {
	Sample navigation.PositionSample
	Err    error
}

// SubscribeOptions are hints; a source is free to ignore them. The tracker
// enforces Timeout on the first sample itself.
type SubscribeOptions struct {
	HighAccuracy bool
	MaxAge       time.Duration
	Timeout      time.Duration
}

// Subscription is an open position stream. Cancel may be called more than once.
type Subscription interface {
	Cancel()
}

// PositionSource delivers continuous position updates until cancelled.
type PositionSource interface {
	Subscribe(ctx context.Context, opts SubscribeOptions, fn func(PositionUpdate)) (Subscription, error)
}

// GeocodingProvider resolves a free-form address.
// It returns navigation.ErrAddressNotFound when the address has no match.
type GeocodingProvider interface {
	Geocode(ctx context.Context, address string) (geo.Coordinate, error)
}

type RouteOptions struct {
	TrafficAware bool
}

// DirectionsProvider returns the primary route between two points.
type DirectionsProvider interface {
	Route(ctx context.Context, origin, destination geo.Coordinate, opts RouteOptions) (navigation.Route, error)
}

// SnapshotSink receives every published snapshot. Render must not block.
type SnapshotSink interface {
	Render(navigation.Snapshot)
}

// SnapshotSinkFunc adapts a function to SnapshotSink.
type SnapshotSinkFunc func(navigation.Snapshot)

func (f SnapshotSinkFunc) Render(s navigation.Snapshot) { f(s) }
