package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fieldnav/internal/domain/geo"
	"fieldnav/internal/domain/navigation"
	"fieldnav/internal/ports"
)

// geocodeResult carries the lookup sequence so superseded lookups can be ignored.
type geocodeResult struct {
	seq   uint64
	coord geo.Coordinate
	err   error
}

// resolve geocodes address with a timeout and classifies the error.
// Anything other than ErrAddressNotFound is treated as transient.
func resolve(ctx context.Context, provider ports.GeocodingProvider, address string, timeout time.Duration) (geo.Coordinate, error) {
	if provider == nil {
		return geo.Coordinate{}, fmt.Errorf("%w: no geocoding provider", navigation.ErrGeocodeFailure)
	}
	coord, err := callWithTimeout(ctx, timeout, func(ctx context.Context) (geo.Coordinate, error) {
		return provider.Geocode(ctx, address)
	})
	switch {
	case err == nil:
		if verr := coord.Validate(); verr != nil {
			return geo.Coordinate{}, fmt.Errorf("%w: %w", navigation.ErrGeocodeFailure, verr)
		}
		return coord, nil
	case errors.Is(err, navigation.ErrGeocodeFailure):
		return geo.Coordinate{}, err
	default:
		return geo.Coordinate{}, fmt.Errorf("%w: %w", navigation.ErrGeocodeFailure, err)
	}
}
