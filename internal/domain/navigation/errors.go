package navigation

import (
	"errors"
	"fmt"
)

var (
	// ErrPermissionDenied is non-fatal: the tracker degrades to a fallback coordinate.
	ErrPermissionDenied = errors.New("position source unavailable")

	ErrGeocodeFailure  = errors.New("geocoding failed")
	ErrAddressNotFound = fmt.Errorf("%w: address not found", ErrGeocodeFailure)

	ErrRouteFailure = errors.New("route request failed")
	ErrRouteTimeout = fmt.Errorf("%w: timed out", ErrRouteFailure)
	ErrEmptyRoute   = fmt.Errorf("%w: route has no steps", ErrRouteFailure)

	// ErrStaleResponse never reaches the user; it only shows up in logs and metrics.
	ErrStaleResponse = errors.New("stale route response discarded")

	ErrInvalidTransition = errors.New("invalid navigation state transition")
	ErrSessionClosed     = errors.New("navigation session closed")
	ErrAlreadyStarted    = errors.New("navigation session already started")
	ErrNotStarted        = errors.New("navigation session not started")
	ErrTrackerActive     = errors.New("position tracker already has an open subscription")
	ErrNoDestination     = errors.New("destination needs an address or a coordinate")
	ErrNoSession         = errors.New("no navigation session for technician")
	ErrInvalidInput      = errors.New("invalid navigation request")
)

// IsInternal reports whether err is bookkeeping only and must not be shown to a user.
func IsInternal(err error) bool {
	return errors.Is(err, ErrStaleResponse)
}

// Code maps an error to a short machine-readable code for clients.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPermissionDenied):
		return "PERMISSION_DENIED"
	case errors.Is(err, ErrAddressNotFound):
		return "ADDRESS_NOT_FOUND"
	case errors.Is(err, ErrGeocodeFailure):
		return "GEOCODE_FAILURE"
	case errors.Is(err, ErrRouteTimeout):
		return "ROUTE_TIMEOUT"
	case errors.Is(err, ErrRouteFailure):
		return "ROUTE_FAILURE"
	case errors.Is(err, ErrSessionClosed):
		return "SESSION_CLOSED"
	case errors.Is(err, ErrInvalidTransition):
		return "INVALID_TRANSITION"
	case errors.Is(err, ErrNotStarted):
		return "NOT_STARTED"
	case errors.Is(err, ErrAlreadyStarted):
		return "ALREADY_STARTED"
	case errors.Is(err, ErrNoDestination):
		return "NO_DESTINATION"
	case errors.Is(err, ErrNoSession):
		return "NO_SESSION"
	case errors.Is(err, ErrInvalidInput):
		return "INVALID_INPUT"
	default:
		return "INTERNAL"
	}
}
