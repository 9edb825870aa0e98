package navigation

import (
	"errors"
	"strings"
)

// State is the lifecycle state of a navigation session.
type State string

const (
	StateIdle          State = "IDLE"
	StateResolving     State = "RESOLVING"
	StateRouteReady    State = "ROUTE_READY"
	StateNavigating    State = "NAVIGATING"
	StateRecalculating State = "RECALCULATING"
	StateArrived       State = "ARRIVED"
	StateCancelled     State = "CANCELLED"
	StateError         State = "ERROR"
)

var ErrInvalidState = errors.New("invalid navigation state")

// ParseState normalizes (uppercases+trims) and validates a state string.
func ParseState(in string) (State, error) {
	state := State(strings.ToUpper(strings.TrimSpace(in)))
	if state.Valid() {
		return state, nil
	}
	return "", ErrInvalidState
}

// Valid reports whether state is one of the known states.
func (state State) Valid() bool {
	switch state {
	case StateIdle, StateResolving, StateRouteReady, StateNavigating,
		StateRecalculating, StateArrived, StateCancelled, StateError:
		return true
	default:
		return false
	}
}

// String returns the string representation of the State.
func (state State) String() string {
	return string(state)
}

// CanTransitionTo specifies if the state can move to next.
func (state State) CanTransitionTo(next State) bool {
	switch state {
	case StateIdle:
		return next == StateResolving || next == StateCancelled

	case StateResolving:
		return next == StateRouteReady || next == StateCancelled || next == StateError

	case StateRouteReady:
		return next == StateNavigating || next == StateCancelled

	case StateNavigating:
		return next == StateRecalculating || next == StateArrived || next == StateCancelled

	case StateRecalculating:
		return next == StateNavigating || next == StateArrived || next == StateCancelled

	case StateArrived, StateCancelled, StateError:
		return false

	default:
		return false
	}
}

// Terminal reports whether no further transitions are possible.
func (state State) Terminal() bool {
	return state == StateArrived || state == StateCancelled || state == StateError
}

// HasRoute reports whether a route is expected to be visible in this state.
func (state State) HasRoute() bool {
	return state == StateRouteReady || state == StateNavigating || state == StateRecalculating
}
