package engine

import (
	"context"

	"fieldnav/internal/domain/navigation"
)

// event is anything the session handler consumes from its mailbox.
type event interface{ isEvent() }

type (
	startCmd struct {
		ctx   context.Context
		dest  Destination
		opts  StartOptions
		reply chan error
	}
	cancelCmd struct {
		ctx     context.Context
		destroy bool
		reply   chan error
	}
	recalcCmd struct {
		ctx   context.Context
		reply chan error
	}
	stepCmd struct {
		ctx   context.Context
		delta int
		reply chan error
	}

	sampleEvt    struct{ sample navigation.PositionSample }
	conditionEvt struct {
		err      error
		fallback *navigation.PositionSample
	}
	geocodeEvt struct{ res geocodeResult }
	routeEvt   struct{ res RouteResult }
)

func (startCmd) isEvent()     {}
func (cancelCmd) isEvent()    {}
func (recalcCmd) isEvent()    {}
func (stepCmd) isEvent()      {}
func (sampleEvt) isEvent()    {}
func (conditionEvt) isEvent() {}
func (geocodeEvt) isEvent()   {}
func (routeEvt) isEvent()     {}
