package engine

import (
	"context"
	"time"

	"fieldnav/internal/domain/geo"
)

// Config tunes a session. Zero values fall back to the defaults below.
type Config struct {
	RecalcThresholdMeters float64
	ArrivalRadiusMeters   float64
	RouteTimeout          time.Duration
	GeocodeTimeout        time.Duration
	TrafficAware          bool
	MailboxSize           int
	Tracker               TrackerOptions
}

const (
	DefaultRecalcThresholdMeters = 50
	DefaultArrivalRadiusMeters   = 30
	DefaultRouteTimeout          = 15 * time.Second
	DefaultGeocodeTimeout        = 10 * time.Second
	DefaultMailboxSize           = 64
)

func (c Config) withDefaults() Config {
	if c.RecalcThresholdMeters <= 0 {
		c.RecalcThresholdMeters = DefaultRecalcThresholdMeters
	}
	if c.ArrivalRadiusMeters <= 0 {
		c.ArrivalRadiusMeters = DefaultArrivalRadiusMeters
	}
	if c.RouteTimeout <= 0 {
		c.RouteTimeout = DefaultRouteTimeout
	}
	if c.GeocodeTimeout <= 0 {
		c.GeocodeTimeout = DefaultGeocodeTimeout
	}
	if c.MailboxSize <= 0 {
		c.MailboxSize = DefaultMailboxSize
	}
	return c
}

// Destination is where the technician is going. Coord wins over Address when both are set.
// Fallback is used when the address is permanently unknown to the geocoder.
type Destination struct {
	Address  string
	Coord    *geo.Coordinate
	Fallback *geo.Coordinate
}

// OriginStrategy decides where the first route starts.
type OriginStrategy struct {
	fixed *geo.Coordinate
}

// OriginFromPosition waits for the first tracker sample (possibly the fallback).
func OriginFromPosition() OriginStrategy { return OriginStrategy{} }

// OriginFixed starts the first route at c.
func OriginFixed(c geo.Coordinate) OriginStrategy { return OriginStrategy{fixed: &c} }

type StartOptions struct {
	Origin OriginStrategy
}

// Logger is the subset of *logger.Logger the engine writes to.
type Logger interface {
	Debug(ctx context.Context, action, msg string, details any)
	Info(ctx context.Context, action, msg string, details any)
	Error(ctx context.Context, action, msg string, err error, details any)
}

// Metrics receives engine counters. *metrics.Navigation implements it.
type Metrics interface {
	RouteRequested(manual bool)
	RouteCompleted(latency time.Duration, err error)
	StaleDiscarded()
	SampleDropped()
	StateEntered(from, to string)
}

type nopLogger struct{}

func (nopLogger) Debug(context.Context, string, string, any)        {}
func (nopLogger) Info(context.Context, string, string, any)         {}
func (nopLogger) Error(context.Context, string, string, error, any) {}

type nopMetrics struct{}

func (nopMetrics) RouteRequested(bool)                 {}
func (nopMetrics) RouteCompleted(time.Duration, error) {}
func (nopMetrics) StaleDiscarded()                     {}
func (nopMetrics) SampleDropped()                      {}
func (nopMetrics) StateEntered(string, string)         {}
