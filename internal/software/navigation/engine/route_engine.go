package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"fieldnav/internal/domain/geo"
	"fieldnav/internal/domain/navigation"
	"fieldnav/internal/ports"
)

// RouteResult is delivered once per RequestRoute call.
type RouteResult struct {
	Generation uint64
	Route      *navigation.Route
	Err        error
	Latency    time.Duration
}

// RouteEngine issues directions requests off the caller's goroutine.
// It does not order results; callers compare Generation on delivery.
type RouteEngine struct {
	provider ports.DirectionsProvider
	timeout  time.Duration
	opts     ports.RouteOptions
	log      Logger
	metrics  Metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewRouteEngine(provider ports.DirectionsProvider, timeout time.Duration, opts ports.RouteOptions, log Logger, metrics Metrics) *RouteEngine {
	if log == nil {
		log = nopLogger{}
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if timeout <= 0 {
		timeout = DefaultRouteTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &RouteEngine{
		provider: provider,
		timeout:  timeout,
		opts:     opts,
		log:      log,
		metrics:  metrics,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// RequestRoute asks the provider for a route and hands the outcome to deliver.
func (e *RouteEngine) RequestRoute(origin, destination geo.Coordinate, generation uint64, deliver func(RouteResult)) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		started := time.Now()

		var (
			route navigation.Route
			err   error
		)
		if e.provider == nil {
			err = fmt.Errorf("%w: no directions provider", navigation.ErrRouteFailure)
		} else {
			route, err = callWithTimeout(e.ctx, e.timeout, func(ctx context.Context) (navigation.Route, error) {
				return e.provider.Route(ctx, origin, destination, e.opts)
			})
		}
		res := RouteResult{Generation: generation, Latency: time.Since(started)}

		switch {
		case errors.Is(err, context.DeadlineExceeded):
			res.Err = navigation.ErrRouteTimeout
		case errors.Is(err, context.Canceled):
			res.Err = fmt.Errorf("%w: %w", navigation.ErrRouteFailure, err)
		case err != nil:
			if errors.Is(err, navigation.ErrRouteFailure) {
				res.Err = err
			} else {
				res.Err = fmt.Errorf("%w: %w", navigation.ErrRouteFailure, err)
			}
		default:
			if verr := route.Validate(); verr != nil {
				res.Err = verr
				break
			}
			route.Generation = generation
			res.Route = &route
		}

		e.metrics.RouteCompleted(res.Latency, res.Err)
		if res.Err != nil {
			e.log.Debug(e.ctx, "route_request_failed", "directions provider returned no usable route", map[string]any{
				"generation": generation,
				"error":      res.Err.Error(),
			})
		}
		deliver(res)
	}()
}

// Close aborts in-flight provider calls. Their results are still delivered.
func (e *RouteEngine) Close() {
	e.cancel()
}

// Wait blocks until every RequestRoute goroutine has delivered.
func (e *RouteEngine) Wait() {
	e.wg.Wait()
}

// ShouldRecalculate decides whether a new origin warrants a fresh route.
func ShouldRecalculate(lastOrigin *geo.Coordinate, newOrigin geo.Coordinate, thresholdMeters float64, manual bool) bool {
	if manual || lastOrigin == nil {
		return true
	}
	return geo.DistanceMeters(*lastOrigin, newOrigin) >= thresholdMeters
}
