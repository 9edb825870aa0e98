package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"fieldnav/internal/domain/geo"
	"fieldnav/internal/domain/navigation"
	"fieldnav/internal/ports"
)

var (
	jobOrigin = geo.Coordinate{Lat: 33.749, Lng: -84.390}
	jobSite   = geo.Coordinate{Lat: 33.800, Lng: -84.350}
)

func eventually(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func threeSteps(tag string) navigation.Route {
	mid1 := geo.Coordinate{Lat: 33.760, Lng: -84.380}
	mid2 := geo.Coordinate{Lat: 33.780, Lng: -84.365}
	return navigation.Route{
		Steps: []navigation.RouteStep{
			{InstructionText: tag + ": head north", DistanceMeters: 1500, DurationSeconds: 120, StartCoord: jobOrigin, EndCoord: mid1},
			{InstructionText: tag + ": turn right", DistanceMeters: 2500, DurationSeconds: 200, StartCoord: mid1, EndCoord: mid2},
			{InstructionText: tag + ": arrive", DistanceMeters: 2600, DurationSeconds: 210, StartCoord: mid2, EndCoord: jobSite},
		},
		TotalDistanceMeters:  6600,
		TotalDurationSeconds: 530,
	}
}

// ----- position source -----

type fakePositionSource struct {
	mu           sync.Mutex
	fn           func(ports.PositionUpdate)
	subscribeErr error
	subscribes   int
	cancels      int
}

type fakeSubscription struct {
	src  *fakePositionSource
	once sync.Once
}

func (s *fakeSubscription) Cancel() {
	s.once.Do(func() {
		s.src.mu.Lock()
		s.src.cancels++
		s.src.fn = nil
		s.src.mu.Unlock()
	})
}

func (f *fakePositionSource) Subscribe(_ context.Context, _ ports.SubscribeOptions, fn func(ports.PositionUpdate)) (ports.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribes++
	if f.subscribeErr != nil {
		return nil, f.subscribeErr
	}
	f.fn = fn
	return &fakeSubscription{src: f}, nil
}

func (f *fakePositionSource) emit(c geo.Coordinate, ts time.Time) {
	f.send(ports.PositionUpdate{Sample: navigation.PositionSample{Coord: c, Timestamp: ts, AccuracyMeters: 5}})
}

func (f *fakePositionSource) send(u ports.PositionUpdate) {
	f.mu.Lock()
	fn := f.fn
	f.mu.Unlock()
	if fn != nil {
		fn(u)
	}
}

func (f *fakePositionSource) counts() (subscribes, cancels int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subscribes, f.cancels
}

func (f *fakePositionSource) open() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fn != nil
}

// ----- directions -----

type routeResponse struct {
	route navigation.Route
	err   error
}

type routeCall struct {
	origin, destination geo.Coordinate
	respond             chan routeResponse
}

// fakeDirections answers immediately with auto when set, otherwise each call
// blocks until the test responds to it.
type fakeDirections struct {
	mu    sync.Mutex
	calls []*routeCall
	auto  *routeResponse
}

func (f *fakeDirections) Route(ctx context.Context, origin, destination geo.Coordinate, _ ports.RouteOptions) (navigation.Route, error) {
	call := &routeCall{origin: origin, destination: destination, respond: make(chan routeResponse, 1)}
	f.mu.Lock()
	f.calls = append(f.calls, call)
	auto := f.auto
	f.mu.Unlock()

	if auto != nil {
		return auto.route, auto.err
	}
	select {
	case r := <-call.respond:
		return r.route, r.err
	case <-ctx.Done():
		return navigation.Route{}, ctx.Err()
	}
}

func (f *fakeDirections) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeDirections) call(i int) *routeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[i]
}

type panickingDirections struct{}

func (panickingDirections) Route(context.Context, geo.Coordinate, geo.Coordinate, ports.RouteOptions) (navigation.Route, error) {
	var legs map[string]int
	legs["primary"]++
	return navigation.Route{}, nil
}

// ----- geocoder -----

type fakeGeocoder struct {
	mu      sync.Mutex
	results []routeLookup
	calls   int
}

type routeLookup struct {
	coord geo.Coordinate
	err   error
}

func (f *fakeGeocoder) Geocode(_ context.Context, _ string) (geo.Coordinate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	if i >= len(f.results) {
		i = len(f.results) - 1
	}
	return f.results[i].coord, f.results[i].err
}

func (f *fakeGeocoder) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type panickingGeocoder struct{}

func (panickingGeocoder) Geocode(context.Context, string) (geo.Coordinate, error) {
	panic("geocoder index out of range")
}

// ----- metrics -----

type countingMetrics struct {
	requested atomic.Int64
	manual    atomic.Int64
	failed    atomic.Int64
	stale     atomic.Int64
	dropped   atomic.Int64
}

func (m *countingMetrics) RouteRequested(manual bool) {
	m.requested.Add(1)
	if manual {
		m.manual.Add(1)
	}
}

func (m *countingMetrics) RouteCompleted(_ time.Duration, err error) {
	if err != nil {
		m.failed.Add(1)
	}
}

func (m *countingMetrics) StaleDiscarded()             { m.stale.Add(1) }
func (m *countingMetrics) SampleDropped()              { m.dropped.Add(1) }
func (m *countingMetrics) StateEntered(string, string) {}

// ----- harness -----

type harness struct {
	t          *testing.T
	source     *fakePositionSource
	directions *fakeDirections
	geocoder   *fakeGeocoder
	metrics    *countingMetrics
	session    *Session
}

func newHarness(t *testing.T, cfg Config, sinks ...ports.SnapshotSink) *harness {
	t.Helper()
	h := &harness{
		t:          t,
		source:     &fakePositionSource{},
		directions: &fakeDirections{},
		geocoder:   &fakeGeocoder{results: []routeLookup{{coord: jobSite}}},
		metrics:    &countingMetrics{},
	}
	h.session = NewSession(context.Background(), "sess-1", cfg, Deps{
		Positions:  h.source,
		Geocoder:   h.geocoder,
		Directions: h.directions,
		Metrics:    h.metrics,
	}, sinks...)
	t.Cleanup(func() { _ = h.session.Destroy(context.Background()) })
	return h
}

func (h *harness) state() navigation.State { return h.session.Snapshot().State }

func (h *harness) waitState(want navigation.State) {
	h.t.Helper()
	eventually(h.t, func() bool { return h.state() == want }, "state "+want.String())
}

func (h *harness) waitCalls(n int) {
	h.t.Helper()
	eventually(h.t, func() bool { return h.directions.count() >= n }, "route request")
}

// navigate starts at jobOrigin towards jobSite and answers the first request with route.
func (h *harness) navigate(route navigation.Route) {
	h.t.Helper()
	if err := h.session.Start(context.Background(), Destination{Coord: &jobSite}, StartOptions{Origin: OriginFixed(jobOrigin)}); err != nil {
		h.t.Fatalf("Start: %v", err)
	}
	h.waitCalls(1)
	h.directions.call(0).respond <- routeResponse{route: route}
	h.waitState(navigation.StateNavigating)
}

func updateErr(msg string) ports.PositionUpdate {
	return ports.PositionUpdate{Err: errors.New(msg)}
}
