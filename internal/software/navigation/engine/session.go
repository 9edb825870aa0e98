package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"fieldnav/internal/domain/geo"
	"fieldnav/internal/domain/navigation"
	"fieldnav/internal/ports"
)

// Deps are the collaborators a session talks to.
type Deps struct {
	Positions  ports.PositionSource
	Geocoder   ports.GeocodingProvider
	Directions ports.DirectionsProvider
	Logger     Logger
	Metrics    Metrics
	Now        func() time.Time
}

// Session is a single navigation run. All state lives on one handler
// goroutine fed by the mailbox; readers only ever see published snapshots.
type Session struct {
	id       string
	cfg      Config
	log      Logger
	metrics  Metrics
	now      func() time.Time
	geocoder ports.GeocodingProvider
	tracker  *Tracker
	routes   *RouteEngine
	sinks    []ports.SnapshotSink

	ctx        context.Context
	cancel     context.CancelFunc
	workCtx    context.Context
	workCancel context.CancelFunc
	mailbox    chan event
	done       chan struct{}
	snap       atomic.Pointer[navigation.Snapshot]

	conditionPending atomic.Bool

	// owned by the handler goroutine
	state           navigation.State
	destination     Destination
	origin          *geo.Coordinate
	dest            *geo.Coordinate
	route           *navigation.Route
	cursor          StepCursor
	lastRouteOrigin *geo.Coordinate
	pendingGen      uint64
	awaitingRoute   bool
	lookupSeq       uint64
	lastErr         error
	lastPos         *navigation.PositionSample
	degraded        bool
}

// NewSession creates an idle session and starts its handler goroutine.
// ctx only supplies log correlation values; it does not bound the session.
func NewSession(ctx context.Context, id string, cfg Config, deps Deps, sinks ...ports.SnapshotSink) *Session {
	cfg = cfg.withDefaults()
	if deps.Logger == nil {
		deps.Logger = nopLogger{}
	}
	if deps.Metrics == nil {
		deps.Metrics = nopMetrics{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if ctx == nil {
		ctx = context.Background()
	}

	s := &Session{
		id:       id,
		cfg:      cfg,
		log:      deps.Logger,
		metrics:  deps.Metrics,
		now:      deps.Now,
		geocoder: deps.Geocoder,
		tracker:  NewTracker(deps.Positions, cfg.Tracker, deps.Logger, deps.Metrics),
		routes: NewRouteEngine(deps.Directions, cfg.RouteTimeout,
			ports.RouteOptions{TrafficAware: cfg.TrafficAware}, deps.Logger, deps.Metrics),
		sinks:   sinks,
		mailbox: make(chan event, cfg.MailboxSize),
		done:    make(chan struct{}),
		state:   navigation.StateIdle,
	}
	s.tracker.now = deps.Now
	s.ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	s.workCtx, s.workCancel = context.WithCancel(s.ctx)
	s.publish()

	go s.run()
	return s
}

func (s *Session) ID() string { return s.id }

// Done is closed once the handler goroutine has exited after Destroy.
func (s *Session) Done() <-chan struct{} { return s.done }

// Snapshot returns the last published view. It never blocks.
func (s *Session) Snapshot() navigation.Snapshot {
	return *s.snap.Load()
}

// Start moves an idle session to Resolving.
func (s *Session) Start(ctx context.Context, dest Destination, opts StartOptions) error {
	reply := make(chan error, 1)
	return s.call(ctx, startCmd{ctx: ctx, dest: dest, opts: opts, reply: reply}, reply)
}

// Cancel stops tracking and moves to Cancelled. Outstanding responses are discarded.
func (s *Session) Cancel(ctx context.Context) error {
	reply := make(chan error, 1)
	if err := s.call(ctx, cancelCmd{ctx: ctx, reply: reply}, reply); err != nil && !errors.Is(err, navigation.ErrSessionClosed) {
		return err
	}
	return nil
}

// Destroy cancels the session and releases its handler goroutine.
func (s *Session) Destroy(ctx context.Context) error {
	reply := make(chan error, 1)
	if err := s.call(ctx, cancelCmd{ctx: ctx, destroy: true, reply: reply}, reply); err != nil && !errors.Is(err, navigation.ErrSessionClosed) {
		return err
	}
	return nil
}

// ManualRecalculate requests a fresh route from the current position.
// While resolving it retries the pending lookup or route request.
func (s *Session) ManualRecalculate(ctx context.Context) error {
	reply := make(chan error, 1)
	return s.call(ctx, recalcCmd{ctx: ctx, reply: reply}, reply)
}

func (s *Session) NextStep(ctx context.Context) error {
	reply := make(chan error, 1)
	return s.call(ctx, stepCmd{ctx: ctx, delta: 1, reply: reply}, reply)
}

func (s *Session) PreviousStep(ctx context.Context) error {
	reply := make(chan error, 1)
	return s.call(ctx, stepCmd{ctx: ctx, delta: -1, reply: reply}, reply)
}

// ----- mailbox plumbing -----

func (s *Session) call(ctx context.Context, ev event, reply chan error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case s.mailbox <- ev:
	case <-s.done:
		return navigation.ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-reply:
		return err
	case <-s.done:
		select {
		case err := <-reply:
			return err
		default:
			return navigation.ErrSessionClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post blocks until the handler takes ev or the session is gone.
func (s *Session) post(ev event) {
	select {
	case s.mailbox <- ev:
	case <-s.done:
	}
}

// postSample never blocks. A full mailbox drops the sample; later samples
// supersede it and the handler already tolerates gaps.
func (s *Session) postSample(ev sampleEvt) {
	select {
	case s.mailbox <- ev:
	case <-s.done:
	default:
		s.metrics.SampleDropped()
		s.log.Debug(s.ctx, "position_sample_dropped", "mailbox full", map[string]any{
			"sample_ts": ev.sample.Timestamp,
		})
	}
}

// postCondition never blocks either; tracker callbacks may run on the handler
// goroutine. When the mailbox is full one deferred delivery is kept in flight
// and repeats without a fallback are dropped.
func (s *Session) postCondition(ev conditionEvt) {
	select {
	case s.mailbox <- ev:
		return
	case <-s.done:
		return
	default:
	}
	if !s.conditionPending.CompareAndSwap(false, true) && ev.fallback == nil {
		return
	}
	go func() {
		defer s.conditionPending.Store(false)
		s.post(ev)
	}()
}

func (s *Session) run() {
	defer close(s.done)
	for {
		ev := <-s.mailbox
		reply, stop, err := s.dispatch(ev)
		s.publish()
		if reply != nil {
			reply <- err
		}
		if stop {
			return
		}
	}
}

func (s *Session) dispatch(ev event) (reply chan error, stop bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("navigation handler panic: %v", r)
			s.log.Error(s.ctx, "navigation_handler_panic", "recovered from panic in session handler", err, nil)
		}
	}()

	switch e := ev.(type) {
	case startCmd:
		reply = e.reply
		err = s.handleStart(e)
	case cancelCmd:
		reply, stop = e.reply, e.destroy
		s.handleCancel(e.ctx, e.destroy)
	case recalcCmd:
		reply = e.reply
		err = s.handleRecalculate(e.ctx)
	case stepCmd:
		reply = e.reply
		err = s.handleStep(e.delta)
	case sampleEvt:
		s.handleSample(e.sample)
	case conditionEvt:
		s.handleCondition(e.err, e.fallback)
	case geocodeEvt:
		s.handleGeocode(e.res)
	case routeEvt:
		s.handleRoute(e.res)
	}
	return reply, stop, err
}

// ----- handlers -----

func (s *Session) handleStart(c startCmd) error {
	ctx := orDefault(c.ctx, s.ctx)
	if s.state.Terminal() {
		return navigation.ErrSessionClosed
	}
	if s.state != navigation.StateIdle {
		return navigation.ErrAlreadyStarted
	}

	d := c.dest
	d.Address = strings.TrimSpace(d.Address)
	if d.Coord == nil && d.Address == "" {
		return navigation.ErrNoDestination
	}
	for _, p := range []*geo.Coordinate{d.Coord, d.Fallback, c.opts.Origin.fixed} {
		if p == nil {
			continue
		}
		if err := p.Validate(); err != nil {
			return err
		}
	}

	s.destination = d
	if !s.transition(ctx, navigation.StateResolving) {
		return navigation.ErrInvalidTransition
	}
	if c.opts.Origin.fixed != nil {
		o := *c.opts.Origin.fixed
		s.origin = &o
	}

	if err := s.tracker.Start(s.ctx, s.onSample, s.onDegraded); err != nil {
		s.log.Error(ctx, "tracker_start_failed", "could not open position subscription", err, nil)
	}

	if d.Coord != nil {
		dc := *d.Coord
		s.dest = &dc
	} else {
		s.lookup(ctx)
	}
	s.requestInitialRoute(ctx)
	return nil
}

func (s *Session) handleCancel(ctx context.Context, destroy bool) {
	ctx = orDefault(ctx, s.ctx)
	if !s.state.Terminal() {
		s.tracker.Stop()
		s.pendingGen++
		s.awaitingRoute = false
		s.lookupSeq++
		s.transition(ctx, navigation.StateCancelled)
		s.shutdown()
	}
	if destroy {
		s.shutdown()
		s.cancel()
		s.log.Info(ctx, "navigation_session_destroyed", "navigation session released", nil)
	}
}

func (s *Session) handleRecalculate(ctx context.Context) error {
	ctx = orDefault(ctx, s.ctx)
	switch {
	case s.state == navigation.StateIdle:
		return navigation.ErrNotStarted
	case s.state.Terminal():
		return navigation.ErrSessionClosed
	case s.state == navigation.StateResolving:
		if s.dest == nil {
			s.lookup(ctx)
			return nil
		}
		if s.origin == nil {
			// still waiting for the first position
			return nil
		}
		s.issueRoute(ctx, *s.origin, true)
		return nil
	default:
		from := s.currentPosition()
		if from == nil {
			return navigation.ErrNotStarted
		}
		if ShouldRecalculate(s.lastRouteOrigin, *from, s.cfg.RecalcThresholdMeters, true) {
			s.recalculate(ctx, *from, true)
		}
		return nil
	}
}

func (s *Session) handleStep(delta int) error {
	switch {
	case s.state == navigation.StateIdle:
		return navigation.ErrNotStarted
	case s.state.Terminal():
		return navigation.ErrSessionClosed
	}
	if delta > 0 {
		s.cursor.Next()
	} else {
		s.cursor.Previous()
	}
	return nil
}

func (s *Session) handleSample(sample navigation.PositionSample) {
	if s.state == navigation.StateIdle || s.state.Terminal() {
		return
	}
	if s.lastPos != nil && !sample.NewerThan(*s.lastPos) {
		s.metrics.SampleDropped()
		s.log.Debug(s.ctx, "position_sample_dropped", "sample arrived out of order", map[string]any{
			"sample_ts": sample.Timestamp,
			"last_ts":   s.lastPos.Timestamp,
		})
		return
	}
	sm := sample
	s.lastPos = &sm

	switch s.state {
	case navigation.StateResolving:
		if s.origin == nil {
			o := sample.Coord
			s.origin = &o
			s.requestInitialRoute(s.ctx)
		}
	case navigation.StateNavigating, navigation.StateRecalculating:
		if s.arrivedAt(sample.Coord) {
			s.arrive(s.ctx)
			return
		}
		if ShouldRecalculate(s.lastRouteOrigin, sample.Coord, s.cfg.RecalcThresholdMeters, false) {
			s.recalculate(s.ctx, sample.Coord, false)
		}
	}
}

func (s *Session) handleCondition(err error, fallback *navigation.PositionSample) {
	if fallback != nil {
		s.handleSample(*fallback)
	}
	if err == nil || s.state == navigation.StateIdle || s.state.Terminal() {
		return
	}
	s.degraded = true
	s.lastErr = err
	s.log.Info(s.ctx, "navigation_degraded", "continuing without live position", map[string]any{
		"error": err.Error(),
	})
}

func (s *Session) handleGeocode(res geocodeResult) {
	if res.seq != s.lookupSeq || s.state != navigation.StateResolving {
		s.log.Debug(s.ctx, "stale_geocode_discarded", "geocode result superseded", map[string]any{"seq": res.seq})
		return
	}

	if res.err != nil {
		s.lastErr = res.err
		if !errors.Is(res.err, navigation.ErrAddressNotFound) {
			s.log.Error(s.ctx, "geocode_failed", "destination lookup failed, waiting for retry", res.err, map[string]any{
				"address": s.destination.Address,
			})
			return
		}
		if s.destination.Fallback == nil {
			s.fail(s.ctx, res.err)
			return
		}
		fb := *s.destination.Fallback
		s.dest = &fb
		s.log.Info(s.ctx, "geocode_fallback_used", "address not found, navigating to fallback destination", map[string]any{
			"address":  s.destination.Address,
			"fallback": fb.String(),
		})
		s.requestInitialRoute(s.ctx)
		return
	}

	c := res.coord
	s.dest = &c
	s.lastErr = nil
	s.requestInitialRoute(s.ctx)
}

func (s *Session) handleRoute(res RouteResult) {
	if res.Generation != s.pendingGen || !s.awaitingRoute {
		s.metrics.StaleDiscarded()
		s.log.Debug(s.ctx, "stale_route_discarded", navigation.ErrStaleResponse.Error(), map[string]any{
			"generation": res.Generation,
			"pending":    s.pendingGen,
		})
		return
	}
	s.awaitingRoute = false

	switch s.state {
	case navigation.StateResolving:
		if res.Err != nil {
			s.fail(s.ctx, res.Err)
			return
		}
		s.accept(res.Route)
		s.transition(s.ctx, navigation.StateRouteReady)
		s.transition(s.ctx, navigation.StateNavigating)
		if s.lastPos != nil && s.arrivedAt(s.lastPos.Coord) {
			s.arrive(s.ctx)
		}
	case navigation.StateRecalculating:
		if res.Err != nil {
			s.lastErr = res.Err
			s.log.Error(s.ctx, "recalculation_failed", "keeping previous route", res.Err, map[string]any{
				"generation": res.Generation,
			})
		} else {
			s.accept(res.Route)
		}
		s.transition(s.ctx, navigation.StateNavigating)
	}
}

// ----- helpers -----

func (s *Session) onSample(sample navigation.PositionSample) { s.postSample(sampleEvt{sample}) }

func (s *Session) onDegraded(err error, fallback *navigation.PositionSample) {
	s.postCondition(conditionEvt{err: err, fallback: fallback})
}

func (s *Session) lookup(ctx context.Context) {
	s.lookupSeq++
	seq := s.lookupSeq
	addr := s.destination.Address
	s.log.Info(ctx, "geocode_requested", "resolving destination address", map[string]any{
		"address": addr,
		"seq":     seq,
	})

	go func() {
		coord, err := resolve(s.workCtx, s.geocoder, addr, s.cfg.GeocodeTimeout)
		s.post(geocodeEvt{geocodeResult{seq: seq, coord: coord, err: err}})
	}()
}

func (s *Session) requestInitialRoute(ctx context.Context) {
	if s.state != navigation.StateResolving || s.awaitingRoute || s.origin == nil || s.dest == nil {
		return
	}
	s.issueRoute(ctx, *s.origin, false)
}

func (s *Session) recalculate(ctx context.Context, from geo.Coordinate, manual bool) {
	if s.state == navigation.StateNavigating && !s.transition(ctx, navigation.StateRecalculating) {
		return
	}
	s.issueRoute(ctx, from, manual)
}

// issueRoute allocates a new generation, superseding any request in flight.
func (s *Session) issueRoute(ctx context.Context, from geo.Coordinate, manual bool) {
	s.pendingGen++
	gen := s.pendingGen
	o, lo := from, from
	s.origin = &o
	s.lastRouteOrigin = &lo
	s.awaitingRoute = true

	s.metrics.RouteRequested(manual)
	s.log.Info(ctx, "route_requested", "requesting route", map[string]any{
		"generation": gen,
		"origin":     from.String(),
		"dest":       s.dest.String(),
		"manual":     manual,
	})
	s.routes.RequestRoute(from, *s.dest, gen, func(r RouteResult) {
		s.post(routeEvt{r})
	})
}

func (s *Session) accept(r *navigation.Route) {
	s.route = r
	s.cursor.ResetTo(r)
	s.lastErr = nil
}

func (s *Session) arrivedAt(c geo.Coordinate) bool {
	return s.dest != nil && geo.DistanceMeters(c, *s.dest) <= s.cfg.ArrivalRadiusMeters
}

func (s *Session) arrive(ctx context.Context) {
	if s.transition(ctx, navigation.StateArrived) {
		s.awaitingRoute = false
		s.shutdown()
	}
}

func (s *Session) fail(ctx context.Context, err error) {
	s.lastErr = err
	s.awaitingRoute = false
	s.log.Error(ctx, "navigation_failed", "navigation cannot continue", err, nil)
	if s.transition(ctx, navigation.StateError) {
		s.shutdown()
	}
}

// shutdown releases everything that talks to the outside. Idempotent.
func (s *Session) shutdown() {
	s.tracker.Stop()
	s.routes.Close()
	s.workCancel()
}

func (s *Session) transition(ctx context.Context, next navigation.State) bool {
	prev := s.state
	if !prev.CanTransitionTo(next) {
		s.log.Error(ctx, "invalid_transition", "rejected state change", navigation.ErrInvalidTransition, map[string]any{
			"from": prev.String(),
			"to":   next.String(),
		})
		return false
	}
	s.state = next
	s.metrics.StateEntered(prev.String(), next.String())
	s.log.Info(ctx, "navigation_state_changed", "navigation state changed", map[string]any{
		"from":       prev.String(),
		"to":         next.String(),
		"generation": s.pendingGen,
	})
	return true
}

func (s *Session) currentPosition() *geo.Coordinate {
	if s.lastPos != nil {
		c := s.lastPos.Coord
		return &c
	}
	if s.origin != nil {
		c := *s.origin
		return &c
	}
	return nil
}

func (s *Session) publish() {
	snap := navigation.Snapshot{
		SessionID:         s.id,
		State:             s.state,
		Origin:            s.origin,
		Destination:       s.dest,
		CurrentRoute:      s.route,
		StepIndex:         s.cursor.Index(),
		LastError:         s.lastErr,
		LastPosition:      s.lastPos,
		Degraded:          s.degraded,
		PendingGeneration: s.pendingGen,
		TakenAt:           s.now(),
	}.WithProgress()
	s.snap.Store(&snap)

	for _, sink := range s.sinks {
		s.render(sink, snap)
	}
}

func (s *Session) render(sink ports.SnapshotSink, snap navigation.Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error(s.ctx, "snapshot_sink_panic", "snapshot sink panicked", fmt.Errorf("%v", r), nil)
		}
	}()
	sink.Render(snap)
}

func orDefault(ctx, def context.Context) context.Context {
	if ctx == nil {
		return def
	}
	return ctx
}
