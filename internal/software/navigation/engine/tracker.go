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

// TrackerOptions configure the position subscription.
type TrackerOptions struct {
	HighAccuracy bool
	MaxAge       time.Duration
	Timeout      time.Duration
	// Fallback is emitted once as a sample when the source is unavailable
	// or no sample arrives within Timeout.
	Fallback *geo.Coordinate
}

// DegradeFunc receives the reason the source is unusable and, the first
// time only, the fallback sample to use in its place.
type DegradeFunc func(err error, fallback *navigation.PositionSample)

// Tracker owns at most one subscription on a PositionSource and forwards
// samples that are strictly newer than the last forwarded one.
type Tracker struct {
	source  ports.PositionSource
	opts    TrackerOptions
	log     Logger
	metrics Metrics
	now     func() time.Time

	mu           sync.Mutex
	active       bool
	epoch        uint64
	sub          ports.Subscription
	firstFix     *time.Timer
	last         navigation.PositionSample
	hasLast      bool
	fallbackSent bool
}

func NewTracker(source ports.PositionSource, opts TrackerOptions, log Logger, metrics Metrics) *Tracker {
	if log == nil {
		log = nopLogger{}
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &Tracker{source: source, opts: opts, log: log, metrics: metrics, now: time.Now}
}

// Start opens the subscription. A failing source or one that stays silent past
// Timeout is not fatal: the tracker degrades to the fallback coordinate and
// reports ErrPermissionDenied.
func (t *Tracker) Start(ctx context.Context, onSample func(navigation.PositionSample), onDegraded DegradeFunc) error {
	t.mu.Lock()
	if t.active {
		t.mu.Unlock()
		return navigation.ErrTrackerActive
	}
	t.active = true
	t.epoch++
	epoch := t.epoch
	t.hasLast = false
	t.fallbackSent = false
	t.mu.Unlock()

	if t.source == nil {
		t.degrade(ctx, epoch, fmt.Errorf("%w: no position source", navigation.ErrPermissionDenied), onDegraded)
		return nil
	}

	sub, err := t.source.Subscribe(ctx, ports.SubscribeOptions{
		HighAccuracy: t.opts.HighAccuracy,
		MaxAge:       t.opts.MaxAge,
		Timeout:      t.opts.Timeout,
	}, func(u ports.PositionUpdate) {
		if u.Err != nil {
			t.degrade(ctx, epoch, u.Err, onDegraded)
			return
		}
		t.forward(ctx, epoch, u.Sample, onSample)
	})
	if err != nil {
		t.degrade(ctx, epoch, err, onDegraded)
		return nil
	}

	t.mu.Lock()
	if !t.active || t.epoch != epoch {
		// stopped while subscribing
		t.mu.Unlock()
		sub.Cancel()
		return nil
	}
	t.sub = sub
	if t.opts.Timeout > 0 && !t.hasLast {
		t.firstFix = time.AfterFunc(t.opts.Timeout, func() { t.expire(ctx, epoch, onDegraded) })
	}
	t.mu.Unlock()
	return nil
}

// Stop cancels the subscription if one is open. Safe to call repeatedly.
func (t *Tracker) Stop() {
	t.mu.Lock()
	if !t.active {
		t.mu.Unlock()
		return
	}
	t.active = false
	t.epoch++
	sub := t.sub
	t.sub = nil
	if t.firstFix != nil {
		t.firstFix.Stop()
		t.firstFix = nil
	}
	t.mu.Unlock()

	if sub != nil {
		sub.Cancel()
	}
}

// Active reports whether Start has been called without a matching Stop.
func (t *Tracker) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

func (t *Tracker) forward(ctx context.Context, epoch uint64, s navigation.PositionSample, onSample func(navigation.PositionSample)) {
	t.mu.Lock()
	if !t.active || t.epoch != epoch {
		t.mu.Unlock()
		return
	}
	if t.hasLast && !s.NewerThan(t.last) {
		t.mu.Unlock()
		t.metrics.SampleDropped()
		t.log.Debug(ctx, "position_sample_dropped", "sample not newer than the last one", map[string]any{
			"sample_ts": s.Timestamp,
			"last_ts":   t.last.Timestamp,
		})
		return
	}
	t.last = s
	t.hasLast = true
	if t.firstFix != nil {
		t.firstFix.Stop()
		t.firstFix = nil
	}
	t.mu.Unlock()

	onSample(s)
}

// expire fires when the source has not produced a sample within Timeout.
func (t *Tracker) expire(ctx context.Context, epoch uint64, onDegraded DegradeFunc) {
	t.mu.Lock()
	silent := t.active && t.epoch == epoch && !t.hasLast
	t.mu.Unlock()
	if !silent {
		return
	}
	t.degrade(ctx, epoch, fmt.Errorf("%w: no position fix within %s", navigation.ErrPermissionDenied, t.opts.Timeout), onDegraded)
}

func (t *Tracker) degrade(ctx context.Context, epoch uint64, cause error, onDegraded DegradeFunc) {
	t.mu.Lock()
	if !t.active || t.epoch != epoch {
		t.mu.Unlock()
		return
	}
	var fallback *navigation.PositionSample
	if t.opts.Fallback != nil && !t.fallbackSent {
		t.fallbackSent = true
		s := navigation.PositionSample{Coord: *t.opts.Fallback, Timestamp: t.now()}
		if !t.hasLast {
			t.last = s
			t.hasLast = true
			fallback = &s
		}
	}
	t.mu.Unlock()

	err := cause
	if !errors.Is(cause, navigation.ErrPermissionDenied) {
		err = fmt.Errorf("%w: %w", navigation.ErrPermissionDenied, cause)
	}
	t.log.Info(ctx, "position_source_degraded", "position source unavailable, using fallback", map[string]any{
		"fallback": t.opts.Fallback != nil,
		"cause":    cause.Error(),
	})

	onDegraded(err, fallback)
}
