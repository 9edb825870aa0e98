package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"fieldnav/internal/domain/geo"
	"fieldnav/internal/domain/navigation"
	"fieldnav/internal/general/contracts"
	"fieldnav/internal/ports"
)

const outboundTimeout = 5 * time.Second

// forwarder is the session sink that carries snapshots out of the process:
// status and progress to RabbitMQ, lifecycle and positions to Postgres,
// views to subscribers. Render only queues; a goroutine does the I/O.
// State transitions are queued individually, progress is coalesced to the latest.
type forwarder struct {
	service     *navigationService
	tech        *technician
	sessionID   string
	jobID       string
	destAddress string

	mu          sync.Mutex
	transitions []navigation.Snapshot
	latest      *navigation.Snapshot
	queuedState navigation.State
	notify      chan struct{}
	quit        chan struct{}
	done        chan struct{}
	closeOnce   sync.Once

	// onEnded runs once on the run goroutine after a terminal snapshot has
	// been forwarded. It must not wait for run to return.
	onEnded func(ctx context.Context)

	// owned by run
	ended        bool
	prevState    navigation.State
	archivedTS   time.Time
	archivedWall time.Time
}

func newForwarder(service *navigationService, tech *technician, sessionID, jobID, destAddress string) *forwarder {
	return &forwarder{
		service:     service,
		tech:        tech,
		sessionID:   sessionID,
		jobID:       jobID,
		destAddress: destAddress,
		notify:      make(chan struct{}, 1),
		quit:        make(chan struct{}),
		done:        make(chan struct{}),
		prevState:   navigation.StateIdle,
	}
}

var _ ports.SnapshotSink = (*forwarder)(nil)

func (f *forwarder) Render(s navigation.Snapshot) {
	f.mu.Lock()
	if s.State != f.queuedState {
		f.transitions = append(f.transitions, s)
		f.queuedState = s.State
	}
	f.latest = &s
	f.mu.Unlock()

	select {
	case f.notify <- struct{}{}:
	default:
	}
}

func (f *forwarder) run() {
	defer close(f.done)
	ctx := f.service.logger.WithSessionID(context.Background(), f.sessionID)
	ctx = f.service.logger.WithTechnicianID(ctx, f.tech.id)
	if f.jobID != "" {
		ctx = f.service.logger.WithJobID(ctx, f.jobID)
	}

	for {
		select {
		case <-f.notify:
			f.drain(ctx)
		case <-f.quit:
			f.drain(ctx)
			return
		}
	}
}

// close flushes what is queued and stops the goroutine.
func (f *forwarder) close() {
	f.closeOnce.Do(func() { close(f.quit) })
	<-f.done
}

func (f *forwarder) drain(ctx context.Context) {
	f.mu.Lock()
	transitions := f.transitions
	f.transitions = nil
	latest := f.latest
	f.latest = nil
	f.mu.Unlock()

	// Snapshots after the terminal one only repeat it.
	if f.ended {
		return
	}
	for _, s := range transitions {
		f.onTransition(ctx, s)
		if s.State.Terminal() {
			f.ended = true
		}
	}
	if latest != nil {
		f.onProgress(ctx, *latest)
	}
	if f.ended && f.onEnded != nil {
		f.onEnded(ctx)
	}
}

func (f *forwarder) onTransition(ctx context.Context, s navigation.Snapshot) {
	prev := f.prevState
	f.prevState = s.State
	if s.State == navigation.StateIdle {
		return
	}

	code := ""
	if s.LastError != nil && !navigation.IsInternal(s.LastError) {
		code = navigation.Code(s.LastError)
	}

	msg := contracts.NavigationStatusMessage{
		SessionID:    f.sessionID,
		TechnicianID: f.tech.id,
		JobID:        f.jobID,
		State:        s.State.String(),
		PrevState:    prev.String(),
		ErrorCode:    code,
		Generation:   s.PendingGeneration,
		Timestamp:    s.TakenAt.UTC(),
		Envelope:     f.envelope(),
	}
	key := contracts.RouteNavStatusPrefix + strings.ToLower(s.State.String())
	if err := f.publish(ctx, contracts.ExchangeNavigationTopic, key, msg); err != nil {
		f.service.metrics.EventFailed("status")
		f.service.logger.Error(ctx, "navigation_status_publish_failed", "Failed to publish navigation status", err, map[string]any{
			"routing_key": key,
		})
	}

	if f.service.sessions == nil || f.service.uow == nil {
		return
	}
	pctx, cancel := context.WithTimeout(ctx, outboundTimeout)
	defer cancel()
	err := f.service.uow.WithinTx(pctx, func(ctx context.Context) error {
		if s.State.Terminal() {
			return f.service.sessions.End(ctx, f.sessionID, s.State, code, s.TakenAt)
		}
		return f.service.sessions.UpdateState(ctx, f.sessionID, s.State, code, s.TakenAt)
	})
	if err != nil {
		f.service.metrics.EventFailed("session_store")
		f.service.logger.Error(ctx, "navigation_session_persist_failed", "Failed to persist session state", err, map[string]any{
			"state": s.State.String(),
		})
	}
}

func (f *forwarder) onProgress(ctx context.Context, s navigation.Snapshot) {
	f.tech.notify(ports.ToNavigationView(f.tech.id, f.jobID, s))

	if s.State == navigation.StateIdle {
		return
	}

	msg := contracts.NavigationProgressMessage{
		SessionID:               f.sessionID,
		TechnicianID:            f.tech.id,
		JobID:                   f.jobID,
		State:                   s.State.String(),
		DistanceRemainingMeters: s.DistanceRemainingMeters,
		Degraded:                s.Degraded,
		Timestamp:               s.TakenAt.UTC(),
		Envelope:                f.envelope(),
	}
	if s.LastPosition != nil {
		msg.Location = &contracts.GeoPoint{Lat: s.LastPosition.Coord.Lat, Lng: s.LastPosition.Coord.Lng}
	}
	if s.Destination != nil {
		msg.Destination = &contracts.GeoPoint{Lat: s.Destination.Lat, Lng: s.Destination.Lng, Address: f.destAddress}
	}
	if st, ok := s.CurrentStep(); ok {
		msg.Step = &contracts.StepBrief{
			Index:       s.StepIndex,
			Count:       len(s.CurrentRoute.Steps),
			Instruction: st.InstructionText,
			Meters:      st.DistanceMeters,
		}
	}
	if s.CurrentRoute != nil && !s.ETA.IsZero() {
		eta := s.ETA.UTC()
		msg.ETA = &eta
	}
	if err := f.publish(ctx, contracts.ExchangeNavProgressFanout, "", msg); err != nil {
		f.service.metrics.EventFailed("progress")
		f.service.logger.Debug(ctx, "navigation_progress_publish_failed", "Failed to publish progress", map[string]any{
			"error": err.Error(),
		})
	}

	f.archive(ctx, s.LastPosition)
}

// archive writes a position to location_history at most once per HistoryInterval.
func (f *forwarder) archive(ctx context.Context, p *navigation.PositionSample) {
	if p == nil || f.service.history == nil || f.service.uow == nil || !p.Timestamp.After(f.archivedTS) {
		return
	}
	now := f.service.now()
	if iv := f.service.opts.HistoryInterval; iv > 0 && !f.archivedWall.IsZero() && now.Sub(f.archivedWall) < iv {
		return
	}

	acc := p.AccuracyMeters
	sid := f.sessionID
	rec, err := geo.NewLocationHistory(f.tech.id, &sid, p.Coord, &acc, p.Timestamp)
	if err != nil {
		f.service.logger.Debug(ctx, "location_history_invalid", "Skipping invalid position", map[string]any{
			"error": err.Error(),
		})
		return
	}

	actx, cancel := context.WithTimeout(ctx, outboundTimeout)
	defer cancel()
	if err := f.service.uow.WithinTx(actx, func(ctx context.Context) error {
		return f.service.history.Archive(ctx, rec)
	}); err != nil {
		f.service.metrics.EventFailed("history")
		f.service.logger.Error(ctx, "location_history_archive_failed", "Failed to archive position", err, nil)
		return
	}
	f.archivedTS = p.Timestamp
	f.archivedWall = now
}

func (f *forwarder) publish(ctx context.Context, exchange, key string, v any) error {
	if f.service.pub == nil {
		return nil
	}
	pctx, cancel := context.WithTimeout(ctx, outboundTimeout)
	defer cancel()
	return f.service.pub.PublishJSON(pctx, exchange, key, v)
}

func (f *forwarder) envelope() contracts.Envelope {
	return contracts.Envelope{
		CorrelationID: f.sessionID,
		Producer:      contracts.ProducerNavigationService,
		SentAt:        f.service.now().UTC(),
	}
}
