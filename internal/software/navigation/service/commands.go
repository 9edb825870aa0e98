package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"fieldnav/internal/domain/geo"
	"fieldnav/internal/domain/navigation"
	"fieldnav/internal/ports"
	"fieldnav/internal/software/navigation/engine"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var inputValidator = validator.New()

// StartNavigation replaces the technician's session with a new one and starts it.
func (service *navigationService) StartNavigation(ctx context.Context, in ports.StartNavigationInput) (ports.NavigationView, error) {
	in.TechnicianID = strings.TrimSpace(in.TechnicianID)
	in.JobID = strings.TrimSpace(in.JobID)
	in.DestinationAddress = strings.TrimSpace(in.DestinationAddress)
	if err := validateStart(in); err != nil {
		return ports.NavigationView{}, err
	}
	if service.isClosed() {
		return ports.NavigationView{}, navigation.ErrSessionClosed
	}

	t := service.technicianFor(in.TechnicianID)
	t.startMu.Lock()
	defer t.startMu.Unlock()

	if prev, ok := t.active(); ok {
		service.retire(ctx, t, prev)
	}

	sessionID := uuid.NewString()
	ctx = service.logger.WithTechnicianID(ctx, t.id)
	ctx = service.logger.WithSessionID(ctx, sessionID)
	if in.JobID != "" {
		ctx = service.logger.WithJobID(ctx, in.JobID)
	}

	service.recordStart(ctx, sessionID, in)

	fwd := newForwarder(service, t, sessionID, in.JobID, in.DestinationAddress)
	sess := engine.NewSession(ctx, sessionID, service.opts.Engine, engine.Deps{
		Positions:  t.hub,
		Geocoder:   service.geocoder,
		Directions: service.directions,
		Logger:     service.logger,
		Metrics:    service.metrics,
		Now:        service.now,
	}, fwd)
	hosted := &hostedSession{session: sess, jobID: in.JobID, fwd: fwd}
	fwd.onEnded = func(ctx context.Context) { go service.release(ctx, hosted) }
	go fwd.run()
	t.setCurrent(hosted)
	service.metrics.SessionOpened()

	dest := engine.Destination{
		Address:  in.DestinationAddress,
		Coord:    toCoordinate(in.Destination),
		Fallback: toCoordinate(in.FallbackDestination),
	}
	opts := engine.StartOptions{Origin: engine.OriginFromPosition()}
	if c := toCoordinate(in.Origin); c != nil {
		opts.Origin = engine.OriginFixed(*c)
	}

	if err := sess.Start(ctx, dest, opts); err != nil {
		service.retire(ctx, t, hosted)
		return ports.NavigationView{}, err
	}

	service.logger.Info(ctx, "navigation_started", "Navigation session started", map[string]any{
		"destination_address": in.DestinationAddress,
		"has_coordinate":      in.Destination != nil,
		"fixed_origin":        in.Origin != nil,
	})
	return ports.ToNavigationView(t.id, in.JobID, sess.Snapshot()), nil
}

func (service *navigationService) CancelNavigation(ctx context.Context, technicianID string) (ports.NavigationView, error) {
	return service.command(ctx, technicianID, (*engine.Session).Cancel)
}

func (service *navigationService) Recalculate(ctx context.Context, technicianID string) (ports.NavigationView, error) {
	return service.command(ctx, technicianID, (*engine.Session).ManualRecalculate)
}

func (service *navigationService) StepNext(ctx context.Context, technicianID string) (ports.NavigationView, error) {
	return service.command(ctx, technicianID, (*engine.Session).NextStep)
}

func (service *navigationService) StepPrevious(ctx context.Context, technicianID string) (ports.NavigationView, error) {
	return service.command(ctx, technicianID, (*engine.Session).PreviousStep)
}

func (service *navigationService) GetSnapshot(_ context.Context, technicianID string) (ports.NavigationView, error) {
	h, err := service.hosted(technicianID)
	if err != nil {
		return ports.NavigationView{}, err
	}
	return ports.ToNavigationView(technicianID, h.jobID, h.session.Snapshot()), nil
}

// UpdatePosition feeds one sample into the technician's position stream.
// Samples for a technician without a session are accepted and ignored.
func (service *navigationService) UpdatePosition(_ context.Context, in ports.UpdatePositionInput) error {
	in.TechnicianID = strings.TrimSpace(in.TechnicianID)
	if in.TechnicianID == "" {
		return fmt.Errorf("%w: technician id is required", navigation.ErrInvalidInput)
	}
	if err := inputValidator.Struct(in); err != nil {
		return invalid(err)
	}
	if in.Timestamp.IsZero() {
		in.Timestamp = service.now().UTC()
	}
	t := service.technicianFor(in.TechnicianID)
	t.hub.push(ports.PositionUpdate{Sample: navigation.PositionSample{
		Coord:          geo.Coordinate{Lat: in.Latitude, Lng: in.Longitude},
		Timestamp:      in.Timestamp,
		AccuracyMeters: in.AccuracyMeters,
	}})
	return nil
}

func (service *navigationService) AttachPositionFeed(technicianID string) ports.PositionFeed {
	return service.technicianFor(strings.TrimSpace(technicianID)).hub.attach()
}

func (service *navigationService) Subscribe(technicianID string, fn func(ports.NavigationView)) func() {
	return service.technicianFor(strings.TrimSpace(technicianID)).subscribe(fn)
}

// command runs op against the technician's current session and returns the resulting view.
func (service *navigationService) command(ctx context.Context, technicianID string, op func(*engine.Session, context.Context) error) (ports.NavigationView, error) {
	h, err := service.hosted(technicianID)
	if err != nil {
		return ports.NavigationView{}, err
	}
	ctx = service.logger.WithTechnicianID(ctx, technicianID)
	ctx = service.logger.WithSessionID(ctx, h.session.ID())
	if err := op(h.session, ctx); err != nil {
		return ports.NavigationView{}, err
	}
	return ports.ToNavigationView(technicianID, h.jobID, h.session.Snapshot()), nil
}

func (service *navigationService) hosted(technicianID string) (*hostedSession, error) {
	t, ok := service.lookup(strings.TrimSpace(technicianID))
	if !ok {
		return nil, navigation.ErrNoSession
	}
	h, ok := t.active()
	if !ok {
		return nil, navigation.ErrNoSession
	}
	return h, nil
}

// retire releases a hosted session and stops serving it to the technician.
func (service *navigationService) retire(ctx context.Context, t *technician, h *hostedSession) {
	service.release(ctx, h)
	t.clearCurrent(h)
}

// release destroys the session and flushes its forwarder. A released session
// stays current so its final snapshot can still be read; commands on it
// report ErrSessionClosed.
func (service *navigationService) release(ctx context.Context, h *hostedSession) {
	h.released.Do(func() {
		if err := h.session.Destroy(ctx); err != nil {
			service.logger.Error(ctx, "navigation_destroy_failed", "Failed to destroy session", err, map[string]any{
				"session_id": h.session.ID(),
			})
		}
		h.fwd.close()
		service.metrics.SessionClosed()
	})
}

func (service *navigationService) recordStart(ctx context.Context, sessionID string, in ports.StartNavigationInput) {
	if service.sessions == nil || service.uow == nil {
		return
	}
	now := service.now().UTC()
	rec := &navigation.SessionRecord{
		ID:           sessionID,
		TechnicianID: in.TechnicianID,
		State:        navigation.StateIdle,
		Destination:  toCoordinate(in.Destination),
		StartedAt:    now,
		UpdatedAt:    now,
	}
	if in.JobID != "" {
		rec.JobID = &in.JobID
	}
	if in.DestinationAddress != "" {
		rec.DestinationAddress = &in.DestinationAddress
	}

	pctx, cancel := context.WithTimeout(ctx, outboundTimeout)
	defer cancel()
	if err := service.uow.WithinTx(pctx, func(ctx context.Context) error {
		return service.sessions.Start(ctx, rec)
	}); err != nil {
		service.metrics.EventFailed("session_store")
		service.logger.Error(ctx, "navigation_session_record_failed", "Failed to record session start", err, nil)
	}
}

func validateStart(in ports.StartNavigationInput) error {
	if in.TechnicianID == "" {
		return fmt.Errorf("%w: technician id is required", navigation.ErrInvalidInput)
	}
	if in.DestinationAddress == "" && in.Destination == nil {
		return navigation.ErrNoDestination
	}
	if err := inputValidator.Struct(in); err != nil {
		return invalid(err)
	}
	return nil
}

func invalid(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return fmt.Errorf("%w: %s failed %s", navigation.ErrInvalidInput, verrs[0].Namespace(), verrs[0].Tag())
	}
	return fmt.Errorf("%w: %w", navigation.ErrInvalidInput, err)
}
