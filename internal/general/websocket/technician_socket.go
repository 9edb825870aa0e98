package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"fieldnav/internal/domain/geo"
	"fieldnav/internal/domain/navigation"
	"fieldnav/internal/domain/user"
	"fieldnav/internal/general/contracts"
	"fieldnav/internal/general/jwt"
	"fieldnav/internal/general/logger"
	"fieldnav/internal/ports"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
)

const snapshotBuffer = 16

var frameValidator = validator.New()

// TechnicianSocket serves /ws/technicians/{technician_id}: the device streams
// positions and navigation commands, the server pushes snapshots back.
type TechnicianSocket struct {
	cw     connWriter
	logger *logger.Logger
	authz  *jwt.Authorizer
	nav    ports.NavigationService
}

func NewTechnicianSocket(log *logger.Logger, authz *jwt.Authorizer, nav ports.NavigationService) *TechnicianSocket {
	return &TechnicianSocket{logger: log, authz: authz, nav: nav}
}

func (ts *TechnicianSocket) Connect(w http.ResponseWriter, r *http.Request) {
	conn, claims := handshake(w, r, &ts.cw, ts.logger, ts.authz, user.RoleTechnician, user.RoleAdmin)
	if conn == nil {
		return
	}
	defer conn.Close()
	defer ts.cw.forget(conn)

	technicianID := r.PathValue("technician_id")
	if technicianID == "" {
		technicianID = claims.Subject
	}
	ctx := ts.logger.WithTechnicianID(r.Context(), technicianID)
	who := map[string]any{"technician_id": technicianID, "user_id": claims.Subject}

	if !claims.CanActFor(technicianID) {
		ts.logger.Error(ctx, "ws_auth_failed", "Token subject cannot act for technician", errSubjectMismatch, who)
		_ = ts.cw.writeError(conn, "FORBIDDEN", errSubjectMismatch.Error())
		ts.cw.writeClose(conn, websocket.ClosePolicyViolation, "forbidden")
		return
	}
	ts.logger.Info(ctx, "ws_connected", "Technician WebSocket connected", who)

	stop := make(chan struct{})
	defer close(stop)
	go ts.cw.keepAlive(conn, stop, func(err error) {
		ts.logger.Error(ctx, "ws_ping_failed", "Failed to send ping", err, who)
	})

	// Snapshots arrive on the session goroutine and must not block it, so they
	// go through a small buffer that keeps the newest entries.
	views := make(chan ports.NavigationView, snapshotBuffer)
	unsubscribe := ts.nav.Subscribe(technicianID, func(v ports.NavigationView) {
		for {
			select {
			case views <- v:
				return
			default:
			}
			select {
			case <-views:
			default:
			}
		}
	})
	defer unsubscribe()
	go ts.pushSnapshots(ctx, conn, views, stop)

	if v, err := ts.nav.GetSnapshot(ctx, technicianID); err == nil {
		_ = ts.cw.writeFrame(conn, contracts.WSTypeNavigationSnapshot, v)
	}

	feed := ts.nav.AttachPositionFeed(technicianID)
	defer feed.Close()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			closeOnReadError(ctx, &ts.cw, ts.logger, conn, err, who)
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readIdleTimeout))

		var msg contracts.WSInbound
		if err := json.Unmarshal(payload, &msg); err != nil {
			_ = ts.cw.writeError(conn, "BAD_JSON", "bad json")
			continue
		}
		if err := ts.route(ctx, conn, technicianID, feed, msg); err != nil {
			ts.logger.Error(ctx, "ws_frame_failed", "Technician frame failed", err, map[string]any{
				"technician_id": technicianID,
				"type":          msg.Type,
			})
			_ = ts.cw.writeError(conn, navigation.Code(err), err.Error())
		}
	}
}

func (ts *TechnicianSocket) pushSnapshots(ctx context.Context, conn *websocket.Conn, views <-chan ports.NavigationView, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case v := <-views:
			if err := ts.cw.writeFrame(conn, contracts.WSTypeNavigationSnapshot, v); err != nil {
				ts.logger.Debug(ctx, "ws_snapshot_write_failed", "Failed to push snapshot", map[string]any{
					"error": err.Error(),
				})
				return
			}
		}
	}
}

// route dispatches one inbound frame. Command frames answer with the resulting snapshot.
func (ts *TechnicianSocket) route(ctx context.Context, conn *websocket.Conn, technicianID string, feed ports.PositionFeed, msg contracts.WSInbound) error {
	var (
		view ports.NavigationView
		err  error
	)
	switch msg.Type {
	case contracts.WSTypeLocationUpdate:
		return ts.handleLocationUpdate(feed, msg.Data)

	case contracts.WSTypeNavigationStart:
		var in ports.StartNavigationInput
		if len(msg.Data) == 0 {
			return fmt.Errorf("%w: navigation_start needs data", navigation.ErrInvalidInput)
		}
		if err := json.Unmarshal(msg.Data, &in); err != nil {
			return fmt.Errorf("%w: %w", navigation.ErrInvalidInput, err)
		}
		in.TechnicianID = technicianID
		view, err = ts.nav.StartNavigation(ctx, in)

	case contracts.WSTypeNavigationCancel:
		view, err = ts.nav.CancelNavigation(ctx, technicianID)
	case contracts.WSTypeNavigationRecalculate:
		view, err = ts.nav.Recalculate(ctx, technicianID)
	case contracts.WSTypeStepNext:
		view, err = ts.nav.StepNext(ctx, technicianID)
	case contracts.WSTypeStepPrevious:
		view, err = ts.nav.StepPrevious(ctx, technicianID)

	default:
		return fmt.Errorf("%w: unknown message type %q", navigation.ErrInvalidInput, msg.Type)
	}
	if err != nil {
		return err
	}
	return ts.cw.writeFrame(conn, contracts.WSTypeNavigationSnapshot, view)
}

func (ts *TechnicianSocket) handleLocationUpdate(feed ports.PositionFeed, data json.RawMessage) error {
	var loc contracts.WSLocationUpdate
	if err := json.Unmarshal(data, &loc); err != nil {
		return fmt.Errorf("%w: %w", navigation.ErrInvalidInput, err)
	}
	if loc.Denied {
		feed.Push(ports.PositionUpdate{Err: fmt.Errorf("%w: denied on device", navigation.ErrPermissionDenied)})
		return nil
	}
	if err := frameValidator.Struct(loc); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return fmt.Errorf("%w: %s", navigation.ErrInvalidInput, verrs[0].Field())
		}
		return fmt.Errorf("%w: %w", navigation.ErrInvalidInput, err)
	}
	at := loc.Timestamp
	if at.IsZero() {
		at = time.Now().UTC()
	}
	feed.Push(ports.PositionUpdate{Sample: navigation.PositionSample{
		Coord:          geo.Coordinate{Lat: loc.Latitude, Lng: loc.Longitude},
		Timestamp:      at,
		AccuracyMeters: loc.AccuracyMeters,
	}})
	return nil
}
