package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"fieldnav/internal/domain/user"
	"fieldnav/internal/general/contracts"
	"fieldnav/internal/general/jwt"
	"fieldnav/internal/general/logger"

	"github.com/gorilla/websocket"
)

// DispatchHub serves /ws/dispatch and fans fleet progress out to every
// connected dispatcher.
type DispatchHub struct {
	cw     connWriter
	logger *logger.Logger
	authz  *jwt.Authorizer

	mu    sync.RWMutex
	conns map[*websocket.Conn]string // conn -> dispatcher id
}

func NewDispatchHub(log *logger.Logger, authz *jwt.Authorizer) *DispatchHub {
	return &DispatchHub{logger: log, authz: authz, conns: make(map[*websocket.Conn]string)}
}

func (h *DispatchHub) Connect(w http.ResponseWriter, r *http.Request) {
	conn, claims := handshake(w, r, &h.cw, h.logger, h.authz, user.RoleDispatcher, user.RoleAdmin)
	if conn == nil {
		return
	}
	defer conn.Close()
	defer h.cw.forget(conn)

	ctx := r.Context()
	who := map[string]any{"dispatcher_id": claims.Subject}

	h.mu.Lock()
	h.conns[conn] = claims.Subject
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.conns, conn)
		h.mu.Unlock()
	}()
	h.logger.Info(ctx, "ws_connected", "Dispatch WebSocket connected", who)

	stop := make(chan struct{})
	defer close(stop)
	go h.cw.keepAlive(conn, stop, func(err error) {
		h.logger.Error(ctx, "ws_ping_failed", "Failed to send ping", err, who)
	})

	// Dispatch screens only listen; inbound frames just keep the socket alive.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			closeOnReadError(ctx, &h.cw, h.logger, conn, err, who)
			return
		}
	}
}

// BroadcastProgress wraps body in a fleet_progress frame and writes it to all dispatchers.
// Connections that fail the write are closed; their reader cleans up.
func (h *DispatchHub) BroadcastProgress(body []byte) {
	frame, err := json.Marshal(struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}{Type: contracts.WSTypeFleetProgress, Data: body})
	if err != nil {
		h.logger.Error(context.Background(), "fleet_progress_encode_failed", "Failed to encode progress frame", err, nil)
		return
	}

	h.mu.RLock()
	targets := make([]*websocket.Conn, 0, len(h.conns))
	for c := range h.conns {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if err := h.cw.writeMessage(c, websocket.TextMessage, frame); err != nil {
			h.logger.Debug(context.Background(), "fleet_progress_write_failed", "Dropping dispatch socket", map[string]any{
				"error": err.Error(),
			})
			_ = c.Close()
		}
	}
}

// Connected returns how many dispatch sockets are open.
func (h *DispatchHub) Connected() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}
