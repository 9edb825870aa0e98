package websocket

import (
	"context"
	"errors"
	"net/http"
	"time"

	"fieldnav/internal/domain/user"
	"fieldnav/internal/general/jwt"
	"fieldnav/internal/general/logger"

	"github.com/gorilla/websocket"
)

const (
	wsWriteTimeout   = 5 * time.Second
	wsCloseAckWindow = 2 * time.Second
	ctrlTimeout      = 5 * time.Second
	authWindow       = 5 * time.Second
	readIdleTimeout  = 60 * time.Second
	pingInterval     = 30 * time.Second
	maxFrameBytes    = 1 << 20
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

var errSubjectMismatch = errors.New("technician id mismatch")

// handshake upgrades the request and authenticates the first frame.
// On failure the connection is already closed and nil is returned.
func handshake(
	w http.ResponseWriter,
	r *http.Request,
	cw *connWriter,
	log *logger.Logger,
	authz *jwt.Authorizer,
	roles ...user.Role,
) (*websocket.Conn, *jwt.Claims) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error(r.Context(), "websocket_upgrade_failed", "Failed to upgrade to WebSocket", err, nil)
		return nil, nil
	}

	fail := func(action, msg string, err error, reply string) (*websocket.Conn, *jwt.Claims) {
		log.Error(r.Context(), action, msg, err, nil)
		_ = cw.writeJSON(conn, map[string]any{"type": "auth_error", "error": reply, "success": false})
		cw.writeClose(conn, websocket.ClosePolicyViolation, reply)
		cw.forget(conn)
		_ = conn.Close()
		return nil, nil
	}

	conn.SetReadLimit(maxFrameBytes)
	_ = conn.SetReadDeadline(time.Now().Add(authWindow))

	mt, first, err := conn.ReadMessage()
	if err != nil {
		return fail("ws_auth_read_failed", "Failed to read auth message", err,
			"authentication timeout: send an auth message within 5 seconds")
	}
	if mt != websocket.TextMessage {
		return fail("ws_auth_invalid_format", "Auth message must be text", nil, "auth message must be in text format")
	}

	ctx, cancel := context.WithTimeout(r.Context(), authWindow)
	res, err := authz.ValidateWSAuth(ctx, first, roles...)
	cancel()
	if err != nil {
		return fail("ws_auth_failed", "Invalid auth message or token", err, "authentication failed")
	}

	_ = conn.SetReadDeadline(time.Now().Add(readIdleTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readIdleTimeout))
	})

	_ = cw.writeJSON(conn, map[string]any{
		"type":      "auth_success",
		"success":   true,
		"user_id":   res.Claims.Subject,
		"role":      res.Claims.Role.String(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
	return conn, res.Claims
}

// closeOnReadError logs why the read loop ended and answers with a close frame.
func closeOnReadError(ctx context.Context, cw *connWriter, log *logger.Logger, conn *websocket.Conn, err error, who map[string]any) {
	if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
		log.Error(ctx, "ws_unexpected_close", "Connection closed unexpectedly", err, who)
		cw.writeClose(conn, websocket.CloseInternalServerErr, "internal error")
		return
	}
	log.Info(ctx, "ws_connection_closed", "Connection closed", who)
	cw.writeClose(conn, websocket.CloseNormalClosure, "bye")
}
