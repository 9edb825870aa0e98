package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"fieldnav/internal/general/contracts"

	"github.com/gorilla/websocket"
)

// connWriter serializes writes per connection; gorilla allows one concurrent writer.
type connWriter struct {
	writeLocks sync.Map // *websocket.Conn -> *sync.Mutex
}

// lockOf returns the mutex for a specific connection.
func (cw *connWriter) lockOf(conn *websocket.Conn) *sync.Mutex {
	if v, ok := cw.writeLocks.Load(conn); ok {
		return v.(*sync.Mutex)
	}
	actual, _ := cw.writeLocks.LoadOrStore(conn, &sync.Mutex{})
	return actual.(*sync.Mutex)
}

func (cw *connWriter) forget(conn *websocket.Conn) {
	cw.writeLocks.Delete(conn)
}

// writeMessage sets a short write deadline and writes a message.
func (cw *connWriter) writeMessage(conn *websocket.Conn, mt int, payload []byte) error {
	mu := cw.lockOf(conn)
	mu.Lock()
	defer mu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteMessage(mt, payload)
}

// writeClose sends a close control frame with the given code and reason.
func (cw *connWriter) writeClose(conn *websocket.Conn, code int, reason string) {
	mu := cw.lockOf(conn)
	mu.Lock()
	defer mu.Unlock()
	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(wsCloseAckWindow),
	)
}

// ping writes a ping control frame under the connection lock.
func (cw *connWriter) ping(conn *websocket.Conn) error {
	mu := cw.lockOf(conn)
	mu.Lock()
	defer mu.Unlock()
	return conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(ctrlTimeout))
}

// writeJSON marshals v and writes a single TextMessage.
func (cw *connWriter) writeJSON(conn *websocket.Conn, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return cw.writeMessage(conn, websocket.TextMessage, payload)
}

// writeFrame writes the {type,data} envelope clients expect.
func (cw *connWriter) writeFrame(conn *websocket.Conn, typ string, data any) error {
	return cw.writeJSON(conn, struct {
		Type string `json:"type"`
		Data any    `json:"data,omitempty"`
	}{Type: typ, Data: data})
}

func (cw *connWriter) writeError(conn *websocket.Conn, code, message string) error {
	return cw.writeFrame(conn, contracts.WSTypeError, contracts.WSError{Code: code, Message: message})
}

// keepAlive pings conn every pingInterval until stop closes or a ping fails.
// A failed ping closes the socket so the reader unblocks.
func (cw *connWriter) keepAlive(conn *websocket.Conn, stop <-chan struct{}, onFail func(error)) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := cw.ping(conn); err != nil {
				_ = conn.Close()
				onFail(err)
				return
			}
		}
	}
}
