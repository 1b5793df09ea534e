package session

import (
	"time"

	"github.com/gorilla/websocket"
)

// Transport is the slice of *websocket.Conn the Session needs, grounded
// on the teacher's ConnectionWrapper (internal/transport/websocket/manager.go)
// which talks to *websocket.Conn directly; this interface exists purely
// so tests can substitute a fake instead of a real socket.
type Transport interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(string) error)
	RemoteAddr() string
	CloseWithReason(code int, reason string) error
	Close() error
}

// wsTransport adapts *websocket.Conn to Transport.
type wsTransport struct {
	conn *websocket.Conn
}

func NewTransport(conn *websocket.Conn) Transport {
	return &wsTransport{conn: conn}
}

func (t *wsTransport) ReadMessage() (int, []byte, error)    { return t.conn.ReadMessage() }
func (t *wsTransport) WriteMessage(mt int, data []byte) error { return t.conn.WriteMessage(mt, data) }
func (t *wsTransport) SetReadDeadline(tm time.Time) error    { return t.conn.SetReadDeadline(tm) }
func (t *wsTransport) SetReadLimit(limit int64)              { t.conn.SetReadLimit(limit) }
func (t *wsTransport) SetPongHandler(h func(string) error)   { t.conn.SetPongHandler(h) }
func (t *wsTransport) RemoteAddr() string { return t.conn.RemoteAddr().String() }

// CloseWithReason sends a WebSocket close frame with the given code/reason
// before closing the underlying connection, per spec.md §4.3/§7's close
// codes (1000 "replaced", 1000 "heartbeat timeout", 1002 protocol error).
func (t *wsTransport) CloseWithReason(code int, reason string) error {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = t.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return t.conn.Close()
}

func (t *wsTransport) Close() error { return t.conn.Close() }
