package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopfloor-ops/change-relay/internal/domain/transport"
)

const closeGrace = time.Second

// Interface guard
var _ transport.Conn = (*Conn)(nil)

// Conn adapts a gorilla connection to transport.Conn. Writes are serialized by
// the sink; only the close frame may race them, and gorilla allows that.
type Conn struct {
	ws        *websocket.Conn
	closeOnce sync.Once
	closeErr  error
}

func NewConn(ws *websocket.Conn) *Conn {
	return &Conn{ws: ws}
}

func (c *Conn) WriteFrame(frame []byte, deadline time.Time) error {
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, frame)
}

func (c *Conn) WritePing(deadline time.Time) error {
	return c.ws.WriteControl(websocket.PingMessage, nil, deadline)
}

// Close sends a normal closure frame and drops the socket.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "stream closed")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace))
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}
