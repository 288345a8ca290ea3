package sse

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/shopfloor-ops/change-relay/internal/domain/transport"
	ssemarshaller "github.com/shopfloor-ops/change-relay/internal/handler/marshaller/sse"
)

var errConnClosed = errors.New("sse: connection closed")

// Interface guard
var _ transport.Conn = (*Conn)(nil)

// SetSSEHeaders declares a persistent, uncached event stream. X-Accel-Buffering
// stops nginx from holding frames back.
func SetSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// Conn is the response side of one SSE request. Headers go out lazily with
// the first frame so the handler can still answer with an error status when
// the session never started.
type Conn struct {
	w  http.ResponseWriter
	rc *http.ResponseController

	mu      sync.Mutex
	started bool
	closed  bool
}

// NewConn fails when the writer cannot flush; buffered SSE is useless.
func NewConn(w http.ResponseWriter) (*Conn, error) {
	if _, ok := w.(http.Flusher); !ok {
		return nil, fmt.Errorf("sse: response writer does not support flushing")
	}
	return &Conn{w: w, rc: http.NewResponseController(w)}, nil
}

// Started reports whether the stream headers were sent.
func (c *Conn) Started() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started
}

func (c *Conn) WriteFrame(frame []byte, deadline time.Time) error {
	return c.write(frame, deadline)
}

func (c *Conn) WritePing(deadline time.Time) error {
	return c.write(ssemarshaller.PingFrame, deadline)
}

func (c *Conn) write(frame []byte, deadline time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errConnClosed
	}
	if !c.started {
		SetSSEHeaders(c.w)
		c.w.WriteHeader(http.StatusOK)
		c.started = true
	}

	// [WRITE_DEADLINE] A stalled client fails the write instead of blocking the session.
	if !deadline.IsZero() {
		if err := c.rc.SetWriteDeadline(deadline); err != nil && !errors.Is(err, http.ErrNotSupported) {
			return err
		}
	}
	if _, err := c.w.Write(frame); err != nil {
		return err
	}
	return c.rc.Flush()
}

// Close stops further writes. The response itself ends when the handler returns.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}
