// Package transport wraps the one-way push channel to a single client.
package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopfloor-ops/change-relay/internal/domain/model"
)

var (
	// ErrSinkClosed is returned by every call after the sink went inactive.
	ErrSinkClosed = errors.New("transport: sink closed")
	// ErrEncode wraps marshalling failures. The connection stays usable.
	ErrEncode = errors.New("transport: encode failed")
)

// Interface guard
var _ Sink = (*sink)(nil)

// Sink is what a session pushes events through.
type Sink interface {
	Send(ctx context.Context, ev *model.ClientEvent) error
	Ping(ctx context.Context) error
	Close() error
}

// Conn is the raw client channel (an SSE response, a WebSocket).
type Conn interface {
	WriteFrame(frame []byte, deadline time.Time) error
	WritePing(deadline time.Time) error
	Close() error
}

// Encoder turns an event into one wire frame.
type Encoder func(ev *model.ClientEvent) ([]byte, error)

// SinkError is a failed write on the client channel.
type SinkError struct {
	Err error
}

func (e *SinkError) Error() string { return fmt.Sprintf("transport: write failed: %v", e.Err) }

func (e *SinkError) Unwrap() error { return e.Err }

// IsSinkError reports whether err means the client channel is gone.
func IsSinkError(err error) bool {
	var se *SinkError
	return errors.Is(err, ErrSinkClosed) || errors.As(err, &se)
}

type sink struct {
	conn         Conn
	encode       Encoder
	writeTimeout time.Duration

	// [LIVENESS] Flipped once, never back.
	active    atomic.Bool
	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// NewSink wraps conn. A zero writeTimeout disables write deadlines.
func NewSink(conn Conn, encode Encoder, writeTimeout time.Duration) Sink {
	s := &sink{
		conn:         conn,
		encode:       encode,
		writeTimeout: writeTimeout,
	}
	s.active.Store(true)
	return s
}

// Send writes one event. After the first failed write every call is a no-op
// returning ErrSinkClosed so stale writes never look like fresh failures.
func (s *sink) Send(ctx context.Context, ev *model.ClientEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !s.active.Load() {
		return ErrSinkClosed
	}

	frame, err := s.encode(ev)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEncode, err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	// Close may have won the race while we were encoding.
	if !s.active.Load() {
		return ErrSinkClosed
	}
	if err := s.conn.WriteFrame(frame, s.deadline()); err != nil {
		s.active.Store(false)
		return &SinkError{Err: err}
	}
	return nil
}

// Ping writes a keep-alive frame so a vanished client is noticed between changes.
func (s *sink) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !s.active.Load() {
		return ErrSinkClosed
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if !s.active.Load() {
		return ErrSinkClosed
	}
	if err := s.conn.WritePing(s.deadline()); err != nil {
		s.active.Store(false)
		return &SinkError{Err: err}
	}
	return nil
}

// Close is idempotent; the first call's result is returned to every caller.
func (s *sink) Close() error {
	s.closeOnce.Do(func() {
		s.active.Store(false)
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

func (s *sink) deadline() time.Time {
	if s.writeTimeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(s.writeTimeout)
}
