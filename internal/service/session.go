package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopfloor-ops/change-relay/internal/domain/feed"
	"github.com/shopfloor-ops/change-relay/internal/domain/model"
	"github.com/shopfloor-ops/change-relay/internal/domain/transport"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ErrRetryExhausted is returned by Run once RetryPolicy.Exceeded trips.
var ErrRetryExhausted = errors.New("relay: retry budget exhausted")

// FatalFeedError is a non-retryable failure reported by the feed.
type FatalFeedError struct {
	Err error
}

func (e *FatalFeedError) Error() string { return fmt.Sprintf("relay: fatal feed error: %v", e.Err) }

func (e *FatalFeedError) Unwrap() error { return e.Err }

const teardownTimeout = 5 * time.Second

var tracer = otel.Tracer("github.com/shopfloor-ops/change-relay/internal/service")

// Observer receives session lifecycle signals (metrics).
type Observer interface {
	SessionOpened(topic string)
	SessionClosed(topic string, reason model.CloseReason)
	EventForwarded(topic string, typ model.EventType)
	RecordSkipped(topic, reason string)
	Reconnected(topic string)
}

type noopObserver struct{}

func (noopObserver) SessionOpened(string)                   {}
func (noopObserver) SessionClosed(string, model.CloseReason) {}
func (noopObserver) EventForwarded(string, model.EventType)  {}
func (noopObserver) RecordSkipped(string, string)            {}
func (noopObserver) Reconnected(string)                      {}

// SessionOption configures a Session.
type SessionOption func(*Session)

func WithID(id uuid.UUID) SessionOption {
	return func(s *Session) { s.id = id }
}

func WithLogger(l *slog.Logger) SessionOption {
	return func(s *Session) { s.logger = l }
}

func WithObserver(o Observer) SessionOption {
	return func(s *Session) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithKeepAlive pings the sink whenever the feed wait elapses without a change.
func WithKeepAlive(enabled bool) SessionOption {
	return func(s *Session) { s.keepAlive = enabled }
}

// Session relays one upstream subscription to one client sink.
//
// The loop is strictly sequential; the only concurrent entry point is Cancel.
// Suspension points are Subscription.Next, the retry delay and Sink.Send.
type Session struct {
	id        uuid.UUID
	topic     model.TopicConfig
	filter    model.TopicFilter
	policy    RetryPolicy
	source    feed.Source
	sink      transport.Sink
	projector *Projector
	logger    *slog.Logger
	observer  Observer
	keepAlive bool

	state atomic.Int32

	// [LOOP_OWNED] Mutated only by Run; read under mu by accessors.
	mu        sync.Mutex
	token     model.ResumeToken
	attempt   int
	sub       feed.Subscription
	connected bool
	reason    model.CloseReason

	cancelMu  sync.Mutex
	cancel    context.CancelFunc
	cancelled bool

	teardownOnce sync.Once
	done         chan struct{}
}

func NewSession(topic model.TopicConfig, filter model.TopicFilter, policy RetryPolicy,
	source feed.Source, sink transport.Sink, projector *Projector, opts ...SessionOption,
) *Session {
	s := &Session{
		id:        uuid.New(),
		topic:     topic,
		filter:    filter,
		policy:    policy,
		source:    source,
		sink:      sink,
		projector: projector,
		logger:    slog.Default(),
		observer:  noopObserver{},
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(
		slog.String("session_id", s.id.String()),
		slog.String("topic", topic.Name),
	)
	s.state.Store(int32(model.StateStarting))
	return s
}

func (s *Session) ID() uuid.UUID { return s.id }

func (s *Session) Topic() string { return s.topic.Name }

// Done is closed once Run released the subscription and the sink.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) State() model.SessionState { return model.SessionState(s.state.Load()) }

// Token is the resume token of the last processed record.
func (s *Session) Token() model.ResumeToken {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// Attempt is the current retry budget consumption.
func (s *Session) Attempt() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempt
}

// CloseReason is set once the session reached CLOSED.
func (s *Session) CloseReason() model.CloseReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// Cancel asks a running session to stop. Safe from any goroutine, any number
// of times, before, during or after Run.
func (s *Session) Cancel() {
	s.cancelMu.Lock()
	defer s.cancelMu.Unlock()
	s.cancelled = true
	if s.cancel != nil {
		s.cancel()
	}
}

// Run drives the state machine until CLOSED. It returns nil on cancellation
// and on a dead sink; only fatal feed errors and an exhausted retry budget
// come back as errors.
func (s *Session) Run(ctx context.Context) (err error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.cancelMu.Lock()
	s.cancel = cancel
	if s.cancelled {
		cancel()
	}
	s.cancelMu.Unlock()

	ctx, span := tracer.Start(ctx, "relay.session")
	span.SetAttributes(
		attribute.String("relay.topic", s.topic.Name),
		attribute.String("relay.session_id", s.id.String()),
	)
	defer func() {
		span.SetAttributes(attribute.String("relay.close_reason", string(s.CloseReason())))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	s.observer.SessionOpened(s.topic.Name)
	s.logger.Info("[SESSION] starting", slog.String("collection", s.filter.Collection))

	st := model.StateStarting
	for st != model.StateClosed {
		switch st {
		case model.StateStarting:
			st, err = s.start(ctx)
		case model.StateStreaming:
			st, err = s.stream(ctx)
		case model.StateRecovering:
			st, err = s.recover(ctx)
		default:
			st, err = s.closeWith(model.CloseFatal, fmt.Errorf("relay: invalid state %s", st))
		}
		s.state.Store(int32(st))
	}

	s.teardown()
	s.observer.SessionClosed(s.topic.Name, s.CloseReason())

	if err != nil {
		s.logger.Error("[SESSION] closed with error", slog.Any("err", err))
	} else {
		s.logger.Info("[SESSION] closed", slog.String("reason", string(s.CloseReason())))
	}
	return err
}

// STARTING: open without a token, announce the connection.
func (s *Session) start(ctx context.Context) (model.SessionState, error) {
	if ctx.Err() != nil {
		return s.closeWith(model.CloseCancelled, nil)
	}

	sub, err := s.source.Open(ctx, s.filter, nil)
	if err != nil {
		return s.fail(ctx, err)
	}
	s.setSubscription(sub)

	return s.announce(ctx)
}

// STREAMING: one Next per transition.
func (s *Session) stream(ctx context.Context) (model.SessionState, error) {
	if ctx.Err() != nil {
		return s.closeWith(model.CloseCancelled, nil)
	}

	rec, err := s.subscription().Next(ctx)
	switch {
	case err == nil:
		return s.forward(ctx, rec)
	case errors.Is(err, feed.ErrTimeout) && ctx.Err() == nil:
		return s.idle(ctx)
	default:
		return s.fail(ctx, err)
	}
}

// RECOVERING: wait, drop the stale cursor, reopen after the last token.
func (s *Session) recover(ctx context.Context) (model.SessionState, error) {
	attempt := s.Attempt()
	timer := time.NewTimer(s.policy.NextDelay(attempt))
	select {
	case <-ctx.Done():
		timer.Stop()
		return s.closeWith(model.CloseCancelled, nil)
	case <-timer.C:
	}

	s.closeSubscription()

	sub, err := s.source.Open(ctx, s.filter, s.Token())
	if err != nil {
		return s.fail(ctx, err)
	}
	s.setSubscription(sub)
	s.observer.Reconnected(s.topic.Name)
	s.logger.Info("[SESSION] subscription resumed", slog.Int("attempt", attempt))

	return s.announce(ctx)
}

// announce emits connected the first time a subscription opens and
// reconnected afterwards.
func (s *Session) announce(ctx context.Context) (model.SessionState, error) {
	s.mu.Lock()
	first := !s.connected
	attempt := s.attempt
	s.mu.Unlock()

	ev := model.NewReconnectedEvent(attempt)
	if first {
		ev = model.NewConnectedEvent()
	}
	if err := s.sink.Send(ctx, ev); err != nil {
		return s.sendFailed(ctx, err)
	}

	s.mu.Lock()
	s.connected = true
	s.mu.Unlock()
	return model.StateStreaming, nil
}

func (s *Session) forward(ctx context.Context, rec *model.ChangeRecord) (model.SessionState, error) {
	ev, err := s.projector.Project(ctx, rec, s.topic)
	if err != nil {
		if ctx.Err() != nil {
			return s.closeWith(model.CloseCancelled, nil)
		}
		// [SKIP] A failed enrichment drops this change only.
		s.logger.Warn("[SESSION] change skipped",
			slog.String("document_id", rec.DocumentID),
			slog.String("op", string(rec.Op)),
			slog.Any("err", err),
		)
		s.observer.RecordSkipped(s.topic.Name, "lookup")
		s.advance(rec.Token, false)
		return model.StateStreaming, nil
	}

	if ev == nil {
		s.observer.RecordSkipped(s.topic.Name, "filtered")
		s.advance(rec.Token, false)
		return model.StateStreaming, nil
	}

	if err := s.sink.Send(ctx, ev); err != nil {
		return s.sendFailed(ctx, err)
	}

	s.advance(rec.Token, true)
	s.observer.EventForwarded(s.topic.Name, ev.Type)
	return model.StateStreaming, nil
}

func (s *Session) idle(ctx context.Context) (model.SessionState, error) {
	if !s.keepAlive {
		return model.StateStreaming, nil
	}
	if err := s.sink.Ping(ctx); err != nil {
		return s.sendFailed(ctx, err)
	}
	return model.StateStreaming, nil
}

// fail routes a feed error: cancellation wins, then classification, then budget.
func (s *Session) fail(ctx context.Context, err error) (model.SessionState, error) {
	if ctx.Err() != nil {
		return s.closeWith(model.CloseCancelled, nil)
	}
	if s.policy.Classify(err) == Fatal {
		return s.closeWith(model.CloseFatal, &FatalFeedError{Err: err})
	}

	s.mu.Lock()
	s.attempt++
	attempt := s.attempt
	s.mu.Unlock()

	if s.policy.Exceeded(attempt) {
		return s.closeWith(model.CloseExhausted, fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, attempt, err))
	}

	s.logger.Warn("[SESSION] feed interrupted, recovering",
		slog.Int("attempt", attempt),
		slog.Duration("delay", s.policy.NextDelay(attempt)),
		slog.Any("err", err),
	)
	return model.StateRecovering, nil
}

// sendFailed never consumes retry budget: a new subscription cannot revive
// a dead client channel.
func (s *Session) sendFailed(ctx context.Context, err error) (model.SessionState, error) {
	if ctx.Err() != nil {
		return s.closeWith(model.CloseCancelled, nil)
	}
	if errors.Is(err, transport.ErrEncode) {
		s.logger.Error("[SESSION] event dropped, encode failed", slog.Any("err", err))
		s.observer.RecordSkipped(s.topic.Name, "encode")
		return model.StateStreaming, nil
	}

	s.logger.Info("[SESSION] client channel gone", slog.Any("err", err))
	return s.closeWith(model.CloseSinkDead, nil)
}

func (s *Session) closeWith(reason model.CloseReason, err error) (model.SessionState, error) {
	s.mu.Lock()
	if s.reason == "" {
		s.reason = reason
	}
	s.mu.Unlock()
	return model.StateClosed, err
}

func (s *Session) advance(token model.ResumeToken, delivered bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !token.IsZero() {
		s.token = token
	}
	if delivered {
		s.attempt = 0
	}
}

func (s *Session) subscription() feed.Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sub
}

func (s *Session) setSubscription(sub feed.Subscription) {
	s.mu.Lock()
	s.sub = sub
	s.mu.Unlock()
}

func (s *Session) closeSubscription() {
	s.mu.Lock()
	sub := s.sub
	s.sub = nil
	s.mu.Unlock()
	if sub == nil {
		return
	}

	// The run context may already be gone; the cursor still has to be released.
	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()
	if err := sub.Close(ctx); err != nil {
		s.logger.Debug("[SESSION] subscription close", slog.Any("err", err))
	}
}

// teardown releases the upstream subscription first, then the sink, once.
func (s *Session) teardown() {
	s.teardownOnce.Do(func() {
		defer close(s.done)
		s.closeSubscription()
		if err := s.sink.Close(); err != nil {
			s.logger.Debug("[SESSION] sink close", slog.Any("err", err))
		}
	})
}
