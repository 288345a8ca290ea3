package pubsub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/shopfloor-ops/change-relay/internal/domain/feed"
	"github.com/shopfloor-ops/change-relay/internal/domain/model"
)

// Interface guards
var (
	_ feed.Source       = (*Source)(nil)
	_ feed.Subscription = (*subscription)(nil)
)

// SubscriberFactory builds a subscriber dedicated to one consumer, so every
// session gets its own copy of the stream.
type SubscriberFactory interface {
	Subscriber(consumer string) (message.Subscriber, error)
}

// Source turns bus topics into feed subscriptions.
type Source struct {
	factory  SubscriberFactory
	prefix   string
	maxAwait time.Duration
	logger   *slog.Logger
}

func NewSource(factory SubscriberFactory, prefix string, maxAwait time.Duration, logger *slog.Logger) *Source {
	return &Source{factory: factory, prefix: prefix, maxAwait: maxAwait, logger: logger}
}

func (s *Source) Open(ctx context.Context, filter model.TopicFilter, token model.ResumeToken) (feed.Subscription, error) {
	after, err := tokenSeq(token)
	if err != nil {
		return nil, fmt.Errorf("bus resume token %q: %w", token, err)
	}

	sub, err := s.factory.Subscriber(filter.SubscriberID)
	if err != nil {
		return nil, feed.Transient(fmt.Errorf("bus subscriber: %w", err))
	}

	subCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	topic := TopicFor(s.prefix, filter.Collection)
	messages, err := sub.Subscribe(subCtx, topic)
	if err != nil {
		cancel()
		_ = sub.Close()
		return nil, feed.Transient(fmt.Errorf("bus subscribe %s: %w", topic, err))
	}

	s.logger.Debug("BUS_SUBSCRIBED", slog.String("topic", topic), slog.Int64("after_seq", after))
	return &subscription{
		sub:      sub,
		messages: messages,
		cancel:   cancel,
		closed:   make(chan struct{}),
		filter:   filter,
		after:    after,
		maxAwait: s.maxAwait,
		logger:   s.logger,
	}, nil
}

type subscription struct {
	sub      message.Subscriber
	messages <-chan *message.Message
	cancel   context.CancelFunc
	closed   chan struct{}
	filter   model.TopicFilter
	maxAwait time.Duration
	logger   *slog.Logger

	// after is the resume floor taken from the token at Open. It only guards
	// the replay: once a newer record shows up the floor is lifted, since
	// sequences from different publishers carry their own clocks.
	after int64

	closeOnce sync.Once
	closeErr  error
}

func (s *subscription) Next(ctx context.Context) (*model.ChangeRecord, error) {
	var timeout <-chan time.Time
	if s.maxAwait > 0 {
		timer := time.NewTimer(s.maxAwait)
		defer timer.Stop()
		timeout = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timeout:
			return nil, feed.ErrTimeout
		case <-s.closed:
			return nil, feed.ErrSubscriptionClosed
		case msg, ok := <-s.messages:
			if !ok {
				return nil, feed.ErrSubscriptionClosed
			}
			// [AT_MOST_ONCE] The queue is per session; redelivery buys nothing.
			msg.Ack()

			rec, seq, err := decodeRecord(msg)
			if err != nil {
				s.logger.Warn("BUS_MESSAGE_DROPPED", slog.Any("err", err))
				continue
			}
			if !s.wants(rec, seq) {
				continue
			}
			return rec, nil
		}
	}
}

func (s *subscription) wants(rec *model.ChangeRecord, seq int64) bool {
	if s.after > 0 {
		if seq <= s.after {
			return false
		}
		s.after = 0
	}
	if len(s.filter.Operations) > 0 && !slices.Contains(s.filter.Operations, rec.Op) {
		return false
	}
	return s.filter.DocumentID == "" || s.filter.DocumentID == rec.DocumentID
}

func (s *subscription) Close(context.Context) error {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.cancel()
		if err := s.sub.Close(); err != nil && !errors.Is(err, context.Canceled) {
			s.closeErr = err
		}
	})
	return s.closeErr
}
