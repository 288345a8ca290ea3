package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"
	"github.com/shopfloor-ops/change-relay/internal/domain/feed"
	"github.com/shopfloor-ops/change-relay/internal/domain/model"
	"github.com/shopfloor-ops/change-relay/internal/domain/registry"
	"github.com/shopfloor-ops/change-relay/internal/domain/transport"
)

// ErrUnknownTopic is returned before anything reaches the client.
var ErrUnknownTopic = errors.New("relay: unknown topic")

// [RELAY_SERVICE] PRIMARY INTERFACE FOR TRANSPORT HANDLERS (SSE/Websocket)
type Relayer interface {
	// Topic resolves a configured topic by name.
	Topic(name string) (model.TopicConfig, bool)
	// Topics lists every configured topic ordered by name.
	Topics() []model.TopicConfig
	// Serve relays topic changes into sink until the session closes.
	// documentID narrows the stream to a single entity when non-empty.
	Serve(ctx context.Context, topic, documentID string, sink transport.Sink) error
}

var _ Relayer = (*RelayService)(nil)

// RelayConfig carries the per-process session settings.
type RelayConfig struct {
	Topics    []model.TopicConfig
	Policy    RetryPolicy
	KeepAlive bool
}

type RelayService struct {
	topics    map[string]model.TopicConfig
	source    feed.Source
	projector *Projector
	policy    RetryPolicy
	keepAlive bool
	hub       registry.Hubber
	observer  Observer
	logger    *slog.Logger
}

// NewRelayService returns a production-ready instance of the service.
// A nil resolver disables aggregate lookups; a nil observer drops metrics.
func NewRelayService(cfg RelayConfig, source feed.Source, resolver Resolver,
	hub registry.Hubber, observer Observer, logger *slog.Logger,
) *RelayService {
	topics := make(map[string]model.TopicConfig, len(cfg.Topics))
	for _, t := range cfg.Topics {
		topics[t.Name] = t
	}
	if observer == nil {
		observer = noopObserver{}
	}
	return &RelayService{
		topics:    topics,
		source:    source,
		projector: NewProjector(resolver),
		policy:    cfg.Policy,
		keepAlive: cfg.KeepAlive,
		hub:       hub,
		observer:  observer,
		logger:    logger,
	}
}

func (r *RelayService) Topic(name string) (model.TopicConfig, bool) {
	t, ok := r.topics[name]
	return t, ok
}

func (r *RelayService) Topics() []model.TopicConfig {
	out := make([]model.TopicConfig, 0, len(r.topics))
	for _, t := range r.topics {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// [SERVE] HANDLES THE WHOLE SESSION LIFECYCLE FOR ONE CLIENT
func (r *RelayService) Serve(ctx context.Context, topicName, documentID string, sink transport.Sink) error {
	topic, ok := r.topics[topicName]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTopic, topicName)
	}

	// 1. Build the session; its id doubles as the bus consumer name.
	id := uuid.New()
	s := NewSession(topic, topic.Filter(documentID, id.String()), r.policy, r.source, sink, r.projector,
		WithID(id),
		WithLogger(r.logger),
		WithObserver(r.observer),
		WithKeepAlive(r.keepAlive),
	)

	// 2. Attach to the registry so shutdown can reach it
	if err := r.hub.Register(s); err != nil {
		_ = sink.Close()
		return err
	}
	defer r.hub.Unregister(topic.Name, s.ID())

	// 3. Block until the session is CLOSED
	return s.Run(ctx)
}
