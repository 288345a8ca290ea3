package service

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/shopfloor-ops/change-relay/internal/domain/feed/feedtest"
	"github.com/shopfloor-ops/change-relay/internal/domain/model"
	"github.com/shopfloor-ops/change-relay/internal/domain/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRelay(src *feedtest.Source, hub registry.Hubber) *RelayService {
	board := model.TopicConfig{
		Name:       "board",
		Collection: "boards",
		Operations: []model.OperationKind{model.OpUpdate, model.OpDelete},
	}
	return NewRelayService(
		RelayConfig{Topics: []model.TopicConfig{boardsTopic, board}, Policy: fastPolicy()},
		src, nil, hub, nil, slog.Default(),
	)
}

func TestRelay_UnknownTopic(t *testing.T) {
	src := feedtest.NewSource()
	sink := &recordingSink{}
	r := newTestRelay(src, registry.NewHub())

	err := r.Serve(context.Background(), "nope", "", sink)
	assert.ErrorIs(t, err, ErrUnknownTopic)
	assert.Empty(t, src.Calls())
	assert.Empty(t, sink.Events())
}

func TestRelay_Topics(t *testing.T) {
	r := newTestRelay(feedtest.NewSource(), registry.NewHub())

	topics := r.Topics()
	require.Len(t, topics, 2)
	assert.Equal(t, "board", topics[0].Name)
	assert.Equal(t, "boards", topics[1].Name)

	_, ok := r.Topic("board")
	assert.True(t, ok)
}

func TestRelay_ServeScopesFilterAndRegisters(t *testing.T) {
	src := feedtest.NewSource([]feedtest.Step{feedtest.Update("b1", "t1", nil)})
	sink := &recordingSink{}
	hub := registry.NewHub()
	r := newTestRelay(src, hub)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- r.Serve(ctx, "board", "b1", sink) }()

	require.Eventually(t, func() bool { return len(sink.Events()) == 2 }, 2*time.Second, time.Millisecond)
	assert.Equal(t, 1, hub.Stats().TotalSessions)

	calls := src.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "boards", calls[0].Filter.Collection)
	assert.Equal(t, "b1", calls[0].Filter.DocumentID)
	assert.NotEmpty(t, calls[0].Filter.SubscriberID)

	cancel()
	require.NoError(t, <-errCh)
	assert.Equal(t, 0, hub.Stats().TotalSessions)
}

func TestRelay_HubShutdownStopsSessions(t *testing.T) {
	src := feedtest.NewSource([]feedtest.Step{})
	sink := &recordingSink{}
	hub := registry.NewHub()
	r := newTestRelay(src, hub)

	errCh := make(chan error, 1)
	go func() { errCh <- r.Serve(context.Background(), "boards", "", sink) }()
	require.Eventually(t, func() bool { return hub.Stats().TotalSessions == 1 }, 2*time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, hub.Shutdown(ctx))
	require.NoError(t, <-errCh)
	assert.True(t, src.Subscriptions()[0].IsClosed())
}

func TestRelay_TopicFullClosesSink(t *testing.T) {
	hub := registry.NewHub(registry.WithMaxSessionsPerTopic(1))
	src := feedtest.NewSource([]feedtest.Step{})
	r := newTestRelay(src, hub)

	first := &recordingSink{}
	go func() { _ = r.Serve(context.Background(), "boards", "", first) }()
	require.Eventually(t, func() bool { return hub.Stats().TotalSessions == 1 }, 2*time.Second, time.Millisecond)

	second := &recordingSink{}
	err := r.Serve(context.Background(), "boards", "", second)
	assert.ErrorIs(t, err, registry.ErrTopicFull)
	assert.Equal(t, 1, second.closeCalls)
	assert.Empty(t, second.Events())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, hub.Shutdown(ctx))
}
