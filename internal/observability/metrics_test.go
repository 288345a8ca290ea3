package observability

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopfloor-ops/change-relay/internal/domain/feed"
	"github.com/shopfloor-ops/change-relay/internal/domain/feed/feedtest"
	"github.com/shopfloor-ops/change-relay/internal/domain/model"
	"github.com/shopfloor-ops/change-relay/internal/domain/transport"
	"github.com/shopfloor-ops/change-relay/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMetrics(t *testing.T) *RelayMetrics {
	t.Helper()
	return NewRelayMetrics(prometheus.NewRegistry())
}

func TestRelayMetrics_SessionLifecycle(t *testing.T) {
	m := newTestMetrics(t)

	m.SessionOpened("boards")
	m.SessionOpened("boards")
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ActiveSessions.WithLabelValues("boards")))

	m.SessionClosed("boards", model.CloseSinkDead)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveSessions.WithLabelValues("boards")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsClosed.WithLabelValues("boards", "sink_dead")))
}

func TestRelayMetrics_Counters(t *testing.T) {
	m := newTestMetrics(t)

	m.EventForwarded("items", model.EventInsert)
	m.EventForwarded("items", model.EventInsert)
	m.RecordSkipped("items", "lookup")
	m.Reconnected("items")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.EventsForwarded.WithLabelValues("items", "insert")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecordsSkipped.WithLabelValues("items", "lookup")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Reconnects.WithLabelValues("items")))
}

// discardConn accepts every frame.
type discardConn struct{}

func (discardConn) WriteFrame([]byte, time.Time) error { return nil }
func (discardConn) WritePing(time.Time) error          { return nil }
func (discardConn) Close() error                       { return nil }

func TestRelayMetrics_ObservesSession(t *testing.T) {
	m := newTestMetrics(t)
	topic := model.TopicConfig{
		Name:       "items",
		Collection: "items",
		Operations: []model.OperationKind{model.OpInsert},
	}
	src := feedtest.NewSource(
		[]feedtest.Step{
			feedtest.Insert("i1", "t1", nil),
			feedtest.Delete("i1", "t2"),
			feedtest.Fail(feed.ErrSubscriptionClosed),
		},
		[]feedtest.Step{feedtest.Insert("i2", "t3", nil)},
	)
	sink := transport.NewSink(discardConn{}, func(*model.ClientEvent) ([]byte, error) { return []byte("x"), nil }, 0)
	s := service.NewSession(topic, topic.Filter("", "metrics"), service.NewRetryPolicy(3, time.Millisecond),
		src, sink, service.NewProjector(nil),
		service.WithObserver(m),
		service.WithLogger(slog.Default()),
	)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.EventsForwarded.WithLabelValues("items", "insert")) == 2
	}, 2*time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-errCh)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecordsSkipped.WithLabelValues("items", "filtered")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Reconnects.WithLabelValues("items")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ActiveSessions.WithLabelValues("items")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsClosed.WithLabelValues("items", "cancelled")))
}
