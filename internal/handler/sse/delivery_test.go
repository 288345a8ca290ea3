package sse

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopfloor-ops/change-relay/internal/domain/feed/feedtest"
	"github.com/shopfloor-ops/change-relay/internal/domain/model"
	"github.com/shopfloor-ops/change-relay/internal/domain/registry"
	"github.com/shopfloor-ops/change-relay/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, src *feedtest.Source) *httptest.Server {
	t.Helper()
	topics := []model.TopicConfig{
		{Name: "boards", Collection: "boards", Operations: []model.OperationKind{model.OpInsert, model.OpUpdate, model.OpDelete}},
		{Name: "board", Collection: "boards", Operations: []model.OperationKind{model.OpUpdate, model.OpDelete}},
	}
	relay := service.NewRelayService(
		service.RelayConfig{Topics: topics, Policy: service.NewRetryPolicy(3, time.Millisecond)},
		src, nil, registry.NewHub(), nil, slog.Default(),
	)
	h := NewSSEHandler(slog.Default(), relay, time.Second)

	r := chi.NewRouter()
	r.Get("/streams/{topic}", h.Stream)
	r.Get("/streams/{topic}/{id}", h.Stream)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

// readFrames collects n "data:" payloads from an SSE body.
func readFrames(t *testing.T, body io.Reader, n int) []string {
	t.Helper()
	var frames []string
	sc := bufio.NewScanner(body)
	for len(frames) < n && sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "data: ") {
			frames = append(frames, strings.TrimPrefix(line, "data: "))
		}
	}
	require.Len(t, frames, n, "stream ended early: %v", sc.Err())
	return frames
}

func TestSSEHandler_Streams(t *testing.T) {
	src := feedtest.NewSource([]feedtest.Step{
		feedtest.Insert("b1", "t1", map[string]any{"title": "Line 3"}),
		feedtest.Delete("b1", "t2"),
	})
	srv := newTestServer(t, src)

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/streams/boards", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))

	frames := readFrames(t, resp.Body, 3)
	assert.JSONEq(t, `{"type":"connected"}`, frames[0])
	assert.JSONEq(t, `{"type":"insert","documentId":"b1","document":{"title":"Line 3"}}`, frames[1])
	assert.JSONEq(t, `{"type":"delete","documentId":"b1"}`, frames[2])

	// client goes away: the upstream cursor must be released
	cancel()
	require.Eventually(t, func() bool {
		subs := src.Subscriptions()
		return len(subs) == 1 && subs[0].IsClosed()
	}, 2*time.Second, 5*time.Millisecond)
}

func TestSSEHandler_EntityScoped(t *testing.T) {
	src := feedtest.NewSource([]feedtest.Step{feedtest.Update("b7", "t1", nil)})
	srv := newTestServer(t, src)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/streams/board/b7", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	frames := readFrames(t, resp.Body, 2)
	assert.JSONEq(t, `{"type":"update","documentId":"b7"}`, frames[1])

	calls := src.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "b7", calls[0].Filter.DocumentID)
}

func TestSSEHandler_UnknownTopic(t *testing.T) {
	src := feedtest.NewSource()
	srv := newTestServer(t, src)

	resp, err := http.Get(srv.URL + "/streams/nope")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Empty(t, src.Calls())
}

func TestSSEHandler_FatalBeforeStart(t *testing.T) {
	src := feedtest.NewSource().FailOpen(0, errors.New("unauthorized"))
	srv := newTestServer(t, src)

	resp, err := http.Get(srv.URL + "/streams/boards")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.NotEqual(t, "text/event-stream", resp.Header.Get("Content-Type"))
}

func TestSSEHandler_FatalAfterStartClosesStream(t *testing.T) {
	src := feedtest.NewSource([]feedtest.Step{feedtest.Fail(errors.New("collection dropped"))})
	srv := newTestServer(t, src)

	resp, err := http.Get(srv.URL + "/streams/boards")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "data: {\"type\":\"connected\"}\n\n", string(body))
}

func TestConn_LazyHeadersAndPing(t *testing.T) {
	rec := httptest.NewRecorder()
	conn, err := NewConn(rec)
	require.NoError(t, err)
	assert.False(t, conn.Started())

	require.NoError(t, conn.WritePing(time.Now().Add(time.Second)))
	assert.True(t, conn.Started())
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no", rec.Header().Get("X-Accel-Buffering"))
	assert.Equal(t, ": ping\n\n", rec.Body.String())
	assert.True(t, rec.Flushed)

	require.NoError(t, conn.Close())
	assert.Error(t, conn.WriteFrame([]byte("data: {}\n\n"), time.Time{}))
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, StatusFor(service.ErrUnknownTopic))
	assert.Equal(t, http.StatusServiceUnavailable, StatusFor(registry.ErrTopicFull))
	assert.Equal(t, http.StatusBadGateway, StatusFor(&service.FatalFeedError{Err: errors.New("x")}))
	assert.Equal(t, http.StatusBadGateway, StatusFor(service.ErrRetryExhausted))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(errors.New("other")))
}
