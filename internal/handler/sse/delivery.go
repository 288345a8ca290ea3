package sse

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopfloor-ops/change-relay/internal/domain/registry"
	"github.com/shopfloor-ops/change-relay/internal/domain/transport"
	ssemarshaller "github.com/shopfloor-ops/change-relay/internal/handler/marshaller/sse"
	"github.com/shopfloor-ops/change-relay/internal/service"
)

type SSEHandler struct {
	logger       *slog.Logger
	relayer      service.Relayer
	writeTimeout time.Duration
}

func NewSSEHandler(logger *slog.Logger, relayer service.Relayer, writeTimeout time.Duration) *SSEHandler {
	return &SSEHandler{
		logger:       logger,
		relayer:      relayer,
		writeTimeout: writeTimeout,
	}
}

// Stream handles GET /streams/{topic} and GET /streams/{topic}/{id}.
// The request lives as long as the relay session.
func (h *SSEHandler) Stream(w http.ResponseWriter, r *http.Request) {
	// 1. Resolve the topic before anything is written.
	topic := chi.URLParam(r, "topic")
	documentID := chi.URLParam(r, "id")
	if _, ok := h.relayer.Topic(topic); !ok {
		http.Error(w, "unknown topic", http.StatusNotFound)
		return
	}

	// 2. Wrap the response as the session's sink.
	conn, err := NewConn(w)
	if err != nil {
		h.logger.Error("SSE_UNSUPPORTED_WRITER", slog.Any("err", err))
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	sink := transport.NewSink(conn, ssemarshaller.MarshallEvent, h.writeTimeout)

	log := h.logger.With(slog.String("topic", topic), slog.String("remote_addr", r.RemoteAddr))
	if documentID != "" {
		log = log.With(slog.String("document_id", documentID))
	}
	log.Debug("SSE_STREAM_OPENED")

	// 3. Block until the client leaves or the session gives up.
	// Client disconnect cancels r.Context(), which cancels the session.
	err = h.relayer.Serve(r.Context(), topic, documentID, sink)
	if err == nil {
		log.Debug("SSE_STREAM_CLOSED")
		return
	}

	log.Warn("SSE_STREAM_FAILED", slog.Any("err", err), slog.Bool("started", conn.Started()))
	if !conn.Started() {
		http.Error(w, http.StatusText(StatusFor(err)), StatusFor(err))
	}
}

// StatusFor maps a session error onto the status sent when no frame was written yet.
func StatusFor(err error) int {
	var fatal *service.FatalFeedError
	switch {
	case errors.Is(err, service.ErrUnknownTopic):
		return http.StatusNotFound
	case errors.Is(err, registry.ErrTopicFull), errors.Is(err, registry.ErrShuttingDown):
		return http.StatusServiceUnavailable
	case errors.Is(err, service.ErrRetryExhausted), errors.As(err, &fatal):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
