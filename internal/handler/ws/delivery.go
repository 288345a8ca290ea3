package ws

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/shopfloor-ops/change-relay/internal/domain/transport"
	wsmarshaller "github.com/shopfloor-ops/change-relay/internal/handler/marshaller/ws"
	"github.com/shopfloor-ops/change-relay/internal/service"
)

type WSHandler struct {
	logger       *slog.Logger
	relayer      service.Relayer
	upgrader     websocket.Upgrader
	writeTimeout time.Duration
}

func NewWSHandler(logger *slog.Logger, relayer service.Relayer, writeTimeout time.Duration) *WSHandler {
	return &WSHandler{
		logger:       logger,
		relayer:      relayer,
		writeTimeout: writeTimeout,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true }, // dashboards are served from another origin
		},
	}
}

// ServeHTTP handles GET /ws/{topic} and GET /ws/{topic}/{id}.
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// 1. RESOLVE TOPIC BEFORE THE UPGRADE
	topic := chi.URLParam(r, "topic")
	documentID := chi.URLParam(r, "id")
	if _, ok := h.relayer.Topic(topic); !ok {
		http.Error(w, "unknown topic", http.StatusNotFound)
		return
	}

	// 2. UPGRADE TO WEBSOCKET
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("WS_UPGRADE_FAILED", slog.Any("err", err))
		return
	}

	log := h.logger.With(slog.String("topic", topic), slog.String("remote_addr", r.RemoteAddr))
	log.Info("WS_OPENED")

	// 3. READ PUMP: the client never sends data; a read error means it left.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// 4. RELAY VIA THE SAME SERVICE
	sink := transport.NewSink(NewConn(ws), wsmarshaller.MarshallEvent, h.writeTimeout)
	if err := h.relayer.Serve(ctx, topic, documentID, sink); err != nil {
		log.Warn("WS_STREAM_FAILED", slog.Any("err", err))
		return
	}
	log.Info("WS_CLOSED")
}
