package status

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/shopfloor-ops/change-relay/internal/domain/model"
	"github.com/shopfloor-ops/change-relay/internal/domain/registry"
	"github.com/shopfloor-ops/change-relay/internal/service"
)

// TopicView is the public shape of a configured topic.
type TopicView struct {
	Name           string   `json:"name"`
	Collection     string   `json:"collection"`
	Operations     []string `json:"operations"`
	LookupOnUpdate bool     `json:"lookup_on_update,omitempty"`
	RequiredField  string   `json:"required_field,omitempty"`
}

type StatusHandler struct {
	logger  *slog.Logger
	hub     registry.Hubber
	relayer service.Relayer
}

func NewStatusHandler(logger *slog.Logger, hub registry.Hubber, relayer service.Relayer) *StatusHandler {
	return &StatusHandler{logger: logger, hub: hub, relayer: relayer}
}

// Stats reports live sessions per topic.
func (h *StatusHandler) Stats(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, h.hub.Stats())
}

// Topics lists what clients may subscribe to.
func (h *StatusHandler) Topics(w http.ResponseWriter, _ *http.Request) {
	topics := h.relayer.Topics()
	out := make([]TopicView, 0, len(topics))
	for _, t := range topics {
		out = append(out, NewTopicView(t))
	}
	h.writeJSON(w, out)
}

func (h *StatusHandler) Health(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func NewTopicView(t model.TopicConfig) TopicView {
	ops := make([]string, 0, len(t.Operations))
	for _, op := range t.Operations {
		ops = append(ops, string(op))
	}
	return TopicView{
		Name:           t.Name,
		Collection:     t.Collection,
		Operations:     ops,
		LookupOnUpdate: t.LookupOnUpdate,
		RequiredField:  t.RequiredField,
	}
}

func (h *StatusHandler) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("STATUS_WRITE_FAILED", slog.Any("err", err))
	}
}
