// Package ssemarshaller renders client events as text/event-stream frames.
package ssemarshaller

import (
	"bytes"
	"encoding/json"

	"github.com/shopfloor-ops/change-relay/internal/domain/model"
	"github.com/shopfloor-ops/change-relay/internal/domain/transport"
)

// Interface guard
var _ transport.Encoder = MarshallEvent

var (
	dataPrefix = []byte("data: ")
	frameEnd   = []byte("\n\n")

	// PingFrame is an SSE comment; EventSource ignores it.
	PingFrame = []byte(": ping\n\n")
)

// MarshallEvent builds a single `data: <json>\n\n` frame. encoding/json never
// emits raw newlines so the payload always fits one data line.
func MarshallEvent(ev *model.ClientEvent) ([]byte, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Grow(len(dataPrefix) + len(payload) + len(frameEnd))
	buf.Write(dataPrefix)
	buf.Write(payload)
	buf.Write(frameEnd)
	return buf.Bytes(), nil
}
