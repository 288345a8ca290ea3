package wsmarshaller

import (
	"encoding/json"

	"github.com/shopfloor-ops/change-relay/internal/domain/model"
	"github.com/shopfloor-ops/change-relay/internal/domain/transport"
)

// Interface guard
var _ transport.Encoder = MarshallEvent

// MarshallEvent prepares one WebSocket text message. The payload is the bare
// ClientEvent so SSE and WS consumers share a single parser.
func MarshallEvent(ev *model.ClientEvent) ([]byte, error) {
	return json.Marshal(ev)
}
