// Package pubsub carries change records over a watermill message bus.
package pubsub

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/shopfloor-ops/change-relay/internal/domain/model"
)

// SeqMetadataKey holds the publisher sequence. It doubles as the resume token.
const SeqMetadataKey = "seq"

// ChangeMessageV1 is the bus payload for one change.
type ChangeMessageV1 struct {
	Op         string         `json:"op"`
	DocumentID string         `json:"document_id"`
	Document   map[string]any `json:"document,omitempty"`
}

// TopicFor is the routing key a collection's changes travel on.
func TopicFor(prefix, collection string) string {
	if prefix == "" {
		return collection
	}
	return prefix + "." + collection
}

func encodeRecord(rec *model.ChangeRecord, seq int64) (*message.Message, error) {
	payload, err := json.Marshal(ChangeMessageV1{
		Op:         string(rec.Op),
		DocumentID: rec.DocumentID,
		Document:   rec.Document,
	})
	if err != nil {
		return nil, fmt.Errorf("encode change: %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(SeqMetadataKey, strconv.FormatInt(seq, 10))
	return msg, nil
}

func decodeRecord(msg *message.Message) (*model.ChangeRecord, int64, error) {
	seq, err := strconv.ParseInt(msg.Metadata.Get(SeqMetadataKey), 10, 64)
	if err != nil {
		return nil, 0, fmt.Errorf("decode change %s: bad %s: %w", msg.UUID, SeqMetadataKey, err)
	}

	var raw ChangeMessageV1
	if err := json.Unmarshal(msg.Payload, &raw); err != nil {
		return nil, 0, fmt.Errorf("decode change %s: %w", msg.UUID, err)
	}
	op, err := model.ParseOperationKind(raw.Op)
	if err != nil {
		return nil, 0, fmt.Errorf("decode change %s: %w", msg.UUID, err)
	}

	return &model.ChangeRecord{
		Op:         op,
		DocumentID: raw.DocumentID,
		Document:   raw.Document,
		Token:      seqToken(seq),
	}, seq, nil
}

func seqToken(seq int64) model.ResumeToken {
	return model.ResumeToken(strconv.FormatInt(seq, 10))
}

// tokenSeq reads a token back. Zero means "from now".
func tokenSeq(t model.ResumeToken) (int64, error) {
	if t.IsZero() {
		return 0, nil
	}
	return strconv.ParseInt(t.String(), 10, 64)
}
