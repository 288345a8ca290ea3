package pubsub

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/shopfloor-ops/change-relay/internal/domain/model"
)

// Publisher puts change records on the bus. Sequences come from the wall
// clock and are strictly increasing per publisher only; consumers must not
// order records from different publishers by them.
type Publisher struct {
	publisher message.Publisher
	prefix    string
	now       func() time.Time

	mu      sync.Mutex
	lastSeq int64
}

func NewPublisher(pub message.Publisher, prefix string) *Publisher {
	return &Publisher{publisher: pub, prefix: prefix, now: time.Now}
}

// Publish returns the token assigned to rec.
func (p *Publisher) Publish(ctx context.Context, collection string, rec *model.ChangeRecord) (model.ResumeToken, error) {
	if rec == nil {
		return nil, fmt.Errorf("change publisher: cannot publish nil record")
	}

	seq := p.nextSeq()
	msg, err := encodeRecord(rec, seq)
	if err != nil {
		return nil, fmt.Errorf("change publisher: %w", err)
	}
	msg.SetContext(ctx)

	topic := TopicFor(p.prefix, collection)
	if err := p.publisher.Publish(topic, msg); err != nil {
		return nil, fmt.Errorf("change publisher: failed to publish to topic %s: %w", topic, err)
	}
	return seqToken(seq), nil
}

func (p *Publisher) Close() error {
	return p.publisher.Close()
}

func (p *Publisher) nextSeq() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	seq := p.now().UnixNano()
	if seq <= p.lastSeq {
		seq = p.lastSeq + 1
	}
	p.lastSeq = seq
	return seq
}
