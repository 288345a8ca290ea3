// Package mongo adapts MongoDB change streams and point reads to the feed contracts.
package mongo

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shopfloor-ops/change-relay/internal/domain/feed"
	"github.com/shopfloor-ops/change-relay/internal/domain/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Interface guards
var (
	_ feed.Source       = (*Source)(nil)
	_ feed.Subscription = (*subscription)(nil)
)

// Source opens change streams on collections of a single database.
type Source struct {
	db       *mongo.Database
	maxAwait time.Duration
	logger   *slog.Logger
}

// NewSource bounds every Next by maxAwait (server side maxAwaitTimeMS).
func NewSource(db *mongo.Database, maxAwait time.Duration, logger *slog.Logger) *Source {
	return &Source{db: db, maxAwait: maxAwait, logger: logger}
}

func (s *Source) Open(ctx context.Context, filter model.TopicFilter, token model.ResumeToken) (feed.Subscription, error) {
	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)
	if s.maxAwait > 0 {
		opts.SetMaxAwaitTime(s.maxAwait)
	}
	if !token.IsZero() {
		opts.SetResumeAfter(bson.Raw(token))
	}

	cs, err := s.db.Collection(filter.Collection).Watch(ctx, Pipeline(filter), opts)
	if err != nil {
		return nil, classify(err)
	}

	s.logger.Debug("CHANGE_STREAM_OPENED",
		slog.String("collection", filter.Collection),
		slog.String("document_id", filter.DocumentID),
		slog.Bool("resumed", !token.IsZero()),
	)
	return &subscription{cs: cs}, nil
}

// Pipeline narrows the stream server side to the interest set and, when
// scoped, to one document.
func Pipeline(filter model.TopicFilter) mongo.Pipeline {
	match := bson.D{}
	if len(filter.Operations) > 0 {
		ops := make(bson.A, 0, len(filter.Operations))
		for _, op := range filter.Operations {
			ops = append(ops, string(op))
		}
		match = append(match, bson.E{Key: "operationType", Value: bson.D{{Key: "$in", Value: ops}}})
	}
	if filter.DocumentID != "" {
		match = append(match, bson.E{Key: "documentKey._id", Value: keyMatch(filter.DocumentID)})
	}
	if len(match) == 0 {
		return mongo.Pipeline{}
	}
	return mongo.Pipeline{{{Key: "$match", Value: match}}}
}

// changeEvent is the subset of a change stream document the relay reads.
type changeEvent struct {
	OperationType string `bson:"operationType"`
	DocumentKey   struct {
		ID any `bson:"_id"`
	} `bson:"documentKey"`
	FullDocument bson.M `bson:"fullDocument"`
}

type subscription struct {
	cs        *mongo.ChangeStream
	closeOnce sync.Once
	closeErr  error
}

// Next performs at most one getMore. An empty batch within maxAwait is a timeout.
func (s *subscription) Next(ctx context.Context) (*model.ChangeRecord, error) {
	if s.cs.TryNext(ctx) {
		var ev changeEvent
		if err := s.cs.Decode(&ev); err != nil {
			return nil, err
		}
		return &model.ChangeRecord{
			Op:         model.OperationKind(ev.OperationType),
			DocumentID: idString(ev.DocumentKey.ID),
			Document:   normalize(ev.FullDocument),
			Token:      model.ResumeToken(append([]byte(nil), s.cs.ResumeToken()...)),
		}, nil
	}

	if err := s.cs.Err(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, classify(err)
	}
	if s.cs.ID() == 0 {
		return nil, feed.ErrSubscriptionClosed
	}
	return nil, feed.ErrTimeout
}

func (s *subscription) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.closeErr = s.cs.Close(ctx)
	})
	return s.closeErr
}
