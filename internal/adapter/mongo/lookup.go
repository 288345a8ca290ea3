package mongo

import (
	"context"
	"errors"

	"github.com/shopfloor-ops/change-relay/internal/domain/feed"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Interface guard
var _ feed.Lookup = (*Lookup)(nil)

// Lookup reads the current version of an aggregate by _id.
type Lookup struct {
	db *mongo.Database
}

func NewLookup(db *mongo.Database) *Lookup {
	return &Lookup{db: db}
}

func (l *Lookup) FindByID(ctx context.Context, collection, id string) (map[string]any, error) {
	var doc bson.M
	err := l.db.Collection(collection).FindOne(ctx, bson.D{{Key: "_id", Value: keyMatch(id)}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, feed.ErrNotFound
	}
	if err != nil {
		return nil, classify(err)
	}
	return normalize(doc), nil
}
