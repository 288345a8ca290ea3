package service

import (
	"context"
	"fmt"

	"github.com/shopfloor-ops/change-relay/internal/domain/model"
)

// ProjectionLookupError means the aggregate needed to enrich a change could
// not be read. The change is skipped; the session carries on.
type ProjectionLookupError struct {
	Collection string
	DocumentID string
	Err        error
}

func (e *ProjectionLookupError) Error() string {
	return fmt.Sprintf("projection lookup %s/%s: %v", e.Collection, e.DocumentID, e.Err)
}

func (e *ProjectionLookupError) Unwrap() error { return e.Err }

// Projector maps raw change records onto client events.
type Projector struct {
	resolver Resolver
}

// NewProjector builds a projector. A nil resolver disables aggregate lookups;
// records are then forwarded with whatever the feed carried.
func NewProjector(resolver Resolver) *Projector {
	return &Projector{resolver: resolver}
}

// Project returns nil, nil for records the topic does not care about.
func (p *Projector) Project(ctx context.Context, rec *model.ChangeRecord, topic model.TopicConfig) (*model.ClientEvent, error) {
	if rec == nil || !topic.Interested(rec.Op) {
		return nil, nil
	}
	typ, ok := model.EventTypeFor(rec.Op)
	if !ok {
		return nil, nil
	}

	ev := &model.ClientEvent{Type: typ, DocumentID: rec.DocumentID}
	if rec.Op == model.OpDelete {
		return ev, nil
	}

	doc := rec.Document
	if rec.Op == model.OpUpdate && topic.LookupOnUpdate && p.resolver != nil && needsLookup(doc, topic.RequiredField) {
		fetched, err := p.resolver.Resolve(ctx, topic.Collection, rec.DocumentID, rec.Token)
		if err != nil {
			return nil, &ProjectionLookupError{
				Collection: topic.Collection,
				DocumentID: rec.DocumentID,
				Err:        err,
			}
		}
		doc = fetched
	}

	ev.Document = doc
	return ev, nil
}

func needsLookup(doc map[string]any, field string) bool {
	if doc == nil {
		return true
	}
	if field == "" {
		return false
	}
	_, ok := doc[field]
	return !ok
}
