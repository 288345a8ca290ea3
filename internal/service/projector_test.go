package service

import (
	"context"
	"errors"
	"testing"

	"github.com/shopfloor-ops/change-relay/internal/domain/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProjector_Project(t *testing.T) {
	board := model.TopicConfig{
		Name:           "board",
		Collection:     "boards",
		Operations:     []model.OperationKind{model.OpInsert, model.OpUpdate, model.OpReplace, model.OpDelete},
		LookupOnUpdate: true,
		RequiredField:  "items",
	}
	resolver := &fakeResolver{docs: map[string]map[string]any{
		"b1": {"_id": "b1", "items": []any{"i1"}},
	}}
	p := NewProjector(resolver)
	ctx := context.Background()

	t.Run("insert carries the document", func(t *testing.T) {
		ev, err := p.Project(ctx, &model.ChangeRecord{Op: model.OpInsert, DocumentID: "b2", Document: map[string]any{"x": 1}}, board)
		require.NoError(t, err)
		require.NotNil(t, ev)
		assert.Equal(t, model.EventInsert, ev.Type)
		assert.Equal(t, map[string]any{"x": 1}, ev.Document)
	})

	t.Run("delete carries only the id", func(t *testing.T) {
		ev, err := p.Project(ctx, &model.ChangeRecord{Op: model.OpDelete, DocumentID: "b1", Document: map[string]any{"x": 1}}, board)
		require.NoError(t, err)
		assert.Equal(t, model.EventDelete, ev.Type)
		assert.Equal(t, "b1", ev.DocumentID)
		assert.Nil(t, ev.Document)
	})

	t.Run("replace is reported as update", func(t *testing.T) {
		ev, err := p.Project(ctx, &model.ChangeRecord{Op: model.OpReplace, DocumentID: "b1", Document: map[string]any{"title": "t"}}, board)
		require.NoError(t, err)
		assert.Equal(t, model.EventUpdate, ev.Type)
		assert.Equal(t, map[string]any{"title": "t"}, ev.Document, "replace never triggers a lookup")
	})

	t.Run("update missing the required field is enriched", func(t *testing.T) {
		before := resolver.calls
		ev, err := p.Project(ctx, &model.ChangeRecord{Op: model.OpUpdate, DocumentID: "b1", Document: map[string]any{"title": "t"}}, board)
		require.NoError(t, err)
		assert.Equal(t, before+1, resolver.calls)
		assert.Equal(t, []any{"i1"}, ev.Document["items"])
	})

	t.Run("complete update skips the lookup", func(t *testing.T) {
		before := resolver.calls
		_, err := p.Project(ctx, &model.ChangeRecord{Op: model.OpUpdate, DocumentID: "b1", Document: map[string]any{"items": []any{}}}, board)
		require.NoError(t, err)
		assert.Equal(t, before, resolver.calls)
	})

	t.Run("uninterested operation is filtered", func(t *testing.T) {
		items := model.TopicConfig{Name: "items", Collection: "items", Operations: []model.OperationKind{model.OpInsert}}
		ev, err := p.Project(ctx, &model.ChangeRecord{Op: model.OpDelete, DocumentID: "i1"}, items)
		require.NoError(t, err)
		assert.Nil(t, ev)
	})
}

func TestProjector_LookupError(t *testing.T) {
	topic := model.TopicConfig{
		Name: "board", Collection: "boards",
		Operations:     []model.OperationKind{model.OpUpdate},
		LookupOnUpdate: true,
	}
	cause := errors.New("socket timeout")
	p := NewProjector(&fakeResolver{err: cause})

	ev, err := p.Project(context.Background(), &model.ChangeRecord{Op: model.OpUpdate, DocumentID: "b9"}, topic)
	assert.Nil(t, ev)

	var lookupErr *ProjectionLookupError
	require.ErrorAs(t, err, &lookupErr)
	assert.Equal(t, "boards", lookupErr.Collection)
	assert.Equal(t, "b9", lookupErr.DocumentID)
	assert.ErrorIs(t, err, cause)
}

func TestProjector_NoResolver(t *testing.T) {
	topic := model.TopicConfig{
		Name: "board", Collection: "boards",
		Operations:     []model.OperationKind{model.OpUpdate},
		LookupOnUpdate: true,
	}
	ev, err := NewProjector(nil).Project(context.Background(), &model.ChangeRecord{Op: model.OpUpdate, DocumentID: "b1"}, topic)
	require.NoError(t, err)
	assert.Equal(t, model.EventUpdate, ev.Type)
	assert.Nil(t, ev.Document)
}
