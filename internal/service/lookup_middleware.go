package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopfloor-ops/change-relay/internal/domain/feed"
)

// LookupMiddleware implements [DECORATOR_PATTERN] to add observability
// to aggregate reads without touching the storage adapter.
type LookupMiddleware struct {
	Next   feed.Lookup
	Logger *slog.Logger
}

// NewLookupMiddleware creates a logging decorator for a feed.Lookup.
func NewLookupMiddleware(next feed.Lookup, logger *slog.Logger) feed.Lookup {
	return &LookupMiddleware{
		Next:   next,
		Logger: logger,
	}
}

// FindByID wraps a single point read with timing and outcome logging.
func (m *LookupMiddleware) FindByID(ctx context.Context, collection, id string) (map[string]any, error) {
	start := time.Now()

	doc, err := m.Next.FindByID(ctx, collection, id)
	if err != nil {
		m.Logger.Warn("AGGREGATE_LOOKUP_FAILED",
			"collection", collection,
			"document_id", id,
			"err", err,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return nil, err
	}

	m.Logger.Debug("AGGREGATE_LOOKUP_COMPLETED",
		"collection", collection,
		"document_id", id,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return doc, nil
}
