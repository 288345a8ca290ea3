package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/shopfloor-ops/change-relay/internal/domain/feed"
	"github.com/shopfloor-ops/change-relay/internal/domain/model"
	"github.com/sony/gobreaker"
)

// Resolver fetches the aggregate a change belongs to.
type Resolver interface {
	// Resolve returns the current document. The token pins the read to the
	// change being projected so concurrent sessions can share one result.
	Resolve(ctx context.Context, collection, id string, token model.ResumeToken) (map[string]any, error)
}

type LookupOptions struct {
	CacheSize       int
	Timeout         time.Duration
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

// CachedLookup is a cache-aside, circuit-broken Resolver over a feed.Lookup.
type CachedLookup struct {
	store   feed.Lookup
	cache   *lru.Cache[string, map[string]any]
	breaker *gobreaker.CircuitBreaker
	timeout time.Duration
}

// NewCachedLookup provides a thread-safe resolver with an internal LRU cache.
func NewCachedLookup(store feed.Lookup, opts LookupOptions) (*CachedLookup, error) {
	if opts.CacheSize <= 0 {
		opts.CacheSize = 4096
	}
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = 5
	}

	cache, err := lru.New[string, map[string]any](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("lookup cache: %w", err)
	}

	// [RESILIENCE] A dead store degrades to skipped records instead of a
	// stalled session waiting on every lookup timeout.
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "aggregate-lookup",
		Timeout: opts.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.BreakerFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, feed.ErrNotFound)
		},
	})

	return &CachedLookup{
		store:   store,
		cache:   cache,
		breaker: breaker,
		timeout: opts.Timeout,
	}, nil
}

func (l *CachedLookup) Resolve(ctx context.Context, collection, id string, token model.ResumeToken) (map[string]any, error) {
	key := collection + "/" + id + "@" + token.String()
	if doc, ok := l.cache.Get(key); ok {
		return doc, nil
	}

	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	res, err := l.breaker.Execute(func() (interface{}, error) {
		return l.store.FindByID(ctx, collection, id)
	})
	if err != nil {
		return nil, err
	}

	doc, _ := res.(map[string]any)
	l.cache.Add(key, doc)
	return doc, nil
}
