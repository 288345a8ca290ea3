package registry

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopfloor-ops/change-relay/internal/domain/model"
	"golang.org/x/sync/errgroup"
)

var (
	ErrTopicFull    = errors.New("registry: topic session limit reached")
	ErrShuttingDown = errors.New("registry: shutting down")
)

// Member is a live relay session as the registry sees it.
type Member interface {
	ID() uuid.UUID
	Topic() string
	Cancel()
	// Done is closed once the member released its resources.
	Done() <-chan struct{}
}

// Hubber defines the gateway for live session bookkeeping.
type Hubber interface {
	Register(m Member) error
	Unregister(topic string, id uuid.UUID)
	Stats() model.HubStats
	Shutdown(ctx context.Context) error
}

var _ Hubber = (*Hub)(nil)

type hubConfig struct {
	maxPerTopic int
}

// Hub implements a [SCALABLE_REGISTRY] with one cell per topic.
type Hub struct {
	// cells stores Map[string]*Cell. Optimized for [READ_HEAVY] workloads.
	cells   sync.Map
	config  hubConfig
	started time.Time

	// regMu serializes cell creation/removal against shutdown.
	regMu   sync.Mutex
	closing bool
}

func NewHub(opts ...Option) *Hub {
	h := &Hub{started: time.Now()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register attaches a session to its topic cell, creating the cell lazily.
func (h *Hub) Register(m Member) error {
	h.regMu.Lock()
	defer h.regMu.Unlock()
	if h.closing {
		return ErrShuttingDown
	}

	// [LAZY_INIT] Create cell only when the first session arrives.
	val, _ := h.cells.LoadOrStore(m.Topic(), NewCell(m.Topic(), h.config.maxPerTopic))
	return val.(*Cell).Attach(m)
}

// Unregister performs [GRACEFUL_RECLAMATION] when a session ends.
func (h *Hub) Unregister(topic string, id uuid.UUID) {
	h.regMu.Lock()
	defer h.regMu.Unlock()

	if val, ok := h.cells.Load(topic); ok {
		if val.(*Cell).Detach(id) {
			h.cells.Delete(topic)
		}
	}
}

func (h *Hub) Stats() model.HubStats {
	stats := model.HubStats{Uptime: time.Since(h.started).Round(time.Second)}
	h.cells.Range(func(_, val any) bool {
		cell := val.(*Cell)
		n := cell.Len()
		if n == 0 {
			return true
		}
		stats.TotalTopics++
		stats.TotalSessions += n
		stats.Topics = append(stats.Topics, model.TopicStats{Topic: cell.Topic(), Sessions: n})
		return true
	})
	sort.Slice(stats.Topics, func(i, j int) bool { return stats.Topics[i].Topic < stats.Topics[j].Topic })
	return stats
}

// Shutdown refuses new sessions, cancels every live one in parallel and waits
// until they are released or ctx expires.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.regMu.Lock()
	h.closing = true
	h.regMu.Unlock()

	var members []Member
	h.cells.Range(func(_, val any) bool {
		members = append(members, val.(*Cell).Members()...)
		return true
	})

	g, gctx := errgroup.WithContext(ctx)
	for _, m := range members {
		m := m
		g.Go(func() error {
			m.Cancel()
			select {
			case <-m.Done():
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	}
	return g.Wait()
}
