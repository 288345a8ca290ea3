/*
Package registry keeps track of live relay sessions.

Key Architectural Concepts:
  - Topic Cells: every topic with at least one live session is represented by
    a Cell holding those sessions. Cells are created on first registration and
    dropped when the last session leaves.
  - Concurrency Management: lock-free topic lookups via sync.Map and a
    per-cell RWMutex for membership changes.
  - Shutdown: the Hub cancels every member and waits for each to release its
    upstream subscription and client channel.
*/
package registry

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Cell implements [ISOLATED_BOOKKEEPING] for a single topic.
type Cell struct {
	// [IDENTITY]
	topic string

	// [SESSIONS]
	// Every live session relaying this topic, keyed by session id.
	sessions map[uuid.UUID]Member

	// [LIMIT]
	// Zero means unbounded.
	maxSessions int

	mu sync.RWMutex

	createdAt time.Time
}

func NewCell(topic string, maxSessions int) *Cell {
	return &Cell{
		topic:       topic,
		sessions:    make(map[uuid.UUID]Member),
		maxSessions: maxSessions,
		createdAt:   time.Now(),
	}
}

func (c *Cell) Topic() string { return c.topic }

func (c *Cell) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.sessions)
}

func (c *Cell) Attach(m Member) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.sessions[m.ID()]; ok {
		return nil
	}
	if c.maxSessions > 0 && len(c.sessions) >= c.maxSessions {
		return ErrTopicFull
	}
	c.sessions[m.ID()] = m
	return nil
}

// Detach removes a session and reports whether the cell is now empty.
func (c *Cell) Detach(id uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, id)
	return len(c.sessions) == 0
}

// Members returns a snapshot of the live sessions.
func (c *Cell) Members() []Member {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Member, 0, len(c.sessions))
	for _, m := range c.sessions {
		out = append(out, m)
	}
	return out
}
