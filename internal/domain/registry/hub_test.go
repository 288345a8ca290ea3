package registry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMember struct {
	id    uuid.UUID
	topic string

	once sync.Once
	done chan struct{}
	// stuck members ignore Cancel.
	stuck bool
}

func newMember(topic string) *fakeMember {
	return &fakeMember{id: uuid.New(), topic: topic, done: make(chan struct{})}
}

func (m *fakeMember) ID() uuid.UUID         { return m.id }
func (m *fakeMember) Topic() string         { return m.topic }
func (m *fakeMember) Done() <-chan struct{} { return m.done }

func (m *fakeMember) Cancel() {
	if m.stuck {
		return
	}
	m.once.Do(func() { close(m.done) })
}

func TestHub_RegisterAndStats(t *testing.T) {
	h := NewHub()

	a1, a2, b := newMember("boards"), newMember("boards"), newMember("items")
	require.NoError(t, h.Register(a1))
	require.NoError(t, h.Register(a2))
	require.NoError(t, h.Register(b))
	require.NoError(t, h.Register(a1), "registering twice is a no-op")

	stats := h.Stats()
	assert.Equal(t, 2, stats.TotalTopics)
	assert.Equal(t, 3, stats.TotalSessions)
	require.Len(t, stats.Topics, 2)
	assert.Equal(t, "boards", stats.Topics[0].Topic)
	assert.Equal(t, 2, stats.Topics[0].Sessions)
	assert.Equal(t, "items", stats.Topics[1].Topic)

	h.Unregister("items", b.ID())
	h.Unregister("items", b.ID())
	h.Unregister("unknown", uuid.New())

	stats = h.Stats()
	assert.Equal(t, 1, stats.TotalTopics)
	assert.Equal(t, 2, stats.TotalSessions)
}

func TestHub_TopicLimit(t *testing.T) {
	h := NewHub(WithMaxSessionsPerTopic(1))

	first := newMember("board")
	require.NoError(t, h.Register(first))
	assert.ErrorIs(t, h.Register(newMember("board")), ErrTopicFull)
	require.NoError(t, h.Register(newMember("items")))

	h.Unregister("board", first.ID())
	assert.NoError(t, h.Register(newMember("board")))
}

func TestHub_ShutdownCancelsEverySession(t *testing.T) {
	h := NewHub()
	members := []*fakeMember{newMember("boards"), newMember("boards"), newMember("items")}
	for _, m := range members {
		require.NoError(t, h.Register(m))
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, h.Shutdown(ctx))

	for _, m := range members {
		select {
		case <-m.Done():
		default:
			t.Fatalf("member %s was not cancelled", m.ID())
		}
	}
	assert.ErrorIs(t, h.Register(newMember("boards")), ErrShuttingDown)
}

func TestHub_ShutdownBoundedByContext(t *testing.T) {
	h := NewHub()
	stuck := newMember("boards")
	stuck.stuck = true
	require.NoError(t, h.Register(stuck))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, h.Shutdown(ctx), context.DeadlineExceeded)
}
