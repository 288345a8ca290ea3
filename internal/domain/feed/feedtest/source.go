// Package feedtest provides a scripted, in-memory change feed for tests.
package feedtest

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/shopfloor-ops/change-relay/internal/domain/feed"
	"github.com/shopfloor-ops/change-relay/internal/domain/model"
)

var _ feed.Source = (*Source)(nil)

// Step is one scripted outcome of Subscription.Next.
type Step struct {
	Record *model.ChangeRecord
	Err    error
}

// Insert, Update, Replace and Delete build record steps. The token doubles as
// a readable label in assertions.
func Insert(id, token string, doc map[string]any) Step {
	return record(model.OpInsert, id, token, doc)
}

func Update(id, token string, doc map[string]any) Step {
	return record(model.OpUpdate, id, token, doc)
}

func Replace(id, token string, doc map[string]any) Step {
	return record(model.OpReplace, id, token, doc)
}

func Delete(id, token string) Step {
	return record(model.OpDelete, id, token, nil)
}

// Fail scripts a Next error.
func Fail(err error) Step { return Step{Err: err} }

func record(op model.OperationKind, id, token string, doc map[string]any) Step {
	return Step{Record: &model.ChangeRecord{
		Op:         op,
		DocumentID: id,
		Document:   doc,
		Token:      model.ResumeToken(token),
	}}
}

// OpenCall is what the session passed to Open.
type OpenCall struct {
	Filter model.TopicFilter
	Token  model.ResumeToken
}

// Source hands out one script per Open call, in order. When the scripts run
// out, further subscriptions idle until their context is done.
type Source struct {
	mu       sync.Mutex
	scripts  [][]Step
	openErrs map[int]error
	calls    []OpenCall
	subs     []*Subscription
}

func NewSource(scripts ...[]Step) *Source {
	return &Source{scripts: scripts, openErrs: make(map[int]error)}
}

// FailOpen makes the n-th (zero based) Open call return err.
func (s *Source) FailOpen(n int, err error) *Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.openErrs[n] = err
	return s
}

func (s *Source) Open(ctx context.Context, filter model.TopicFilter, token model.ResumeToken) (feed.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.calls)
	s.calls = append(s.calls, OpenCall{Filter: filter, Token: append(model.ResumeToken(nil), token...)})
	if err, ok := s.openErrs[n]; ok {
		return nil, err
	}

	var script []Step
	if idx := len(s.subs); idx < len(s.scripts) {
		script = s.scripts[idx]
	}
	sub := &Subscription{steps: script, closed: make(chan struct{})}
	s.subs = append(s.subs, sub)
	return sub, nil
}

// Calls returns a copy of every Open call so far.
func (s *Source) Calls() []OpenCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]OpenCall(nil), s.calls...)
}

// Subscriptions returns every subscription handed out so far.
func (s *Source) Subscriptions() []*Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Subscription(nil), s.subs...)
}

// Subscription replays its script, then idles.
type Subscription struct {
	mu     sync.Mutex
	steps  []Step
	closed chan struct{}

	closeOnce  sync.Once
	closeCalls atomic.Int32
}

func (s *Subscription) Next(ctx context.Context) (*model.ChangeRecord, error) {
	s.mu.Lock()
	if len(s.steps) > 0 {
		step := s.steps[0]
		s.steps = s.steps[1:]
		s.mu.Unlock()
		return step.Record, step.Err
	}
	s.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.closed:
		return nil, feed.ErrSubscriptionClosed
	}
}

func (s *Subscription) Close(context.Context) error {
	s.closeCalls.Add(1)
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

// CloseCalls is how many times Close was invoked.
func (s *Subscription) CloseCalls() int { return int(s.closeCalls.Load()) }

// IsClosed reports whether Close ran at least once.
func (s *Subscription) IsClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}
