package service

import (
	"errors"
	"time"

	"github.com/shopfloor-ops/change-relay/internal/domain/feed"
)

// Verdict is the outcome of classifying a feed error.
type Verdict int

const (
	Fatal Verdict = iota
	Retryable
)

func (v Verdict) String() string {
	if v == Retryable {
		return "retryable"
	}
	return "fatal"
}

const (
	DefaultMaxAttempts   = 3
	DefaultRetryInterval = 5 * time.Second
)

// RetryPolicy decides whether and when a session reconnects. It does no I/O.
type RetryPolicy struct {
	MaxAttempts int
	Interval    time.Duration
}

func NewRetryPolicy(maxAttempts int, interval time.Duration) RetryPolicy {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if interval < 0 {
		interval = DefaultRetryInterval
	}
	return RetryPolicy{MaxAttempts: maxAttempts, Interval: interval}
}

// Classify: a closed subscription and transient driver errors are retryable,
// everything else is fatal.
func (p RetryPolicy) Classify(err error) Verdict {
	switch {
	case err == nil:
		return Fatal
	case errors.Is(err, feed.ErrSubscriptionClosed), feed.IsTransient(err):
		return Retryable
	default:
		return Fatal
	}
}

// NextDelay is a fixed interval regardless of attempt.
func (p RetryPolicy) NextDelay(attempt int) time.Duration {
	return p.Interval
}

// Exceeded reports whether the budget is spent.
func (p RetryPolicy) Exceeded(attempt int) bool {
	return attempt >= p.MaxAttempts
}
