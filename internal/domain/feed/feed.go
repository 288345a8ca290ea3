// Package feed defines the contract between the relay and a storage change feed.
package feed

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopfloor-ops/change-relay/internal/domain/model"
)

var (
	// ErrTimeout is returned by Subscription.Next when the bounded wait elapsed
	// without a change. It is not a failure.
	ErrTimeout = errors.New("feed: no change within max await")

	// ErrSubscriptionClosed reports that the upstream subscription is gone.
	// Distinct from network failures but equally recoverable.
	ErrSubscriptionClosed = errors.New("feed: subscription closed")
)

// Source opens subscriptions against a change feed.
type Source interface {
	// Open starts a subscription. A zero token starts from "now".
	Open(ctx context.Context, filter model.TopicFilter, token model.ResumeToken) (Subscription, error)
}

// Subscription is a single live cursor on the feed.
type Subscription interface {
	// Next blocks until a change arrives, the bounded wait elapses (ErrTimeout)
	// or ctx is done.
	Next(ctx context.Context) (*model.ChangeRecord, error)
	// Close releases the upstream cursor. Safe to call more than once.
	Close(ctx context.Context) error
}

// ErrNotFound is returned by Lookup when the document does not exist.
var ErrNotFound = errors.New("feed: document not found")

// Lookup is the point-read collaborator used to enrich a change with its
// owning aggregate.
type Lookup interface {
	FindByID(ctx context.Context, collection, id string) (map[string]any, error)
}

// TransientError marks a driver failure that a reconnect can fix.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("feed: transient: %v", e.Err) }

func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as a TransientError. Nil stays nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err carries a TransientError in its chain.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
