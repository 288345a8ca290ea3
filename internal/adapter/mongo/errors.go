package mongo

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopfloor-ops/change-relay/internal/domain/feed"
	"go.mongodb.org/mongo-driver/mongo"
)

// resumableLabel is attached by the server to change stream errors a fresh
// cursor can recover from (elections, failovers, stepdowns).
const resumableLabel = "ResumableChangeStreamError"

// classify maps driver failures onto the feed taxonomy. Context errors pass
// through untouched so the session can tell cancellation apart.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, mongo.ErrClientDisconnected):
		return fmt.Errorf("%w: %v", feed.ErrSubscriptionClosed, err)
	case mongo.IsNetworkError(err), mongo.IsTimeout(err):
		return feed.Transient(err)
	}

	var se mongo.ServerError
	if errors.As(err, &se) && se.HasErrorLabel(resumableLabel) {
		return feed.Transient(err)
	}
	return err
}
