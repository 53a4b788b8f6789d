// Package ingress turns events from other court subsystems into clerk queue items.
package ingress

import (
	"context"
	"errors"

	"github.com/bissquit/clerk-queue/internal/domain"
	"github.com/bissquit/clerk-queue/internal/pkg/ctxlog"
	"github.com/bissquit/clerk-queue/internal/queue"
)

// Creator creates queue items.
type Creator interface {
	Create(ctx context.Context, courtID string, input queue.CreateInput) (*domain.QueueItem, error)
}

// Enqueuer ensures a queue item exists for a source event.
type Enqueuer struct {
	creator Creator
}

// NewEnqueuer creates a new enqueuer.
func NewEnqueuer(creator Creator) *Enqueuer {
	return &Enqueuer{creator: creator}
}

// Ensure creates the item unless an open one already exists for the same source.
// An existing open item is not an error: created is false and item is nil.
func (e *Enqueuer) Ensure(ctx context.Context, source string, courtID string, input queue.CreateInput) (*domain.QueueItem, bool, error) {
	item, err := e.creator.Create(ctx, courtID, input)
	if err != nil {
		if errors.Is(err, queue.ErrDuplicateSource) {
			ctxlog.FromContext(ctx).Debug("source already queued",
				"source", source,
				"court_id", courtID,
				"source_type", input.SourceType,
				"source_id", input.SourceID,
			)
			recordEnqueue(source, outcomeDuplicate)
			return nil, false, nil
		}
		recordEnqueue(source, outcomeFailed)
		return nil, false, err
	}

	recordEnqueue(source, outcomeCreated)
	return item, true, nil
}
