package events

import (
	"context"
	"time"

	"argentum/internal/cards/domain"
	"argentum/internal/common/logging"
	"argentum/internal/common/metrics"
	"argentum/internal/common/types"
)

// Relay drains the outbox and publishes pending events.
// Entries are published sequentially in occurred_at order, which preserves
// per-card ordering; a failed publish stops the current drain so no later
// event for the same card can overtake it. The failed entry stays in the
// outbox and is retried on the next pass (at-least-once).
type Relay struct {
	outbox    domain.OutboxRepository
	publisher *Publisher
	batchSize int
	interval  time.Duration
}

// NewRelay creates a Relay over the given outbox and publisher.
func NewRelay(outbox domain.OutboxRepository, publisher *Publisher) *Relay {
	return &Relay{
		outbox:    outbox,
		publisher: publisher,
		batchSize: 100,
		interval:  time.Second,
	}
}

// Run drains the outbox on a fixed interval until the context is canceled.
func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.DrainOnce(ctx); err != nil {
				logging.WarnContext(ctx, "Outbox drain failed", "error", err)
			}
		}
	}
}

// DrainOnce publishes pending outbox entries and marks them published.
// Returns the number of events published in this pass.
func (r *Relay) DrainOnce(ctx context.Context) (int, error) {
	entries, err := r.outbox.FetchUnpublished(ctx, r.batchSize)
	if err != nil {
		return 0, err
	}

	published := make([]types.EventID, 0, len(entries))
	for _, entry := range entries {
		if err := r.publisher.PublishEntry(ctx, entry); err != nil {
			// Stop the pass: publishing later entries out of order would
			// break per-card ordering. Mark what already went through.
			if markErr := r.outbox.MarkPublished(ctx, published); markErr != nil {
				logging.WarnContext(ctx, "Marking published events failed", "error", markErr)
			}
			metrics.OutboxPendingEvents.Set(float64(len(entries) - len(published)))
			return len(published), err
		}
		published = append(published, entry.ID)
	}

	if err := r.outbox.MarkPublished(ctx, published); err != nil {
		// Already-published entries will be redelivered next pass; consumers
		// de-duplicate on event_id.
		return len(published), err
	}

	metrics.OutboxPendingEvents.Set(0)
	return len(published), nil
}
