package events

import (
	"context"
	"fmt"
	"time"

	"argentum/internal/cards/domain"
	"argentum/internal/common/logging"
	"argentum/internal/common/metrics"
	"argentum/internal/common/types"
)

// Topics maps event categories to transport topics.
// Creation and association events go to CardEvents, payments to
// PaymentEvents, lifecycle status changes to StatusEvents.
type Topics struct {
	CardEvents    string
	PaymentEvents string
	StatusEvents  string
}

// DefaultTopics returns the standard topic names.
func DefaultTopics() Topics {
	return Topics{
		CardEvents:    "card-events",
		PaymentEvents: "payment-events",
		StatusEvents:  "card-status-events",
	}
}

// Publisher sends event envelopes keyed by card ID so that the transport
// preserves per-card ordering. Delivery is at-least-once: Publish waits for
// the transport acknowledgment and retries transient failures with backoff
// before giving up.
type Publisher struct {
	transport  Transport
	topics     Topics
	maxRetries int
	backoff    time.Duration
}

// NewPublisher creates a Publisher over the given transport.
func NewPublisher(transport Transport, topics Topics) *Publisher {
	return &Publisher{
		transport:  transport,
		topics:     topics,
		maxRetries: 3,
		backoff:    time.Second,
	}
}

// Publish wraps the payload in an envelope with a fresh event ID and capture
// timestamp and sends it to the topic selected by event type.
func (p *Publisher) Publish(
	ctx context.Context,
	eventType string,
	cardID domain.CardID,
	customerID types.CustomerID,
	correlationID types.CorrelationID,
	payload []byte,
) error {
	envelope := Envelope{
		EventID:       types.NewEventID(),
		EventType:     eventType,
		CardID:        cardID.String(),
		CustomerID:    customerID.String(),
		OccurredAt:    time.Now().UTC(),
		CorrelationID: correlationID,
		Payload:       payload,
	}
	return p.send(ctx, envelope)
}

// PublishEntry publishes an outbox entry, preserving the event identity and
// capture timestamp assigned when the entry was appended. Redelivery of the
// same entry therefore carries the same event_id.
func (p *Publisher) PublishEntry(ctx context.Context, entry *domain.OutboxEntry) error {
	envelope := Envelope{
		EventID:       entry.ID,
		EventType:     entry.EventType,
		CardID:        entry.CardID.String(),
		CustomerID:    entry.CustomerID.String(),
		OccurredAt:    entry.OccurredAt,
		CorrelationID: entry.CorrelationID,
		Payload:       entry.Payload,
	}
	return p.send(ctx, envelope)
}

func (p *Publisher) send(ctx context.Context, envelope Envelope) error {
	topic := p.topicFor(envelope.EventType)

	var lastErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepContext(ctx, p.backoff*time.Duration(attempt)); err != nil {
				return err
			}
		}

		lastErr = p.transport.Send(ctx, topic, envelope.CardID, envelope)
		if lastErr == nil {
			metrics.EventsPublished.WithLabelValues(topic).Inc()
			logging.DebugContext(ctx, "Event published",
				"event_id", envelope.EventID.String(),
				"event_type", envelope.EventType,
				"topic", topic,
			)
			return nil
		}

		metrics.EventPublishFailures.WithLabelValues(topic).Inc()
		logging.WarnContext(ctx, "Event publish attempt failed",
			"event_id", envelope.EventID.String(),
			"topic", topic,
			"attempt", attempt+1,
			"error", lastErr,
		)
	}

	return fmt.Errorf("publishing event %s to topic %s: %w", envelope.EventID.String(), topic, lastErr)
}

func (p *Publisher) topicFor(eventType string) string {
	switch eventType {
	case domain.EventTypePaymentProcessed:
		return p.topics.PaymentEvents
	case domain.EventTypeCardBlocked, domain.EventTypeCardActivated, domain.EventTypeCardExpired:
		return p.topics.StatusEvents
	default:
		return p.topics.CardEvents
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
