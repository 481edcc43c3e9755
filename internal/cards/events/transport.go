package events

import "context"

// Transport delivers envelopes to a topic keyed by card ID.
// Contract: ordered per key, at-least-once. Send returns only after the
// transport acknowledged the message; an error means the envelope may not
// have been delivered and must be retried.
// A broker-backed implementation is expected to enable idempotent-producer
// semantics so publisher-side retry does not duplicate deliveries.
type Transport interface {
	Send(ctx context.Context, topic, key string, envelope Envelope) error
}
