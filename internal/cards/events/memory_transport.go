package events

import (
	"context"
	"sync"

	"argentum/internal/common/logging"
)

// MemoryTransport is an in-process Transport that records envelopes per
// topic in send order. It backs tests and local runs; a broker client
// implementing Transport replaces it in deployment.
// Concurrency: all access is guarded by a mutex.
type MemoryTransport struct {
	mu       sync.Mutex
	messages map[string][]Envelope
}

// NewMemoryTransport creates an empty MemoryTransport.
func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{messages: make(map[string][]Envelope)}
}

// Send records the envelope under the topic and acknowledges immediately.
func (t *MemoryTransport) Send(ctx context.Context, topic, key string, envelope Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.Lock()
	t.messages[topic] = append(t.messages[topic], envelope)
	t.mu.Unlock()

	logging.DebugContext(ctx, "Event delivered",
		"topic", topic,
		"key", key,
		"event_type", envelope.EventType,
	)
	return nil
}

// Messages returns a copy of the envelopes sent to a topic, in send order.
func (t *MemoryTransport) Messages(topic string) []Envelope {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Envelope, len(t.messages[topic]))
	copy(out, t.messages[topic])
	return out
}

// Verify interface implementation.
var _ Transport = (*MemoryTransport)(nil)
