package events

import (
	"encoding/json"
	"time"

	"argentum/internal/common/types"
)

// Envelope wraps every published domain event with standard metadata.
// Consumers rely on event_id for de-duplication under at-least-once delivery.
type Envelope struct {
	EventID       types.EventID       `json:"event_id"`
	EventType     string              `json:"event_type"`
	CardID        string              `json:"card_id"`
	CustomerID    string              `json:"customer_id"`
	OccurredAt    time.Time           `json:"timestamp"`
	CorrelationID types.CorrelationID `json:"correlation_id,omitempty"`
	Payload       json.RawMessage     `json:"payload"`
}

// UnmarshalPayload decodes the payload into the target struct.
func (e Envelope) UnmarshalPayload(target any) error {
	return json.Unmarshal(e.Payload, target)
}
