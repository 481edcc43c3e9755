package types

import "github.com/google/uuid"

// CustomerID identifies the customer owning a card.
type CustomerID string

// CorrelationID tracks a request across service boundaries.
type CorrelationID string

// EventID uniquely identifies a domain event.
type EventID string

// NewEventID generates a new unique EventID.
func NewEventID() EventID {
	return EventID(uuid.NewString())
}

// NewCorrelationID generates a new unique CorrelationID.
func NewCorrelationID() CorrelationID {
	return CorrelationID(uuid.NewString())
}

// String returns the string representation of CustomerID.
func (c CustomerID) String() string {
	return string(c)
}

// String returns the string representation of CorrelationID.
func (c CorrelationID) String() string {
	return string(c)
}

// String returns the string representation of EventID.
func (e EventID) String() string {
	return string(e)
}

// IsEmpty checks if the CustomerID is empty.
func (c CustomerID) IsEmpty() bool {
	return c == ""
}

// IsEmpty checks if the CorrelationID is empty.
func (c CorrelationID) IsEmpty() bool {
	return c == ""
}

// IsEmpty checks if the EventID is empty.
func (e EventID) IsEmpty() bool {
	return e == ""
}
