package domain

import (
	"context"
	"time"

	"argentum/internal/common/types"
)

// CardRepository defines the interface for card persistence.
// It is pure persistence: no business validation happens here.
// Storage failures are returned as-is and are distinct from ErrCardNotFound.
type CardRepository interface {
	// Save persists a card aggregate (upsert).
	// Implementations return ErrConflict when a version conflict is detected.
	Save(ctx context.Context, card *Card) error
	// FindByID retrieves a card by ID.
	// Returns ErrCardNotFound when no record exists.
	FindByID(ctx context.Context, id CardID) (*Card, error)
	// FindAll retrieves all cards ordered by creation time.
	FindAll(ctx context.Context) ([]*Card, error)
	// FindByCustomerID retrieves the cards owned by a customer.
	FindByCustomerID(ctx context.Context, customerID types.CustomerID) ([]*Card, error)
	// Delete permanently removes a card.
	// Returns ErrCardNotFound when no record exists.
	Delete(ctx context.Context, card *Card) error
}

// IdempotencyEntry represents a stored idempotency record for a payment.
type IdempotencyEntry struct {
	CardID         CardID
	IdempotencyKey string
	ResponseBody   []byte
	CreatedAt      time.Time
}

// IdempotencyStore defines the interface for payment idempotency records.
// A replayed key returns the stored response without re-issuing any debit.
type IdempotencyStore interface {
	// Get retrieves an idempotency entry by card and key.
	// Returns (nil, nil) when no entry exists.
	Get(ctx context.Context, cardID CardID, key string) (*IdempotencyEntry, error)
	// Set stores an idempotency entry for the given key.
	Set(ctx context.Context, entry *IdempotencyEntry) error
}

// OutboxEntry represents a domain event waiting to be published.
type OutboxEntry struct {
	ID            types.EventID
	EventType     string
	CardID        CardID
	CustomerID    types.CustomerID
	CorrelationID types.CorrelationID
	Payload       []byte
	OccurredAt    time.Time
	PublishedAt   *time.Time
}

// OutboxRepository defines the interface for the outbox pattern.
// Events are written to the outbox within the same transaction as the card
// mutation, then published asynchronously by the relay. This is what makes
// publish failure survivable: the mutation is already durable and the event
// is redelivered until acknowledged.
type OutboxRepository interface {
	// Append adds an event to the outbox.
	Append(ctx context.Context, entry *OutboxEntry) error
	// FetchUnpublished retrieves unpublished events in occurred_at order.
	FetchUnpublished(ctx context.Context, limit int) ([]*OutboxEntry, error)
	// MarkPublished marks events as published.
	MarkPublished(ctx context.Context, ids []types.EventID) error
}

// Repositories provides access to all repositories within a transaction.
type Repositories interface {
	Cards() CardRepository
	Idempotency() IdempotencyStore
	Outbox() OutboxRepository
}

// AtomicCallback is the function signature for atomic operations.
// Any error returned will cause the transaction to be rolled back.
type AtomicCallback func(repos Repositories) error

// AtomicExecutor runs a callback within a transaction. The service requests
// the atomic scope; commit and rollback are the datastore's concern.
type AtomicExecutor interface {
	// Atomic executes the callback within a database transaction.
	// If the callback returns nil, the transaction is committed.
	// If the callback returns an error, the transaction is rolled back.
	Atomic(ctx context.Context, fn AtomicCallback) error
}
