package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"argentum/internal/cards/domain"
	"argentum/internal/common/types"
)

// OutboxRepository persists outbox entries using PostgreSQL.
type OutboxRepository struct {
	db Executor
}

// NewOutboxRepository binds the repository to a database handle (pool or tx).
func NewOutboxRepository(db Executor) *OutboxRepository {
	return &OutboxRepository{db: db}
}

// Append adds an event to the outbox.
func (r *OutboxRepository) Append(ctx context.Context, entry *domain.OutboxEntry) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO card_outbox (id, event_type, card_id, customer_id, correlation_id, payload, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ID.String(),
		entry.EventType,
		entry.CardID.String(),
		entry.CustomerID.String(),
		entry.CorrelationID.String(),
		entry.Payload,
		entry.OccurredAt,
	)
	return err
}

// FetchUnpublished retrieves unpublished events in occurred_at order.
// Rows are locked with SKIP LOCKED so concurrent relays never publish the
// same entry twice within one drain.
func (r *OutboxRepository) FetchUnpublished(ctx context.Context, limit int) ([]*domain.OutboxEntry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, event_type, card_id, customer_id, correlation_id, payload, occurred_at, published_at
		FROM card_outbox
		WHERE published_at IS NULL
		ORDER BY occurred_at, id
		LIMIT $1
		FOR UPDATE SKIP LOCKED`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*domain.OutboxEntry
	for rows.Next() {
		entry, err := scanOutboxEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// MarkPublished marks events as published.
func (r *OutboxRepository) MarkPublished(ctx context.Context, ids []types.EventID) error {
	if len(ids) == 0 {
		return nil
	}
	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = id.String()
	}
	_, err := r.db.Exec(ctx, `
		UPDATE card_outbox
		SET published_at = now()
		WHERE id = ANY($1)`,
		raw,
	)
	return err
}

func scanOutboxEntry(row pgx.Row) (*domain.OutboxEntry, error) {
	var entry domain.OutboxEntry
	var id, cardID, customerID, correlationID string
	if err := row.Scan(
		&id,
		&entry.EventType,
		&cardID,
		&customerID,
		&correlationID,
		&entry.Payload,
		&entry.OccurredAt,
		&entry.PublishedAt,
	); err != nil {
		return nil, err
	}

	parsedCardID, err := domain.ParseCardID(cardID)
	if err != nil {
		return nil, err
	}
	entry.ID = types.EventID(id)
	entry.CardID = parsedCardID
	entry.CustomerID = types.CustomerID(customerID)
	entry.CorrelationID = types.CorrelationID(correlationID)
	return &entry, nil
}

// Verify interface implementation.
var _ domain.OutboxRepository = (*OutboxRepository)(nil)
