package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"argentum/internal/cards/domain"
)

// IdempotencyStore persists payment idempotency records using PostgreSQL.
type IdempotencyStore struct {
	db Executor
}

// NewIdempotencyStore binds the store to a database handle (pool or tx).
func NewIdempotencyStore(db Executor) *IdempotencyStore {
	return &IdempotencyStore{db: db}
}

// Get retrieves an idempotency entry by card and key.
// Returns (nil, nil) when no entry exists.
func (s *IdempotencyStore) Get(ctx context.Context, cardID domain.CardID, key string) (*domain.IdempotencyEntry, error) {
	var entry domain.IdempotencyEntry
	var rawCardID string
	err := s.db.QueryRow(ctx, `
		SELECT card_id, idempotency_key, response_body, created_at
		FROM card_idempotency_keys
		WHERE card_id = $1 AND idempotency_key = $2`,
		cardID.String(), key,
	).Scan(&rawCardID, &entry.IdempotencyKey, &entry.ResponseBody, &entry.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	entry.CardID, err = domain.ParseCardID(rawCardID)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// Set stores an idempotency entry for the given key.
// A replayed write keeps the first stored response.
func (s *IdempotencyStore) Set(ctx context.Context, entry *domain.IdempotencyEntry) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO card_idempotency_keys (card_id, idempotency_key, response_body, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (card_id, idempotency_key) DO NOTHING`,
		entry.CardID.String(),
		entry.IdempotencyKey,
		entry.ResponseBody,
		entry.CreatedAt,
	)
	return err
}

// Verify interface implementation.
var _ domain.IdempotencyStore = (*IdempotencyStore)(nil)
