package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"argentum/internal/cards/domain"
	"argentum/internal/common/types"
)

// Ledger is a TransactionLedger backed by PostgreSQL. Recording is best
// effort from the payment engine's point of view: entries live outside the
// card store's transactions because the money has already moved when they
// are written.
type Ledger struct {
	pool *pgxpool.Pool
}

// NewLedger creates a Ledger over the given pool.
func NewLedger(pool *pgxpool.Pool) *Ledger {
	return &Ledger{pool: pool}
}

// Record appends a completed payment to the ledger.
func (l *Ledger) Record(ctx context.Context, tx *domain.Transaction) error {
	_, err := l.pool.Exec(ctx, `
		INSERT INTO card_transactions (id, card_id, customer_id, account_id, credit_id, amount, currency, description, merchant, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		tx.ID,
		tx.CardID.String(),
		tx.CustomerID.String(),
		nullable(tx.AccountID),
		nullable(tx.CreditID),
		tx.Amount.Amount,
		tx.Amount.Currency,
		tx.Description,
		tx.Merchant,
		tx.OccurredAt,
	)
	return err
}

// LastByCard returns the most recent transactions for a card, newest first.
func (l *Ledger) LastByCard(ctx context.Context, cardID domain.CardID, limit int) ([]*domain.Transaction, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT id, card_id, customer_id, account_id, credit_id, amount, currency, description, merchant, occurred_at
		FROM card_transactions
		WHERE card_id = $1
		ORDER BY occurred_at DESC, id
		LIMIT $2`,
		cardID.String(), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transactions []*domain.Transaction
	for rows.Next() {
		var (
			tx        domain.Transaction
			rawCardID string
			customer  string
			accountID *string
			creditID  *string
			amount    decimal.Decimal
			currency  string
		)
		if err := rows.Scan(
			&tx.ID, &rawCardID, &customer, &accountID, &creditID,
			&amount, &currency, &tx.Description, &tx.Merchant, &tx.OccurredAt,
		); err != nil {
			return nil, err
		}

		parsedCardID, err := domain.ParseCardID(rawCardID)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid card id: %v", domain.ErrCorruptData, err)
		}
		tx.CardID = parsedCardID
		tx.CustomerID = types.CustomerID(customer)
		tx.AccountID = stringValue(accountID)
		tx.CreditID = stringValue(creditID)
		tx.Amount = types.NewMoney(amount, currency)
		transactions = append(transactions, &tx)
	}
	return transactions, rows.Err()
}

// Verify interface implementation.
var _ domain.TransactionLedger = (*Ledger)(nil)
