package domain

import (
	"context"
	"time"

	"argentum/internal/common/types"
)

// Transaction is a ledger entry for a completed payment.
type Transaction struct {
	ID          string
	CardID      CardID
	CustomerID  types.CustomerID
	AccountID   string // funding account for debit payments
	CreditID    string // credit line for credit payments
	Amount      types.Money
	Description string
	Merchant    string
	OccurredAt  time.Time
}

// TransactionLedger is the external transaction service the payment engine
// records into and the boundary reads from. It is a collaborator, not part
// of the card store.
type TransactionLedger interface {
	// Record appends a completed payment to the ledger.
	Record(ctx context.Context, tx *Transaction) error
	// LastByCard returns the most recent transactions for a card,
	// newest first, up to the limit.
	LastByCard(ctx context.Context, cardID CardID, limit int) ([]*Transaction, error)
}
