package memory

import (
	"context"
	"sync"

	"argentum/internal/cards/domain"
)

// Ledger is an in-memory TransactionLedger for tests and local runs.
// Concurrency: all access is guarded by a mutex.
type Ledger struct {
	mu           sync.RWMutex
	transactions []*domain.Transaction
}

// NewLedger creates an empty Ledger.
func NewLedger() *Ledger {
	return &Ledger{}
}

// Record appends a completed payment to the ledger.
func (l *Ledger) Record(ctx context.Context, tx *domain.Transaction) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.transactions = append(l.transactions, tx)
	return nil
}

// LastByCard returns the most recent transactions for a card, newest first.
func (l *Ledger) LastByCard(ctx context.Context, cardID domain.CardID, limit int) ([]*domain.Transaction, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	result := make([]*domain.Transaction, 0, limit)
	for i := len(l.transactions) - 1; i >= 0 && len(result) < limit; i-- {
		if l.transactions[i].CardID == cardID {
			result = append(result, l.transactions[i])
		}
	}
	return result, nil
}

var _ domain.TransactionLedger = (*Ledger)(nil)
