package funding

import (
	"context"
	"fmt"
	"sync"

	"argentum/internal/cards/domain"
	"argentum/internal/common/types"
)

// StaticGateway is a FundingGateway driven by a fixed decision table.
// Each account or credit line maps to the outcome its debit attempt gets.
// Unknown accounts fail, matching how the real services answer for accounts
// they do not hold. It backs tests, the acceptance suite, and local runs.
// Concurrency: all access is guarded by a mutex.
type StaticGateway struct {
	mu       sync.Mutex
	accounts map[string]domain.FundingStatus
	credits  map[string]domain.FundingStatus
	balances map[string]types.Money
	attempts []Attempt
}

// Attempt records a single funding call in arrival order.
type Attempt struct {
	AccountID string
	CreditID  string
	Amount    types.Money
}

// NewStaticGateway creates an empty StaticGateway.
func NewStaticGateway() *StaticGateway {
	return &StaticGateway{
		accounts: make(map[string]domain.FundingStatus),
		credits:  make(map[string]domain.FundingStatus),
		balances: make(map[string]types.Money),
	}
}

// SetAccount sets the outcome debit attempts against the account get.
func (g *StaticGateway) SetAccount(accountID string, status domain.FundingStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.accounts[accountID] = status
}

// SetCredit sets the outcome charge attempts against the credit line get.
func (g *StaticGateway) SetCredit(creditID string, status domain.FundingStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.credits[creditID] = status
}

// SetBalance sets the balance reported for the account.
func (g *StaticGateway) SetBalance(accountID string, balance types.Money) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.balances[accountID] = balance
}

// Attempts returns the funding calls seen so far, in arrival order.
func (g *StaticGateway) Attempts() []Attempt {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Attempt, len(g.attempts))
	copy(out, g.attempts)
	return out
}

// Reset clears the recorded attempts.
func (g *StaticGateway) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.attempts = nil
}

// DebitAccount answers from the decision table and records the attempt.
func (g *StaticGateway) DebitAccount(ctx context.Context, accountID string, amount types.Money) (domain.FundingResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.FundingResult{}, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.attempts = append(g.attempts, Attempt{AccountID: accountID, Amount: amount})

	status, ok := g.accounts[accountID]
	if !ok {
		return domain.FundingResult{Status: domain.FundingFailed, Detail: "unknown account"}, nil
	}
	return domain.FundingResult{Status: status}, nil
}

// ChargeCredit answers from the decision table and records the attempt.
func (g *StaticGateway) ChargeCredit(ctx context.Context, creditID string, amount types.Money) (domain.FundingResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.FundingResult{}, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.attempts = append(g.attempts, Attempt{CreditID: creditID, Amount: amount})

	status, ok := g.credits[creditID]
	if !ok {
		return domain.FundingResult{Status: domain.FundingFailed, Detail: "unknown credit line"}, nil
	}
	return domain.FundingResult{Status: status}, nil
}

// AccountBalance answers from the balance table.
func (g *StaticGateway) AccountBalance(ctx context.Context, accountID string) (types.Money, error) {
	if err := ctx.Err(); err != nil {
		return types.Money{}, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	balance, ok := g.balances[accountID]
	if !ok {
		return types.Money{}, fmt.Errorf("no balance for account %s", accountID)
	}
	return balance, nil
}

var _ domain.FundingGateway = (*StaticGateway)(nil)
