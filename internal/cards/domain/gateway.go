package domain

import (
	"context"

	"argentum/internal/common/types"
)

// FundingStatus is the outcome of a funding-source call.
type FundingStatus string

const (
	// FundingOK means the amount was debited or charged.
	FundingOK FundingStatus = "OK"
	// FundingInsufficient means the account or credit line lacked funds.
	FundingInsufficient FundingStatus = "INSUFFICIENT_FUNDS"
	// FundingFailed covers every other failure (timeouts, service errors).
	FundingFailed FundingStatus = "FAILED"
)

// FundingResult carries the outcome of a single funding attempt.
type FundingResult struct {
	Status FundingStatus
	Detail string
}

// Funded reports whether the attempt moved money.
func (r FundingResult) Funded() bool {
	return r.Status == FundingOK
}

// FundingGateway abstracts the external funding-source services.
// A debit or charge is a real external side effect: callers must never issue
// the same logical payment against more than one account, and calls must
// honor the context deadline.
// An error return means the call itself failed (transport, timeout); a
// non-OK FundingResult means the service answered and declined.
type FundingGateway interface {
	// DebitAccount attempts to debit the amount from an account.
	DebitAccount(ctx context.Context, accountID string, amount types.Money) (FundingResult, error)
	// ChargeCredit attempts to charge the amount to a credit line.
	ChargeCredit(ctx context.Context, creditID string, amount types.Money) (FundingResult, error)
	// AccountBalance returns the current balance of an account.
	AccountBalance(ctx context.Context, accountID string) (types.Money, error)
}
