package application

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"argentum/internal/cards/domain"
	"argentum/internal/common/logging"
	"argentum/internal/common/metrics"
	"argentum/internal/common/types"
)

// PaymentRequest represents a payment to process against a card.
type PaymentRequest struct {
	CardID         domain.CardID
	Amount         types.Money
	Description    string
	Merchant       string
	IdempotencyKey string
	CorrelationID  types.CorrelationID
}

// PaymentResult is the outcome of a successfully processed payment.
type PaymentResult struct {
	CardID      string      `json:"card_id"`
	Status      string      `json:"status"`
	Amount      types.Money `json:"amount"`
	AccountID   string      `json:"account_id,omitempty"`
	CreditID    string      `json:"credit_id,omitempty"`
	ProcessedAt time.Time   `json:"processed_at"`
}

// PaymentStatusCompleted is the status of a settled payment.
const PaymentStatusCompleted = "COMPLETED"

// ProcessPayment runs a payment against a card.
//
// For debit cards the funding cascade is strictly ordered and sequential:
// the main account is tried first, then every other associated account in
// insertion order. The first successful debit settles the payment and no
// further account is touched. A declined or failed attempt moves on to the
// next account; exhausting the list fails the payment.
//
// For credit cards there is no cascade: a single charge against the credit
// line either settles or fails the payment.
//
// An idempotency key makes the payment replay-safe: a key already seen for
// this card returns the stored result without touching any funding source.
func (s *CardService) ProcessPayment(ctx context.Context, req PaymentRequest) (*PaymentResult, error) {
	if req.IdempotencyKey != "" {
		stored, err := s.repos.Idempotency().Get(ctx, req.CardID, req.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if stored != nil {
			var result PaymentResult
			if err := json.Unmarshal(stored.ResponseBody, &result); err != nil {
				return nil, fmt.Errorf("%w: stored payment response: %v", domain.ErrCorruptData, err)
			}
			logging.InfoContext(ctx, "Payment replayed from idempotency store",
				"card_id", req.CardID.String(),
				"idempotency_key", req.IdempotencyKey,
			)
			return &result, nil
		}
	}

	card, err := s.repos.Cards().FindByID(ctx, req.CardID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if card.Status() != domain.CardStatusActive {
		// Status is checked before the expiration date: a blocked card whose
		// validity has lapsed is reported as blocked and keeps its status.
		metrics.RecordPayment(string(card.Type()), "rejected")
		return nil, fmt.Errorf("%w: card is %s", domain.ErrInvalidOperation, card.Status())
	}
	if card.IsExpired(now) {
		// Validity lapsed since the last write. Expire the card first, then
		// reject the payment; the expiry is durable even though the payment
		// fails.
		if err := s.expireCard(ctx, card.ID(), req.CorrelationID); err != nil {
			return nil, err
		}
		metrics.RecordPayment(string(card.Type()), "rejected")
		return nil, fmt.Errorf("%w: card has expired", domain.ErrInvalidOperation)
	}
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: payment amount must be positive", domain.ErrInvalidOperation)
	}

	var fundedAccountID, fundedCreditID string
	switch card.Type() {
	case domain.CardTypeCredit:
		fundedCreditID, err = s.chargeCredit(ctx, card, req.Amount)
	default:
		fundedAccountID, err = s.runCascade(ctx, card, req.Amount)
	}
	if err != nil {
		metrics.RecordPayment(string(card.Type()), "declined")
		return nil, err
	}

	result := &PaymentResult{
		CardID:      card.ID().String(),
		Status:      PaymentStatusCompleted,
		Amount:      req.Amount,
		AccountID:   fundedAccountID,
		CreditID:    fundedCreditID,
		ProcessedAt: now,
	}

	// The ledger is an external collaborator: the money already moved, so a
	// recording failure must not fail the payment.
	tx := &domain.Transaction{
		ID:          uuid.NewString(),
		CardID:      card.ID(),
		CustomerID:  card.CustomerID(),
		AccountID:   fundedAccountID,
		CreditID:    fundedCreditID,
		Amount:      req.Amount,
		Description: req.Description,
		Merchant:    req.Merchant,
		OccurredAt:  now,
	}
	if err := s.ledger.Record(ctx, tx); err != nil {
		logging.WarnContext(ctx, "Recording transaction failed",
			"card_id", card.ID().String(),
			"error", err,
		)
	}

	if err := s.recordPaymentOutcome(ctx, card, req, result); err != nil {
		return nil, err
	}

	metrics.RecordPayment(string(card.Type()), "success")
	logging.InfoContext(ctx, "Payment processed",
		"card_id", card.ID().String(),
		"card_type", string(card.Type()),
		"amount", req.Amount.String(),
		"account_id", fundedAccountID,
	)
	return result, nil
}

// runCascade tries the card's funding accounts in order and returns the
// account that funded the payment.
func (s *CardService) runCascade(ctx context.Context, card *domain.Card, amount types.Money) (string, error) {
	// The cascade starts at the main account. A card without one has nothing
	// to cascade over, even if stale fallback associations survive in storage.
	if card.MainAccountID() == "" {
		return "", fmt.Errorf("%w: card has no accounts associated", domain.ErrInvalidOperation)
	}
	accounts := append([]string{card.MainAccountID()}, card.FallbackAccounts()...)

	attempts := 0
	failures := 0
	for _, accountID := range accounts {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		attempts++

		result, err := s.gateway.DebitAccount(ctx, accountID, amount)
		if err != nil {
			// The call itself failed; the next account may still fund the
			// payment, so the cascade continues.
			failures++
			logging.WarnContext(ctx, "Funding attempt failed",
				"card_id", card.ID().String(),
				"account_id", accountID,
				"error", err,
			)
			continue
		}
		if result.Funded() {
			metrics.CascadeAttempts.Observe(float64(attempts))
			return accountID, nil
		}

		logging.DebugContext(ctx, "Funding attempt declined",
			"card_id", card.ID().String(),
			"account_id", accountID,
			"status", string(result.Status),
		)
	}

	metrics.CascadeAttempts.Observe(float64(attempts))
	if failures > 0 {
		return "", fmt.Errorf("%w: %d of %d funding attempts errored, the rest declined",
			domain.ErrInsufficientBalance, failures, attempts)
	}
	return "", fmt.Errorf("%w: all %d associated accounts declined",
		domain.ErrInsufficientBalance, attempts)
}

// chargeCredit issues the single charge attempt a credit card gets.
func (s *CardService) chargeCredit(ctx context.Context, card *domain.Card, amount types.Money) (string, error) {
	if card.CreditID() == "" {
		return "", fmt.Errorf("%w: card has no credit line", domain.ErrInvalidOperation)
	}

	result, err := s.gateway.ChargeCredit(ctx, card.CreditID(), amount)
	if err != nil {
		return "", fmt.Errorf("charging credit line: %w", err)
	}
	if !result.Funded() {
		if result.Status == domain.FundingInsufficient {
			return "", fmt.Errorf("%w: credit line declined the charge", domain.ErrInsufficientBalance)
		}
		return "", fmt.Errorf("%w: credit line rejected the charge: %s", domain.ErrInvalidOperation, result.Detail)
	}
	return card.CreditID(), nil
}

// recordPaymentOutcome stages the payment event and idempotency record in a
// single transaction after the money has moved.
func (s *CardService) recordPaymentOutcome(ctx context.Context, card *domain.Card, req PaymentRequest, result *PaymentResult) error {
	return s.dataStore.Atomic(ctx, func(repos domain.Repositories) error {
		entry, err := domain.NewOutboxEntry(
			domain.EventTypePaymentProcessed,
			card.ID(),
			card.CustomerID(),
			req.CorrelationID,
			domain.PaymentProcessedEvent{
				CardID:      card.ID().String(),
				Amount:      req.Amount,
				AccountID:   result.AccountID,
				CreditID:    result.CreditID,
				Description: req.Description,
				Merchant:    req.Merchant,
			},
		)
		if err != nil {
			return err
		}
		if err := repos.Outbox().Append(ctx, entry); err != nil {
			return err
		}

		if req.IdempotencyKey == "" {
			return nil
		}
		body, err := json.Marshal(result)
		if err != nil {
			return err
		}
		return repos.Idempotency().Set(ctx, &domain.IdempotencyEntry{
			CardID:         card.ID(),
			IdempotencyKey: req.IdempotencyKey,
			ResponseBody:   body,
			CreatedAt:      result.ProcessedAt,
		})
	})
}

// expireCard performs the system-driven transition to EXPIRED. The card is
// reloaded inside the transaction so a concurrent expiry does not conflict.
func (s *CardService) expireCard(ctx context.Context, cardID domain.CardID, correlationID types.CorrelationID) error {
	err := s.dataStore.Atomic(ctx, func(repos domain.Repositories) error {
		card, err := repos.Cards().FindByID(ctx, cardID)
		if err != nil {
			return err
		}
		if card.Status() == domain.CardStatusExpired {
			return nil
		}
		oldStatus := card.Status()
		card.MarkExpired(s.now())
		if err := repos.Cards().Save(ctx, card); err != nil {
			return err
		}

		entry, err := domain.NewOutboxEntry(
			domain.EventTypeCardExpired,
			card.ID(),
			card.CustomerID(),
			correlationID,
			domain.CardStatusChangedEvent{
				CardID:    card.ID().String(),
				OldStatus: string(oldStatus),
				NewStatus: string(domain.CardStatusExpired),
				Reason:    "validity period elapsed",
			},
		)
		if err != nil {
			return err
		}
		return repos.Outbox().Append(ctx, entry)
	})
	if err != nil {
		return err
	}

	logging.InfoContext(ctx, "Card expired", "card_id", cardID.String())
	return nil
}
