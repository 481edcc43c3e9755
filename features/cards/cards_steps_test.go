package cards

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cucumber/godog"

	"argentum/internal/cards/application"
	"argentum/internal/cards/domain"
	"argentum/internal/cards/infrastructure/funding"
	"argentum/internal/cards/infrastructure/memory"
	"argentum/internal/common/types"
)

type cardsState struct {
	ctx           context.Context
	service       *application.CardService
	gateway       *funding.StaticGateway
	customerID    types.CustomerID
	correlationID types.CorrelationID
	now           time.Time
	cardID        domain.CardID
	card          *application.CardDTO
	lastPayment   *application.PaymentResult
	lastError     error
}

func InitializeCardsScenario(sc *godog.ScenarioContext) {
	state := &cardsState{
		ctx:           context.Background(),
		correlationID: types.NewCorrelationID(),
		now:           time.Now().UTC(),
	}

	// Background steps
	sc.Step(`^a card service for customer "([^"]*)"$`, state.aCardServiceForCustomer)

	// Issuance and account steps
	sc.Step(`^I issue a debit card with main account "([^"]*)"$`, state.iIssueADebitCardWithMainAccount)
	sc.Step(`^account "([^"]*)" is associated with the card$`, state.accountIsAssociatedWithTheCard)
	sc.Step(`^I set "([^"]*)" as the main account$`, state.iSetTheMainAccount)
	sc.Step(`^the card status should be "([^"]*)"$`, state.theCardStatusShouldBe)
	sc.Step(`^the card number should be masked$`, state.theCardNumberShouldBeMasked)

	// Lifecycle steps
	sc.Step(`^I block the card$`, state.iBlockTheCard)
	sc.Step(`^I activate the card$`, state.iActivateTheCard)
	sc.Step(`^the card validity period has elapsed$`, state.theCardValidityPeriodHasElapsed)

	// Funding source steps
	sc.Step(`^account "([^"]*)" is funded$`, state.accountIsFunded)
	sc.Step(`^account "([^"]*)" has insufficient funds$`, state.accountHasInsufficientFunds)

	// Payment steps
	sc.Step(`^I pay (\d+) ([A-Z]{3}) at "([^"]*)"$`, state.iPayAt)
	sc.Step(`^I pay (\d+) ([A-Z]{3}) at "([^"]*)" with idempotency key "([^"]*)"$`, state.iPayAtWithIdempotencyKey)
	sc.Step(`^the payment should complete from account "([^"]*)"$`, state.thePaymentShouldCompleteFromAccount)
	sc.Step(`^the payment should be declined with error "([^"]*)"$`, state.thePaymentShouldBeDeclinedWithError)
	sc.Step(`^the accounts should be tried in order "([^"]*)"$`, state.theAccountsShouldBeTriedInOrder)
	sc.Step(`^no funding attempts should be made$`, state.noFundingAttemptsShouldBeMade)
}

func (s *cardsState) parseCurrency(currencyStr string) string {
	switch currencyStr {
	case "EUR":
		return types.CurrencyEUR
	case "USD":
		return types.CurrencyUSD
	default:
		return currencyStr
	}
}

func (s *cardsState) aCardServiceForCustomer(customerID string) error {
	s.customerID = types.CustomerID(customerID)
	s.gateway = funding.NewStaticGateway()
	s.service = application.NewCardService(
		memory.NewDataStore(),
		s.gateway,
		memory.NewLedger(),
		application.WithClock(func() time.Time { return s.now }),
	)
	return nil
}

func (s *cardsState) iIssueADebitCardWithMainAccount(mainAccountID string) error {
	card, err := s.service.CreateDebitCard(s.ctx, application.CreateDebitCardRequest{
		CustomerID:    s.customerID,
		MainAccountID: mainAccountID,
		CorrelationID: s.correlationID,
	})
	if err != nil {
		return fmt.Errorf("issuing debit card: %w", err)
	}
	s.card = card
	s.cardID, err = domain.ParseCardID(card.ID)
	return err
}

func (s *cardsState) accountIsAssociatedWithTheCard(accountID string) error {
	card, err := s.service.AssociateAccount(s.ctx, s.cardID, accountID, s.correlationID)
	if err != nil {
		return fmt.Errorf("associating account: %w", err)
	}
	s.card = card
	return nil
}

func (s *cardsState) iSetTheMainAccount(accountID string) error {
	card, err := s.service.SetMainAccount(s.ctx, s.cardID, accountID, s.correlationID)
	if err != nil {
		return fmt.Errorf("setting main account: %w", err)
	}
	s.card = card
	return nil
}

func (s *cardsState) theCardStatusShouldBe(status string) error {
	card, err := s.service.FindByID(s.ctx, s.cardID)
	if err != nil {
		return fmt.Errorf("loading card: %w", err)
	}
	if card.Status != status {
		return fmt.Errorf("expected status %q, got %q", status, card.Status)
	}
	return nil
}

func (s *cardsState) theCardNumberShouldBeMasked() error {
	if s.card == nil {
		return errors.New("no card issued")
	}
	if !strings.HasPrefix(s.card.CardNumber, "****-****-****-") {
		return fmt.Errorf("expected masked number, got %q", s.card.CardNumber)
	}
	return nil
}

func (s *cardsState) iBlockTheCard() error {
	card, err := s.service.BlockCard(s.ctx, s.cardID, s.correlationID)
	if err != nil {
		return fmt.Errorf("blocking card: %w", err)
	}
	s.card = card
	return nil
}

func (s *cardsState) iActivateTheCard() error {
	card, err := s.service.ActivateCard(s.ctx, s.cardID, s.correlationID)
	if err != nil {
		return fmt.Errorf("activating card: %w", err)
	}
	s.card = card
	return nil
}

func (s *cardsState) theCardValidityPeriodHasElapsed() error {
	s.now = s.now.AddDate(domain.ValidityYears, 0, 1)
	return nil
}

func (s *cardsState) accountIsFunded(accountID string) error {
	s.gateway.SetAccount(accountID, domain.FundingOK)
	return nil
}

func (s *cardsState) accountHasInsufficientFunds(accountID string) error {
	s.gateway.SetAccount(accountID, domain.FundingInsufficient)
	return nil
}

func (s *cardsState) iPayAt(amount int, currency, merchant string) error {
	return s.iPayAtWithIdempotencyKey(amount, currency, merchant, "")
}

func (s *cardsState) iPayAtWithIdempotencyKey(amount int, currency, merchant, idempotencyKey string) error {
	result, err := s.service.ProcessPayment(s.ctx, application.PaymentRequest{
		CardID:         s.cardID,
		Amount:         types.NewMoneyFromInt(int64(amount), s.parseCurrency(currency)),
		Merchant:       merchant,
		IdempotencyKey: idempotencyKey,
		CorrelationID:  s.correlationID,
	})

	// Errors are captured in state for later assertions.
	s.lastError = err
	s.lastPayment = result
	return nil
}

func (s *cardsState) thePaymentShouldCompleteFromAccount(accountID string) error {
	if s.lastError != nil {
		return fmt.Errorf("expected payment to complete, got error: %v", s.lastError)
	}
	if s.lastPayment == nil {
		return errors.New("no payment result")
	}
	if s.lastPayment.Status != application.PaymentStatusCompleted {
		return fmt.Errorf("expected status %q, got %q", application.PaymentStatusCompleted, s.lastPayment.Status)
	}
	if s.lastPayment.AccountID != accountID {
		return fmt.Errorf("expected settlement from %q, got %q", accountID, s.lastPayment.AccountID)
	}
	return nil
}

func (s *cardsState) thePaymentShouldBeDeclinedWithError(errorMsg string) error {
	if s.lastError == nil {
		return errors.New("expected payment to be declined, but it succeeded")
	}

	if errorMsg == "insufficient balance" && !errors.Is(s.lastError, domain.ErrInsufficientBalance) {
		return fmt.Errorf("expected insufficient balance, got: %v", s.lastError)
	}
	if !strings.Contains(s.lastError.Error(), errorMsg) {
		return fmt.Errorf("expected error containing %q, got: %v", errorMsg, s.lastError)
	}
	return nil
}

func (s *cardsState) theAccountsShouldBeTriedInOrder(expected string) error {
	attempts := s.gateway.Attempts()
	tried := make([]string, 0, len(attempts))
	for _, attempt := range attempts {
		tried = append(tried, attempt.AccountID)
	}

	got := strings.Join(tried, ",")
	if got != expected {
		return fmt.Errorf("expected attempts %q, got %q", expected, got)
	}
	return nil
}

func (s *cardsState) noFundingAttemptsShouldBeMade() error {
	if attempts := s.gateway.Attempts(); len(attempts) != 0 {
		return fmt.Errorf("expected no funding attempts, got %d", len(attempts))
	}
	return nil
}
