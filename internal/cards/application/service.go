package application

import (
	"context"
	"fmt"
	"time"

	"argentum/internal/cards/domain"
	"argentum/internal/common/logging"
	"argentum/internal/common/metrics"
	"argentum/internal/common/types"
)

// CardService implements the application layer for the Cards context.
// It uses the Atomic pattern for transaction management:
//   - All state-changing operations run inside an Atomic callback
//   - Domain events are written to the outbox within the same transaction
//   - Card writes are version-conditional, so two concurrent mutations of the
//     same card cannot both commit
//
// The funding gateway and transaction ledger are external collaborators and
// are never called from inside an Atomic scope.
type CardService struct {
	dataStore domain.AtomicExecutor
	repos     domain.Repositories
	gateway   domain.FundingGateway
	ledger    domain.TransactionLedger
	digits    domain.DigitSource
	now       func() time.Time
}

// Option configures a CardService.
type Option func(*CardService)

// WithDigitSource injects the digit source used for card number and CVV
// generation. Tests use a deterministic source.
func WithDigitSource(src domain.DigitSource) Option {
	return func(s *CardService) { s.digits = src }
}

// WithClock injects the time source. Tests use a fixed clock.
func WithClock(now func() time.Time) Option {
	return func(s *CardService) { s.now = now }
}

// NewCardService creates a new CardService.
// The dataStore must implement both AtomicExecutor and Repositories.
func NewCardService(
	dataStore interface {
		domain.AtomicExecutor
		domain.Repositories
	},
	gateway domain.FundingGateway,
	ledger domain.TransactionLedger,
	opts ...Option,
) *CardService {
	s := &CardService{
		dataStore: dataStore,
		repos:     dataStore,
		gateway:   gateway,
		ledger:    ledger,
		digits:    domain.CryptoDigits(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CardDTO is the outward-facing representation of a card.
// The card number is always masked; the CVV never leaves the service.
type CardDTO struct {
	ID                 string      `json:"id"`
	CardNumber         string      `json:"card_number"`
	CustomerID         string      `json:"customer_id"`
	CardType           string      `json:"card_type"`
	Status             string      `json:"status"`
	ExpirationDate     time.Time   `json:"expiration_date"`
	AssociatedAccounts []string    `json:"associated_accounts,omitempty"`
	MainAccountID      string      `json:"main_account_id,omitempty"`
	CreditID           string      `json:"credit_id,omitempty"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
}

func mapToDTO(card *domain.Card) *CardDTO {
	return &CardDTO{
		ID:                 card.ID().String(),
		CardNumber:         card.MaskedNumber(),
		CustomerID:         card.CustomerID().String(),
		CardType:           string(card.Type()),
		Status:             string(card.Status()),
		ExpirationDate:     card.ExpirationDate(),
		AssociatedAccounts: card.AssociatedAccounts(),
		MainAccountID:      card.MainAccountID(),
		CreditID:           card.CreditID(),
		CreatedAt:          card.CreatedAt(),
		UpdatedAt:          card.UpdatedAt(),
	}
}

func mapAllToDTO(cards []*domain.Card) []*CardDTO {
	dtos := make([]*CardDTO, len(cards))
	for i, card := range cards {
		dtos[i] = mapToDTO(card)
	}
	return dtos
}

// FindAll returns all cards. Read-only; no Atomic scope.
func (s *CardService) FindAll(ctx context.Context) ([]*CardDTO, error) {
	cards, err := s.repos.Cards().FindAll(ctx)
	if err != nil {
		return nil, err
	}
	return mapAllToDTO(cards), nil
}

// FindByID returns a single card by ID.
func (s *CardService) FindByID(ctx context.Context, id domain.CardID) (*CardDTO, error) {
	card, err := s.repos.Cards().FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return mapToDTO(card), nil
}

// FindByCustomer returns the cards owned by a customer.
func (s *CardService) FindByCustomer(ctx context.Context, customerID types.CustomerID) ([]*CardDTO, error) {
	cards, err := s.repos.Cards().FindByCustomerID(ctx, customerID)
	if err != nil {
		return nil, err
	}
	return mapAllToDTO(cards), nil
}

// CreateDebitCardRequest represents a request to issue a debit card.
type CreateDebitCardRequest struct {
	CustomerID    types.CustomerID
	MainAccountID string
	CorrelationID types.CorrelationID
}

// CreateDebitCard issues a debit card. The main account is associated
// automatically and a CARD_CREATED event is staged in the same transaction.
func (s *CardService) CreateDebitCard(ctx context.Context, req CreateDebitCardRequest) (*CardDTO, error) {
	card, err := domain.NewDebitCard(req.CustomerID, req.MainAccountID, s.digits, s.now())
	if err != nil {
		return nil, err
	}

	err = s.dataStore.Atomic(ctx, func(repos domain.Repositories) error {
		if err := repos.Cards().Save(ctx, card); err != nil {
			return err
		}
		return appendCreatedEvent(ctx, repos, card, req.CorrelationID)
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordCardCreated(string(domain.CardTypeDebit))
	logging.InfoContext(ctx, "Debit card created",
		"card_id", card.ID().String(),
		"card_number", card.MaskedNumber(),
		"main_account_id", req.MainAccountID,
	)
	return mapToDTO(card), nil
}

// CreateCreditCardRequest represents a request to issue a credit card.
type CreateCreditCardRequest struct {
	CustomerID    types.CustomerID
	CreditID      string
	CorrelationID types.CorrelationID
}

// CreateCreditCard issues a credit card bound to an external credit line.
func (s *CardService) CreateCreditCard(ctx context.Context, req CreateCreditCardRequest) (*CardDTO, error) {
	card, err := domain.NewCreditCard(req.CustomerID, req.CreditID, s.digits, s.now())
	if err != nil {
		return nil, err
	}

	err = s.dataStore.Atomic(ctx, func(repos domain.Repositories) error {
		if err := repos.Cards().Save(ctx, card); err != nil {
			return err
		}
		return appendCreatedEvent(ctx, repos, card, req.CorrelationID)
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordCardCreated(string(domain.CardTypeCredit))
	logging.InfoContext(ctx, "Credit card created",
		"card_id", card.ID().String(),
		"card_number", card.MaskedNumber(),
	)
	return mapToDTO(card), nil
}

func appendCreatedEvent(ctx context.Context, repos domain.Repositories, card *domain.Card, correlationID types.CorrelationID) error {
	entry, err := domain.NewOutboxEntry(
		domain.EventTypeCardCreated,
		card.ID(),
		card.CustomerID(),
		correlationID,
		domain.CardCreatedEvent{
			CardID:           card.ID().String(),
			CustomerID:       card.CustomerID().String(),
			CardType:         string(card.Type()),
			MaskedCardNumber: card.MaskedNumber(),
			ExpirationDate:   card.ExpirationDate(),
			MainAccountID:    card.MainAccountID(),
			CreditID:         card.CreditID(),
		},
	)
	if err != nil {
		return err
	}
	return repos.Outbox().Append(ctx, entry)
}

// AssociateAccount appends an account to a debit card's associated accounts.
func (s *CardService) AssociateAccount(ctx context.Context, cardID domain.CardID, accountID string, correlationID types.CorrelationID) (*CardDTO, error) {
	var result *CardDTO

	err := s.dataStore.Atomic(ctx, func(repos domain.Repositories) error {
		card, err := repos.Cards().FindByID(ctx, cardID)
		if err != nil {
			return err
		}
		if err := card.Associate(accountID, s.now()); err != nil {
			return err
		}
		if err := repos.Cards().Save(ctx, card); err != nil {
			return err
		}

		entry, err := domain.NewOutboxEntry(
			domain.EventTypeAccountAssociated,
			card.ID(),
			card.CustomerID(),
			correlationID,
			domain.AccountAssociatedEvent{CardID: card.ID().String(), AccountID: accountID},
		)
		if err != nil {
			return err
		}
		if err := repos.Outbox().Append(ctx, entry); err != nil {
			return err
		}

		result = mapToDTO(card)
		return nil
	})
	if err != nil {
		return nil, err
	}

	logging.InfoContext(ctx, "Account associated",
		"card_id", cardID.String(),
		"account_id", accountID,
	)
	return result, nil
}

// SetMainAccount promotes an already-associated account to main.
func (s *CardService) SetMainAccount(ctx context.Context, cardID domain.CardID, accountID string, correlationID types.CorrelationID) (*CardDTO, error) {
	var result *CardDTO

	err := s.dataStore.Atomic(ctx, func(repos domain.Repositories) error {
		card, err := repos.Cards().FindByID(ctx, cardID)
		if err != nil {
			return err
		}
		oldAccountID := card.MainAccountID()
		if err := card.SetMainAccount(accountID, s.now()); err != nil {
			return err
		}
		if err := repos.Cards().Save(ctx, card); err != nil {
			return err
		}

		entry, err := domain.NewOutboxEntry(
			domain.EventTypeMainAccountChanged,
			card.ID(),
			card.CustomerID(),
			correlationID,
			domain.MainAccountChangedEvent{
				CardID:       card.ID().String(),
				OldAccountID: oldAccountID,
				NewAccountID: accountID,
			},
		)
		if err != nil {
			return err
		}
		if err := repos.Outbox().Append(ctx, entry); err != nil {
			return err
		}

		result = mapToDTO(card)
		return nil
	})
	if err != nil {
		return nil, err
	}

	logging.InfoContext(ctx, "Main account set",
		"card_id", cardID.String(),
		"account_id", accountID,
	)
	return result, nil
}

// BlockCard transitions a card to BLOCKED.
func (s *CardService) BlockCard(ctx context.Context, cardID domain.CardID, correlationID types.CorrelationID) (*CardDTO, error) {
	return s.changeStatus(ctx, cardID, correlationID, domain.EventTypeCardBlocked, "requested by client",
		func(card *domain.Card) error { return card.Block(s.now()) })
}

// ActivateCard transitions a blocked, non-expired card back to ACTIVE.
func (s *CardService) ActivateCard(ctx context.Context, cardID domain.CardID, correlationID types.CorrelationID) (*CardDTO, error) {
	return s.changeStatus(ctx, cardID, correlationID, domain.EventTypeCardActivated, "requested by client",
		func(card *domain.Card) error { return card.Activate(s.now()) })
}

func (s *CardService) changeStatus(
	ctx context.Context,
	cardID domain.CardID,
	correlationID types.CorrelationID,
	eventType string,
	reason string,
	transition func(card *domain.Card) error,
) (*CardDTO, error) {
	var result *CardDTO

	err := s.dataStore.Atomic(ctx, func(repos domain.Repositories) error {
		card, err := repos.Cards().FindByID(ctx, cardID)
		if err != nil {
			return err
		}
		oldStatus := card.Status()
		if err := transition(card); err != nil {
			return err
		}
		if err := repos.Cards().Save(ctx, card); err != nil {
			return err
		}

		entry, err := domain.NewOutboxEntry(
			eventType,
			card.ID(),
			card.CustomerID(),
			correlationID,
			domain.CardStatusChangedEvent{
				CardID:    card.ID().String(),
				OldStatus: string(oldStatus),
				NewStatus: string(card.Status()),
				Reason:    reason,
			},
		)
		if err != nil {
			return err
		}
		if err := repos.Outbox().Append(ctx, entry); err != nil {
			return err
		}

		result = mapToDTO(card)
		return nil
	})
	if err != nil {
		return nil, err
	}

	logging.InfoContext(ctx, "Card status changed",
		"card_id", cardID.String(),
		"status", result.Status,
	)
	return result, nil
}

// DeleteCard permanently removes a card. There is no soft delete.
func (s *CardService) DeleteCard(ctx context.Context, cardID domain.CardID) error {
	err := s.dataStore.Atomic(ctx, func(repos domain.Repositories) error {
		card, err := repos.Cards().FindByID(ctx, cardID)
		if err != nil {
			return err
		}
		return repos.Cards().Delete(ctx, card)
	})
	if err != nil {
		return err
	}

	logging.InfoContext(ctx, "Card deleted", "card_id", cardID.String())
	return nil
}

// MainAccountBalance returns the balance of a debit card's main account,
// fetched from the funding gateway.
func (s *CardService) MainAccountBalance(ctx context.Context, cardID domain.CardID) (types.Money, error) {
	card, err := s.repos.Cards().FindByID(ctx, cardID)
	if err != nil {
		return types.Money{}, err
	}
	if card.Type() != domain.CardTypeDebit {
		return types.Money{}, fmt.Errorf("%w: only debit cards have a main account", domain.ErrInvalidOperation)
	}
	if card.MainAccountID() == "" {
		return types.Money{}, fmt.Errorf("%w: no main account set", domain.ErrInvalidOperation)
	}
	return s.gateway.AccountBalance(ctx, card.MainAccountID())
}

// LastTransactions returns the most recent ledger entries for a card.
func (s *CardService) LastTransactions(ctx context.Context, cardID domain.CardID, limit int) ([]*domain.Transaction, error) {
	if _, err := s.repos.Cards().FindByID(ctx, cardID); err != nil {
		return nil, err
	}
	return s.ledger.LastByCard(ctx, cardID, limit)
}
