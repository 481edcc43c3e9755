package domain

import (
	"fmt"
	"time"

	"argentum/internal/common/types"
)

// CardType distinguishes debit and credit cards. It is immutable after
// creation and determines which funding fields are meaningful.
type CardType string

const (
	CardTypeDebit  CardType = "DEBIT"
	CardTypeCredit CardType = "CREDIT"
)

// CardStatus is the lifecycle status of a card.
type CardStatus string

const (
	CardStatusActive  CardStatus = "ACTIVE"
	CardStatusBlocked CardStatus = "BLOCKED"
	CardStatusExpired CardStatus = "EXPIRED"
)

// ValidityYears is the card validity period applied at issuance.
const ValidityYears = 5

// Card is the aggregate root of the Cards context.
// Invariants:
//   - mainAccountID, when set, is always a member of associatedAccounts
//   - associatedAccounts contains no duplicates and only exists on DEBIT cards
//   - a CREDIT card never has mainAccountID or associated accounts
//   - status changes only through the lifecycle methods below
type Card struct {
	id                 CardID
	cardNumber         string
	customerID         types.CustomerID
	cardType           CardType
	status             CardStatus
	expirationDate     time.Time
	cvv                string
	associatedAccounts []string
	mainAccountID      string
	creditID           string
	version            int
	createdAt          time.Time
	updatedAt          time.Time
}

// NewDebitCard issues a new debit card. The main account is associated
// automatically and tried first for payments.
// The now parameter makes the function pure and testable.
func NewDebitCard(customerID types.CustomerID, mainAccountID string, src DigitSource, now time.Time) (*Card, error) {
	if customerID.IsEmpty() {
		return nil, ErrEmptyCustomerID
	}
	if mainAccountID == "" {
		return nil, fmt.Errorf("%w: main account id is required", ErrInvalidOperation)
	}

	number, err := GenerateCardNumber(src)
	if err != nil {
		return nil, err
	}
	cvv, err := GenerateCVV(src)
	if err != nil {
		return nil, err
	}

	return &Card{
		id:                 NewCardID(),
		cardNumber:         number,
		customerID:         customerID,
		cardType:           CardTypeDebit,
		status:             CardStatusActive,
		expirationDate:     now.AddDate(ValidityYears, 0, 0),
		cvv:                cvv,
		associatedAccounts: []string{mainAccountID},
		mainAccountID:      mainAccountID,
		version:            1,
		createdAt:          now,
		updatedAt:          now,
	}, nil
}

// NewCreditCard issues a new credit card bound to an external credit line.
// The credit line is set once and never changed.
func NewCreditCard(customerID types.CustomerID, creditID string, src DigitSource, now time.Time) (*Card, error) {
	if customerID.IsEmpty() {
		return nil, ErrEmptyCustomerID
	}
	if creditID == "" {
		return nil, fmt.Errorf("%w: credit id is required", ErrInvalidOperation)
	}

	number, err := GenerateCardNumber(src)
	if err != nil {
		return nil, err
	}
	cvv, err := GenerateCVV(src)
	if err != nil {
		return nil, err
	}

	return &Card{
		id:             NewCardID(),
		cardNumber:     number,
		customerID:     customerID,
		cardType:       CardTypeCredit,
		status:         CardStatusActive,
		expirationDate: now.AddDate(ValidityYears, 0, 0),
		cvv:            cvv,
		version:        1,
		createdAt:      now,
		updatedAt:      now,
	}, nil
}

// ReconstructCard reconstructs a Card from persistence.
// This bypasses validation - only use for loading from the database.
func ReconstructCard(
	id CardID,
	cardNumber string,
	customerID types.CustomerID,
	cardType CardType,
	status CardStatus,
	expirationDate time.Time,
	cvv string,
	associatedAccounts []string,
	mainAccountID string,
	creditID string,
	version int,
	createdAt time.Time,
	updatedAt time.Time,
) *Card {
	return &Card{
		id:                 id,
		cardNumber:         cardNumber,
		customerID:         customerID,
		cardType:           cardType,
		status:             status,
		expirationDate:     expirationDate,
		cvv:                cvv,
		associatedAccounts: associatedAccounts,
		mainAccountID:      mainAccountID,
		creditID:           creditID,
		version:            version,
		createdAt:          createdAt,
		updatedAt:          updatedAt,
	}
}

// Associate appends an account to the card's associated accounts.
// Only debit cards carry associations; duplicates are rejected.
// Insertion order is preserved and defines the cascade fallback order.
func (c *Card) Associate(accountID string, now time.Time) error {
	if c.cardType != CardTypeDebit {
		return fmt.Errorf("%w: only debit cards can have associated accounts", ErrInvalidOperation)
	}
	if accountID == "" {
		return fmt.Errorf("%w: account id is required", ErrInvalidOperation)
	}
	for _, existing := range c.associatedAccounts {
		if existing == accountID {
			return fmt.Errorf("%w: account is already associated with this card", ErrInvalidOperation)
		}
	}
	c.associatedAccounts = append(c.associatedAccounts, accountID)
	c.touch(now)
	return nil
}

// SetMainAccount promotes an already-associated account to main.
// Association must precede promotion.
func (c *Card) SetMainAccount(accountID string, now time.Time) error {
	if c.cardType != CardTypeDebit {
		return fmt.Errorf("%w: only debit cards have a main account", ErrInvalidOperation)
	}
	if !c.HasAssociatedAccount(accountID) {
		return fmt.Errorf("%w: account must be associated before being set as main", ErrInvalidOperation)
	}
	c.mainAccountID = accountID
	c.touch(now)
	return nil
}

// Block transitions the card to BLOCKED.
func (c *Card) Block(now time.Time) error {
	if c.status == CardStatusExpired {
		return fmt.Errorf("%w: cannot block expired card", ErrInvalidOperation)
	}
	if c.status == CardStatusBlocked {
		return fmt.Errorf("%w: card is already blocked", ErrInvalidOperation)
	}
	c.status = CardStatusBlocked
	c.touch(now)
	return nil
}

// Activate transitions a blocked card back to ACTIVE.
// Expiry is terminal: an expired card can never be re-activated.
func (c *Card) Activate(now time.Time) error {
	if c.status == CardStatusExpired {
		return fmt.Errorf("%w: cannot activate expired card, request a new card", ErrInvalidOperation)
	}
	if c.status == CardStatusActive {
		return fmt.Errorf("%w: card is already active", ErrInvalidOperation)
	}
	c.status = CardStatusActive
	c.touch(now)
	return nil
}

// MarkExpired transitions the card to EXPIRED. This is a system-driven
// transition triggered by the payment path, not a client operation.
func (c *Card) MarkExpired(now time.Time) {
	if c.status == CardStatusExpired {
		return
	}
	c.status = CardStatusExpired
	c.touch(now)
}

// IsExpired reports whether the card's expiration date is before now.
func (c *Card) IsExpired(now time.Time) bool {
	return c.expirationDate.Before(now)
}

// HasAssociatedAccount reports whether the account is associated with the card.
func (c *Card) HasAssociatedAccount(accountID string) bool {
	for _, existing := range c.associatedAccounts {
		if existing == accountID {
			return true
		}
	}
	return false
}

// FallbackAccounts returns the cascade fallback list: all associated accounts
// except the main account, in original insertion order.
func (c *Card) FallbackAccounts() []string {
	fallbacks := make([]string, 0, len(c.associatedAccounts))
	for _, accountID := range c.associatedAccounts {
		if accountID != c.mainAccountID {
			fallbacks = append(fallbacks, accountID)
		}
	}
	return fallbacks
}

// MaskedNumber returns the card number with all but the last 4 digits hidden.
func (c *Card) MaskedNumber() string {
	return MaskCardNumber(c.cardNumber)
}

func (c *Card) touch(now time.Time) {
	c.updatedAt = now
	c.version++
}

// Getters

func (c *Card) ID() CardID                    { return c.id }
func (c *Card) CustomerID() types.CustomerID  { return c.customerID }
func (c *Card) Type() CardType                { return c.cardType }
func (c *Card) Status() CardStatus            { return c.status }
func (c *Card) ExpirationDate() time.Time     { return c.expirationDate }
func (c *Card) MainAccountID() string         { return c.mainAccountID }
func (c *Card) CreditID() string              { return c.creditID }
func (c *Card) Version() int                  { return c.version }
func (c *Card) CreatedAt() time.Time          { return c.createdAt }
func (c *Card) UpdatedAt() time.Time          { return c.updatedAt }

// AssociatedAccounts returns a copy of the associated accounts in insertion order.
func (c *Card) AssociatedAccounts() []string {
	accounts := make([]string, len(c.associatedAccounts))
	copy(accounts, c.associatedAccounts)
	return accounts
}

// Number returns the unmasked card number. It must never cross the trust
// boundary; DTOs use MaskedNumber.
func (c *Card) Number() string { return c.cardNumber }

// CVV returns the card verification value. Never exposed in DTOs.
func (c *Card) CVV() string { return c.cvv }
