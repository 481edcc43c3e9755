package domain

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

// fixedDigits cycles a fixed digit string, keeping generation deterministic.
type fixedDigits struct {
	digits string
}

func (f fixedDigits) Digits(n int) (string, error) {
	var sb strings.Builder
	for sb.Len() < n {
		sb.WriteString(f.digits)
	}
	return sb.String()[:n], nil
}

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestDebitCard(s *CardSuite) *Card {
	card, err := NewDebitCard("customer-1", "acc-main", fixedDigits{"1234567890"}, testNow)
	s.Require().NoError(err)
	return card
}

type CardSuite struct {
	suite.Suite
}

func TestCardSuite(t *testing.T) {
	suite.Run(t, new(CardSuite))
}

func (s *CardSuite) TestIssuance() {
	s.Run("debit card starts active with main account associated", func() {
		card := newTestDebitCard(s)
		s.Equal(CardTypeDebit, card.Type())
		s.Equal(CardStatusActive, card.Status())
		s.Equal("acc-main", card.MainAccountID())
		s.Equal([]string{"acc-main"}, card.AssociatedAccounts())
		s.Equal(1, card.Version())
	})

	s.Run("validity period is five years", func() {
		card := newTestDebitCard(s)
		s.Equal(testNow.AddDate(ValidityYears, 0, 0), card.ExpirationDate())
	})

	s.Run("card number has four blocks and cvv three digits", func() {
		card := newTestDebitCard(s)
		parts := strings.Split(card.Number(), "-")
		s.Len(parts, 4)
		for _, part := range parts {
			s.Len(part, 4)
		}
		s.Len(card.CVV(), 3)
	})

	s.Run("debit card requires a main account", func() {
		_, err := NewDebitCard("customer-1", "", fixedDigits{"1"}, testNow)
		s.ErrorIs(err, ErrInvalidOperation)
	})

	s.Run("credit card carries a credit line and no accounts", func() {
		card, err := NewCreditCard("customer-1", "credit-1", fixedDigits{"1"}, testNow)
		s.Require().NoError(err)
		s.Equal(CardTypeCredit, card.Type())
		s.Equal("credit-1", card.CreditID())
		s.Empty(card.AssociatedAccounts())
		s.Empty(card.MainAccountID())
	})

	s.Run("credit card requires a credit line", func() {
		_, err := NewCreditCard("customer-1", "", fixedDigits{"1"}, testNow)
		s.ErrorIs(err, ErrInvalidOperation)
	})

	s.Run("empty customer is rejected", func() {
		_, err := NewDebitCard("", "acc-main", fixedDigits{"1"}, testNow)
		s.ErrorIs(err, ErrEmptyCustomerID)
	})
}

func (s *CardSuite) TestAssociation() {
	s.Run("association preserves insertion order", func() {
		card := newTestDebitCard(s)
		s.Require().NoError(card.Associate("acc-b", testNow))
		s.Require().NoError(card.Associate("acc-c", testNow))
		s.Equal([]string{"acc-main", "acc-b", "acc-c"}, card.AssociatedAccounts())
	})

	s.Run("duplicate association is rejected", func() {
		card := newTestDebitCard(s)
		s.Require().NoError(card.Associate("acc-b", testNow))
		err := card.Associate("acc-b", testNow)
		s.ErrorIs(err, ErrInvalidOperation)
	})

	s.Run("credit cards cannot associate accounts", func() {
		card, err := NewCreditCard("customer-1", "credit-1", fixedDigits{"1"}, testNow)
		s.Require().NoError(err)
		s.ErrorIs(card.Associate("acc-b", testNow), ErrInvalidOperation)
	})

	s.Run("each association bumps the version", func() {
		card := newTestDebitCard(s)
		s.Require().NoError(card.Associate("acc-b", testNow))
		s.Equal(2, card.Version())
	})
}

func (s *CardSuite) TestMainAccount() {
	s.Run("promoting an associated account succeeds", func() {
		card := newTestDebitCard(s)
		s.Require().NoError(card.Associate("acc-b", testNow))
		s.Require().NoError(card.SetMainAccount("acc-b", testNow))
		s.Equal("acc-b", card.MainAccountID())
	})

	s.Run("promotion requires prior association", func() {
		card := newTestDebitCard(s)
		err := card.SetMainAccount("acc-unknown", testNow)
		s.ErrorIs(err, ErrInvalidOperation)
	})

	s.Run("demoted main account stays associated", func() {
		card := newTestDebitCard(s)
		s.Require().NoError(card.Associate("acc-b", testNow))
		s.Require().NoError(card.SetMainAccount("acc-b", testNow))
		s.True(card.HasAssociatedAccount("acc-main"))
	})
}

func (s *CardSuite) TestFallbackAccounts() {
	s.Run("fallbacks exclude the main account in insertion order", func() {
		card := newTestDebitCard(s)
		s.Require().NoError(card.Associate("acc-b", testNow))
		s.Require().NoError(card.Associate("acc-c", testNow))
		s.Equal([]string{"acc-b", "acc-c"}, card.FallbackAccounts())
	})

	s.Run("promoting a fallback reorders the cascade", func() {
		card := newTestDebitCard(s)
		s.Require().NoError(card.Associate("acc-b", testNow))
		s.Require().NoError(card.Associate("acc-c", testNow))
		s.Require().NoError(card.SetMainAccount("acc-b", testNow))
		s.Equal([]string{"acc-main", "acc-c"}, card.FallbackAccounts())
	})
}

func (s *CardSuite) TestLifecycle() {
	s.Run("active blocks and reactivates", func() {
		card := newTestDebitCard(s)
		s.Require().NoError(card.Block(testNow))
		s.Equal(CardStatusBlocked, card.Status())
		s.Require().NoError(card.Activate(testNow))
		s.Equal(CardStatusActive, card.Status())
	})

	s.Run("blocking twice is rejected", func() {
		card := newTestDebitCard(s)
		s.Require().NoError(card.Block(testNow))
		s.ErrorIs(card.Block(testNow), ErrInvalidOperation)
	})

	s.Run("activating an active card is rejected", func() {
		card := newTestDebitCard(s)
		s.ErrorIs(card.Activate(testNow), ErrInvalidOperation)
	})

	s.Run("expiry is terminal", func() {
		card := newTestDebitCard(s)
		card.MarkExpired(testNow)
		s.Equal(CardStatusExpired, card.Status())
		s.ErrorIs(card.Activate(testNow), ErrInvalidOperation)
		s.ErrorIs(card.Block(testNow), ErrInvalidOperation)
	})

	s.Run("marking an expired card again is a no-op", func() {
		card := newTestDebitCard(s)
		card.MarkExpired(testNow)
		version := card.Version()
		card.MarkExpired(testNow)
		s.Equal(version, card.Version())
	})

	s.Run("IsExpired compares against the expiration date", func() {
		card := newTestDebitCard(s)
		s.False(card.IsExpired(testNow))
		s.True(card.IsExpired(card.ExpirationDate().Add(time.Hour)))
	})
}

func (s *CardSuite) TestMasking() {
	card := newTestDebitCard(s)
	masked := card.MaskedNumber()
	s.True(strings.HasPrefix(masked, "****-****-****-"), fmt.Sprintf("unexpected mask %q", masked))
	s.Equal(card.Number()[len(card.Number())-4:], masked[len(masked)-4:])
}
