package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"
)

type CardNumberSuite struct {
	suite.Suite
}

func TestCardNumberSuite(t *testing.T) {
	suite.Run(t, new(CardNumberSuite))
}

func (s *CardNumberSuite) TestGeneration() {
	s.Run("card number formats sixteen digits in four blocks", func() {
		number, err := GenerateCardNumber(fixedDigits{"0123456789"})
		s.Require().NoError(err)
		s.Equal("0123-4567-8901-2345", number)
	})

	s.Run("cvv is three digits", func() {
		cvv, err := GenerateCVV(fixedDigits{"987"})
		s.Require().NoError(err)
		s.Equal("987", cvv)
	})

	s.Run("crypto source yields only digits", func() {
		digits, err := CryptoDigits().Digits(32)
		s.Require().NoError(err)
		s.Len(digits, 32)
		for _, r := range digits {
			s.True(r >= '0' && r <= '9')
		}
	})
}

func (s *CardNumberSuite) TestMasking() {
	s.Run("only the last four digits survive", func() {
		s.Equal("****-****-****-7777", MaskCardNumber("4444-5555-6666-7777"))
	})

	s.Run("masking is idempotent", func() {
		once := MaskCardNumber("4444-5555-6666-7777")
		s.Equal(once, MaskCardNumber(once))
	})

	s.Run("short values pass through", func() {
		s.Equal("123", MaskCardNumber("123"))
	})

	s.Run("masked value never contains the full number", func() {
		masked := MaskCardNumber("4444-5555-6666-7777")
		s.False(strings.Contains(masked, "4444"))
	})
}
