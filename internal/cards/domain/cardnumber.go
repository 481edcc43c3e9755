package domain

import (
	"crypto/rand"
	"fmt"
	"strings"
)

// DigitSource yields decimal digit strings for card number and CVV generation.
// Injecting the source keeps generation deterministic in tests.
type DigitSource interface {
	Digits(n int) (string, error)
}

// cryptoDigits draws unbiased decimal digits from crypto/rand using
// rejection sampling: only bytes below 250 are accepted before taking mod 10,
// so each digit 0-9 is equally likely.
type cryptoDigits struct{}

// CryptoDigits returns a DigitSource backed by crypto/rand.
func CryptoDigits() DigitSource {
	return cryptoDigits{}
}

func (cryptoDigits) Digits(n int) (string, error) {
	if n <= 0 {
		return "", nil
	}
	const threshold = 250 // 256 - (256 % 10)
	var sb strings.Builder
	sb.Grow(n)
	buf := make([]byte, 64)
	for sb.Len() < n {
		read, err := rand.Read(buf)
		if err != nil {
			return "", err
		}
		for i := 0; i < read && sb.Len() < n; i++ {
			if buf[i] < threshold {
				sb.WriteByte('0' + buf[i]%10)
			}
		}
	}
	return sb.String(), nil
}

// GenerateCardNumber generates a 16-digit card number grouped in four blocks,
// e.g. 4444-5555-6666-7777.
func GenerateCardNumber(src DigitSource) (string, error) {
	digits, err := src.Digits(16)
	if err != nil {
		return "", fmt.Errorf("generating card number: %w", err)
	}
	return digits[0:4] + "-" + digits[4:8] + "-" + digits[8:12] + "-" + digits[12:16], nil
}

// GenerateCVV generates a 3-digit card verification value.
func GenerateCVV(src DigitSource) (string, error) {
	digits, err := src.Digits(3)
	if err != nil {
		return "", fmt.Errorf("generating cvv: %w", err)
	}
	return digits, nil
}

// MaskCardNumber returns the external representation of a card number,
// showing only the last 4 digits: ****-****-****-1234.
// Masking an already-masked number yields the same result.
func MaskCardNumber(cardNumber string) string {
	if len(cardNumber) < 4 {
		return cardNumber
	}
	return "****-****-****-" + cardNumber[len(cardNumber)-4:]
}
