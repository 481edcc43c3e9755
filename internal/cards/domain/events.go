package domain

import (
	"encoding/json"
	"time"

	"argentum/internal/common/types"
)

// Event types for the Cards context.
const (
	EventTypeCardCreated        = "CARD_CREATED"
	EventTypeCardBlocked        = "CARD_BLOCKED"
	EventTypeCardActivated      = "CARD_ACTIVATED"
	EventTypeCardExpired        = "CARD_EXPIRED"
	EventTypePaymentProcessed   = "PAYMENT_PROCESSED"
	EventTypeAccountAssociated  = "ACCOUNT_ASSOCIATED"
	EventTypeMainAccountChanged = "MAIN_ACCOUNT_CHANGED"
)

// CardCreatedEvent is emitted when a card is issued.
type CardCreatedEvent struct {
	CardID           string    `json:"card_id"`
	CustomerID       string    `json:"customer_id"`
	CardType         string    `json:"card_type"`
	MaskedCardNumber string    `json:"masked_card_number"`
	ExpirationDate   time.Time `json:"expiration_date"`
	MainAccountID    string    `json:"main_account_id,omitempty"`
	CreditID         string    `json:"credit_id,omitempty"`
}

// CardStatusChangedEvent is emitted when a card changes lifecycle status.
type CardStatusChangedEvent struct {
	CardID    string `json:"card_id"`
	OldStatus string `json:"old_status"`
	NewStatus string `json:"new_status"`
	Reason    string `json:"reason,omitempty"`
}

// AccountAssociatedEvent is emitted when an account is associated to a card.
type AccountAssociatedEvent struct {
	CardID    string `json:"card_id"`
	AccountID string `json:"account_id"`
}

// MainAccountChangedEvent is emitted when a card's main account changes.
type MainAccountChangedEvent struct {
	CardID       string `json:"card_id"`
	OldAccountID string `json:"old_account_id"`
	NewAccountID string `json:"new_account_id"`
}

// PaymentProcessedEvent is emitted when a payment completes successfully.
type PaymentProcessedEvent struct {
	CardID      string      `json:"card_id"`
	Amount      types.Money `json:"amount"`
	AccountID   string      `json:"account_id,omitempty"`
	CreditID    string      `json:"credit_id,omitempty"`
	Description string      `json:"description,omitempty"`
	Merchant    string      `json:"merchant,omitempty"`
}

// NewOutboxEntry creates an outbox entry carrying the given event payload.
// The event identifier and capture timestamp are assigned here, once, so
// redelivery by the relay never mints a new identity for the same event.
func NewOutboxEntry(
	eventType string,
	cardID CardID,
	customerID types.CustomerID,
	correlationID types.CorrelationID,
	payload any,
) (*OutboxEntry, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &OutboxEntry{
		ID:            types.NewEventID(),
		EventType:     eventType,
		CardID:        cardID,
		CustomerID:    customerID,
		CorrelationID: correlationID,
		Payload:       body,
		OccurredAt:    time.Now().UTC(),
	}, nil
}
