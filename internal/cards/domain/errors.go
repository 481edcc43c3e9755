package domain

import "errors"

// Domain errors for the Cards context.
var (
	// ErrCardNotFound is returned when a card cannot be found.
	ErrCardNotFound = errors.New("card not found")

	// ErrInvalidOperation is returned when a business rule forbids the
	// requested operation. Callers wrap it with the specific reason.
	ErrInvalidOperation = errors.New("invalid card operation")

	// ErrInsufficientBalance is returned when a debit cascade exhausts all
	// associated accounts without a successful debit.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrConflict is returned when a version-conditional write detects a
	// concurrent modification of the same card.
	ErrConflict = errors.New("concurrent modification conflict")

	// ErrCorruptData is returned when data loaded from persistence is invalid.
	ErrCorruptData = errors.New("corrupt data in database")

	// ErrEmptyCustomerID is returned when a required customer ID is empty.
	ErrEmptyCustomerID = errors.New("customer_id is required")
)
