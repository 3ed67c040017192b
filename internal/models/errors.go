package models

import "errors"

// Business-rule violations. Callers check them with errors.Is.
var (
	ErrContractClosed          = errors.New("contract is closed")
	ErrInvoiceImmutable        = errors.New("invoice has been sent and can no longer be changed")
	ErrInvoiceAlreadySent      = errors.New("invoice has already been sent")
	ErrInvoiceAlreadyCancelled = errors.New("invoice has already been cancelled")
	ErrAlreadyExported         = errors.New("invoice has already been exported")
	ErrEmptyInvoice            = errors.New("invoice has no items")
	ErrCursorRegression        = errors.New("billing cursor can only move forward")
)

// ValidationError reports bad input for a single field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}
