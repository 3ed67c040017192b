package sepa

import (
	"errors"
	"fmt"
)

var ErrEmptyBatch = errors.New("no invoices to export")

// RejectionError explains why an invoice cannot go into a batch.
type RejectionError struct {
	Reference string `json:"reference"`
	Reason    string `json:"reason"`
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Reference, e.Reason)
}

// PaymentError reports an invalid payment handed to a batch.
type PaymentError struct {
	EndToEndID string
	Reason     string
}

func (e *PaymentError) Error() string {
	return fmt.Sprintf("sepa payment %s: %s", e.EndToEndID, e.Reason)
}
