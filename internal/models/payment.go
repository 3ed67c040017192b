package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payment is money received from (or returned to) a customer. A negative
// amount is a bounced or reversed transfer.
type Payment struct {
	ID          int             `json:"id"`
	CustomerID  int             `json:"customer_id"`
	JobID       *int            `json:"job_id,omitempty"`
	Date        time.Time       `json:"date"`
	Amount      decimal.Decimal `json:"amount"`
	PaymentType PaymentType     `json:"payment_type"`
	Detail      string          `json:"detail"`
	Reference   string          `json:"reference"`
	CreatedAt   time.Time       `json:"created_at"`
}
