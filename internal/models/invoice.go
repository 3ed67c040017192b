package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Invoice struct {
	ID          int         `json:"id"`
	CustomerID  int         `json:"customer_id"`
	JobID       *int        `json:"job_id,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	CreatedBy   *int        `json:"created_by,omitempty"`
	Address     string      `json:"address"`
	PaymentType PaymentType `json:"payment_type"`
	Path        *string     `json:"path,omitempty"`
	SentOn      *time.Time  `json:"sent_on,omitempty"`
	Cancelled   bool        `json:"cancelled"`
	Exported    bool        `json:"exported"`
	ExportedID  *string     `json:"exported_id,omitempty"`

	Items []*InvoiceItem `json:"items"`
}

type InvoiceItem struct {
	ID        int             `json:"id"`
	InvoiceID int             `json:"invoice_id"`
	Position  int             `json:"position"`
	Title     string          `json:"title"`
	Detail    string          `json:"detail"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
}

// Amount is unit price times quantity.
func (i *InvoiceItem) Amount() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// NewInvoice starts an invoice for customer, freezing its current address.
func NewInvoice(customer *Customer, job *Job, paymentType PaymentType, actorID *int, now time.Time) *Invoice {
	inv := &Invoice{
		CustomerID:  customer.ID,
		CreatedAt:   now,
		CreatedBy:   actorID,
		Address:     customer.Address(),
		PaymentType: paymentType,
	}
	if job != nil && job.ID != 0 {
		id := job.ID
		inv.JobID = &id
	}
	return inv
}

// Number is the display number: two digit year followed by the id.
func (inv *Invoice) Number() string {
	return fmt.Sprintf("%02d%05d", inv.CreatedAt.Year()%100, inv.ID)
}

// Amount is the sum of all item amounts.
func (inv *Invoice) Amount() decimal.Decimal {
	total := decimal.Zero
	for _, item := range inv.Items {
		total = total.Add(item.Amount())
	}
	return total
}

func (inv *Invoice) IsSent() bool {
	return inv.SentOn != nil
}

// CheckMutable fails once the invoice has been sent.
func (inv *Invoice) CheckMutable() error {
	if inv.IsSent() {
		return fmt.Errorf("invoice %s: %w", inv.Number(), ErrInvoiceImmutable)
	}
	return nil
}

// AddItem appends a line to an unsent invoice.
func (inv *Invoice) AddItem(item *InvoiceItem) error {
	if err := inv.CheckMutable(); err != nil {
		return err
	}
	if item.Quantity == 0 {
		item.Quantity = 1
	}
	item.InvoiceID = inv.ID
	item.Position = len(inv.Items)
	inv.Items = append(inv.Items, item)
	return nil
}
