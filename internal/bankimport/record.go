// Package bankimport decodes bank statement exports into transactions that
// payment reconciliation can work with. The only supported format is the
// Erste Bank JSON export.
package bankimport

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"housing-backend/internal/money"
	"housing-backend/internal/timeutil"

	"github.com/shopspring/decimal"
)

// Record is one raw entry of the statement export.
type Record struct {
	Booking        string          `json:"booking"`
	PartnerName    string          `json:"partnerName"`
	PartnerAccount *PartnerAccount `json:"partnerAccount"`
	Amount         *Amount         `json:"amount"`
	Reference      string          `json:"reference"`
	ReferenceNum   string          `json:"referenceNumber"`
	Note           string          `json:"note"`
}

type PartnerAccount struct {
	IBAN string `json:"iban"`
}

// Amount is value / 10^precision in currency.
type Amount struct {
	Value     *int64 `json:"value"`
	Precision *int32 `json:"precision"`
	Currency  string `json:"currency"`
}

// Transaction is a parsed Record.
type Transaction struct {
	Date            time.Time       `json:"date"`
	Partner         string          `json:"partner"`
	IBAN            string          `json:"iban,omitempty"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	Reference       string          `json:"reference"`
	ReferenceNumber string          `json:"reference_number"`
	Note            string          `json:"note,omitempty"`
}

// ParseError reports a record that cannot be imported.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return "parse error: " + e.Reason
}

var bookingLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05.000-0700",
	"2006-01-02T15:04:05-0700",
	timeutil.DateLayout,
}

// Decode reads a JSON array of records.
func Decode(r io.Reader) ([]Record, error) {
	var records []Record
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode bank statement: %w", err)
	}
	return records, nil
}

// Parse validates rec and converts it. currency is the only accepted currency.
func Parse(rec Record, currency string) (*Transaction, error) {
	if rec.Booking == "" {
		return nil, &ParseError{Reason: "missing booking"}
	}
	if rec.Amount == nil || rec.Amount.Value == nil || rec.Amount.Precision == nil || rec.Amount.Currency == "" {
		return nil, &ParseError{Reason: "missing amount"}
	}
	if rec.ReferenceNum == "" {
		return nil, &ParseError{Reason: "missing referenceNumber"}
	}
	if rec.Amount.Currency != currency {
		return nil, &ParseError{Reason: fmt.Sprintf("currency not %s (%s)", currency, rec.Amount.Currency)}
	}

	date, err := parseBooking(rec.Booking)
	if err != nil {
		return nil, &ParseError{Reason: fmt.Sprintf("invalid booking %q", rec.Booking)}
	}

	tx := &Transaction{
		Date:            date,
		Partner:         strings.TrimSpace(rec.PartnerName),
		Amount:          money.FromScaled(*rec.Amount.Value, *rec.Amount.Precision),
		Currency:        rec.Amount.Currency,
		Reference:       rec.Reference,
		ReferenceNumber: rec.ReferenceNum,
		Note:            strings.TrimSpace(rec.Note),
	}
	if rec.PartnerAccount != nil {
		tx.IBAN = strings.ToUpper(strings.ReplaceAll(rec.PartnerAccount.IBAN, " ", ""))
	}
	return tx, nil
}

func parseBooking(value string) (time.Time, error) {
	var lastErr error
	for _, layout := range bookingLayouts {
		t, err := time.Parse(layout, value)
		if err == nil {
			return timeutil.DateOf(t), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
