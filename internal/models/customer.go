package models

import (
	"fmt"
	"strings"
	"time"

	"housing-backend/internal/sepa"
)

type Customer struct {
	ID          int       `json:"id"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	CompanyName string    `json:"company_name,omitempty"`
	Street      string    `json:"street"`
	Zip         string    `json:"zip"`
	Town        string    `json:"town"`
	Country     string    `json:"country"`
	Email       string    `json:"email"`
	Phone       string    `json:"phone,omitempty"`
	Active      bool      `json:"active"`
	Roles       []string  `json:"roles,omitempty"`
	CreatedAt   time.Time `json:"created_at"`

	SepaIBAN         *string    `json:"sepa_iban,omitempty"`
	SepaMandateID    *string    `json:"sepa_mandate_id,omitempty"`
	SepaMandateDate  *time.Time `json:"sepa_mandate_date,omitempty"`
	SepaMandateFirst bool       `json:"sepa_mandate_first"`
}

// Name is the display name, including the company if there is one.
func (c *Customer) Name() string {
	if c.CompanyName != "" {
		return fmt.Sprintf("%s %s / %s", c.FirstName, c.LastName, c.CompanyName)
	}
	return fmt.Sprintf("%s %s", c.FirstName, c.LastName)
}

// Address is the postal address as printed on invoices.
func (c *Customer) Address() string {
	addr := fmt.Sprintf("%s\n%s %s\n%s", c.Street, c.Zip, c.Town, c.Country)
	if c.CompanyName != "" {
		return fmt.Sprintf("%s\n%s %s\n\n%s", c.CompanyName, c.FirstName, c.LastName, addr)
	}
	return fmt.Sprintf("%s %s\n\n%s", c.FirstName, c.LastName, addr)
}

func (c *Customer) String() string {
	if c.CompanyName != "" {
		return fmt.Sprintf("%s %s, %s (%d)", c.FirstName, c.LastName, c.CompanyName, c.ID)
	}
	return fmt.Sprintf("%s %s (%d)", c.FirstName, c.LastName, c.ID)
}

func (c *Customer) HasSepaMandate() bool {
	return c.SepaIBAN != nil && *c.SepaIBAN != "" &&
		c.SepaMandateID != nil && *c.SepaMandateID != "" &&
		c.SepaMandateDate != nil
}

// ValidateMandate checks that the mandate is either complete or absent.
func (c *Customer) ValidateMandate(today time.Time) error {
	hasIBAN := c.SepaIBAN != nil && *c.SepaIBAN != ""
	hasID := c.SepaMandateID != nil && *c.SepaMandateID != ""
	hasDate := c.SepaMandateDate != nil

	if !hasIBAN && !hasID && !hasDate {
		return nil
	}
	if !hasIBAN {
		return &ValidationError{Field: "sepa_iban", Message: "IBAN must be set for a SEPA mandate"}
	}
	if !hasID {
		return &ValidationError{Field: "sepa_mandate_id", Message: "SEPA mandate ID must be set for a SEPA mandate"}
	}
	if !hasDate {
		return &ValidationError{Field: "sepa_mandate_date", Message: "SEPA mandate date must be set for a SEPA mandate"}
	}
	if c.SepaMandateDate.After(today) {
		return &ValidationError{Field: "sepa_mandate_date", Message: "SEPA mandate date must not be in the future"}
	}
	if err := sepa.ValidateIBAN(*c.SepaIBAN); err != nil {
		return &ValidationError{Field: "sepa_iban", Message: err.Error()}
	}
	return nil
}

// SetMandate replaces the SEPA mandate. Empty values clear it. A cleared or
// replaced mandate starts over with a first collection.
func (c *Customer) SetMandate(iban, mandateID string, mandateDate *time.Time, today time.Time) error {
	iban = sepa.NormalizeIBAN(iban)
	mandateID = strings.TrimSpace(mandateID)

	next := *c
	next.SepaIBAN = nullable(iban)
	next.SepaMandateID = nullable(mandateID)
	next.SepaMandateDate = nil
	if mandateDate != nil {
		d := time.Date(mandateDate.Year(), mandateDate.Month(), mandateDate.Day(), 0, 0, 0, 0, time.UTC)
		next.SepaMandateDate = &d
	}

	if err := next.ValidateMandate(today); err != nil {
		return err
	}

	if !next.HasSepaMandate() || c.SepaMandateID == nil || *c.SepaMandateID != mandateID {
		next.SepaMandateFirst = true
	}

	*c = next
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
