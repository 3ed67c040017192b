package pdf

import (
	"bytes"
	"testing"
	"time"

	"housing-backend/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testInvoice() (*models.Invoice, *models.Customer) {
	customer := &models.Customer{ID: 42, FirstName: "Jörg", LastName: "Müller", Street: "Hauptstraße 1", Zip: "1010", Town: "Wien", Country: "AT"}
	inv := models.NewInvoice(customer, nil, models.PaymentTypeTransfer, nil, time.Date(2024, 2, 25, 10, 0, 0, 0, time.UTC))
	inv.ID = 42
	inv.Items = []*models.InvoiceItem{
		{Title: "Rack 1HE (c12)", Detail: "25.01.2024 - 24.02.2024", UnitPrice: decimal.RequireFromString("40.00"), Quantity: 2},
		{Title: "Strom (c12)", UnitPrice: decimal.RequireFromString("19.35"), Quantity: 1},
	}
	return inv, customer
}

func TestRenderInvoice(t *testing.T) {
	r := NewInvoiceRenderer("Funkfeuer", "Funkfeuer, Postfach 1, 1010 Wien", "Housing-k", "IBAN AT61 1904 3002 3457 3201")
	r.compress = false
	inv, customer := testInvoice()

	out, err := r.Render(inv, customer)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
	assert.Contains(t, string(out), "Rechnung 2400042")
	assert.Contains(t, string(out), "99.35")
	assert.Contains(t, string(out), "Housing-k42")
}

func TestRenderCancelledCredit(t *testing.T) {
	r := NewInvoiceRenderer("Funkfeuer", "Funkfeuer", "Housing-k")
	r.compress = false
	inv, customer := testInvoice()
	inv.Items = []*models.InvoiceItem{{Title: "Storno Rechnung 2400041", UnitPrice: decimal.RequireFromString("-40.00"), Quantity: 1}}
	inv.Cancelled = true

	out, err := r.Render(inv, customer)
	require.NoError(t, err)
	assert.Contains(t, string(out), "Gutschrift 2400042")
	assert.Contains(t, string(out), "STORNIERT")
}

func TestMaskIBAN(t *testing.T) {
	assert.Equal(t, "AT61************3201", maskIBAN("AT611904300234573201"))
	assert.Equal(t, "AT61", maskIBAN("AT61"))
}
