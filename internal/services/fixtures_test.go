package services

import (
	"context"
	"sync"
	"time"

	"housing-backend/internal/config"
	"housing-backend/internal/mail"
	"housing-backend/internal/models"
	"housing-backend/internal/timeutil"

	"github.com/shopspring/decimal"
)

func d(y int, m time.Month, day int) time.Time { return timeutil.Date(y, m, day) }

func ptr[T any](v T) *T { return &v }

func clock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

var billingConfig = config.BillingConfig{AnchorDay: 25, StaleAfterDays: 30}

var rackPackage = &models.Package{ID: 1, Name: "Rack 1HE", Amount: decimal.RequireFromString("40.00"), BillingPeriod: 1}

func newTestCustomer(store *memStore, first, last string) *models.Customer {
	return store.addCustomer(&models.Customer{
		FirstName: first,
		LastName:  last,
		Street:    "Hauptstraße 1",
		Zip:       "1010",
		Town:      "Wien",
		Country:   "AT",
		Email:     first + "@example.org",
		Active:    true,
	})
}

func withMandate(store *memStore, c *models.Customer, iban, mandateID string, first bool) {
	stored := store.customer(c.ID)
	stored.SepaIBAN = ptr(iban)
	stored.SepaMandateID = ptr(mandateID)
	stored.SepaMandateDate = ptr(d(2023, 6, 1))
	stored.SepaMandateFirst = first
}

func newTestContract(store *memStore, customer *models.Customer, paymentType models.PaymentType, packages ...*models.ContractPackage) *models.Contract {
	return store.addContract(&models.Contract{
		Kind:              models.ContractKindGeneric,
		BillingCustomerID: customer.ID,
		AdminCustomerID:   customer.ID,
		State:             models.ContractStateAccepted,
		PaymentType:       paymentType,
		Packages:          packages,
	})
}

func rackLine(opened time.Time, billedUntil *time.Time) *models.ContractPackage {
	return &models.ContractPackage{
		PackageID:   rackPackage.ID,
		Package:     rackPackage,
		Quantity:    1,
		Active:      true,
		OpenedAt:    opened,
		BilledUntil: billedUntil,
	}
}

// sentInvoice stores a sent invoice with one item of amount.
func sentInvoice(store *memStore, c *models.Customer, paymentType models.PaymentType, amount string, sentOn time.Time) *models.Invoice {
	inv := models.NewInvoice(c, nil, paymentType, nil, sentOn)
	inv.Items = []*models.InvoiceItem{{Title: "Rack 1HE (c1)", UnitPrice: decimal.RequireFromString(amount), Quantity: 1}}
	inv.SentOn = ptr(sentOn)
	return store.addInvoice(inv)
}

type memFiles struct {
	mu    sync.Mutex
	files map[string][]byte
	err   error
}

func newMemFiles() *memFiles { return &memFiles{files: map[string][]byte{}} }

func (f *memFiles) Put(ctx context.Context, key string, data []byte, contentType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.files[key] = data
	return nil
}

type fakeRenderer struct{}

func (fakeRenderer) Render(inv *models.Invoice, customer *models.Customer) ([]byte, error) {
	return []byte("%PDF-1.3 " + inv.Number()), nil
}

type fakeMailer struct {
	sent []*mail.Message
	err  error
}

func (m *fakeMailer) Send(ctx context.Context, msg *mail.Message) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}
