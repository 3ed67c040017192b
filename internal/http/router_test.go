package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"housing-backend/internal/archive"
	"housing-backend/internal/auth"
	"housing-backend/internal/config"
	"housing-backend/internal/handlers"
	"housing-backend/internal/health"
	"housing-backend/internal/middleware"
	"housing-backend/internal/models"
	"housing-backend/internal/repositories"
	"housing-backend/internal/sepa"
	"housing-backend/internal/services"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBiller struct {
	actor *int
}

func (f *fakeBiller) BillAll(_ context.Context, actorID *int) (*services.BillingReport, error) {
	f.actor = actorID
	return &services.BillingReport{InvoiceIDs: []int{1, 2}, Items: 3}, nil
}

func (f *fakeBiller) BillContact(_ context.Context, customerID int, _ *models.Job, _ *int) (*models.Invoice, error) {
	if customerID == 404 {
		return nil, fmt.Errorf("customer 404: %w", repositories.ErrNotFound)
	}
	return nil, nil
}

func (f *fakeBiller) BillContract(_ context.Context, contractID int, _ *int) (*models.Invoice, error) {
	return nil, fmt.Errorf("contract %d: %w", contractID, models.ErrContractClosed)
}

type fakeInvoices struct {
	invoices map[int]*models.Invoice
}

func (f *fakeInvoices) Get(_ context.Context, id int) (*models.Invoice, error) {
	inv, ok := f.invoices[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return inv, nil
}

func (f *fakeInvoices) Cancel(_ context.Context, id int, _ *int) (*models.Invoice, error) {
	return nil, models.ErrInvoiceAlreadyCancelled
}

func (f *fakeInvoices) GeneratePDF(_ context.Context, id int) (string, error) {
	return fmt.Sprintf("invoices/%d.pdf", id), nil
}

func (f *fakeInvoices) Send(context.Context, int) (bool, error) {
	return false, errors.New("smtp: connection refused")
}

func (f *fakeInvoices) SendUnsent(context.Context, *int) (*services.SendReport, error) {
	return &services.SendReport{Sent: []int{1}}, nil
}

type fakeFiles map[string][]byte

func (f fakeFiles) Get(_ context.Context, key string) ([]byte, error) {
	data, ok := f[key]
	if !ok {
		return nil, archive.ErrNotFound
	}
	return data, nil
}

type fakeSepa struct{}

func (fakeSepa) ExportInvoices(_ context.Context, ids []int, _ *int) (*services.ExportResult, error) {
	if ids[0] == 99 {
		return &services.ExportResult{
			Rejected: []*sepa.RejectionError{{Reference: "99", Reason: "invoice not found"}},
		}, sepa.ErrEmptyBatch
	}
	return &services.ExportResult{MsgID: "2400001-FunkFeuerWien-abc", Exported: ids, XML: []byte("<Document/>")}, nil
}

func (fakeSepa) ListCandidates(context.Context) ([]*models.Invoice, error) {
	return nil, nil
}

type fakeImporter struct {
	commit bool
	body   string
}

func (f *fakeImporter) ImportFile(_ context.Context, r io.Reader, commit bool, _ *int) (*services.ImportReport, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	f.commit = commit
	f.body = string(data)
	return &services.ImportReport{Committed: commit}, nil
}

type fakeCustomers struct {
	req services.MandateRequest
}

func (f *fakeCustomers) GetCustomer(_ context.Context, id int) (*models.Customer, error) {
	return &models.Customer{ID: id, FirstName: "Anna"}, nil
}

func (f *fakeCustomers) UpdateMandate(_ context.Context, id int, req services.MandateRequest) (*models.Customer, error) {
	f.req = req
	return &models.Customer{ID: id}, nil
}

func (f *fakeCustomers) Balance(_ context.Context, id int) (*services.Balance, error) {
	return &services.Balance{CustomerID: id, Balance: decimal.RequireFromString("-14.5")}, nil
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type testServer struct {
	router    http.Handler
	token     string
	biller    *fakeBiller
	importer  *fakeImporter
	customers *fakeCustomers
}

func newTestServer(t *testing.T, db pinger) *testServer {
	t.Helper()
	cfg := &config.Config{}
	cfg.JWT.Secret = "test-secret"
	cfg.JWT.Issuer = "housing-backend"
	cfg.JWT.ExpirationHours = 1
	jwtManager := auth.NewJWTManager(cfg)
	token, err := jwtManager.GenerateToken(7, "ops")
	require.NoError(t, err)

	path := "invoices/2400001.pdf"
	invoices := &fakeInvoices{invoices: map[int]*models.Invoice{
		1: {ID: 1, CreatedAt: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), Path: &path, Items: []*models.InvoiceItem{
			{Title: "Rack", UnitPrice: decimal.RequireFromString("40"), Quantity: 1},
		}},
		2: {ID: 2, CreatedAt: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
	}}

	s := &testServer{token: token, biller: &fakeBiller{}, importer: &fakeImporter{}, customers: &fakeCustomers{}}
	s.router = NewRouter(
		handlers.NewBillingHandler(s.biller),
		handlers.NewInvoiceHandler(invoices, fakeFiles{path: []byte("%PDF-1.3")}),
		handlers.NewSepaHandler(fakeSepa{}),
		handlers.NewPaymentHandler(s.importer),
		handlers.NewCustomerHandler(s.customers),
		handlers.NewHealthHandler(health.NewHealthChecker(db, nil)),
		middleware.NewAuthMiddleware(jwtManager),
		nil,
	)
	return s
}

func (s *testServer) do(method, target string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	req.Header.Set("Authorization", "Bearer "+s.token)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealthIsPublic(t *testing.T) {
	s := newTestServer(t, pinger{})
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	down := newTestServer(t, pinger{err: errors.New("connection refused")})
	rec = httptest.NewRecorder()
	down.router.ServeHTTP(rec, httptest.NewRequest("GET", "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "unhealthy", decode(t, rec)["status"])
}

func TestAPIRequiresToken(t *testing.T) {
	s := newTestServer(t, pinger{})
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest("POST", "/api/billing/run", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Nil(t, s.biller.actor)
}

func TestBillingRunPassesActor(t *testing.T) {
	s := newTestServer(t, pinger{})
	rec := s.do("POST", "/api/billing/run", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, s.biller.actor)
	assert.Equal(t, 7, *s.biller.actor)
	assert.Equal(t, float64(3), decode(t, rec)["items"])
}

func TestErrorMapping(t *testing.T) {
	s := newTestServer(t, pinger{})

	tests := []struct {
		name   string
		method string
		target string
		status int
	}{
		{"bad id", "POST", "/api/billing/contracts/abc", http.StatusBadRequest},
		{"unknown customer", "POST", "/api/billing/contacts/404", http.StatusNotFound},
		{"closed contract", "POST", "/api/billing/contracts/5", http.StatusConflict},
		{"unknown invoice", "GET", "/api/invoices/77", http.StatusNotFound},
		{"cancelled twice", "POST", "/api/invoices/1/cancel", http.StatusConflict},
		{"mail failure", "POST", "/api/invoices/1/send", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(tt.method, tt.target, nil)
			assert.Equal(t, tt.status, rec.Code)
			assert.NotEmpty(t, decode(t, rec)["error"])
		})
	}
}

func TestBillContactWithNothingDue(t *testing.T) {
	s := newTestServer(t, pinger{})
	rec := s.do("POST", "/api/billing/contacts/3", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, decode(t, rec)["invoice"])
}

func TestInvoiceRoutes(t *testing.T) {
	s := newTestServer(t, pinger{})

	rec := s.do("GET", "/api/invoices/1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "2400001", body["number"])
	assert.Equal(t, "40.00", body["amount"])

	rec = s.do("GET", "/api/invoices/1/pdf", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Equal(t, "%PDF-1.3", rec.Body.String())

	rec = s.do("GET", "/api/invoices/2/pdf", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do("POST", "/api/invoices/2/pdf", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "invoices/2.pdf", decode(t, rec)["path"])

	rec = s.do("POST", "/api/invoices/send-unsent", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSepaExport(t *testing.T) {
	s := newTestServer(t, pinger{})

	rec := s.do("POST", "/api/sepa/export", strings.NewReader(`{"invoice_ids":[]}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do("POST", "/api/sepa/export", strings.NewReader(`{"invoice_ids":[99]}`))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	rejected := decode(t, rec)["rejected"].([]any)
	require.Len(t, rejected, 1)
	assert.Equal(t, "invoice not found", rejected[0].(map[string]any)["reason"])

	rec = s.do("POST", "/api/sepa/export", strings.NewReader(`{"invoice_ids":[1,2]}`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2400001-FunkFeuerWien-abc", decode(t, rec)["msg_id"])

	rec = s.do("POST", "/api/sepa/export?format=xml", strings.NewReader(`{"invoice_ids":[1]}`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/xml", rec.Header().Get("Content-Type"))
	assert.Equal(t, "<Document/>", rec.Body.String())
}

func TestPaymentImport(t *testing.T) {
	s := newTestServer(t, pinger{})

	rec := s.do("POST", "/api/payments/import", strings.NewReader(`[]`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, s.importer.commit)

	rec = s.do("POST", "/api/payments/import?commit=true", bytes.NewBufferString(`[{"x":1}]`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, s.importer.commit)
	assert.Equal(t, `[{"x":1}]`, s.importer.body)
	assert.Equal(t, true, decode(t, rec)["committed"])
}

func TestCustomerRoutes(t *testing.T) {
	s := newTestServer(t, pinger{})

	rec := s.do("GET", "/api/customers/42/balance", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "-14.50", decode(t, rec)["balance"])

	rec = s.do("PUT", "/api/customers/42/mandate", strings.NewReader(`{"iban":"AT61","mandate_id":"M1","mandate_date":"03.01.2024"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "sepa_mandate_date", decode(t, rec)["field"])

	rec = s.do("PUT", "/api/customers/42/mandate", strings.NewReader(`{"iban":"AT61","mandate_id":"M1","mandate_date":"2024-01-03"}`))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, s.customers.req.MandateDate)
	assert.Equal(t, "2024-01-03", s.customers.req.MandateDate.Format("2006-01-02"))
	assert.Equal(t, "M1", s.customers.req.MandateID)
}
