package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"housing-backend/internal/models"
	"housing-backend/internal/repositories"

	"github.com/shopspring/decimal"
)

// memStore is an in-memory repositories.Store. InTx snapshots the data and
// restores it when fn fails, nested calls behave like savepoints.
type memStore struct {
	d *memData
}

type memData struct {
	customers map[int]*models.Customer
	contracts map[int]*models.Contract
	ips       map[string]int
	invoices  map[int]*models.Invoice
	payments  map[int]*models.Payment
	jobs      map[int]*models.Job
	nextID    int

	// fail makes the named method return the error.
	fail map[string]error
}

var _ repositories.Store = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{d: &memData{
		customers: map[int]*models.Customer{},
		contracts: map[int]*models.Contract{},
		ips:       map[string]int{},
		invoices:  map[int]*models.Invoice{},
		payments:  map[int]*models.Payment{},
		jobs:      map[int]*models.Job{},
		nextID:    1000,
		fail:      map[string]error{},
	}}
}

func (m *memStore) id() int {
	m.d.nextID++
	return m.d.nextID
}

func (m *memStore) failure(method string) error {
	return m.d.fail[method]
}

func (m *memStore) addCustomer(c *models.Customer) *models.Customer {
	if c.ID == 0 {
		c.ID = m.id()
	}
	m.d.customers[c.ID] = cloneCustomer(c)
	return c
}

func (m *memStore) addContract(c *models.Contract) *models.Contract {
	if c.ID == 0 {
		c.ID = m.id()
	}
	for _, cp := range c.Packages {
		if cp.ID == 0 {
			cp.ID = m.id()
		}
		cp.ContractID = c.ID
	}
	if c.Server != nil {
		for _, ip := range c.Server.IPs {
			m.d.ips[ip] = c.ID
		}
	}
	m.d.contracts[c.ID] = cloneContract(c)
	return c
}

func (m *memStore) addInvoice(inv *models.Invoice) *models.Invoice {
	if inv.ID == 0 {
		inv.ID = m.id()
	}
	for i, item := range inv.Items {
		item.ID = m.id()
		item.InvoiceID = inv.ID
		item.Position = i
	}
	m.d.invoices[inv.ID] = cloneInvoice(inv)
	return inv
}

func (m *memStore) customer(id int) *models.Customer { return m.d.customers[id] }
func (m *memStore) invoice(id int) *models.Invoice   { return m.d.invoices[id] }

func (m *memStore) contractPackage(id int) *models.ContractPackage {
	for _, c := range m.d.contracts {
		for _, cp := range c.Packages {
			if cp.ID == id {
				return cp
			}
		}
	}
	return nil
}

func (m *memStore) jobsOfType(t models.JobType) []*models.Job {
	var out []*models.Job
	for _, j := range m.d.jobs {
		if j.Type == t {
			out = append(out, j)
		}
	}
	return out
}

func (m *memStore) allInvoices() []*models.Invoice {
	out := make([]*models.Invoice, 0, len(m.d.invoices))
	for _, inv := range m.d.invoices {
		out = append(out, inv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *memStore) InTx(ctx context.Context, fn func(repositories.Store) error) error {
	snapshot := m.d.clone()
	if err := fn(m); err != nil {
		fail := m.d.fail
		*m.d = *snapshot
		m.d.fail = fail
		return err
	}
	return nil
}

func (d *memData) clone() *memData {
	c := &memData{
		customers: make(map[int]*models.Customer, len(d.customers)),
		contracts: make(map[int]*models.Contract, len(d.contracts)),
		ips:       make(map[string]int, len(d.ips)),
		invoices:  make(map[int]*models.Invoice, len(d.invoices)),
		payments:  make(map[int]*models.Payment, len(d.payments)),
		jobs:      make(map[int]*models.Job, len(d.jobs)),
		nextID:    d.nextID,
		fail:      d.fail,
	}
	for k, v := range d.customers {
		c.customers[k] = cloneCustomer(v)
	}
	for k, v := range d.contracts {
		c.contracts[k] = cloneContract(v)
	}
	for k, v := range d.ips {
		c.ips[k] = v
	}
	for k, v := range d.invoices {
		c.invoices[k] = cloneInvoice(v)
	}
	for k, v := range d.payments {
		p := *v
		c.payments[k] = &p
	}
	for k, v := range d.jobs {
		j := *v
		c.jobs[k] = &j
	}
	return c
}

func cloneCustomer(c *models.Customer) *models.Customer {
	out := *c
	return &out
}

func cloneContract(c *models.Contract) *models.Contract {
	out := *c
	if c.Server != nil {
		s := *c.Server
		s.IPs = append([]string(nil), c.Server.IPs...)
		out.Server = &s
	}
	out.Packages = make([]*models.ContractPackage, len(c.Packages))
	for i, cp := range c.Packages {
		p := *cp
		out.Packages[i] = &p
	}
	return &out
}

func cloneInvoice(inv *models.Invoice) *models.Invoice {
	out := *inv
	out.Items = make([]*models.InvoiceItem, len(inv.Items))
	for i, item := range inv.Items {
		it := *item
		out.Items[i] = &it
	}
	return &out
}

// CustomerStore

func (m *memStore) ListCustomerIDs(ctx context.Context) ([]int, error) {
	ids := make([]int, 0, len(m.d.customers))
	for id := range m.d.customers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids, nil
}

func (m *memStore) GetCustomer(ctx context.Context, id int) (*models.Customer, error) {
	if err := m.failure("GetCustomer"); err != nil {
		return nil, err
	}
	c, ok := m.d.customers[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return cloneCustomer(c), nil
}

func (m *memStore) FindCustomerByIBAN(ctx context.Context, iban string) (*models.Customer, error) {
	for _, c := range m.d.customers {
		if c.SepaIBAN != nil && *c.SepaIBAN == iban {
			return cloneCustomer(c), nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (m *memStore) UpdateCustomerMandate(ctx context.Context, c *models.Customer) error {
	stored, ok := m.d.customers[c.ID]
	if !ok {
		return repositories.ErrNotFound
	}
	stored.SepaIBAN = c.SepaIBAN
	stored.SepaMandateID = c.SepaMandateID
	stored.SepaMandateDate = c.SepaMandateDate
	stored.SepaMandateFirst = c.SepaMandateFirst
	return nil
}

func (m *memStore) SetMandateFirst(ctx context.Context, customerID int, first bool) error {
	if err := m.failure("SetMandateFirst"); err != nil {
		return err
	}
	c, ok := m.d.customers[customerID]
	if !ok {
		return repositories.ErrNotFound
	}
	c.SepaMandateFirst = first
	return nil
}

func (m *memStore) IsBillingContact(ctx context.Context, customerID int) (bool, error) {
	for _, c := range m.d.contracts {
		if c.BillingCustomerID == customerID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) CustomerBalance(ctx context.Context, customerID int) (decimal.Decimal, error) {
	balance := decimal.Zero
	for _, p := range m.d.payments {
		if p.CustomerID == customerID {
			balance = balance.Add(p.Amount)
		}
	}
	for _, inv := range m.d.invoices {
		if inv.CustomerID == customerID && inv.IsSent() {
			balance = balance.Sub(inv.Amount())
		}
	}
	return balance, nil
}

// ContractStore

func (m *memStore) GetContract(ctx context.Context, id int) (*models.Contract, error) {
	c, ok := m.d.contracts[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return cloneContract(c), nil
}

func (m *memStore) ListOpenContracts(ctx context.Context, billingCustomerID int) ([]*models.Contract, error) {
	var out []*models.Contract
	for _, c := range m.d.contracts {
		if c.BillingCustomerID == billingCustomerID && !c.Closed {
			out = append(out, cloneContract(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) AdvanceBillingCursor(ctx context.Context, cp *models.ContractPackage) error {
	if err := m.failure("AdvanceBillingCursor"); err != nil {
		return err
	}
	stored := m.contractPackage(cp.ID)
	if stored == nil {
		return repositories.ErrNotFound
	}
	if cp.BilledUntil == nil || (stored.BilledUntil != nil && !stored.BilledUntil.Before(*cp.BilledUntil)) {
		return models.ErrCursorRegression
	}
	lastBilled, billedUntil := *cp.LastBilled, *cp.BilledUntil
	stored.LastBilled = &lastBilled
	stored.BilledUntil = &billedUntil
	return nil
}

func (m *memStore) FindServerByIP(ctx context.Context, host string) (*models.Contract, error) {
	for ip, contractID := range m.d.ips {
		if h, _, _ := strings.Cut(ip, "/"); h == host {
			return cloneContract(m.d.contracts[contractID]), nil
		}
	}
	return nil, repositories.ErrNotFound
}

// InvoiceStore

func (m *memStore) CreateInvoice(ctx context.Context, inv *models.Invoice) error {
	if err := m.failure("CreateInvoice"); err != nil {
		return err
	}
	m.addInvoice(inv)
	return nil
}

func (m *memStore) AddInvoiceItem(ctx context.Context, item *models.InvoiceItem) error {
	inv, ok := m.d.invoices[item.InvoiceID]
	if !ok {
		return repositories.ErrNotFound
	}
	if inv.IsSent() {
		return models.ErrInvoiceImmutable
	}
	item.ID = m.id()
	item.Position = len(inv.Items)
	it := *item
	inv.Items = append(inv.Items, &it)
	return nil
}

func (m *memStore) GetInvoice(ctx context.Context, id int) (*models.Invoice, error) {
	inv, ok := m.d.invoices[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return cloneInvoice(inv), nil
}

func (m *memStore) ListInvoices(ctx context.Context, f repositories.InvoiceFilter) ([]*models.Invoice, error) {
	var out []*models.Invoice
	for _, inv := range m.allInvoices() {
		if f.CustomerID != 0 && inv.CustomerID != f.CustomerID {
			continue
		}
		if f.Unsent && (inv.IsSent() || inv.Cancelled) {
			continue
		}
		if f.ExportCandidates && (!inv.IsSent() || inv.Exported || inv.Cancelled ||
			inv.PaymentType != models.PaymentTypeSepaDD || !inv.Amount().IsPositive()) {
			continue
		}
		out = append(out, cloneInvoice(inv))
	}
	return out, nil
}

func (m *memStore) MarkInvoiceSent(ctx context.Context, id int, sentOn time.Time) error {
	inv, ok := m.d.invoices[id]
	if !ok {
		return repositories.ErrNotFound
	}
	if inv.IsSent() {
		return models.ErrInvoiceAlreadySent
	}
	inv.SentOn = &sentOn
	return nil
}

func (m *memStore) SetInvoicePath(ctx context.Context, id int, path string) error {
	inv, ok := m.d.invoices[id]
	if !ok {
		return repositories.ErrNotFound
	}
	inv.Path = &path
	return nil
}

func (m *memStore) MarkInvoiceCancelled(ctx context.Context, id int) error {
	inv, ok := m.d.invoices[id]
	if !ok {
		return repositories.ErrNotFound
	}
	if inv.Cancelled {
		return models.ErrInvoiceAlreadyCancelled
	}
	inv.Cancelled = true
	return nil
}

func (m *memStore) MarkInvoiceExported(ctx context.Context, id int, exportedID string) error {
	if err := m.failure("MarkInvoiceExported"); err != nil {
		return err
	}
	inv, ok := m.d.invoices[id]
	if !ok {
		return repositories.ErrNotFound
	}
	if inv.Exported {
		return models.ErrAlreadyExported
	}
	inv.Exported = true
	inv.ExportedID = &exportedID
	return nil
}

func (m *memStore) ExportedIDExists(ctx context.Context, exportedID string) (bool, error) {
	for _, inv := range m.d.invoices {
		if inv.ExportedID != nil && *inv.ExportedID == exportedID {
			return true, nil
		}
	}
	return false, nil
}

// PaymentStore

func (m *memStore) PaymentReferenceExists(ctx context.Context, reference string) (bool, error) {
	for _, p := range m.d.payments {
		if p.Reference == reference {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) CreatePayment(ctx context.Context, p *models.Payment) error {
	if err := m.failure("CreatePayment"); err != nil {
		return err
	}
	if p.Reference != "" {
		if exists, _ := m.PaymentReferenceExists(ctx, p.Reference); exists {
			return errors.New("duplicate payment reference")
		}
	}
	p.ID = m.id()
	stored := *p
	m.d.payments[p.ID] = &stored
	return nil
}

func (m *memStore) ListPayments(ctx context.Context, customerID int) ([]*models.Payment, error) {
	var out []*models.Payment
	for _, p := range m.d.payments {
		if customerID == 0 || p.CustomerID == customerID {
			c := *p
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// JobStore

func (m *memStore) CreateJob(ctx context.Context, job *models.Job) error {
	job.ID = m.id()
	stored := *job
	m.d.jobs[job.ID] = &stored
	return nil
}

func (m *memStore) FinishJob(ctx context.Context, job *models.Job) error {
	stored, ok := m.d.jobs[job.ID]
	if !ok {
		return repositories.ErrNotFound
	}
	stored.Finished = job.Finished
	stored.Note = job.Note
	return nil
}
