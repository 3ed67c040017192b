package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"housing-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx. Begin on a pgx.Tx opens a
// savepoint, so repositories nest transactions freely.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

type CustomerStore interface {
	ListCustomerIDs(ctx context.Context) ([]int, error)
	GetCustomer(ctx context.Context, id int) (*models.Customer, error)
	FindCustomerByIBAN(ctx context.Context, iban string) (*models.Customer, error)
	UpdateCustomerMandate(ctx context.Context, c *models.Customer) error
	SetMandateFirst(ctx context.Context, customerID int, first bool) error
	IsBillingContact(ctx context.Context, customerID int) (bool, error)
	CustomerBalance(ctx context.Context, customerID int) (decimal.Decimal, error)
}

type ContractStore interface {
	GetContract(ctx context.Context, id int) (*models.Contract, error)
	// ListOpenContracts returns the open contracts billed to a customer,
	// with packages loaded.
	ListOpenContracts(ctx context.Context, billingCustomerID int) ([]*models.Contract, error)
	// AdvanceBillingCursor persists LastBilled and BilledUntil. It returns
	// models.ErrCursorRegression instead of moving the cursor backwards.
	AdvanceBillingCursor(ctx context.Context, cp *models.ContractPackage) error
	// FindServerByIP returns the server contract an address is assigned to.
	FindServerByIP(ctx context.Context, host string) (*models.Contract, error)
}

type InvoiceStore interface {
	// CreateInvoice inserts the invoice and its items.
	CreateInvoice(ctx context.Context, inv *models.Invoice) error
	// AddInvoiceItem appends to an unsent invoice, failing with
	// models.ErrInvoiceImmutable once it was sent.
	AddInvoiceItem(ctx context.Context, item *models.InvoiceItem) error
	GetInvoice(ctx context.Context, id int) (*models.Invoice, error)
	ListInvoices(ctx context.Context, filter InvoiceFilter) ([]*models.Invoice, error)
	MarkInvoiceSent(ctx context.Context, id int, sentOn time.Time) error
	SetInvoicePath(ctx context.Context, id int, path string) error
	MarkInvoiceCancelled(ctx context.Context, id int) error
	MarkInvoiceExported(ctx context.Context, id int, exportedID string) error
	ExportedIDExists(ctx context.Context, exportedID string) (bool, error)
}

type PaymentStore interface {
	PaymentReferenceExists(ctx context.Context, reference string) (bool, error)
	CreatePayment(ctx context.Context, p *models.Payment) error
	ListPayments(ctx context.Context, customerID int) ([]*models.Payment, error)
}

type JobStore interface {
	CreateJob(ctx context.Context, job *models.Job) error
	FinishJob(ctx context.Context, job *models.Job) error
}

// Store is the persistence boundary of the accounting engine.
type Store interface {
	CustomerStore
	ContractStore
	InvoiceStore
	PaymentStore
	JobStore

	// InTx runs fn inside a transaction. The Store handed to fn is bound to
	// it; returning an error rolls everything back.
	InTx(ctx context.Context, fn func(Store) error) error
}

// InvoiceFilter selects invoices for listing. Zero values match everything.
type InvoiceFilter struct {
	CustomerID int
	// Unsent selects invoices that were never sent and are not cancelled.
	Unsent bool
	// ExportCandidates selects sent, unexported, uncancelled SEPA-DD invoices.
	ExportCandidates bool
}

// PgStore implements Store on PostgreSQL.
type PgStore struct {
	db DBTX
	*CustomerRepository
	*ContractRepository
	*InvoiceRepository
	*PaymentRepository
	*JobRepository
}

var _ Store = (*PgStore)(nil)

func NewPgStore(db DBTX) *PgStore {
	return &PgStore{
		db:                 db,
		CustomerRepository: NewCustomerRepository(db),
		ContractRepository: NewContractRepository(db),
		InvoiceRepository:  NewInvoiceRepository(db),
		PaymentRepository:  NewPaymentRepository(db),
		JobRepository:      NewJobRepository(db),
	}
}

func (s *PgStore) InTx(ctx context.Context, fn func(Store) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(NewPgStore(tx)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// notFound translates pgx.ErrNoRows.
func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
