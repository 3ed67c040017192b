package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"housing-backend/internal/billing"
	"housing-backend/internal/cache"
	"housing-backend/internal/config"
	"housing-backend/internal/logger"
	"housing-backend/internal/metrics"
	"housing-backend/internal/models"
	"housing-backend/internal/repositories"
	"housing-backend/internal/timeutil"

	"github.com/rs/zerolog"
)

const billAllLockTTL = 30 * time.Minute

// BillingReport is the outcome of a BillAll run.
type BillingReport struct {
	Job        *models.Job    `json:"job"`
	InvoiceIDs []int          `json:"invoice_ids"`
	Items      int            `json:"items"`
	Skipped    int            `json:"skipped"`
	Errored    int            `json:"errored"`
	Errors     map[int]string `json:"errors,omitempty"`
}

// BillingRun is the state shared by all customers billed in one run.
type BillingRun struct {
	Job     *models.Job
	Today   time.Time
	Now     time.Time
	ActorID *int
	Skipped int

	invoices map[int]*models.Invoice
}

func NewBillingRun(job *models.Job, now time.Time, actorID *int) *BillingRun {
	return &BillingRun{
		Job:      job,
		Today:    timeutil.DateOf(now),
		Now:      now,
		ActorID:  actorID,
		invoices: make(map[int]*models.Invoice),
	}
}

// InvoiceFor returns the invoice of customer in this run, starting one on
// first use. All packages of a customer end up on the same invoice.
func (r *BillingRun) InvoiceFor(customer *models.Customer, paymentType models.PaymentType) *models.Invoice {
	if inv, ok := r.invoices[customer.ID]; ok {
		return inv
	}
	inv := models.NewInvoice(customer, r.Job, paymentType, r.ActorID, r.Now)
	r.invoices[customer.ID] = inv
	return inv
}

// Invoices returns the invoices of this run in customer order.
func (r *BillingRun) Invoices() []*models.Invoice {
	out := make([]*models.Invoice, 0, len(r.invoices))
	for _, inv := range r.invoices {
		out = append(out, inv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CustomerID < out[j].CustomerID })
	return out
}

func (r *BillingRun) forget(customerID int) {
	delete(r.invoices, customerID)
}

type BillingService struct {
	Store  repositories.Store
	Jobs   *JobService
	Locker Locker
	Calc   billing.Calculator
	Now    func() time.Time
	log    zerolog.Logger
}

func NewBillingService(store repositories.Store, jobs *JobService, locker Locker, cfg config.BillingConfig) *BillingService {
	if locker == nil {
		locker = noopLocker{}
	}
	return &BillingService{
		Store:  store,
		Jobs:   jobs,
		Locker: locker,
		Calc:   billing.Calculator{AnchorDay: cfg.AnchorDay, StaleAfterDays: cfg.StaleAfterDays},
		Now:    timeutil.Now,
		log:    logger.WithComponent("billing"),
	}
}

// BillAll bills every customer, each in its own transaction. A failing
// customer is logged and counted; the run carries on with the next one.
func (s *BillingService) BillAll(ctx context.Context, actorID *int) (*BillingReport, error) {
	release, err := s.Locker.Acquire(ctx, cache.BillAllLockKey, billAllLockTTL)
	if err != nil {
		return nil, err
	}
	defer release()

	job, err := s.Jobs.Start(ctx, models.JobTypeBillAll, actorID)
	if err != nil {
		return nil, fmt.Errorf("start billing job: %w", err)
	}

	ids, err := s.Store.ListCustomerIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}

	run := NewBillingRun(job, s.Now(), actorID)
	report := &BillingReport{Job: job, InvoiceIDs: []int{}, Errors: map[int]string{}}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			report.Errors[id] = err.Error()
			report.Errored++
			break
		}
		inv, err := s.billContact(ctx, run, id)
		if err != nil {
			s.log.Error().Err(err).Int("customer_id", id).Msg("billing customer failed")
			metrics.BillingCustomerErrors.Inc()
			report.Errors[id] = err.Error()
			report.Errored++
			continue
		}
		if inv != nil {
			report.InvoiceIDs = append(report.InvoiceIDs, inv.ID)
			report.Items += len(inv.Items)
		}
	}
	report.Skipped = run.Skipped

	note := fmt.Sprintf("%d invoices, %d items, %d skipped, %d errors",
		len(report.InvoiceIDs), report.Items, report.Skipped, report.Errored)
	if err := s.Jobs.Finish(ctx, job, note); err != nil {
		return report, fmt.Errorf("finish billing job: %w", err)
	}
	s.log.Info().Int("job_id", job.ID).Str("summary", note).Msg("billing run finished")
	return report, nil
}

// BillContact bills all open contracts of one customer in one transaction.
// It returns nil when nothing was due.
func (s *BillingService) BillContact(ctx context.Context, customerID int, job *models.Job, actorID *int) (*models.Invoice, error) {
	return s.billContact(ctx, NewBillingRun(job, s.Now(), actorID), customerID)
}

// BillContract bills a single contract for its billing customer.
func (s *BillingService) BillContract(ctx context.Context, contractID int, actorID *int) (*models.Invoice, error) {
	run := NewBillingRun(nil, s.Now(), actorID)

	var inv *models.Invoice
	err := s.Store.InTx(ctx, func(tx repositories.Store) error {
		contract, err := tx.GetContract(ctx, contractID)
		if err != nil {
			return fmt.Errorf("contract %d: %w", contractID, err)
		}
		if contract.IsClosed() {
			return fmt.Errorf("contract %d: %w", contractID, models.ErrContractClosed)
		}
		customer, err := tx.GetCustomer(ctx, contract.BillingCustomerID)
		if err != nil {
			return fmt.Errorf("customer %d: %w", contract.BillingCustomerID, err)
		}
		inv, err = s.billContracts(ctx, tx, run, customer, []*models.Contract{contract})
		return err
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

func (s *BillingService) billContact(ctx context.Context, run *BillingRun, customerID int) (*models.Invoice, error) {
	var inv *models.Invoice
	err := s.Store.InTx(ctx, func(tx repositories.Store) error {
		customer, err := tx.GetCustomer(ctx, customerID)
		if err != nil {
			return fmt.Errorf("customer %d: %w", customerID, err)
		}
		contracts, err := tx.ListOpenContracts(ctx, customerID)
		if err != nil {
			return fmt.Errorf("contracts of customer %d: %w", customerID, err)
		}
		inv, err = s.billContracts(ctx, tx, run, customer, contracts)
		return err
	})
	if err != nil {
		run.forget(customerID)
		return nil, err
	}
	return inv, nil
}

// billContracts puts every due package of contracts on the customer's run
// invoice, persists it and advances the billing cursors through tx.
func (s *BillingService) billContracts(ctx context.Context, tx repositories.Store, run *BillingRun, customer *models.Customer, contracts []*models.Contract) (*models.Invoice, error) {
	var inv *models.Invoice
	var added []*models.InvoiceItem
	var advanced []*models.ContractPackage

	for _, contract := range contracts {
		if !contract.NeedsBilling(run.Today) {
			continue
		}
		for _, cp := range contract.Packages {
			if !cp.NeedsBilling(run.Today) {
				continue
			}

			line, err := s.Calc.Bill(cp, run.Today)
			switch {
			case errors.Is(err, billing.ErrNothingDue):
				continue
			case errors.Is(err, billing.ErrStale):
				s.log.Warn().Err(err).
					Int("customer_id", customer.ID).
					Int("contract_id", contract.ID).
					Int("contract_package_id", cp.ID).
					Msg("skipping contract package, billing cursor needs inspection")
				metrics.BillingPackagesSkipped.Inc()
				run.Skipped++
				continue
			case err != nil:
				return nil, fmt.Errorf("bill contract package %d: %w", cp.ID, err)
			}

			inv = run.InvoiceFor(customer, contract.PaymentType)
			item := line.Item()
			if err := inv.AddItem(item); err != nil {
				return nil, err
			}
			added = append(added, item)

			today, next := run.Today, line.Next
			cp.LastBilled = &today
			cp.BilledUntil = &next
			advanced = append(advanced, cp)
		}
	}

	if inv == nil || len(added) == 0 {
		return nil, nil
	}

	created := inv.ID == 0
	if created {
		if err := tx.CreateInvoice(ctx, inv); err != nil {
			return nil, fmt.Errorf("create invoice: %w", err)
		}
	} else {
		for _, item := range added {
			if err := tx.AddInvoiceItem(ctx, item); err != nil {
				return nil, fmt.Errorf("add item to invoice %d: %w", inv.ID, err)
			}
		}
	}

	for _, cp := range advanced {
		if err := tx.AdvanceBillingCursor(ctx, cp); err != nil {
			return nil, err
		}
	}

	if created {
		metrics.BillingInvoicesTotal.Inc()
	}
	metrics.BillingItemsTotal.Add(float64(len(added)))
	s.log.Info().
		Int("customer_id", customer.ID).
		Int("invoice_id", inv.ID).
		Int("items", len(added)).
		Str("amount", inv.Amount().StringFixed(2)).
		Msg("billed customer")
	return inv, nil
}
