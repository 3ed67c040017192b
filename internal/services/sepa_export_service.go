package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"housing-backend/internal/cache"
	"housing-backend/internal/config"
	"housing-backend/internal/logger"
	"housing-backend/internal/metrics"
	"housing-backend/internal/models"
	"housing-backend/internal/money"
	"housing-backend/internal/repositories"
	"housing-backend/internal/sepa"
	"housing-backend/internal/timeutil"

	"github.com/rs/zerolog"
)

const (
	sepaExportLockTTL   = 10 * time.Minute
	firstCollectionDays = 5
	recurCollectionDays = 3
	exportIDAttempts    = 5
)

// ExportResult is the outcome of ExportInvoices.
type ExportResult struct {
	MsgID      string                   `json:"msg_id,omitempty"`
	Job        *models.Job              `json:"job,omitempty"`
	Exported   []int                    `json:"exported"`
	Rejected   []*sepa.RejectionError   `json:"rejected"`
	Sequences  map[int]sepa.SequenceType `json:"sequences,omitempty"`
	ArchiveKey string                   `json:"archive_key,omitempty"`
	XML        []byte                   `json:"-"`
}

type SepaExportService struct {
	Store           repositories.Store
	Jobs            *JobService
	Files           FileStore
	Locker          Locker
	Creditor        sepa.Creditor
	ReferencePrefix string
	Now             func() time.Time
	log             zerolog.Logger
}

func NewSepaExportService(store repositories.Store, jobs *JobService, files FileStore, locker Locker, cfg config.SepaConfig) *SepaExportService {
	if locker == nil {
		locker = noopLocker{}
	}
	return &SepaExportService{
		Store:  store,
		Jobs:   jobs,
		Files:  files,
		Locker: locker,
		Creditor: sepa.Creditor{
			Name:       cfg.CreditorName,
			IBAN:       cfg.CreditorIBAN,
			BIC:        cfg.CreditorBIC,
			ID:         cfg.CreditorID,
			Currency:   cfg.Currency,
			Instrument: cfg.Instrument,
			Batch:      cfg.Batch,
			Schema:     cfg.Schema,
		},
		ReferencePrefix: cfg.ReferencePrefix,
		Now:             timeutil.Now,
		log:             logger.WithComponent("sepa"),
	}
}

// SepaExport stages invoices for one pain.008 batch.
type SepaExport struct {
	svc       *SepaExportService
	check     *sepa.Batch
	invoices  []*models.Invoice
	customers map[int]*models.Customer
	staged    map[int]bool
	done      bool
}

// NewExport starts an empty export. It fails when the creditor settings are
// unusable.
func (s *SepaExportService) NewExport() (*SepaExport, error) {
	check, err := sepa.NewBatch(s.Creditor, "CHECK", s.Now())
	if err != nil {
		return nil, err
	}
	return &SepaExport{
		svc:       s,
		check:     check,
		customers: make(map[int]*models.Customer),
		staged:    make(map[int]bool),
	}, nil
}

func (e *SepaExport) Len() int { return len(e.invoices) }

// AddInvoice stages inv or explains with a *sepa.RejectionError why it
// cannot be collected.
func (e *SepaExport) AddInvoice(inv *models.Invoice, customer *models.Customer) error {
	reject := func(format string, args ...any) error {
		return &sepa.RejectionError{Reference: inv.Number(), Reason: fmt.Sprintf(format, args...)}
	}

	amount := inv.Amount()
	switch {
	case e.done:
		return errors.New("export has already been generated")
	case e.staged[inv.ID]:
		return reject("already staged")
	case len(inv.Items) == 0:
		return reject("invoice has no items")
	case !inv.IsSent():
		return reject("invoice has not been sent yet")
	case inv.Cancelled:
		return reject("invoice has been cancelled")
	case inv.Exported:
		return reject("invoice has already been exported")
	case customer == nil || customer.ID != inv.CustomerID:
		return reject("customer does not match invoice")
	case !customer.HasSepaMandate():
		return reject("no SEPA mandate for %s", customer)
	case inv.PaymentType != models.PaymentTypeSepaDD:
		return reject("payment type is %s, not %s", inv.PaymentType, models.PaymentTypeSepaDD)
	case !amount.IsPositive():
		return reject("amount %s is not positive", money.Format(amount))
	case !money.IsCents(amount):
		return reject("amount %s has more than two decimals", amount)
	}

	today := timeutil.DateOf(e.svc.Now())
	probe := e.svc.payment(inv, customer, sequenceFor(customer), "CHECK", today)
	if err := e.check.CheckPayment(probe); err != nil {
		var perr *sepa.PaymentError
		if errors.As(err, &perr) {
			return reject("%s", perr.Reason)
		}
		return err
	}

	e.invoices = append(e.invoices, inv)
	e.customers[customer.ID] = customer
	e.staged[inv.ID] = true
	return nil
}

func sequenceFor(customer *models.Customer) sepa.SequenceType {
	if customer.SepaMandateFirst {
		return sepa.SequenceFirst
	}
	return sepa.SequenceRecurring
}

func (s *SepaExportService) payment(inv *models.Invoice, customer *models.Customer, seq sepa.SequenceType, endToEndID string, today time.Time) sepa.Payment {
	days := recurCollectionDays
	if seq == sepa.SequenceFirst {
		days = firstCollectionDays
	}
	p := sepa.Payment{
		Name:           customer.Name(),
		Amount:         money.ToMinor(inv.Amount()),
		Type:           seq,
		CollectionDate: today.AddDate(0, 0, days),
		EndToEndID:     endToEndID,
		Description:    s.ReferencePrefix + strconv.Itoa(customer.ID) + " " + inv.Number(),
	}
	if customer.SepaIBAN != nil {
		p.IBAN = *customer.SepaIBAN
	}
	if customer.SepaMandateID != nil {
		p.MandateID = *customer.SepaMandateID
	}
	if customer.SepaMandateDate != nil {
		p.MandateDate = *customer.SepaMandateDate
	}
	return p
}

// Export builds the batch file and commits the export in one transaction:
// export ids, exported flags, the mandate sequence flip and the job. Nothing
// is written when any step fails.
func (e *SepaExport) Export(ctx context.Context, actorID *int) (*ExportResult, error) {
	if e.done {
		return nil, errors.New("export has already been generated")
	}
	if len(e.invoices) == 0 {
		return nil, sepa.ErrEmptyBatch
	}
	s := e.svc
	started := s.Now()
	today := timeutil.DateOf(started)

	batch, err := sepa.NewBatch(s.Creditor, sepa.NewMessageID(), started)
	if err != nil {
		return nil, err
	}

	result := &ExportResult{MsgID: batch.MsgID(), Sequences: map[int]sepa.SequenceType{}}
	exportIDs := make(map[int]string, len(e.invoices))

	err = s.Store.InTx(ctx, func(tx repositories.Store) error {
		used := map[string]bool{}
		for _, inv := range e.invoices {
			// the mandate flag is read once per customer, inside the transaction
			seq, ok := result.Sequences[inv.CustomerID]
			if !ok {
				fresh, err := tx.GetCustomer(ctx, inv.CustomerID)
				if err != nil {
					return fmt.Errorf("customer %d: %w", inv.CustomerID, err)
				}
				if !fresh.HasSepaMandate() {
					return &sepa.RejectionError{Reference: inv.Number(), Reason: "no SEPA mandate for " + fresh.String()}
				}
				e.customers[fresh.ID] = fresh
				seq = sequenceFor(fresh)
				result.Sequences[fresh.ID] = seq
			}
			customer := e.customers[inv.CustomerID]

			exportID, err := s.exportID(ctx, tx, inv, used)
			if err != nil {
				return err
			}
			used[exportID] = true

			if err := batch.AddPayment(s.payment(inv, customer, seq, exportID, today)); err != nil {
				return err
			}
			if err := tx.MarkInvoiceExported(ctx, inv.ID, exportID); err != nil {
				return err
			}
			exportIDs[inv.ID] = exportID

			if seq == sepa.SequenceFirst && customer.SepaMandateFirst {
				if err := tx.SetMandateFirst(ctx, customer.ID, false); err != nil {
					return fmt.Errorf("flip mandate sequence of customer %d: %w", customer.ID, err)
				}
				customer.SepaMandateFirst = false
			}
		}

		xml, err := batch.Export()
		if err != nil {
			return err
		}
		result.XML = xml

		job, err := s.Jobs.Record(ctx, tx, models.JobTypeSepaExport, batch.MsgID(), started, actorID)
		if err != nil {
			return fmt.Errorf("record sepa job: %w", err)
		}
		result.Job = job
		return nil
	})
	if err != nil {
		// the customers were changed in memory only
		for _, c := range e.customers {
			if seq, ok := result.Sequences[c.ID]; ok && seq == sepa.SequenceFirst {
				c.SepaMandateFirst = true
			}
		}
		return nil, err
	}

	e.done = true
	for _, inv := range e.invoices {
		id := exportIDs[inv.ID]
		inv.Exported = true
		inv.ExportedID = &id
		result.Exported = append(result.Exported, inv.ID)
	}
	metrics.SepaBatchesTotal.Inc()
	metrics.SepaPaymentsExported.Add(float64(len(e.invoices)))
	s.log.Info().
		Str("msg_id", batch.MsgID()).
		Int("payments", batch.Len()).
		Str("control_sum", money.Format(money.FromMinor(batch.ControlSum()))).
		Msg("sepa batch exported")

	if s.Files == nil {
		return result, nil
	}
	key := "sepa/" + batch.MsgID() + ".xml"
	if err := s.Files.Put(ctx, key, result.XML, "application/xml"); err != nil {
		s.log.Error().Err(err).Str("msg_id", batch.MsgID()).Msg("archiving sepa batch failed")
	} else {
		result.ArchiveKey = key
	}
	return result, nil
}

// exportID returns the invoice's existing export id or a fresh one that is
// unused in storage and in this batch.
func (s *SepaExportService) exportID(ctx context.Context, tx repositories.Store, inv *models.Invoice, used map[string]bool) (string, error) {
	if inv.ExportedID != nil && *inv.ExportedID != "" {
		return *inv.ExportedID, nil
	}
	for i := 0; i < exportIDAttempts; i++ {
		id := sepa.MakeExportID(inv.Number(), s.Creditor.Name)
		if used[id] {
			continue
		}
		exists, err := tx.ExportedIDExists(ctx, id)
		if err != nil {
			return "", err
		}
		if !exists {
			return id, nil
		}
	}
	return "", fmt.Errorf("invoice %s: no unique export id after %d attempts", inv.Number(), exportIDAttempts)
}

// ListCandidates returns the invoices that can be collected by direct debit.
func (s *SepaExportService) ListCandidates(ctx context.Context) ([]*models.Invoice, error) {
	return s.Store.ListInvoices(ctx, repositories.InvoiceFilter{ExportCandidates: true})
}

// ExportInvoices stages the given invoices and exports the accepted ones.
// Rejections are returned in the result, also when nothing could be exported.
func (s *SepaExportService) ExportInvoices(ctx context.Context, ids []int, actorID *int) (*ExportResult, error) {
	release, err := s.Locker.Acquire(ctx, cache.SepaExportLockKey, sepaExportLockTTL)
	if err != nil {
		return nil, err
	}
	defer release()

	export, err := s.NewExport()
	if err != nil {
		return nil, err
	}

	var rejected []*sepa.RejectionError
	for _, id := range ids {
		inv, err := s.Store.GetInvoice(ctx, id)
		if errors.Is(err, repositories.ErrNotFound) {
			rejected = append(rejected, &sepa.RejectionError{Reference: strconv.Itoa(id), Reason: "invoice not found"})
			continue
		}
		if err != nil {
			return nil, err
		}
		customer, err := s.Store.GetCustomer(ctx, inv.CustomerID)
		if err != nil {
			return nil, fmt.Errorf("customer %d: %w", inv.CustomerID, err)
		}

		var rej *sepa.RejectionError
		if err := export.AddInvoice(inv, customer); errors.As(err, &rej) {
			rejected = append(rejected, rej)
		} else if err != nil {
			return nil, err
		}
	}

	if export.Len() == 0 {
		return &ExportResult{Exported: []int{}, Rejected: rejected}, sepa.ErrEmptyBatch
	}

	result, err := export.Export(ctx, actorID)
	if err != nil {
		return &ExportResult{Exported: []int{}, Rejected: rejected}, err
	}
	result.Rejected = rejected
	return result, nil
}
