package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"housing-backend/internal/bankimport"
	"housing-backend/internal/cache"
	"housing-backend/internal/logger"
	"housing-backend/internal/metrics"
	"housing-backend/internal/models"
	"housing-backend/internal/repositories"
	"housing-backend/internal/timeutil"

	"github.com/rs/zerolog"
)

const paymentImportLockTTL = 10 * time.Minute

type ImportStatus string

const (
	ImportErrored   ImportStatus = "errored"
	ImportUnmatched ImportStatus = "unmatched"
	ImportExact     ImportStatus = "exact"
	ImportWeak      ImportStatus = "weak"
	ImportBounced   ImportStatus = "bounced"
	ImportIgnored   ImportStatus = "ignored"
)

// Signals that can resolve a transaction to a customer.
const (
	SignalNote = "note"
	SignalUID  = "uid"
	SignalIBAN = "iban"
	SignalIP   = "ip"
)

var (
	noteOverrideRe = regexp.MustCompile(`^\s*k(\d+)\b`)
	ipv4Re         = regexp.MustCompile(`\b\d{1,3}(?:\.\d{1,3}){3}\b`)
)

// ImportEntry is the outcome for one bank record.
type ImportEntry struct {
	Index       int                     `json:"index"`
	Status      ImportStatus            `json:"status"`
	Transaction *bankimport.Transaction `json:"transaction,omitempty"`
	CustomerID  int                     `json:"customer_id,omitempty"`
	Signals     []string                `json:"signals,omitempty"`
	Candidates  []int                   `json:"candidates,omitempty"`
	Reason      string                  `json:"reason,omitempty"`
	PaymentID   int                     `json:"payment_id,omitempty"`
}

// ImportReport partitions every record of an import. Imported entries are
// split into exact, weak and bounced.
type ImportReport struct {
	Job       *models.Job    `json:"job,omitempty"`
	Committed bool           `json:"committed"`
	Errored   []*ImportEntry `json:"errored"`
	Unmatched []*ImportEntry `json:"unmatched"`
	Exact     []*ImportEntry `json:"exact"`
	Weak      []*ImportEntry `json:"weak"`
	Bounced   []*ImportEntry `json:"bounced"`
	Ignored   []*ImportEntry `json:"ignored"`
}

func (r *ImportReport) add(e *ImportEntry) {
	switch e.Status {
	case ImportErrored:
		r.Errored = append(r.Errored, e)
	case ImportUnmatched:
		r.Unmatched = append(r.Unmatched, e)
	case ImportExact:
		r.Exact = append(r.Exact, e)
	case ImportWeak:
		r.Weak = append(r.Weak, e)
	case ImportBounced:
		r.Bounced = append(r.Bounced, e)
	case ImportIgnored:
		r.Ignored = append(r.Ignored, e)
	}
}

// Imported returns the entries that become payments.
func (r *ImportReport) Imported() []*ImportEntry {
	out := make([]*ImportEntry, 0, len(r.Exact)+len(r.Weak)+len(r.Bounced))
	out = append(out, r.Exact...)
	out = append(out, r.Weak...)
	out = append(out, r.Bounced...)
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// Summary is the job note.
func (r *ImportReport) Summary() string {
	return fmt.Sprintf("%d exact, %d weak, %d bounced, %d unmatched, %d ignored, %d errors",
		len(r.Exact), len(r.Weak), len(r.Bounced), len(r.Unmatched), len(r.Ignored), len(r.Errored))
}

type PaymentImportService struct {
	Store           repositories.Store
	Jobs            *JobService
	Locker          Locker
	Currency        string
	ReferencePrefix string
	Now             func() time.Time
	log             zerolog.Logger

	uidRe *regexp.Regexp
}

func NewPaymentImportService(store repositories.Store, jobs *JobService, locker Locker, currency, referencePrefix string) *PaymentImportService {
	if locker == nil {
		locker = noopLocker{}
	}
	if currency == "" {
		currency = "EUR"
	}
	return &PaymentImportService{
		Store:           store,
		Jobs:            jobs,
		Locker:          locker,
		Currency:        currency,
		ReferencePrefix: referencePrefix,
		Now:             timeutil.Now,
		log:             logger.WithComponent("payments"),
		uidRe:           regexp.MustCompile(regexp.QuoteMeta(referencePrefix) + `(\d+)`),
	}
}

// ImportFile decodes an Erste Bank JSON export and imports it.
func (s *PaymentImportService) ImportFile(ctx context.Context, r io.Reader, commit bool, actorID *int) (*ImportReport, error) {
	records, err := bankimport.Decode(r)
	if err != nil {
		return nil, &models.ValidationError{Field: "file", Message: err.Error()}
	}
	return s.Import(ctx, records, commit, actorID)
}

// Import resolves every record. With commit set the resolved payments and the
// payment_import job are written in one transaction; otherwise nothing is
// written.
func (s *PaymentImportService) Import(ctx context.Context, records []bankimport.Record, commit bool, actorID *int) (*ImportReport, error) {
	if commit {
		release, err := s.Locker.Acquire(ctx, cache.PaymentImportLockKey, paymentImportLockTTL)
		if err != nil {
			return nil, err
		}
		defer release()
	}

	started := s.Now()
	report := &ImportReport{}
	seen := make(map[string]bool, len(records))

	for i, rec := range records {
		entry, err := s.process(ctx, i, rec, seen)
		if err != nil {
			return nil, err
		}
		report.add(entry)
	}

	if commit {
		err := s.Store.InTx(ctx, func(tx repositories.Store) error {
			job, err := s.Jobs.Record(ctx, tx, models.JobTypePaymentImport, report.Summary(), started, actorID)
			if err != nil {
				return fmt.Errorf("record import job: %w", err)
			}
			for _, entry := range report.Imported() {
				t := entry.Transaction
				p := &models.Payment{
					CustomerID:  entry.CustomerID,
					JobID:       &job.ID,
					Date:        t.Date,
					Amount:      t.Amount,
					PaymentType: models.PaymentTypeTransfer,
					Detail:      t.Reference,
					Reference:   t.ReferenceNumber,
					CreatedAt:   s.Now(),
				}
				if err := tx.CreatePayment(ctx, p); err != nil {
					return fmt.Errorf("payment %s: %w", t.ReferenceNumber, err)
				}
				entry.PaymentID = p.ID
			}
			report.Job = job
			return nil
		})
		if err != nil {
			return nil, err
		}
		report.Committed = true
	}

	if commit {
		for _, status := range []ImportStatus{ImportErrored, ImportUnmatched, ImportExact, ImportWeak, ImportBounced, ImportIgnored} {
			metrics.PaymentImportOutcomes.WithLabelValues(string(status)).Add(float64(s.count(report, status)))
		}
	}
	s.log.Info().
		Bool("commit", commit).
		Int("records", len(records)).
		Str("summary", report.Summary()).
		Msg("payment import")
	return report, nil
}

func (s *PaymentImportService) count(r *ImportReport, status ImportStatus) int {
	switch status {
	case ImportErrored:
		return len(r.Errored)
	case ImportUnmatched:
		return len(r.Unmatched)
	case ImportExact:
		return len(r.Exact)
	case ImportWeak:
		return len(r.Weak)
	case ImportBounced:
		return len(r.Bounced)
	case ImportIgnored:
		return len(r.Ignored)
	}
	return 0
}

// process runs the pipeline for one record. Only storage failures are
// returned as errors.
func (s *PaymentImportService) process(ctx context.Context, index int, rec bankimport.Record, seen map[string]bool) (*ImportEntry, error) {
	entry := &ImportEntry{Index: index}

	t, err := bankimport.Parse(rec, s.Currency)
	if err != nil {
		entry.Status = ImportErrored
		entry.Reason = err.Error()
		return entry, nil
	}
	entry.Transaction = t

	if seen[t.ReferenceNumber] {
		entry.Status = ImportIgnored
		entry.Reason = "duplicate reference in this file"
		return entry, nil
	}
	seen[t.ReferenceNumber] = true

	exists, err := s.Store.PaymentReferenceExists(ctx, t.ReferenceNumber)
	if err != nil {
		return nil, err
	}
	if exists {
		entry.Status = ImportIgnored
		entry.Reason = "already imported"
		return entry, nil
	}

	if strings.EqualFold(t.Note, "ignore") {
		entry.Status = ImportUnmatched
		entry.Reason = "ignored by note"
		return entry, nil
	}

	customerID, err := s.resolve(ctx, t, entry)
	if err != nil {
		var verr *models.ValidationError
		if errors.As(err, &verr) {
			entry.Status = ImportErrored
			entry.Reason = verr.Message
			return entry, nil
		}
		return nil, err
	}
	if customerID == 0 {
		entry.Status = ImportUnmatched
		entry.Reason = "no matching customer"
		return entry, nil
	}
	entry.CustomerID = customerID

	ok, err := s.Store.IsBillingContact(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if !ok {
		entry.Status = ImportErrored
		entry.Reason = fmt.Sprintf("customer %d is not the billing contact of any contract", customerID)
		return entry, nil
	}

	switch {
	case t.Amount.IsNegative():
		entry.Status = ImportBounced
	case len(entry.Signals) == 1 && entry.Signals[0] == SignalIP:
		entry.Status = ImportWeak
	default:
		entry.Status = ImportExact
	}
	return entry, nil
}

// resolve returns the customer the transaction belongs to, 0 when no signal
// matched. Inconsistent signals come back as a *models.ValidationError with
// the candidates recorded on entry.
func (s *PaymentImportService) resolve(ctx context.Context, t *bankimport.Transaction, entry *ImportEntry) (int, error) {
	if m := noteOverrideRe.FindStringSubmatch(t.Note); m != nil {
		id, known, err := s.knownCustomer(ctx, m[1])
		if err != nil {
			return 0, err
		}
		if !known {
			return 0, &models.ValidationError{Field: "note", Message: fmt.Sprintf("note names unknown customer %d", id)}
		}
		entry.Signals = []string{SignalNote}
		return id, nil
	}

	found := map[int][]string{}

	if s.ReferencePrefix != "" {
		if m := s.uidRe.FindStringSubmatch(t.Reference); m != nil {
			id, known, err := s.knownCustomer(ctx, m[1])
			if err != nil {
				return 0, err
			}
			// a stale or mistyped token is no signal, the others still decide
			if known {
				found[id] = append(found[id], SignalUID)
			} else {
				s.log.Debug().Int("customer_id", id).Str("reference", t.Reference).Msg("reference names unknown customer")
			}
		}
	}

	if t.IBAN != "" {
		c, err := s.Store.FindCustomerByIBAN(ctx, t.IBAN)
		switch {
		case err == nil:
			found[c.ID] = append(found[c.ID], SignalIBAN)
		case !errors.Is(err, repositories.ErrNotFound):
			return 0, err
		}
	}

	ipCustomers, err := s.customersByIP(ctx, t.Reference)
	if err != nil {
		return 0, err
	}
	for _, id := range ipCustomers {
		found[id] = append(found[id], SignalIP)
	}

	for id, signals := range found {
		entry.Candidates = append(entry.Candidates, id)
		entry.Signals = append(entry.Signals, signals...)
	}
	sort.Ints(entry.Candidates)
	sort.Strings(entry.Signals)

	switch len(found) {
	case 0:
		return 0, nil
	case 1:
		return entry.Candidates[0], nil
	}
	return 0, &models.ValidationError{
		Field:   "reference",
		Message: "conflicting signals resolve to customers " + joinInts(entry.Candidates),
	}
}

// knownCustomer parses digits as a customer id and reports whether that
// customer exists.
func (s *PaymentImportService) knownCustomer(ctx context.Context, digits string) (int, bool, error) {
	id, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false, nil
	}
	if _, err := s.Store.GetCustomer(ctx, id); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return id, false, nil
		}
		return 0, false, err
	}
	return id, true, nil
}

// customersByIP resolves the IPv4 addresses embedded in reference to the
// billing customers of their servers.
func (s *PaymentImportService) customersByIP(ctx context.Context, reference string) ([]int, error) {
	var ids []int
	seen := map[int]bool{}
	for _, token := range ipv4Re.FindAllString(reference, -1) {
		addr, err := netip.ParseAddr(token)
		if err != nil || !addr.Is4() {
			continue
		}
		contract, err := s.Store.FindServerByIP(ctx, addr.String())
		if errors.Is(err, repositories.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if !seen[contract.BillingCustomerID] {
			seen[contract.BillingCustomerID] = true
			ids = append(ids, contract.BillingCustomerID)
		}
	}
	return ids, nil
}

func joinInts(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ", ")
}
