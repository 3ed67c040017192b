package services

import (
	"context"
	"strconv"
	"strings"
	"testing"
	"time"

	"housing-backend/internal/bankimport"
	"housing-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var importNow = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

const (
	ibanAnna  = "AT611904300234573201"
	ibanOther = "GB82WEST12345698765432"
)

type importFixture struct {
	store *memStore
	svc   *PaymentImportService
	anna  *models.Customer
	bernd *models.Customer
	carla *models.Customer
}

// anna pays by mandate, bernd has a server at 192.0.2.10, carla has no
// contract.
func newImportFixture() *importFixture {
	store := newMemStore()
	anna := newTestCustomer(store, "Anna", "Huber")
	withMandate(store, anna, ibanAnna, "M-1", false)
	newTestContract(store, anna, models.PaymentTypeSepaDD)

	bernd := newTestCustomer(store, "Bernd", "Maier")
	store.addContract(&models.Contract{
		Kind:              models.ContractKindServer,
		BillingCustomerID: bernd.ID,
		AdminCustomerID:   bernd.ID,
		PaymentType:       models.PaymentTypeTransfer,
		Server:            &models.ServerDetails{Name: "srv1", IPs: []string{"192.0.2.10/32"}},
	})

	carla := newTestCustomer(store, "Carla", "Berger")

	jobs := NewJobService(store)
	jobs.Now = clock(importNow)
	svc := NewPaymentImportService(store, jobs, nil, "EUR", "Housing-k")
	svc.Now = clock(importNow)
	return &importFixture{store: store, svc: svc, anna: anna, bernd: bernd, carla: carla}
}

func record(refNum string, cents int64, iban, reference, note string) bankimport.Record {
	precision := int32(2)
	rec := bankimport.Record{
		Booking:      "2024-02-28T00:00:00.000+0100",
		PartnerName:  "Someone",
		Amount:       &bankimport.Amount{Value: &cents, Precision: &precision, Currency: "EUR"},
		Reference:    reference,
		ReferenceNum: refNum,
		Note:         note,
	}
	if iban != "" {
		rec.PartnerAccount = &bankimport.PartnerAccount{IBAN: iban}
	}
	return rec
}

// statuses maps record index to outcome.
func statuses(r *ImportReport) map[int]ImportStatus {
	out := map[int]ImportStatus{}
	for _, group := range [][]*ImportEntry{r.Errored, r.Unmatched, r.Exact, r.Weak, r.Bounced, r.Ignored} {
		for _, e := range group {
			out[e.Index] = e.Status
		}
	}
	return out
}

func TestImportPartitions(t *testing.T) {
	f := newImportFixture()
	records := []bankimport.Record{
		record("R1", 4000, "AT61 1904 3002 3457 3201", "Rechnung 2400042", ""),
		record("R2", 4000, ibanOther, "Server 192.0.2.10 Miete", ""),
		record("R3", -4000, ibanAnna, "Rücklastschrift", ""),
		record("R4", 1234, ibanOther, "Spende", ""),
		record("R5", 4000, ibanAnna, "egal", "ignore"),
		record("R1", 4000, ibanAnna, "Rechnung 2400042", ""),
		{Booking: "2024-02-28", ReferenceNum: "R7"},
	}

	report, err := f.svc.Import(context.Background(), records, true, ptr(3))
	require.NoError(t, err)
	assert.True(t, report.Committed)

	got := statuses(report)
	assert.Equal(t, map[int]ImportStatus{
		0: ImportExact,
		1: ImportWeak,
		2: ImportBounced,
		3: ImportUnmatched,
		4: ImportUnmatched,
		5: ImportIgnored,
		6: ImportErrored,
	}, got)
	assert.Equal(t, "ignored by note", report.Unmatched[1].Reason)

	payments, err := f.store.ListPayments(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, payments, 3)
	assert.Equal(t, f.anna.ID, payments[0].CustomerID)
	assert.Equal(t, "40.00", payments[0].Amount.StringFixed(2))
	assert.Equal(t, models.PaymentTypeTransfer, payments[0].PaymentType)
	assert.Equal(t, "Rechnung 2400042", payments[0].Detail)
	assert.Equal(t, d(2024, 2, 28), payments[0].Date)
	assert.Equal(t, f.bernd.ID, payments[1].CustomerID)
	assert.True(t, payments[2].Amount.IsNegative())

	jobs := f.store.jobsOfType(models.JobTypePaymentImport)
	require.Len(t, jobs, 1)
	assert.Equal(t, report.Job.ID, jobs[0].ID)
	assert.Equal(t, &jobs[0].ID, payments[0].JobID)
	assert.Equal(t, "1 exact, 1 weak, 1 bounced, 2 unmatched, 1 ignored, 1 errors", jobs[0].Note)
}

func TestImportTwiceCreatesOnePayment(t *testing.T) {
	f := newImportFixture()
	records := []bankimport.Record{record("R1", 4000, ibanAnna, "", "")}

	_, err := f.svc.Import(context.Background(), records, true, nil)
	require.NoError(t, err)
	second, err := f.svc.Import(context.Background(), records, true, nil)
	require.NoError(t, err)

	require.Len(t, second.Ignored, 1)
	assert.Equal(t, "already imported", second.Ignored[0].Reason)
	payments, err := f.store.ListPayments(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, payments, 1)
}

func TestImportConflictingSignals(t *testing.T) {
	f := newImportFixture()
	records := []bankimport.Record{record("R1", 4000, ibanAnna, "Server 192.0.2.10", "")}

	report, err := f.svc.Import(context.Background(), records, true, nil)
	require.NoError(t, err)
	require.Len(t, report.Errored, 1)

	entry := report.Errored[0]
	assert.ElementsMatch(t, []int{f.anna.ID, f.bernd.ID}, entry.Candidates)
	assert.Contains(t, entry.Reason, "conflicting signals")
	assert.Zero(t, entry.CustomerID)

	payments, err := f.store.ListPayments(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, payments)
}

func TestImportAgreeingSignalsAreExact(t *testing.T) {
	f := newImportFixture()
	ref := "Housing-k" + strconv.Itoa(f.bernd.ID) + " 192.0.2.10"
	report, err := f.svc.Import(context.Background(), []bankimport.Record{record("R1", 4000, "", ref, "")}, false, nil)
	require.NoError(t, err)
	require.Len(t, report.Exact, 1)
	assert.Equal(t, []string{SignalIP, SignalUID}, report.Exact[0].Signals)
}

func TestImportNoteOverrideWins(t *testing.T) {
	f := newImportFixture()
	note := "k" + strconv.Itoa(f.bernd.ID)
	records := []bankimport.Record{record("R1", 4000, ibanAnna, "Server 192.0.2.99", note)}

	report, err := f.svc.Import(context.Background(), records, false, nil)
	require.NoError(t, err)
	require.Len(t, report.Exact, 1)
	assert.Equal(t, f.bernd.ID, report.Exact[0].CustomerID)
	assert.Equal(t, []string{SignalNote}, report.Exact[0].Signals)
}

func TestImportUnknownCustomerToken(t *testing.T) {
	f := newImportFixture()
	records := []bankimport.Record{
		record("R1", 4000, "", "Housing-k999999", ""),
		record("R2", 4000, "", "", "k999999"),
		record("R3", 4000, ibanAnna, "Housing-k999999", ""),
	}

	report, err := f.svc.Import(context.Background(), records, false, nil)
	require.NoError(t, err)

	require.Len(t, report.Unmatched, 1)
	assert.Equal(t, 0, report.Unmatched[0].Index)

	require.Len(t, report.Errored, 1)
	assert.Contains(t, report.Errored[0].Reason, "unknown customer 999999")

	require.Len(t, report.Exact, 1)
	assert.Equal(t, f.anna.ID, report.Exact[0].CustomerID)
	assert.Equal(t, []string{SignalIBAN}, report.Exact[0].Signals)
}

func TestImportNoteTokenMustLead(t *testing.T) {
	f := newImportFixture()
	note := "Rechnung für k" + strconv.Itoa(f.bernd.ID) + " und k" + strconv.Itoa(f.carla.ID)
	records := []bankimport.Record{
		record("R1", 4000, ibanAnna, "", note),
		record("R2", 4000, ibanAnna, "", "  k"+strconv.Itoa(f.bernd.ID)+" Nachzahlung"),
	}

	report, err := f.svc.Import(context.Background(), records, false, nil)
	require.NoError(t, err)
	require.Len(t, report.Exact, 2)
	assert.Equal(t, f.anna.ID, report.Exact[0].CustomerID)
	assert.Equal(t, []string{SignalIBAN}, report.Exact[0].Signals)
	assert.Equal(t, f.bernd.ID, report.Exact[1].CustomerID)
	assert.Equal(t, []string{SignalNote}, report.Exact[1].Signals)
}

func TestImportRequiresBillingContact(t *testing.T) {
	f := newImportFixture()
	ref := "Housing-k" + strconv.Itoa(f.carla.ID)
	report, err := f.svc.Import(context.Background(), []bankimport.Record{record("R1", 4000, "", ref, "")}, false, nil)
	require.NoError(t, err)
	require.Len(t, report.Errored, 1)
	assert.Contains(t, report.Errored[0].Reason, "not the billing contact")
}

func TestImportDryRunWritesNothing(t *testing.T) {
	f := newImportFixture()
	records := []bankimport.Record{record("R1", 4000, ibanAnna, "", "")}

	report, err := f.svc.Import(context.Background(), records, false, nil)
	require.NoError(t, err)
	assert.False(t, report.Committed)
	assert.Nil(t, report.Job)
	require.Len(t, report.Exact, 1)
	assert.Zero(t, report.Exact[0].PaymentID)

	payments, err := f.store.ListPayments(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, payments)
	assert.Empty(t, f.store.jobsOfType(models.JobTypePaymentImport))
}

func TestImportFile(t *testing.T) {
	f := newImportFixture()
	body := `[{"booking":"2024-02-28","partnerName":"Anna Huber","partnerAccount":{"iban":"` + ibanAnna + `"},
	  "amount":{"value":4000,"precision":2,"currency":"EUR"},"reference":"","referenceNumber":"R1","note":""}]`

	report, err := f.svc.ImportFile(context.Background(), strings.NewReader(body), true, nil)
	require.NoError(t, err)
	assert.Len(t, report.Exact, 1)

	_, err = f.svc.ImportFile(context.Background(), strings.NewReader("{not json"), true, nil)
	var verr *models.ValidationError
	assert.ErrorAs(t, err, &verr)
}
