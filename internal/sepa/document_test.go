package sepa

import (
	"encoding/xml"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCreditor(batch bool) Creditor {
	return Creditor{
		Name:       "FunkFeuer Wien",
		IBAN:       "AT611904300234573201",
		BIC:        "BKAUATWW",
		ID:         "AT12ZZZ00000000001",
		Currency:   "EUR",
		Instrument: "CORE",
		Batch:      batch,
	}
}

func testPayment(e2e string, amount int64, seq SequenceType, collection time.Time) Payment {
	return Payment{
		Name:           "Max Mustermann",
		IBAN:           "DE89 3704 0044 0532 0130 00",
		MandateID:      "MANDATE-1",
		MandateDate:    time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC),
		Amount:         amount,
		Type:           seq,
		CollectionDate: collection,
		EndToEndID:     e2e,
		Description:    "Funkfeuer Housing-k1 2400001",
	}
}

type parsedDoc struct {
	GrpHdr struct {
		MsgID   string `xml:"MsgId"`
		NbOfTxs int    `xml:"NbOfTxs"`
		CtrlSum string `xml:"CtrlSum"`
	} `xml:"CstmrDrctDbtInitn>GrpHdr"`
	PmtInf []struct {
		SeqTp        string `xml:"PmtTpInf>SeqTp"`
		ReqdColltnDt string `xml:"ReqdColltnDt"`
		CtrlSum      string `xml:"CtrlSum"`
		Txs          []struct {
			EndToEndID string `xml:"PmtId>EndToEndId"`
			Amount     string `xml:"InstdAmt"`
			IBAN       string `xml:"DbtrAcct>Id>IBAN"`
		} `xml:"DrctDbtTxInf"`
	} `xml:"CstmrDrctDbtInitn>PmtInf"`
}

func TestBatchExportGroupsBySequenceType(t *testing.T) {
	created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	b, err := NewBatch(testCreditor(true), "MSG1", created)
	require.NoError(t, err)

	frst := time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC)
	rcur := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	require.NoError(t, b.AddPayment(testPayment("E2E-1", 4000, SequenceFirst, frst)))
	require.NoError(t, b.AddPayment(testPayment("E2E-2", 1999, SequenceRecurring, rcur)))
	require.NoError(t, b.AddPayment(testPayment("E2E-3", 1, SequenceRecurring, rcur)))

	out, err := b.Export()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(out), "<?xml"))
	assert.Contains(t, string(out), `xmlns="urn:iso:std:iso:20022:tech:xsd:pain.008.001.02"`)

	var doc parsedDoc
	require.NoError(t, xml.Unmarshal(out, &doc))
	assert.Equal(t, "MSG1", doc.GrpHdr.MsgID)
	assert.Equal(t, 3, doc.GrpHdr.NbOfTxs)
	assert.Equal(t, "60.00", doc.GrpHdr.CtrlSum)

	require.Len(t, doc.PmtInf, 2)
	assert.Equal(t, "FRST", doc.PmtInf[0].SeqTp)
	assert.Equal(t, "2024-03-06", doc.PmtInf[0].ReqdColltnDt)
	assert.Equal(t, "40.00", doc.PmtInf[0].CtrlSum)
	assert.Equal(t, "RCUR", doc.PmtInf[1].SeqTp)
	assert.Equal(t, "20.00", doc.PmtInf[1].CtrlSum)
	require.Len(t, doc.PmtInf[1].Txs, 2)
	assert.Equal(t, "0.01", doc.PmtInf[1].Txs[1].Amount)
	assert.Equal(t, "DE89370400440532013000", doc.PmtInf[1].Txs[0].IBAN)
}

func TestBatchWithoutBatchBookingHasOneBlockPerPayment(t *testing.T) {
	b, err := NewBatch(testCreditor(false), "MSG2", time.Now())
	require.NoError(t, err)
	day := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	require.NoError(t, b.AddPayment(testPayment("A", 100, SequenceRecurring, day)))
	require.NoError(t, b.AddPayment(testPayment("B", 200, SequenceRecurring, day)))

	out, err := b.Export()
	require.NoError(t, err)
	var doc parsedDoc
	require.NoError(t, xml.Unmarshal(out, &doc))
	assert.Len(t, doc.PmtInf, 2)
}

func TestCheckPaymentRejectsInvalidPayments(t *testing.T) {
	b, err := NewBatch(testCreditor(true), "MSG", time.Now())
	require.NoError(t, err)
	day := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

	p := testPayment("X", 0, SequenceFirst, day)
	assert.Error(t, b.CheckPayment(p))

	p = testPayment("X", 100, SequenceType("NOPE"), day)
	assert.Error(t, b.CheckPayment(p))

	p = testPayment("X", 100, SequenceFirst, day)
	p.IBAN = "AT611904300234573202"
	var perr *PaymentError
	assert.ErrorAs(t, b.CheckPayment(p), &perr)

	p = testPayment(strings.Repeat("x", 36), 100, SequenceFirst, day)
	assert.Error(t, b.CheckPayment(p))

	assert.Equal(t, 0, b.Len())
}

func TestEmptyBatchCannotBeExported(t *testing.T) {
	b, err := NewBatch(testCreditor(true), "MSG", time.Now())
	require.NoError(t, err)
	_, err = b.Export()
	assert.ErrorIs(t, err, ErrEmptyBatch)
}

func TestNewBatchValidatesCreditor(t *testing.T) {
	c := testCreditor(true)
	c.Schema = "pain.001.001.03"
	_, err := NewBatch(c, "MSG", time.Now())
	assert.Error(t, err)

	c = testCreditor(true)
	c.IBAN = "AT00"
	_, err = NewBatch(c, "MSG", time.Now())
	assert.Error(t, err)
}

func TestMakeExportID(t *testing.T) {
	id := makeExportID("2400042", "FunkFeuer Wien - Verein", "abcdef123456")
	assert.Equal(t, "2400042-FunkFeuerWienV-abcdef123456", id)
	assert.LessOrEqual(t, len(id), MaxEndToEndIDLength)

	id = MakeExportID("2400042", "FF")
	assert.True(t, strings.HasPrefix(id, "2400042-FF-"))
	assert.Len(t, id, len("2400042-FF-")+12)
	assert.NotEqual(t, id, MakeExportID("2400042", "FF"))
}

func TestNewMessageID(t *testing.T) {
	id := NewMessageID()
	assert.LessOrEqual(t, len(id), MaxEndToEndIDLength)
	assert.NotEqual(t, id, NewMessageID())
}
