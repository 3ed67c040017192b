// Package sepa builds pain.008 direct debit initiation files.
package sepa

import (
	"encoding/xml"
	"fmt"
	"sort"
	"strings"
	"time"
)

type SequenceType string

const (
	SequenceFirst     SequenceType = "FRST"
	SequenceRecurring SequenceType = "RCUR"
	SequenceOneOff    SequenceType = "OOFF"
	SequenceFinal     SequenceType = "FNAL"
)

var supportedSchemas = map[string]bool{
	"pain.008.001.02": true,
	"pain.008.003.02": true,
}

// Creditor is the collecting party, taken from configuration.
type Creditor struct {
	Name       string
	IBAN       string
	BIC        string
	ID         string
	Currency   string
	Instrument string
	Batch      bool
	Schema     string
}

// Payment is one collection. Amount is in minor units.
type Payment struct {
	Name           string
	IBAN           string
	BIC            string
	MandateID      string
	MandateDate    time.Time
	Amount         int64
	Type           SequenceType
	CollectionDate time.Time
	EndToEndID     string
	Description    string
}

// Batch collects payments for one pain.008 message.
type Batch struct {
	creditor Creditor
	msgID    string
	created  time.Time
	payments []Payment
}

func NewBatch(creditor Creditor, msgID string, created time.Time) (*Batch, error) {
	if creditor.Schema == "" {
		creditor.Schema = "pain.008.001.02"
	}
	if !supportedSchemas[creditor.Schema] {
		return nil, fmt.Errorf("unsupported sepa schema %q", creditor.Schema)
	}
	if creditor.Currency == "" {
		creditor.Currency = "EUR"
	}
	if creditor.Instrument == "" {
		creditor.Instrument = "CORE"
	}
	if err := ValidateIBAN(creditor.IBAN); err != nil {
		return nil, fmt.Errorf("creditor iban: %w", err)
	}
	if creditor.Name == "" || creditor.ID == "" {
		return nil, fmt.Errorf("creditor name and creditor id are required")
	}
	return &Batch{creditor: creditor, msgID: msgID, created: created}, nil
}

func (b *Batch) MsgID() string { return b.msgID }

func (b *Batch) Len() int { return len(b.payments) }

// CheckPayment validates p without adding it.
func (b *Batch) CheckPayment(p Payment) error {
	fail := func(reason string) error {
		return &PaymentError{EndToEndID: p.EndToEndID, Reason: reason}
	}
	if p.Amount <= 0 {
		return fail("amount must be positive")
	}
	if strings.TrimSpace(p.Name) == "" {
		return fail("debtor name is required")
	}
	if err := ValidateIBAN(p.IBAN); err != nil {
		return fail(err.Error())
	}
	if p.MandateID == "" || p.MandateDate.IsZero() {
		return fail("mandate id and date are required")
	}
	switch p.Type {
	case SequenceFirst, SequenceRecurring, SequenceOneOff, SequenceFinal:
	default:
		return fail(fmt.Sprintf("unknown sequence type %q", p.Type))
	}
	if p.CollectionDate.IsZero() {
		return fail("collection date is required")
	}
	if p.EndToEndID == "" || len(p.EndToEndID) > MaxEndToEndIDLength {
		return fail("end-to-end id must be 1 to 35 characters")
	}
	return nil
}

func (b *Batch) AddPayment(p Payment) error {
	if err := b.CheckPayment(p); err != nil {
		return err
	}
	p.IBAN = NormalizeIBAN(p.IBAN)
	b.payments = append(b.payments, p)
	return nil
}

// ControlSum is the total of all payments in minor units.
func (b *Batch) ControlSum() int64 {
	var sum int64
	for _, p := range b.payments {
		sum += p.Amount
	}
	return sum
}

// Export renders the pain.008 XML document.
func (b *Batch) Export() ([]byte, error) {
	if len(b.payments) == 0 {
		return nil, ErrEmptyBatch
	}

	doc := document{
		Xmlns:    "urn:iso:std:iso:20022:tech:xsd:" + b.creditor.Schema,
		XmlnsXsi: "http://www.w3.org/2001/XMLSchema-instance",
		Initiation: initiation{
			GroupHeader: groupHeader{
				MsgID:        b.msgID,
				CreationTime: b.created.Format("2006-01-02T15:04:05"),
				NbOfTxs:      len(b.payments),
				CtrlSum:      formatAmount(b.ControlSum()),
				InitgPty:     party{Name: truncate(b.creditor.Name, 70)},
			},
		},
	}

	for i, group := range b.groups() {
		doc.Initiation.PaymentInfos = append(doc.Initiation.PaymentInfos, b.paymentInfo(i, group))
	}

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal pain.008: %w", err)
	}
	return append([]byte(xml.Header), out...), nil
}

// groups splits payments into PmtInf blocks. In batch mode payments sharing
// sequence type and collection date go together, otherwise each payment gets
// its own block.
func (b *Batch) groups() [][]Payment {
	if !b.creditor.Batch {
		groups := make([][]Payment, 0, len(b.payments))
		for _, p := range b.payments {
			groups = append(groups, []Payment{p})
		}
		return groups
	}

	type key struct {
		seq  SequenceType
		date string
	}
	index := map[key]int{}
	var groups [][]Payment
	for _, p := range b.payments {
		k := key{p.Type, p.CollectionDate.Format("2006-01-02")}
		i, ok := index[k]
		if !ok {
			i = len(groups)
			index[k] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], p)
	}
	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i][0].Type < groups[j][0].Type
	})
	return groups
}

func (b *Batch) paymentInfo(n int, payments []Payment) paymentInfo {
	var sum int64
	txs := make([]directDebitTx, 0, len(payments))
	for _, p := range payments {
		sum += p.Amount
		agent := financialInstitution{Other: &otherID{ID: "NOTPROVIDED"}}
		if p.BIC != "" {
			agent = financialInstitution{BIC: p.BIC}
		}
		txs = append(txs, directDebitTx{
			PaymentID: paymentID{EndToEndID: p.EndToEndID},
			Amount:    instructedAmount{Currency: b.creditor.Currency, Value: formatAmount(p.Amount)},
			DirectDebit: directDebit{Mandate: mandateInfo{
				MandateID:       p.MandateID,
				DateOfSignature: p.MandateDate.Format("2006-01-02"),
			}},
			DebtorAgent:   agentWrapper{FinInstnID: agent},
			Debtor:        party{Name: truncate(p.Name, 70)},
			DebtorAccount: account{ID: accountID{IBAN: p.IBAN}},
			Remittance:    remittance{Unstructured: truncate(p.Description, 140)},
		})
	}

	first := payments[0]
	creditorAgent := financialInstitution{Other: &otherID{ID: "NOTPROVIDED"}}
	if b.creditor.BIC != "" {
		creditorAgent = financialInstitution{BIC: b.creditor.BIC}
	}

	return paymentInfo{
		ID:          fmt.Sprintf("%s-%d", truncate(b.msgID, 30), n+1),
		Method:      "DD",
		BatchBookg:  b.creditor.Batch,
		NbOfTxs:     len(payments),
		CtrlSum:     formatAmount(sum),
		PaymentType: paymentTypeInfo{
			ServiceLevel:    code{Code: "SEPA"},
			LocalInstrument: code{Code: b.creditor.Instrument},
			SequenceType:    string(first.Type),
		},
		CollectionDate:  first.CollectionDate.Format("2006-01-02"),
		Creditor:        party{Name: truncate(b.creditor.Name, 70)},
		CreditorAccount: account{ID: accountID{IBAN: NormalizeIBAN(b.creditor.IBAN)}},
		CreditorAgent:   agentWrapper{FinInstnID: creditorAgent},
		ChargeBearer:    "SLEV",
		CreditorScheme: creditorScheme{ID: schemeID{PrivateID: privateID{Other: schemeOther{
			ID:         b.creditor.ID,
			SchemeName: schemeName{Proprietary: "SEPA"},
		}}}},
		Transactions: txs,
	}
}

func formatAmount(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%d.%02d", sign, minor/100, minor%100)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		return string(r[:n])
	}
	return s
}

type document struct {
	XMLName    xml.Name   `xml:"Document"`
	Xmlns      string     `xml:"xmlns,attr"`
	XmlnsXsi   string     `xml:"xmlns:xsi,attr"`
	Initiation initiation `xml:"CstmrDrctDbtInitn"`
}

type initiation struct {
	GroupHeader  groupHeader   `xml:"GrpHdr"`
	PaymentInfos []paymentInfo `xml:"PmtInf"`
}

type groupHeader struct {
	MsgID        string `xml:"MsgId"`
	CreationTime string `xml:"CreDtTm"`
	NbOfTxs      int    `xml:"NbOfTxs"`
	CtrlSum      string `xml:"CtrlSum"`
	InitgPty     party  `xml:"InitgPty"`
}

type party struct {
	Name string `xml:"Nm"`
}

type paymentInfo struct {
	ID              string          `xml:"PmtInfId"`
	Method          string          `xml:"PmtMtd"`
	BatchBookg      bool            `xml:"BtchBookg"`
	NbOfTxs         int             `xml:"NbOfTxs"`
	CtrlSum         string          `xml:"CtrlSum"`
	PaymentType     paymentTypeInfo `xml:"PmtTpInf"`
	CollectionDate  string          `xml:"ReqdColltnDt"`
	Creditor        party           `xml:"Cdtr"`
	CreditorAccount account         `xml:"CdtrAcct"`
	CreditorAgent   agentWrapper    `xml:"CdtrAgt"`
	ChargeBearer    string          `xml:"ChrgBr"`
	CreditorScheme  creditorScheme  `xml:"CdtrSchmeId"`
	Transactions    []directDebitTx `xml:"DrctDbtTxInf"`
}

type paymentTypeInfo struct {
	ServiceLevel    code   `xml:"SvcLvl"`
	LocalInstrument code   `xml:"LclInstrm"`
	SequenceType    string `xml:"SeqTp"`
}

type code struct {
	Code string `xml:"Cd"`
}

type account struct {
	ID accountID `xml:"Id"`
}

type accountID struct {
	IBAN string `xml:"IBAN"`
}

type agentWrapper struct {
	FinInstnID financialInstitution `xml:"FinInstnId"`
}

type financialInstitution struct {
	BIC   string   `xml:"BIC,omitempty"`
	Other *otherID `xml:"Othr,omitempty"`
}

type otherID struct {
	ID string `xml:"Id"`
}

type creditorScheme struct {
	ID schemeID `xml:"Id"`
}

type schemeID struct {
	PrivateID privateID `xml:"PrvtId"`
}

type privateID struct {
	Other schemeOther `xml:"Othr"`
}

type schemeOther struct {
	ID         string     `xml:"Id"`
	SchemeName schemeName `xml:"SchmeNm"`
}

type schemeName struct {
	Proprietary string `xml:"Prtry"`
}

type directDebitTx struct {
	PaymentID     paymentID        `xml:"PmtId"`
	Amount        instructedAmount `xml:"InstdAmt"`
	DirectDebit   directDebit      `xml:"DrctDbtTx"`
	DebtorAgent   agentWrapper     `xml:"DbtrAgt"`
	Debtor        party            `xml:"Dbtr"`
	DebtorAccount account          `xml:"DbtrAcct"`
	Remittance    remittance       `xml:"RmtInf"`
}

type paymentID struct {
	EndToEndID string `xml:"EndToEndId"`
}

type instructedAmount struct {
	Currency string `xml:"Ccy,attr"`
	Value    string `xml:",chardata"`
}

type directDebit struct {
	Mandate mandateInfo `xml:"MndtRltdInf"`
}

type mandateInfo struct {
	MandateID       string `xml:"MndtId"`
	DateOfSignature string `xml:"DtOfSgntr"`
}

type remittance struct {
	Unstructured string `xml:"Ustrd"`
}
