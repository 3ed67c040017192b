// Package pdf renders invoices with gofpdf.
package pdf

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"housing-backend/internal/models"
	"housing-backend/internal/money"
	"housing-backend/internal/timeutil"

	"github.com/jung-kurt/gofpdf/v2"
	"github.com/shopspring/decimal"
)

// InvoiceRenderer lays out an invoice on one or more A4 pages.
type InvoiceRenderer struct {
	CompanyName     string
	SenderLine      string
	Footer          []string
	ReferencePrefix string

	compress bool
}

func NewInvoiceRenderer(companyName, senderLine, referencePrefix string, footer ...string) *InvoiceRenderer {
	return &InvoiceRenderer{
		CompanyName:     companyName,
		SenderLine:      senderLine,
		Footer:          footer,
		ReferencePrefix: referencePrefix,
		compress:        true,
	}
}

// column widths: position, description, quantity, unit price, amount
var widths = [5]float64{12, 98, 18, 31, 31}

func (r *InvoiceRenderer) Render(inv *models.Invoice, customer *models.Customer) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetCompression(r.compress)
	pdf.SetMargins(20, 15, 20)
	pdf.SetAutoPageBreak(true, 25)
	pdf.SetTitle(fmt.Sprintf("%s Rechnung %s", r.CompanyName, inv.Number()), true)
	pdf.SetCreator(r.CompanyName, true)

	// core fonts are cp1252
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFooterFunc(func() {
		pdf.SetY(-20)
		pdf.SetFont("Arial", "", 7)
		pdf.SetTextColor(100, 100, 100)
		for _, line := range r.Footer {
			pdf.CellFormat(0, 3.5, tr(line), "", 1, "C", false, 0, "")
		}
		pdf.CellFormat(0, 3.5, fmt.Sprintf("Seite %d/{nb}", pdf.PageNo()), "", 0, "R", false, 0, "")
	})
	pdf.AliasNbPages("")
	pdf.AddPage()

	// Header
	pdf.SetFont("Arial", "B", 18)
	pdf.CellFormat(0, 10, tr(r.CompanyName), "", 1, "R", false, 0, "")
	pdf.Ln(12)

	// Address window
	pdf.SetFont("Arial", "", 7)
	pdf.SetTextColor(100, 100, 100)
	pdf.CellFormat(85, 4, tr(r.SenderLine), "B", 1, "L", false, 0, "")
	pdf.SetTextColor(0, 0, 0)
	pdf.SetFont("Arial", "", 10)
	pdf.Ln(2)
	pdf.MultiCell(85, 5, tr(inv.Address), "", "L", false)
	pdf.Ln(12)

	// Invoice meta
	pdf.SetFont("Arial", "B", 14)
	title := "Rechnung " + inv.Number()
	if inv.Amount().IsNegative() {
		title = "Gutschrift " + inv.Number()
	}
	pdf.CellFormat(110, 8, tr(title), "", 0, "L", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(60, 8, "Datum: "+inv.CreatedAt.Format(timeutil.DisplayDateLayout), "", 1, "R", false, 0, "")
	pdf.CellFormat(110, 5, tr("Kundennummer: k"+strconv.Itoa(customer.ID)), "", 1, "L", false, 0, "")
	if inv.Cancelled {
		pdf.SetTextColor(180, 0, 0)
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(110, 5, "STORNIERT", "", 1, "L", false, 0, "")
		pdf.SetTextColor(0, 0, 0)
	}
	pdf.Ln(6)

	// Items table
	pdf.SetFont("Arial", "B", 9)
	pdf.SetFillColor(230, 230, 230)
	headers := [5]string{"Pos", "Bezeichnung", "Menge", "Einzelpreis", "Betrag"}
	aligns := [5]string{"C", "L", "R", "R", "R"}
	for i, h := range headers {
		pdf.CellFormat(widths[i], 7, h, "1", 0, aligns[i], true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 9)
	for i, item := range inv.Items {
		desc := item.Title
		if item.Detail != "" {
			desc += "\n" + item.Detail
		}
		lines := pdf.SplitLines([]byte(tr(desc)), widths[1]-2)
		height := float64(len(lines)) * 5
		if height < 6 {
			height = 6
		}

		x, y := pdf.GetXY()
		pdf.CellFormat(widths[0], height, strconv.Itoa(i+1), "1", 0, "C", false, 0, "")
		pdf.MultiCell(widths[1], height/float64(len(lines)), tr(desc), "1", "L", false)
		pdf.SetXY(x+widths[0]+widths[1], y)
		pdf.CellFormat(widths[2], height, strconv.Itoa(item.Quantity), "1", 0, "R", false, 0, "")
		pdf.CellFormat(widths[3], height, tr(euro(item.UnitPrice)), "1", 0, "R", false, 0, "")
		pdf.CellFormat(widths[4], height, tr(euro(item.Amount())), "1", 1, "R", false, 0, "")
	}

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(widths[0]+widths[1]+widths[2]+widths[3], 8, "Summe", "1", 0, "R", false, 0, "")
	pdf.CellFormat(widths[4], 8, tr(euro(inv.Amount())), "1", 1, "R", false, 0, "")
	pdf.Ln(8)

	// Payment instructions
	pdf.SetFont("Arial", "", 10)
	pdf.MultiCell(0, 5, tr(r.paymentNote(inv, customer)), "", "L", false)

	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("render invoice %s: %w", inv.Number(), err)
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render invoice %s: %w", inv.Number(), err)
	}
	return buf.Bytes(), nil
}

func (r *InvoiceRenderer) paymentNote(inv *models.Invoice, customer *models.Customer) string {
	if !inv.Amount().IsPositive() {
		return "Es ist keine Zahlung erforderlich."
	}
	if inv.PaymentType == models.PaymentTypeSepaDD && customer.HasSepaMandate() {
		iban := *customer.SepaIBAN
		return fmt.Sprintf("Der Betrag wird per SEPA-Lastschrift (Mandat %s) vom Konto %s eingezogen.",
			*customer.SepaMandateID, maskIBAN(iban))
	}
	return fmt.Sprintf("Bitte überweisen Sie den Betrag unter Angabe der Referenz \"%s%d %s\".",
		r.ReferencePrefix, customer.ID, inv.Number())
}

func euro(amount decimal.Decimal) string {
	return money.Format(amount) + " €"
}

// maskIBAN keeps the country code and the last four characters.
func maskIBAN(iban string) string {
	if len(iban) <= 8 {
		return iban
	}
	return iban[:4] + strings.Repeat("*", len(iban)-8) + iban[len(iban)-4:]
}
