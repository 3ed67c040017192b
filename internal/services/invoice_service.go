package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"housing-backend/internal/cache"
	"housing-backend/internal/logger"
	"housing-backend/internal/mail"
	"housing-backend/internal/metrics"
	"housing-backend/internal/models"
	"housing-backend/internal/money"
	"housing-backend/internal/repositories"
	"housing-backend/internal/timeutil"

	"github.com/rs/zerolog"
)

const sendUnsentLockTTL = time.Hour

// InvoiceRenderer turns an invoice into a PDF document.
type InvoiceRenderer interface {
	Render(inv *models.Invoice, customer *models.Customer) ([]byte, error)
}

// FileStore keeps generated files under a key.
type FileStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

type InvoiceMailer interface {
	Send(ctx context.Context, msg *mail.Message) error
}

// SendReport is the outcome of SendUnsent.
type SendReport struct {
	Job     *models.Job    `json:"job"`
	Sent    []int          `json:"sent"`
	Skipped []int          `json:"skipped"`
	Failed  int            `json:"failed"`
	Errors  map[int]string `json:"errors,omitempty"`
}

type InvoiceService struct {
	Store    repositories.Store
	Jobs     *JobService
	Renderer InvoiceRenderer
	Files    FileStore
	Mailer   InvoiceMailer
	Locker   Locker

	CompanyName     string
	BCC             string
	ReferencePrefix string

	Now func() time.Time
	log zerolog.Logger
}

func NewInvoiceService(store repositories.Store, jobs *JobService, renderer InvoiceRenderer, files FileStore, mailer InvoiceMailer, locker Locker) *InvoiceService {
	if locker == nil {
		locker = noopLocker{}
	}
	return &InvoiceService{
		Store:           store,
		Jobs:            jobs,
		Renderer:        renderer,
		Files:           files,
		Mailer:          mailer,
		Locker:          locker,
		CompanyName:     "Funkfeuer",
		ReferencePrefix: "Housing-k",
		Now:             timeutil.Now,
		log:             logger.WithComponent("invoices"),
	}
}

// InvoicePDFKey is the archive key of an invoice's PDF.
func InvoicePDFKey(inv *models.Invoice) string {
	return "invoices/" + inv.Number() + ".pdf"
}

func (s *InvoiceService) Get(ctx context.Context, id int) (*models.Invoice, error) {
	return s.Store.GetInvoice(ctx, id)
}

// Cancel neutralizes an invoice. A sent invoice stays as it is and gets a
// cancellation invoice with the negated amount; an unsent one receives the
// negative line itself. The invoice carrying the negative line is returned.
func (s *InvoiceService) Cancel(ctx context.Context, invoiceID int, actorID *int) (*models.Invoice, error) {
	var result *models.Invoice
	err := s.Store.InTx(ctx, func(tx repositories.Store) error {
		inv, err := tx.GetInvoice(ctx, invoiceID)
		if err != nil {
			return fmt.Errorf("invoice %d: %w", invoiceID, err)
		}
		if inv.Cancelled {
			return fmt.Errorf("invoice %s: %w", inv.Number(), models.ErrInvoiceAlreadyCancelled)
		}

		amount := inv.Amount()
		label := "Storno Rechnung " + inv.Number()

		if inv.IsSent() {
			customer, err := tx.GetCustomer(ctx, inv.CustomerID)
			if err != nil {
				return fmt.Errorf("customer %d: %w", inv.CustomerID, err)
			}
			credit := models.NewInvoice(customer, nil, inv.PaymentType, actorID, s.Now())
			if err := credit.AddItem(&models.InvoiceItem{Title: label, UnitPrice: amount.Neg(), Quantity: 1}); err != nil {
				return err
			}
			if err := tx.CreateInvoice(ctx, credit); err != nil {
				return fmt.Errorf("create cancellation invoice: %w", err)
			}
			result = credit
		} else {
			if !amount.IsZero() {
				item := &models.InvoiceItem{Title: "Storno", Detail: label, UnitPrice: amount.Neg(), Quantity: 1}
				if err := inv.AddItem(item); err != nil {
					return err
				}
				if err := tx.AddInvoiceItem(ctx, item); err != nil {
					return err
				}
			}
			result = inv
		}

		if err := tx.MarkInvoiceCancelled(ctx, inv.ID); err != nil {
			return err
		}
		inv.Cancelled = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Int("invoice_id", invoiceID).Int("credit_invoice_id", result.ID).Msg("invoice cancelled")
	return result, nil
}

// GeneratePDF renders the invoice, archives it and records the archive key.
func (s *InvoiceService) GeneratePDF(ctx context.Context, invoiceID int) (string, error) {
	inv, err := s.Store.GetInvoice(ctx, invoiceID)
	if err != nil {
		return "", fmt.Errorf("invoice %d: %w", invoiceID, err)
	}
	customer, err := s.Store.GetCustomer(ctx, inv.CustomerID)
	if err != nil {
		return "", fmt.Errorf("customer %d: %w", inv.CustomerID, err)
	}
	key, _, err := s.generate(ctx, inv, customer)
	return key, err
}

func (s *InvoiceService) generate(ctx context.Context, inv *models.Invoice, customer *models.Customer) (string, []byte, error) {
	if len(inv.Items) == 0 {
		return "", nil, fmt.Errorf("invoice %s: %w", inv.Number(), models.ErrEmptyInvoice)
	}
	data, err := s.Renderer.Render(inv, customer)
	if err != nil {
		return "", nil, fmt.Errorf("render invoice %s: %w", inv.Number(), err)
	}
	key := InvoicePDFKey(inv)
	if err := s.Files.Put(ctx, key, data, "application/pdf"); err != nil {
		return "", nil, fmt.Errorf("store invoice %s: %w", inv.Number(), err)
	}
	if err := s.Store.SetInvoicePath(ctx, inv.ID, key); err != nil {
		return "", nil, err
	}
	inv.Path = &key
	return key, data, nil
}

// Send renders and mails one invoice, then records sent_on. Invoices without
// items, and cancelled ones that never went out, are skipped.
func (s *InvoiceService) Send(ctx context.Context, invoiceID int) (bool, error) {
	inv, err := s.Store.GetInvoice(ctx, invoiceID)
	if err != nil {
		return false, fmt.Errorf("invoice %d: %w", invoiceID, err)
	}
	return s.send(ctx, inv)
}

func (s *InvoiceService) send(ctx context.Context, inv *models.Invoice) (bool, error) {
	if inv.IsSent() {
		return false, fmt.Errorf("invoice %s: %w", inv.Number(), models.ErrInvoiceAlreadySent)
	}
	if len(inv.Items) == 0 || inv.Cancelled {
		return false, nil
	}

	customer, err := s.Store.GetCustomer(ctx, inv.CustomerID)
	if err != nil {
		return false, fmt.Errorf("customer %d: %w", inv.CustomerID, err)
	}
	if strings.TrimSpace(customer.Email) == "" {
		return false, &models.ValidationError{Field: "email", Message: fmt.Sprintf("customer %d has no e-mail address", customer.ID)}
	}

	_, pdf, err := s.generate(ctx, inv, customer)
	if err != nil {
		return false, err
	}

	msg := &mail.Message{
		To:      []string{customer.Email},
		Subject: fmt.Sprintf("%s Rechnung %s", s.CompanyName, inv.Number()),
		Body:    s.mailBody(inv, customer),
		Attachments: []mail.Attachment{{
			Name:        inv.Number() + ".pdf",
			ContentType: "application/pdf",
			Data:        pdf,
		}},
	}
	if s.BCC != "" {
		msg.BCC = []string{s.BCC}
	}
	if err := s.Mailer.Send(ctx, msg); err != nil {
		metrics.InvoicesSent.WithLabelValues("error").Inc()
		return false, fmt.Errorf("mail invoice %s: %w", inv.Number(), err)
	}

	sentOn := s.Now()
	if err := s.Store.MarkInvoiceSent(ctx, inv.ID, sentOn); err != nil {
		return false, err
	}
	inv.SentOn = &sentOn
	metrics.InvoicesSent.WithLabelValues("sent").Inc()
	s.log.Info().Int("invoice_id", inv.ID).Str("number", inv.Number()).Str("to", customer.Email).Msg("invoice sent")
	return true, nil
}

func (s *InvoiceService) mailBody(inv *models.Invoice, customer *models.Customer) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hallo %s,\n\n", customer.Name())
	fmt.Fprintf(&b, "anbei die Rechnung %s über %s EUR.\n\n", inv.Number(), money.Format(inv.Amount()))
	if inv.PaymentType == models.PaymentTypeSepaDD {
		b.WriteString("Der Betrag wird per SEPA-Lastschrift von Ihrem Konto eingezogen.\n")
	} else {
		fmt.Fprintf(&b, "Bitte überweisen Sie den Betrag mit der Referenz \"%s%d %s\".\n",
			s.ReferencePrefix, customer.ID, inv.Number())
	}
	fmt.Fprintf(&b, "\nMit freundlichen Grüßen\n%s\n", s.CompanyName)
	return b.String()
}

// SendUnsent sends every unsent invoice. Failures are logged and counted,
// they do not stop the run.
func (s *InvoiceService) SendUnsent(ctx context.Context, actorID *int) (*SendReport, error) {
	release, err := s.Locker.Acquire(ctx, cache.SendUnsentLockKey, sendUnsentLockTTL)
	if err != nil {
		return nil, err
	}
	defer release()

	job, err := s.Jobs.Start(ctx, models.JobTypeSendUnsent, actorID)
	if err != nil {
		return nil, fmt.Errorf("start send job: %w", err)
	}

	invoices, err := s.Store.ListInvoices(ctx, repositories.InvoiceFilter{Unsent: true})
	if err != nil {
		return nil, fmt.Errorf("list unsent invoices: %w", err)
	}

	report := &SendReport{Job: job, Sent: []int{}, Skipped: []int{}, Errors: map[int]string{}}
	for _, inv := range invoices {
		sent, err := s.send(ctx, inv)
		switch {
		case err != nil:
			s.log.Error().Err(err).Int("invoice_id", inv.ID).Msg("sending invoice failed")
			report.Failed++
			report.Errors[inv.ID] = err.Error()
		case sent:
			report.Sent = append(report.Sent, inv.ID)
		default:
			report.Skipped = append(report.Skipped, inv.ID)
		}
	}

	note := fmt.Sprintf("%d sent, %d skipped, %d failed", len(report.Sent), len(report.Skipped), report.Failed)
	if err := s.Jobs.Finish(ctx, job, note); err != nil {
		return report, fmt.Errorf("finish send job: %w", err)
	}
	return report, nil
}
