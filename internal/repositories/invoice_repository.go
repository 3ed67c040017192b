package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"housing-backend/internal/models"
	"housing-backend/internal/money"
)

// itemAmountSQL is InvoiceItem.Amount in SQL; invoiceAmountSQL sums it per
// invoice the way Invoice.Amount does. Both expect the invoice aliased as i.
const (
	itemAmountSQL    = `ii.unit_price_cents * ii.quantity`
	invoiceAmountSQL = `(SELECT COALESCE(SUM(` + itemAmountSQL + `), 0) FROM invoice_items ii WHERE ii.invoice_id = i.id)`
)

type InvoiceRepository struct {
	DB DBTX
}

func NewInvoiceRepository(db DBTX) *InvoiceRepository {
	return &InvoiceRepository{DB: db}
}

const invoiceColumns = `i.id, i.customer_id, i.job_id, i.created_at, i.created_by, i.address, i.payment_type,
	i.path, i.sent_on, i.cancelled, i.exported, i.exported_id`

func scanInvoice(row interface{ Scan(...any) error }) (*models.Invoice, error) {
	inv := &models.Invoice{}
	err := row.Scan(&inv.ID, &inv.CustomerID, &inv.JobID, &inv.CreatedAt, &inv.CreatedBy, &inv.Address, &inv.PaymentType,
		&inv.Path, &inv.SentOn, &inv.Cancelled, &inv.Exported, &inv.ExportedID)
	if err != nil {
		return nil, notFound(err)
	}
	return inv, nil
}

// CreateInvoice creates a new invoice with items
func (r *InvoiceRepository) CreateInvoice(ctx context.Context, inv *models.Invoice) error {
	tx, err := r.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`INSERT INTO invoices (customer_id, job_id, created_at, created_by, address, payment_type, cancelled)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		inv.CustomerID, inv.JobID, inv.CreatedAt, inv.CreatedBy, inv.Address, inv.PaymentType, inv.Cancelled,
	).Scan(&inv.ID)
	if err != nil {
		return fmt.Errorf("insert invoice: %w", err)
	}

	for _, item := range inv.Items {
		item.InvoiceID = inv.ID
		err = tx.QueryRow(ctx,
			`INSERT INTO invoice_items (invoice_id, position, title, detail, unit_price_cents, quantity)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 RETURNING id`,
			inv.ID, item.Position, item.Title, item.Detail, money.ToMinor(item.UnitPrice), item.Quantity,
		).Scan(&item.ID)
		if err != nil {
			return fmt.Errorf("insert invoice item: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// AddInvoiceItem appends a line. The insert only happens while the invoice
// is unsent.
func (r *InvoiceRepository) AddInvoiceItem(ctx context.Context, item *models.InvoiceItem) error {
	err := r.DB.QueryRow(ctx,
		`INSERT INTO invoice_items (invoice_id, position, title, detail, unit_price_cents, quantity)
		 SELECT $1, COALESCE((SELECT MAX(position) + 1 FROM invoice_items WHERE invoice_id = $1), 0), $2, $3, $4, $5
		 WHERE EXISTS (SELECT 1 FROM invoices WHERE id = $1 AND sent_on IS NULL)
		 RETURNING id, position`,
		item.InvoiceID, item.Title, item.Detail, money.ToMinor(item.UnitPrice), item.Quantity,
	).Scan(&item.ID, &item.Position)
	if err == nil {
		return nil
	}
	if err = notFound(err); !errors.Is(err, ErrNotFound) {
		return err
	}
	return r.guardFailure(ctx, item.InvoiceID, models.ErrInvoiceImmutable)
}

func (r *InvoiceRepository) GetInvoice(ctx context.Context, id int) (*models.Invoice, error) {
	inv, err := scanInvoice(r.DB.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices i WHERE i.id = $1`, id))
	if err != nil {
		return nil, err
	}
	if err := r.loadItems(ctx, []*models.Invoice{inv}); err != nil {
		return nil, err
	}
	return inv, nil
}

func (r *InvoiceRepository) ListInvoices(ctx context.Context, filter InvoiceFilter) ([]*models.Invoice, error) {
	var where []string
	var args []any
	if filter.CustomerID != 0 {
		args = append(args, filter.CustomerID)
		where = append(where, fmt.Sprintf("i.customer_id = $%d", len(args)))
	}
	if filter.Unsent {
		where = append(where, "i.sent_on IS NULL", "i.cancelled = FALSE")
	}
	if filter.ExportCandidates {
		args = append(args, models.PaymentTypeSepaDD)
		where = append(where,
			"i.sent_on IS NOT NULL",
			"i.exported = FALSE",
			"i.cancelled = FALSE",
			fmt.Sprintf("i.payment_type = $%d", len(args)),
			invoiceAmountSQL+" > 0",
		)
	}

	query := `SELECT ` + invoiceColumns + ` FROM invoices i`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY i.id`

	rows, err := r.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var invoices []*models.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := r.loadItems(ctx, invoices); err != nil {
		return nil, err
	}
	return invoices, nil
}

func (r *InvoiceRepository) loadItems(ctx context.Context, invoices []*models.Invoice) error {
	if len(invoices) == 0 {
		return nil
	}
	byID := make(map[int]*models.Invoice, len(invoices))
	ids := make([]int, 0, len(invoices))
	for _, inv := range invoices {
		inv.Items = []*models.InvoiceItem{}
		byID[inv.ID] = inv
		ids = append(ids, inv.ID)
	}

	rows, err := r.DB.Query(ctx,
		`SELECT id, invoice_id, position, title, detail, unit_price_cents, quantity
		 FROM invoice_items WHERE invoice_id = ANY($1)
		 ORDER BY invoice_id, position, id`, ids)
	if err != nil {
		return fmt.Errorf("load invoice items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		item := &models.InvoiceItem{}
		var cents int64
		if err := rows.Scan(&item.ID, &item.InvoiceID, &item.Position, &item.Title, &item.Detail, &cents, &item.Quantity); err != nil {
			return err
		}
		item.UnitPrice = money.FromMinor(cents)
		byID[item.InvoiceID].Items = append(byID[item.InvoiceID].Items, item)
	}
	return rows.Err()
}

func (r *InvoiceRepository) MarkInvoiceSent(ctx context.Context, id int, sentOn time.Time) error {
	tag, err := r.DB.Exec(ctx,
		`UPDATE invoices SET sent_on = $2 WHERE id = $1 AND sent_on IS NULL`, id, sentOn)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	return r.guardFailure(ctx, id, models.ErrInvoiceAlreadySent)
}

// SetInvoicePath records where the rendered PDF is archived. The path is
// not a core field, so sent invoices accept it too.
func (r *InvoiceRepository) SetInvoicePath(ctx context.Context, id int, path string) error {
	tag, err := r.DB.Exec(ctx, `UPDATE invoices SET path = $2 WHERE id = $1`, id, path)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *InvoiceRepository) MarkInvoiceCancelled(ctx context.Context, id int) error {
	tag, err := r.DB.Exec(ctx,
		`UPDATE invoices SET cancelled = TRUE WHERE id = $1 AND cancelled = FALSE`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	return r.guardFailure(ctx, id, models.ErrInvoiceAlreadyCancelled)
}

func (r *InvoiceRepository) MarkInvoiceExported(ctx context.Context, id int, exportedID string) error {
	tag, err := r.DB.Exec(ctx,
		`UPDATE invoices SET exported = TRUE, exported_id = $2 WHERE id = $1 AND exported = FALSE`, id, exportedID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	return r.guardFailure(ctx, id, models.ErrAlreadyExported)
}

func (r *InvoiceRepository) ExportedIDExists(ctx context.Context, exportedID string) (bool, error) {
	var exists bool
	err := r.DB.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM invoices WHERE exported_id = $1)`, exportedID).Scan(&exists)
	return exists, err
}

// guardFailure explains a guarded update that matched no row: either the
// invoice is missing or the guard rejected it.
func (r *InvoiceRepository) guardFailure(ctx context.Context, id int, guard error) error {
	var exists bool
	if err := r.DB.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM invoices WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return fmt.Errorf("invoice %d: %w", id, guard)
}
