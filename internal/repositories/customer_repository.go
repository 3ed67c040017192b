package repositories

import (
	"context"
	"fmt"

	"housing-backend/internal/models"
	"housing-backend/internal/money"

	"github.com/shopspring/decimal"
)

type CustomerRepository struct {
	DB DBTX
}

func NewCustomerRepository(db DBTX) *CustomerRepository {
	return &CustomerRepository{DB: db}
}

const customerColumns = `id, first_name, last_name, company_name, street, zip, town, country,
	email, phone, active, roles, created_at,
	sepa_iban, sepa_mandate_id, sepa_mandate_date, sepa_mandate_first`

func scanCustomer(row interface{ Scan(...any) error }) (*models.Customer, error) {
	c := &models.Customer{}
	err := row.Scan(&c.ID, &c.FirstName, &c.LastName, &c.CompanyName, &c.Street, &c.Zip, &c.Town, &c.Country,
		&c.Email, &c.Phone, &c.Active, &c.Roles, &c.CreatedAt,
		&c.SepaIBAN, &c.SepaMandateID, &c.SepaMandateDate, &c.SepaMandateFirst)
	if err != nil {
		return nil, notFound(err)
	}
	return c, nil
}

// ListCustomerIDs returns the ids of all customers in id order
func (r *CustomerRepository) ListCustomerIDs(ctx context.Context) ([]int, error) {
	rows, err := r.DB.Query(ctx, `SELECT id FROM customers ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *CustomerRepository) GetCustomer(ctx context.Context, id int) (*models.Customer, error) {
	return scanCustomer(r.DB.QueryRow(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE id = $1`, id))
}

// FindCustomerByIBAN matches the IBAN of a stored mandate
func (r *CustomerRepository) FindCustomerByIBAN(ctx context.Context, iban string) (*models.Customer, error) {
	return scanCustomer(r.DB.QueryRow(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE sepa_iban = $1`, iban))
}

// UpdateCustomerMandate writes the mandate fields, including the first
// collection flag
func (r *CustomerRepository) UpdateCustomerMandate(ctx context.Context, c *models.Customer) error {
	tag, err := r.DB.Exec(ctx,
		`UPDATE customers
		 SET sepa_iban = $2, sepa_mandate_id = $3, sepa_mandate_date = $4, sepa_mandate_first = $5
		 WHERE id = $1`,
		c.ID, c.SepaIBAN, c.SepaMandateID, c.SepaMandateDate, c.SepaMandateFirst,
	)
	if err != nil {
		return fmt.Errorf("update mandate of customer %d: %w", c.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *CustomerRepository) SetMandateFirst(ctx context.Context, customerID int, first bool) error {
	tag, err := r.DB.Exec(ctx,
		`UPDATE customers SET sepa_mandate_first = $2 WHERE id = $1`, customerID, first)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// IsBillingContact reports whether the customer pays for any contract
func (r *CustomerRepository) IsBillingContact(ctx context.Context, customerID int) (bool, error) {
	var exists bool
	err := r.DB.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM contracts WHERE billing_customer_id = $1)`, customerID,
	).Scan(&exists)
	return exists, err
}

// CustomerBalance is the sum of payments minus the sum of sent invoices
func (r *CustomerRepository) CustomerBalance(ctx context.Context, customerID int) (decimal.Decimal, error) {
	var cents int64
	err := r.DB.QueryRow(ctx,
		`SELECT (
		   COALESCE((SELECT SUM(amount_cents) FROM payments WHERE customer_id = $1), 0)
		 - COALESCE((SELECT SUM(`+invoiceAmountSQL+`) FROM invoices i
		             WHERE i.customer_id = $1 AND i.sent_on IS NOT NULL), 0)
		 )::bigint`,
		customerID,
	).Scan(&cents)
	if err != nil {
		return decimal.Zero, fmt.Errorf("balance of customer %d: %w", customerID, err)
	}
	return money.FromMinor(cents), nil
}
