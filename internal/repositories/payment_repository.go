package repositories

import (
	"context"
	"fmt"

	"housing-backend/internal/models"
	"housing-backend/internal/money"
)

type PaymentRepository struct {
	DB DBTX
}

func NewPaymentRepository(db DBTX) *PaymentRepository {
	return &PaymentRepository{DB: db}
}

// PaymentReferenceExists reports whether a bank reference was imported before
func (r *PaymentRepository) PaymentReferenceExists(ctx context.Context, reference string) (bool, error) {
	var exists bool
	err := r.DB.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM payments WHERE reference = $1)`, reference).Scan(&exists)
	return exists, err
}

func (r *PaymentRepository) CreatePayment(ctx context.Context, p *models.Payment) error {
	var reference *string
	if p.Reference != "" {
		reference = &p.Reference
	}
	err := r.DB.QueryRow(ctx,
		`INSERT INTO payments (customer_id, job_id, date, amount_cents, payment_type, detail, reference)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at`,
		p.CustomerID, p.JobID, p.Date, money.ToMinor(p.Amount), p.PaymentType, p.Detail, reference,
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert payment %s: %w", p.Reference, err)
	}
	return nil
}

// ListPayments returns a customer's payments, newest first
func (r *PaymentRepository) ListPayments(ctx context.Context, customerID int) ([]*models.Payment, error) {
	rows, err := r.DB.Query(ctx,
		`SELECT id, customer_id, job_id, date, amount_cents, payment_type, detail, COALESCE(reference, ''), created_at
		 FROM payments WHERE customer_id = $1
		 ORDER BY date DESC, id DESC`, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []*models.Payment
	for rows.Next() {
		p := &models.Payment{}
		var cents int64
		if err := rows.Scan(&p.ID, &p.CustomerID, &p.JobID, &p.Date, &cents, &p.PaymentType, &p.Detail, &p.Reference, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.Amount = money.FromMinor(cents)
		payments = append(payments, p)
	}
	return payments, rows.Err()
}
