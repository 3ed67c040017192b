package services

import (
	"context"
	"time"

	"housing-backend/internal/models"
	"housing-backend/internal/repositories"
	"housing-backend/internal/timeutil"

	"github.com/shopspring/decimal"
)

// MandateRequest sets or, with all fields empty, clears a SEPA mandate.
type MandateRequest struct {
	IBAN        string     `json:"iban"`
	MandateID   string     `json:"mandate_id"`
	MandateDate *time.Time `json:"mandate_date"`
}

// Balance is payments received minus sent invoices.
type Balance struct {
	CustomerID int             `json:"customer_id"`
	Balance    decimal.Decimal `json:"balance"`
}

type CustomerService struct {
	Store repositories.Store
	Now   func() time.Time
}

func NewCustomerService(store repositories.Store) *CustomerService {
	return &CustomerService{Store: store, Now: timeutil.Now}
}

func (s *CustomerService) GetCustomer(ctx context.Context, id int) (*models.Customer, error) {
	return s.Store.GetCustomer(ctx, id)
}

// UpdateMandate validates and stores the mandate. A new or cleared mandate
// starts over with a first collection.
func (s *CustomerService) UpdateMandate(ctx context.Context, id int, req MandateRequest) (*models.Customer, error) {
	customer, err := s.Store.GetCustomer(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := customer.SetMandate(req.IBAN, req.MandateID, req.MandateDate, timeutil.DateOf(s.Now())); err != nil {
		return nil, err
	}
	if err := s.Store.UpdateCustomerMandate(ctx, customer); err != nil {
		return nil, err
	}
	return customer, nil
}

func (s *CustomerService) Balance(ctx context.Context, id int) (*Balance, error) {
	if _, err := s.Store.GetCustomer(ctx, id); err != nil {
		return nil, err
	}
	balance, err := s.Store.CustomerBalance(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Balance{CustomerID: id, Balance: balance}, nil
}
