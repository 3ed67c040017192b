package repositories

import (
	"context"
	"fmt"

	"housing-backend/internal/models"
	"housing-backend/internal/money"
)

type ContractRepository struct {
	DB DBTX
}

func NewContractRepository(db DBTX) *ContractRepository {
	return &ContractRepository{DB: db}
}

const contractSelect = `SELECT c.id, c.kind, c.billing_customer_id, c.admin_customer_id, c.closed, c.state,
	c.payment_type, c.created_at, c.created_by, s.name, s.location, s.description
	FROM contracts c
	LEFT JOIN servers s ON s.contract_id = c.id`

func scanContract(row interface{ Scan(...any) error }) (*models.Contract, error) {
	c := &models.Contract{}
	var serverName, serverLocation, serverDescription *string
	err := row.Scan(&c.ID, &c.Kind, &c.BillingCustomerID, &c.AdminCustomerID, &c.Closed, &c.State,
		&c.PaymentType, &c.CreatedAt, &c.CreatedBy, &serverName, &serverLocation, &serverDescription)
	if err != nil {
		return nil, notFound(err)
	}
	if c.Kind == models.ContractKindServer && serverName != nil {
		c.Server = &models.ServerDetails{Name: *serverName}
		if serverLocation != nil {
			c.Server.Location = *serverLocation
		}
		if serverDescription != nil {
			c.Server.Description = *serverDescription
		}
	}
	return c, nil
}

func (r *ContractRepository) GetContract(ctx context.Context, id int) (*models.Contract, error) {
	c, err := scanContract(r.DB.QueryRow(ctx, contractSelect+` WHERE c.id = $1`, id))
	if err != nil {
		return nil, err
	}
	if err := r.loadDetails(ctx, []*models.Contract{c}); err != nil {
		return nil, err
	}
	return c, nil
}

func (r *ContractRepository) ListOpenContracts(ctx context.Context, billingCustomerID int) ([]*models.Contract, error) {
	rows, err := r.DB.Query(ctx,
		contractSelect+` WHERE c.billing_customer_id = $1 AND c.closed = FALSE ORDER BY c.id`,
		billingCustomerID,
	)
	if err != nil {
		return nil, err
	}

	var contracts []*models.Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		contracts = append(contracts, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := r.loadDetails(ctx, contracts); err != nil {
		return nil, err
	}
	return contracts, nil
}

// loadDetails attaches packages and server IPs with one query each.
func (r *ContractRepository) loadDetails(ctx context.Context, contracts []*models.Contract) error {
	if len(contracts) == 0 {
		return nil
	}
	byID := make(map[int]*models.Contract, len(contracts))
	ids := make([]int, 0, len(contracts))
	for _, c := range contracts {
		byID[c.ID] = c
		ids = append(ids, c.ID)
	}

	rows, err := r.DB.Query(ctx,
		`SELECT cp.id, cp.contract_id, cp.package_id, cp.quantity, cp.active, cp.opened_at, cp.closed_at,
		        cp.last_billed, cp.billed_until, cp.billing_period,
		        p.name, p.description, p.amount_cents, p.tax_percent::text, p.billing_period
		 FROM contract_packages cp
		 JOIN packages p ON p.id = cp.package_id
		 WHERE cp.contract_id = ANY($1)
		 ORDER BY cp.contract_id, cp.id`, ids)
	if err != nil {
		return fmt.Errorf("load contract packages: %w", err)
	}
	for rows.Next() {
		cp := &models.ContractPackage{Package: &models.Package{}}
		var amountCents int64
		var tax string
		if err := rows.Scan(&cp.ID, &cp.ContractID, &cp.PackageID, &cp.Quantity, &cp.Active, &cp.OpenedAt, &cp.ClosedAt,
			&cp.LastBilled, &cp.BilledUntil, &cp.BillingPeriod,
			&cp.Package.Name, &cp.Package.Description, &amountCents, &tax, &cp.Package.BillingPeriod); err != nil {
			rows.Close()
			return err
		}
		cp.Package.ID = cp.PackageID
		cp.Package.Amount = money.FromMinor(amountCents)
		if cp.Package.Tax, err = money.Parse(tax); err != nil {
			rows.Close()
			return err
		}
		byID[cp.ContractID].Packages = append(byID[cp.ContractID].Packages, cp)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = r.DB.Query(ctx,
		`SELECT ip_address, server_id FROM ips WHERE server_id = ANY($1) ORDER BY ip_address`, ids)
	if err != nil {
		return fmt.Errorf("load server ips: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var addr string
		var serverID int
		if err := rows.Scan(&addr, &serverID); err != nil {
			return err
		}
		if c := byID[serverID]; c.Server != nil {
			c.Server.IPs = append(c.Server.IPs, addr)
		}
	}
	return rows.Err()
}

// AdvanceBillingCursor moves billed_until forward. The WHERE clause makes a
// backwards move match no row.
func (r *ContractRepository) AdvanceBillingCursor(ctx context.Context, cp *models.ContractPackage) error {
	if cp.BilledUntil == nil {
		return fmt.Errorf("contract package %d: %w", cp.ID, models.ErrCursorRegression)
	}
	tag, err := r.DB.Exec(ctx,
		`UPDATE contract_packages SET last_billed = $2, billed_until = $3
		 WHERE id = $1 AND (billed_until IS NULL OR billed_until < $3)`,
		cp.ID, cp.LastBilled, *cp.BilledUntil,
	)
	if err != nil {
		return fmt.Errorf("advance billing cursor of package %d: %w", cp.ID, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := r.DB.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM contract_packages WHERE id = $1)`, cp.ID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return fmt.Errorf("contract package %d: %w", cp.ID, models.ErrCursorRegression)
}

// FindServerByIP resolves an address without prefix length to the server
// contract it is assigned to.
func (r *ContractRepository) FindServerByIP(ctx context.Context, host string) (*models.Contract, error) {
	return scanContract(r.DB.QueryRow(ctx,
		contractSelect+`
		 JOIN ips ON ips.server_id = c.id
		 WHERE split_part(ips.ip_address, '/', 1) = $1
		 ORDER BY ips.id
		 LIMIT 1`, host))
}
