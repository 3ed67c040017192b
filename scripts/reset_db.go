package main

import (
	"context"
	"fmt"
	"log"

	"housing-backend/internal/config"
	"housing-backend/internal/db"
	"housing-backend/internal/timeutil"

	"github.com/jackc/pgx/v5"
)

// Tables in dependency order. TRUNCATE ... CASCADE handles the rest.
var tables = []string{
	"payments",
	"invoice_items",
	"invoices",
	"contract_packages",
	"ips",
	"servers",
	"contracts",
	"packages",
	"jobs",
	"customers",
}

func main() {
	fmt.Println("========================================")
	fmt.Println("   Reset Housing Database for Testing")
	fmt.Println("========================================")
	fmt.Println()
	fmt.Println("WARNING: This will DELETE ALL BILLING DATA!")
	fmt.Println()
	fmt.Println("This will:")
	fmt.Println("  - Delete all customers, contracts and packages")
	fmt.Println("  - Delete all invoices, payments and jobs")
	fmt.Println("  - Reset all ID sequences and load a small demo data set")
	fmt.Println()
	fmt.Print("Type 'yes' to confirm: ")

	var confirm string
	fmt.Scanln(&confirm)
	if confirm != "yes" {
		fmt.Println("Reset cancelled.")
		return
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Config: %v\n", err)
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v\n", err)
	}
	defer pool.Close()

	fmt.Println()
	fmt.Println("Resetting database...")

	tx, err := pool.Begin(ctx)
	if err != nil {
		log.Fatalf("Failed to begin transaction: %v\n", err)
	}
	defer tx.Rollback(ctx)

	for _, table := range tables {
		if _, err := tx.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s RESTART IDENTITY CASCADE", table)); err != nil {
			log.Fatalf("Failed to truncate %s: %v\n", table, err)
		}
		fmt.Printf("  - Cleared %s\n", table)
	}

	if err := seed(ctx, tx); err != nil {
		log.Fatalf("Failed to load demo data: %v\n", err)
	}
	fmt.Println("  - Loaded demo data")

	if err := tx.Commit(ctx); err != nil {
		log.Fatalf("Failed to commit transaction: %v\n", err)
	}

	fmt.Println()
	fmt.Println("Database reset successful!")
	fmt.Println("Try: housing bill all --json")
}

// seed creates one customer with a SEPA mandate and a rack contract opened at
// the start of the current month.
func seed(ctx context.Context, tx pgx.Tx) error {
	var customerID, packageID, contractID int

	err := tx.QueryRow(ctx, `
		INSERT INTO customers (first_name, last_name, street, zip, town, country, email,
			sepa_iban, sepa_mandate_id, sepa_mandate_date)
		VALUES ('Anna', 'Berger', 'Praterstrasse 1', '1020', 'Wien', 'AT', 'anna@example.org',
			'AT611904300234573201', 'K1-1', $1)
		RETURNING id`, timeutil.Date(2024, 1, 3)).Scan(&customerID)
	if err != nil {
		return fmt.Errorf("customer: %w", err)
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO packages (name, description, amount_cents, billing_period)
		VALUES ('Rack 1HE', 'Housing 1 height unit incl. 100 Mbit', 4000, 1)
		RETURNING id`).Scan(&packageID)
	if err != nil {
		return fmt.Errorf("package: %w", err)
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO contracts (kind, billing_customer_id, admin_customer_id, state, payment_type)
		VALUES ('server', $1, $1, 'accepted', 'SEPA-DD')
		RETURNING id`, customerID).Scan(&contractID)
	if err != nil {
		return fmt.Errorf("contract: %w", err)
	}

	if _, err := tx.Exec(ctx, `INSERT INTO servers (contract_id, name, location) VALUES ($1, 'anna-1', 'Rack A3')`, contractID); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if _, err := tx.Exec(ctx, `INSERT INTO ips (ip_address, server_id) VALUES ('192.0.2.10/32', $1)`, contractID); err != nil {
		return fmt.Errorf("ip: %w", err)
	}

	opened := timeutil.BeginningOfMonth(timeutil.Today())
	if _, err := tx.Exec(ctx, `
		INSERT INTO contract_packages (contract_id, package_id, quantity, opened_at)
		VALUES ($1, $2, 1, $3)`, contractID, packageID, opened); err != nil {
		return fmt.Errorf("contract package: %w", err)
	}
	return nil
}
