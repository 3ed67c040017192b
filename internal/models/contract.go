package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type ContractKind string

const (
	ContractKindGeneric ContractKind = "generic"
	ContractKindServer  ContractKind = "server"
)

type ContractState string

const (
	ContractStateDraft    ContractState = "draft"
	ContractStateSent     ContractState = "sent"
	ContractStateAccepted ContractState = "accepted"
	ContractStateDeclined ContractState = "declined"
	ContractStateClosed   ContractState = "closed"
)

type PaymentType string

const (
	PaymentTypeSepaDD   PaymentType = "SEPA-DD"
	PaymentTypeTransfer PaymentType = "money transfer"
	PaymentTypeCash     PaymentType = "cash_payment"
)

type Contract struct {
	ID                int           `json:"id"`
	Kind              ContractKind  `json:"kind"`
	BillingCustomerID int           `json:"billing_customer_id"`
	AdminCustomerID   int           `json:"admin_customer_id"`
	Closed            bool          `json:"closed"`
	State             ContractState `json:"state"`
	PaymentType       PaymentType   `json:"payment_type"`
	CreatedAt         time.Time     `json:"created_at"`
	CreatedBy         *int          `json:"created_by,omitempty"`

	// Server is only set for ContractKindServer.
	Server   *ServerDetails     `json:"server,omitempty"`
	Packages []*ContractPackage `json:"packages,omitempty"`
}

// ServerDetails is the payload of a server contract.
type ServerDetails struct {
	Name        string   `json:"name"`
	Location    string   `json:"location"`
	Description string   `json:"description,omitempty"`
	IPs         []string `json:"ips,omitempty"`
}

func (c *Contract) String() string {
	return fmt.Sprintf("c%d", c.ID)
}

func (c *Contract) IsClosed() bool {
	return c.Closed || c.State == ContractStateClosed
}

// NeedsBilling reports whether any package of an open contract is due.
func (c *Contract) NeedsBilling(date time.Time) bool {
	if c.IsClosed() {
		return false
	}
	for _, p := range c.Packages {
		if p.NeedsBilling(date) {
			return true
		}
	}
	return false
}

// Package is a catalog item. Amount is the monthly unit price.
type Package struct {
	ID            int             `json:"id"`
	Name          string          `json:"name"`
	Description   string          `json:"description,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Tax           decimal.Decimal `json:"tax"`
	BillingPeriod int             `json:"billing_period"`
}

// ContractPackage is one subscription line of a contract.
type ContractPackage struct {
	ID         int        `json:"id"`
	ContractID int        `json:"contract_id"`
	PackageID  int        `json:"package_id"`
	Package    *Package   `json:"package,omitempty"`
	Quantity   int        `json:"quantity"`
	Active     bool       `json:"active"`
	OpenedAt   time.Time  `json:"opened_at"`
	ClosedAt   *time.Time `json:"closed_at,omitempty"`
	LastBilled *time.Time `json:"last_billed,omitempty"`
	// BilledUntil is the billing cursor: everything before it is invoiced.
	BilledUntil   *time.Time `json:"billed_until,omitempty"`
	BillingPeriod *int       `json:"billing_period,omitempty"`
}

// Period is the billing period in months, the override winning over the
// package default.
func (p *ContractPackage) Period() int {
	if p.BillingPeriod != nil && *p.BillingPeriod > 0 {
		return *p.BillingPeriod
	}
	if p.Package != nil && p.Package.BillingPeriod > 0 {
		return p.Package.BillingPeriod
	}
	return 1
}

func (p *ContractPackage) NeedsBilling(date time.Time) bool {
	if !p.Active {
		return false
	}
	if p.OpenedAt.After(date) {
		return false
	}
	if p.BilledUntil != nil {
		if p.BilledUntil.After(date) {
			return false
		}
		if p.ClosedAt != nil && !p.ClosedAt.After(*p.BilledUntil) {
			return false
		}
	}
	return true
}

// Title is the line item title, e.g. "Rack 1HE (c12)".
func (p *ContractPackage) Title() string {
	name := ""
	if p.Package != nil {
		name = p.Package.Name
	}
	return fmt.Sprintf("%s (c%d)", name, p.ContractID)
}
