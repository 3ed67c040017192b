// Package billing computes prorated charges for contract packages.
//
// A package is billed from its cursor (billed_until, or opened_at on the
// first run) up to the next cursor, which lies one billing period later. The
// span is walked along a fixed day of month: full anchored months cost the
// flat package amount, partial spans cost an exact fraction of the days in
// the calendar months they touch.
package billing

import (
	"errors"
	"fmt"
	"time"

	"housing-backend/internal/models"
	"housing-backend/internal/money"
	"housing-backend/internal/timeutil"

	"github.com/shopspring/decimal"
)

var (
	// ErrNothingDue is returned when the package has no span left to bill.
	ErrNothingDue = errors.New("nothing due")
	// ErrStale is returned when the computed next cursor lies too far in the
	// past. Such packages need a human to look at them.
	ErrStale = errors.New("next billing date is stale")
)

const DefaultAnchorDay = 25

// Calculator holds the billing settings.
type Calculator struct {
	AnchorDay      int
	StaleAfterDays int
}

// Line is the outcome of billing one package.
type Line struct {
	ContractPackageID int
	// Start is the first billed day, Next the new billed_until cursor.
	Start     time.Time
	Next      time.Time
	UnitPrice decimal.Decimal
	Quantity  int
	Title     string
	Detail    string
}

// Item converts the line into an invoice item.
func (l *Line) Item() *models.InvoiceItem {
	return &models.InvoiceItem{
		Title:     l.Title,
		Detail:    l.Detail,
		UnitPrice: l.UnitPrice,
		Quantity:  l.Quantity,
	}
}

// Span returns the billing span of cp: the start date, the next cursor and the
// anchor day used to walk it. It does not apply the stale guard.
func (c Calculator) Span(cp *models.ContractPackage) (start, next time.Time, anchor int) {
	period := cp.Period()

	if cp.BilledUntil != nil {
		start = timeutil.DateOf(*cp.BilledUntil)
		anchor = start.Day()
		next = timeutil.AddMonths(start, period)
	} else {
		start = timeutil.DateOf(cp.OpenedAt)
		anchor = c.anchorDay()
		next = timeutil.AddMonths(firstAnchor(start, anchor), period)
	}

	if cp.ClosedAt != nil {
		closed := timeutil.DateOf(*cp.ClosedAt)
		if closed.Before(next) {
			next = closed
		}
	}
	return start, next, anchor
}

// Bill computes the line for cp as of today.
func (c Calculator) Bill(cp *models.ContractPackage, today time.Time) (*Line, error) {
	if cp.Package == nil {
		return nil, fmt.Errorf("contract package %d has no package loaded", cp.ID)
	}

	start, next, anchor := c.Span(cp)
	if !next.After(start) {
		return nil, ErrNothingDue
	}

	limit := timeutil.DateOf(today).AddDate(0, 0, -c.staleAfterDays())
	if next.Before(limit) {
		return nil, fmt.Errorf("%w: package %d would be billed until %s", ErrStale, cp.ID, next.Format(timeutil.DateLayout))
	}

	qty := cp.Quantity
	if qty <= 0 {
		qty = 1
	}

	return &Line{
		ContractPackageID: cp.ID,
		Start:             start,
		Next:              next,
		UnitPrice:         Prorate(cp.Package.Amount, AnchorDates(start, next, anchor)),
		Quantity:          qty,
		Title:             cp.Title(),
		Detail:            Detail(start, next),
	}, nil
}

func (c Calculator) anchorDay() int {
	if c.AnchorDay < 1 || c.AnchorDay > 28 {
		return DefaultAnchorDay
	}
	return c.AnchorDay
}

func (c Calculator) staleAfterDays() int {
	if c.StaleAfterDays <= 0 {
		return 30
	}
	return c.StaleAfterDays
}

// firstAnchor is the first occurrence of the anchor day on or after start.
func firstAnchor(start time.Time, anchor int) time.Time {
	candidate := anchorIn(start.Year(), start.Month(), anchor)
	if candidate.Before(start) {
		candidate = anchorIn(start.Year(), start.Month()+1, anchor)
	}
	return candidate
}

// anchorIn places the anchor day in the given month, clamped to its length.
func anchorIn(year int, month time.Month, anchor int) time.Time {
	first := timeutil.Date(year, month, 1)
	day := anchor
	if dim := timeutil.DaysIn(first); day > dim {
		day = dim
	}
	return timeutil.Date(first.Year(), first.Month(), day)
}

// AnchorDates returns start, every anchor day strictly between start and next,
// and next.
func AnchorDates(start, next time.Time, anchor int) []time.Time {
	dates := []time.Time{start}
	for m := 0; ; m++ {
		d := anchorIn(start.Year(), start.Month()+time.Month(m), anchor)
		if !d.Before(next) {
			break
		}
		if d.After(start) {
			dates = append(dates, d)
		}
	}
	return append(dates, next)
}

// Prorate sums amount over the consecutive pairs of dates, rounding the
// running total to cents after every step.
func Prorate(amount decimal.Decimal, dates []time.Time) decimal.Decimal {
	total := decimal.Zero
	for i := 1; i < len(dates); i++ {
		total = money.Round(total.Add(amount.Mul(StepFraction(dates[i-1], dates[i]))))
	}
	return total
}

// StepFraction is the share of a full period between two walk dates.
func StepFraction(last, next time.Time) decimal.Decimal {
	if next.Day() == last.Day() {
		return decimal.NewFromInt(1)
	}
	if !timeutil.SameMonth(last, next) {
		lastDays := timeutil.DaysIn(last)
		tail := money.Fraction(lastDays-(last.Day()-1), lastDays)
		head := money.Fraction(next.Day()-1, timeutil.DaysIn(next))
		return tail.Add(head)
	}
	return money.Fraction(next.Day()-last.Day(), timeutil.DaysIn(next))
}

// Detail renders the billed span, e.g. "10.01.2024 - 24.02.2024".
func Detail(start, next time.Time) string {
	return start.Format(timeutil.DisplayDateLayout) + " - " + next.AddDate(0, 0, -1).Format(timeutil.DisplayDateLayout)
}
