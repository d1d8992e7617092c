// Package ledger reconciles recorded payments against an amortization
// schedule. Payments are applied against the schedule as a running
// balance in the order received, not matched to individual due dates:
// the paid-installment count is cumulative paid divided by the flat
// installment amount.
package ledger

import (
	"errors"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wagmw/MicroCreaditRun-sub000/pkg/models"
	"github.com/wagmw/MicroCreaditRun-sub000/pkg/schedule"
)

// ErrNoScheduleAvailable is returned when reconciliation is attempted
// against an open-ended loan, which has no installments.
var ErrNoScheduleAvailable = errors.New("no schedule available")

// Summary is the reconciliation of one loan's payments against its
// schedule. All operations are pure reads over the snapshot given to
// Reconcile.
type Summary struct {
	sched     *schedule.Schedule
	totalPaid decimal.Decimal
}

// Reconcile builds a Summary for a schedule and the loan's recorded
// payments. The schedule must have at least one installment.
func Reconcile(sched *schedule.Schedule, payments []*models.Payment) (*Summary, error) {
	if sched.Count() == 0 {
		return nil, ErrNoScheduleAvailable
	}
	total := decimal.Zero
	for _, p := range payments {
		total = total.Add(p.Amount)
	}
	return &Summary{sched: sched, totalPaid: total}, nil
}

// TotalPaid is the sum of all recorded payment amounts.
func (s *Summary) TotalPaid() decimal.Decimal {
	return s.totalPaid
}

// TotalExpected is the schedule's total repayment amount
// (principal plus flat interest).
func (s *Summary) TotalExpected() decimal.Decimal {
	return s.sched.TotalAmount
}

// Outstanding is expected minus paid. Negative means overpaid; the value
// is reported as-is and callers treat negative as a settled credit
// balance.
func (s *Summary) Outstanding() decimal.Decimal {
	return s.sched.TotalAmount.Sub(s.totalPaid)
}

// PaidInstallmentCount derives how many installments the cumulative paid
// amount covers: floor(totalPaid / flat installment amount), capped at
// the schedule length. This is a running-balance approximation, not
// per-installment matching. A schedule whose flat amount is zero has no
// per-installment progress to measure: nothing counts as paid until the
// balance is settled, then everything does.
func (s *Summary) PaidInstallmentCount() int {
	if !s.sched.InstallmentAmount.IsPositive() {
		if s.Outstanding().IsPositive() {
			return 0
		}
		return s.sched.Count()
	}
	n := int(s.totalPaid.Div(s.sched.InstallmentAmount).IntPart())
	if n < 0 {
		n = 0
	}
	if n > s.sched.Count() {
		n = s.sched.Count()
	}
	return n
}

// RemainingInstallmentCount is the schedule length minus the paid count,
// floored at zero.
func (s *Summary) RemainingInstallmentCount() int {
	remaining := s.sched.Count() - s.PaidInstallmentCount()
	if remaining < 0 {
		return 0
	}
	return remaining
}

// periodsSinceStart is the number of whole installment periods elapsed
// between the schedule start and asOf. Negative before the start date.
func (s *Summary) periodsSinceStart(asOf time.Time) int {
	days := daysBetween(s.sched.StartDate, asOf)
	if days < 0 {
		return -1
	}
	return days / s.sched.SpacingDays
}

// IsDueToday reports whether a payment is due as of the given date: the
// current period index has caught up with the paid-installment count.
func (s *Summary) IsDueToday(asOf time.Time) bool {
	p := s.periodsSinceStart(asOf)
	return p >= 0 && p >= s.PaidInstallmentCount()
}

// OverdueCount is the number of fully elapsed periods not covered by
// payments, excluding the current not-yet-late period. Only meaningful
// while the loan still has a positive outstanding balance.
func (s *Summary) OverdueCount(asOf time.Time) int {
	overdue := s.periodsSinceStart(asOf) - s.PaidInstallmentCount() - 1
	if overdue < 0 {
		return 0
	}
	return overdue
}

func daysBetween(from, to time.Time) int {
	fromDay := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	toDay := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	return int(toDay.Sub(fromDay).Hours() / 24)
}

// DueEntry is one row of a due-payments listing.
type DueEntry struct {
	Loan         *models.Loan     `json:"loan"`
	Customer     *models.Customer `json:"customer"`
	Outstanding  decimal.Decimal  `json:"outstanding"`
	DueToday     bool             `json:"due_today"`
	OverdueCount int              `json:"overdue_count"`
}

// SortDueEntries orders a due-payments listing: most overdue first, then
// due-today before not-due, then largest outstanding balance first.
func SortDueEntries(entries []DueEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].OverdueCount != entries[j].OverdueCount {
			return entries[i].OverdueCount > entries[j].OverdueCount
		}
		if entries[i].DueToday != entries[j].DueToday {
			return entries[i].DueToday
		}
		return entries[i].Outstanding.GreaterThan(entries[j].Outstanding)
	})
}

// OverviewTotals is the business-level profit summary.
type OverviewTotals struct {
	TotalOutstanding decimal.Decimal `json:"total_outstanding"`
	TotalInvested    decimal.Decimal `json:"total_invested"`
	TotalExpenses    decimal.Decimal `json:"total_expenses"`
	Profit           decimal.Decimal `json:"profit"`
}

// Profit folds per-loan outstanding balances together with invested
// funds and expenses into one profit figure. Only positive outstanding
// balances count; overpaid loans contribute nothing.
func Profit(outstandings []decimal.Decimal, invested, expenses decimal.Decimal) OverviewTotals {
	total := decimal.Zero
	for _, o := range outstandings {
		if o.IsPositive() {
			total = total.Add(o)
		}
	}
	return OverviewTotals{
		TotalOutstanding: total,
		TotalInvested:    invested,
		TotalExpenses:    expenses,
		Profit:           total.Sub(invested).Sub(expenses),
	}
}
