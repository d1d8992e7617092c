package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Frequency controls how often an installment falls due.
type Frequency string

const (
	FrequencyDaily   Frequency = "DAILY"
	FrequencyWeekly  Frequency = "WEEKLY"
	FrequencyMonthly Frequency = "MONTHLY"
)

// Valid reports whether f is one of the known frequencies.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
		return true
	}
	return false
}

// LoanStatus is the lifecycle state of a loan.
// APPLIED -> ACTIVE -> one of {COMPLETED, SETTLED, RENEWED, DEFAULTED}.
type LoanStatus string

const (
	LoanStatusApplied   LoanStatus = "APPLIED"
	LoanStatusActive    LoanStatus = "ACTIVE"
	LoanStatusCompleted LoanStatus = "COMPLETED"
	LoanStatusSettled   LoanStatus = "SETTLED"
	LoanStatusRenewed   LoanStatus = "RENEWED"
	LoanStatusDefaulted LoanStatus = "DEFAULTED"
)

// CanTransitionTo reports whether moving from s to next is a legal
// lifecycle transition.
func (s LoanStatus) CanTransitionTo(next LoanStatus) bool {
	switch s {
	case LoanStatusApplied:
		return next == LoanStatusActive
	case LoanStatusActive:
		switch next {
		case LoanStatusCompleted, LoanStatusSettled, LoanStatusRenewed, LoanStatusDefaulted:
			return true
		}
	}
	return false
}

type Customer struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
}

// Loan is one lending agreement. Duration is given either in months or in
// days, never both; a loan with neither is open-ended and has no schedule.
type Loan struct {
	ID             uuid.UUID       `json:"id"`
	CustomerID     uuid.UUID       `json:"customer_id"`
	Principal      decimal.Decimal `json:"principal"`
	RatePer30Days  decimal.Decimal `json:"rate_per_30_days"` // flat percentage per 30-day period
	DurationMonths int             `json:"duration_months,omitempty"`
	DurationDays   int             `json:"duration_days,omitempty"`
	Frequency      Frequency       `json:"frequency"`
	StartDate      time.Time       `json:"start_date"`
	Status         LoanStatus      `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// OpenEnded reports whether the loan has no duration and therefore no
// amortization schedule.
func (l *Loan) OpenEnded() bool {
	return l.DurationMonths == 0 && l.DurationDays == 0
}

// Guarantor links a loan to a customer who vouches for it. Pure
// relationship data; it never enters the money math.
type Guarantor struct {
	ID         uuid.UUID `json:"id"`
	LoanID     uuid.UUID `json:"loan_id"`
	CustomerID uuid.UUID `json:"customer_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// Payment is a recorded cash receipt against a loan. Immutable once
// created except for the deposit-banking flag.
type Payment struct {
	ID         uuid.UUID       `json:"id"`
	LoanID     uuid.UUID       `json:"loan_id"`
	CustomerID uuid.UUID       `json:"customer_id"`
	Amount     decimal.Decimal `json:"amount"`
	PaidAt     time.Time       `json:"paid_at"`
	Banked     bool            `json:"banked"`
	DepositID  *uuid.UUID      `json:"deposit_id,omitempty"`
}

// Fund is capital invested into the lending pool.
type Fund struct {
	ID      uuid.UUID       `json:"id"`
	Amount  decimal.Decimal `json:"amount"`
	Note    string          `json:"note,omitempty"`
	AddedAt time.Time       `json:"added_at"`
}

// Expense is an operating cost of the business.
type Expense struct {
	ID          uuid.UUID       `json:"id"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description,omitempty"`
	SpentAt     time.Time       `json:"spent_at"`
}

// BankDeposit groups collected payments that were taken to the bank.
type BankDeposit struct {
	ID          uuid.UUID       `json:"id"`
	Amount      decimal.Decimal `json:"amount"`
	Note        string          `json:"note,omitempty"`
	DepositedAt time.Time       `json:"deposited_at"`
}
