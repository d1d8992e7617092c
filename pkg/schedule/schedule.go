// Package schedule turns loan terms into a flat amortization schedule.
// Interest is flat: computed once on the original principal per 30-day
// period for the whole duration, never recalculated on a declining
// balance. Every installment is equal; the final one absorbs the rounding
// residue so the installments sum to the total exactly.
package schedule

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wagmw/MicroCreaditRun-sub000/pkg/models"
	"github.com/wagmw/MicroCreaditRun-sub000/pkg/money"
)

// ErrInvalidLoanTerms is returned when schedule input constraints are
// violated: non-positive principal, negative rate, missing or conflicting
// duration, unknown frequency, or zero start date.
var ErrInvalidLoanTerms = errors.New("invalid loan terms")

var oneHundred = decimal.NewFromInt(100)

// Terms is the input to schedule generation. Exactly one of
// DurationMonths and DurationDays must be set.
type Terms struct {
	Principal      decimal.Decimal
	RatePer30Days  decimal.Decimal
	DurationMonths int
	DurationDays   int
	Frequency      models.Frequency
	StartDate      time.Time
}

// TermsForLoan extracts the schedule-relevant terms from a loan record.
func TermsForLoan(loan *models.Loan) Terms {
	return Terms{
		Principal:      loan.Principal,
		RatePer30Days:  loan.RatePer30Days,
		DurationMonths: loan.DurationMonths,
		DurationDays:   loan.DurationDays,
		Frequency:      loan.Frequency,
		StartDate:      loan.StartDate,
	}
}

// Validate checks the input constraints for schedule generation.
func (t Terms) Validate() error {
	if !t.Principal.IsPositive() {
		return fmt.Errorf("%w: principal must be positive", ErrInvalidLoanTerms)
	}
	if t.RatePer30Days.IsNegative() {
		return fmt.Errorf("%w: rate must not be negative", ErrInvalidLoanTerms)
	}
	if t.DurationMonths < 0 || t.DurationDays < 0 {
		return fmt.Errorf("%w: duration must be positive", ErrInvalidLoanTerms)
	}
	if t.DurationMonths > 0 && t.DurationDays > 0 {
		return fmt.Errorf("%w: duration given both in months and in days", ErrInvalidLoanTerms)
	}
	if t.DurationMonths == 0 && t.DurationDays == 0 {
		return fmt.Errorf("%w: no duration set", ErrInvalidLoanTerms)
	}
	if !t.Frequency.Valid() {
		return fmt.Errorf("%w: unknown frequency %q", ErrInvalidLoanTerms, t.Frequency)
	}
	if t.StartDate.IsZero() {
		return fmt.Errorf("%w: start date is required", ErrInvalidLoanTerms)
	}
	return nil
}

// DurationInMonths normalizes the duration to 30-day units, rounding a
// day-based duration up to whole months.
func (t Terms) DurationInMonths() int {
	if t.DurationMonths > 0 {
		return t.DurationMonths
	}
	return (t.DurationDays + 29) / 30
}

// Spacing returns the gap in days between consecutive installments.
func Spacing(f models.Frequency) int {
	switch f {
	case models.FrequencyDaily:
		return 1
	case models.FrequencyWeekly:
		return 7
	default:
		return 30
	}
}

// InstallmentCount returns the number of installments for a duration of
// the given number of 30-day months at the given frequency.
func InstallmentCount(f models.Frequency, durationInMonths int) int {
	switch f {
	case models.FrequencyDaily:
		return durationInMonths * 30
	case models.FrequencyWeekly:
		return (durationInMonths*30 + 6) / 7
	default:
		return durationInMonths
	}
}

// Installment is one scheduled payment obligation within a schedule.
type Installment struct {
	Index                    int             `json:"index"` // 1-based
	DueDate                  time.Time       `json:"due_date"`
	ExpectedAmount           decimal.Decimal `json:"expected_amount"`
	PrincipalPortion         decimal.Decimal `json:"principal_portion"`
	InterestPortion          decimal.Decimal `json:"interest_portion"`
	CumulativeRemainingAfter decimal.Decimal `json:"cumulative_remaining_after"`
}

// Schedule is the generated amortization plan for one loan.
type Schedule struct {
	Installments  []Installment    `json:"installments"`
	Frequency     models.Frequency `json:"frequency"`
	StartDate     time.Time        `json:"start_date"`
	TotalAmount   decimal.Decimal  `json:"total_amount"`
	TotalInterest decimal.Decimal  `json:"total_interest"`
	// InstallmentAmount is the flat per-installment amount before the
	// final installment's residue adjustment.
	InstallmentAmount decimal.Decimal `json:"installment_amount"`
	SpacingDays       int             `json:"spacing_days"`
}

// Count returns the number of installments; zero for a nil schedule.
func (s *Schedule) Count() int {
	if s == nil {
		return 0
	}
	return len(s.Installments)
}

// Generate produces the amortization schedule for the given terms. The
// result is a pure function of its input: identical terms always yield an
// identical schedule.
func Generate(t Terms) (*Schedule, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}

	months := t.DurationInMonths()
	totalInterest := money.Round(t.Principal.Mul(t.RatePer30Days).Mul(decimal.NewFromInt(int64(months))).Div(oneHundred))
	principal := money.Round(t.Principal)
	totalAmount := principal.Add(totalInterest)

	count := InstallmentCount(t.Frequency, months)
	spacing := Spacing(t.Frequency)

	flatAmount, lastAmount := money.Split(totalAmount, count)
	if !flatAmount.IsPositive() {
		return nil, fmt.Errorf("%w: installment amount rounds to zero", ErrInvalidLoanTerms)
	}
	flatPrincipal, lastPrincipal := money.Split(principal, count)

	installments := make([]Installment, count)
	remaining := totalAmount
	for i := 0; i < count; i++ {
		amount, principalPart := flatAmount, flatPrincipal
		if i == count-1 {
			amount, principalPart = lastAmount, lastPrincipal
		}
		remaining = remaining.Sub(amount)
		installments[i] = Installment{
			Index:                    i + 1,
			DueDate:                  t.StartDate.AddDate(0, 0, i*spacing),
			ExpectedAmount:           amount,
			PrincipalPortion:         principalPart,
			InterestPortion:          amount.Sub(principalPart),
			CumulativeRemainingAfter: remaining,
		}
	}

	return &Schedule{
		Installments:      installments,
		Frequency:         t.Frequency,
		StartDate:         t.StartDate,
		TotalAmount:       totalAmount,
		TotalInterest:     totalInterest,
		InstallmentAmount: flatAmount,
		SpacingDays:       spacing,
	}, nil
}
