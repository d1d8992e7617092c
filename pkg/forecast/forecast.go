// Package forecast enumerates contractually due installments inside a
// date window for forward cash-flow prediction. It answers "what falls
// due in this window", independent of what has actually been paid.
package forecast

import (
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wagmw/MicroCreaditRun-sub000/pkg/models"
	"github.com/wagmw/MicroCreaditRun-sub000/pkg/schedule"
)

// ErrInvalidDateRange is returned when the prediction window is
// inverted.
var ErrInvalidDateRange = errors.New("invalid date range")

// LoanWithCustomer pairs a loan with its applicant for reporting.
type LoanWithCustomer struct {
	Loan     *models.Loan
	Customer *models.Customer
}

// Record is one predicted installment inside the window.
type Record struct {
	LoanID            uuid.UUID        `json:"loan_id"`
	CustomerName      string           `json:"customer_name"`
	CustomerPhone     string           `json:"customer_phone"`
	InstallmentNumber int              `json:"installment_number"`
	TotalInstallments int              `json:"total_installments"`
	ExpectedAmount    decimal.Decimal  `json:"expected_amount"`
	ExpectedDate      time.Time        `json:"expected_date"`
	Frequency         models.Frequency `json:"frequency"`
}

// Result is the full prediction for a window.
type Result struct {
	Predictions          []Record        `json:"predictions"`
	Count                int             `json:"count"`
	TotalPredictedAmount decimal.Decimal `json:"total_predicted_amount"`
}

// Predict enumerates the installments of the given active loans whose
// due date falls inside [start, end], both ends inclusive. Records come
// back sorted by due date ascending. Loans that are not ACTIVE are
// ignored, as are open-ended loans, which have no contractual
// installments to predict.
func Predict(loans []LoanWithCustomer, start, end time.Time) (*Result, error) {
	if dateOnly(start).After(dateOnly(end)) {
		return nil, ErrInvalidDateRange
	}

	result := &Result{
		Predictions:          []Record{},
		TotalPredictedAmount: decimal.Zero,
	}

	for _, lc := range loans {
		if lc.Loan.Status != models.LoanStatusActive || lc.Loan.OpenEnded() {
			continue
		}
		sched, err := schedule.Generate(schedule.TermsForLoan(lc.Loan))
		if err != nil {
			return nil, err
		}
		for _, inst := range sched.Installments {
			due := dateOnly(inst.DueDate)
			if due.Before(dateOnly(start)) || due.After(dateOnly(end)) {
				continue
			}
			result.Predictions = append(result.Predictions, Record{
				LoanID:            lc.Loan.ID,
				CustomerName:      lc.Customer.Name,
				CustomerPhone:     lc.Customer.Phone,
				InstallmentNumber: inst.Index,
				TotalInstallments: sched.Count(),
				ExpectedAmount:    inst.ExpectedAmount,
				ExpectedDate:      inst.DueDate,
				Frequency:         lc.Loan.Frequency,
			})
			result.TotalPredictedAmount = result.TotalPredictedAmount.Add(inst.ExpectedAmount)
		}
	}

	sort.SliceStable(result.Predictions, func(i, j int) bool {
		return result.Predictions[i].ExpectedDate.Before(result.Predictions[j].ExpectedDate)
	})
	result.Count = len(result.Predictions)

	return result, nil
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
