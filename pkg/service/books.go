// Package service wires the pure schedule/ledger/forecast engine to the
// storage layer. It owns when the engine is invoked; the engine itself
// never touches the database.
package service

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wagmw/MicroCreaditRun-sub000/pkg/forecast"
	"github.com/wagmw/MicroCreaditRun-sub000/pkg/ledger"
	"github.com/wagmw/MicroCreaditRun-sub000/pkg/models"
	"github.com/wagmw/MicroCreaditRun-sub000/pkg/money"
	"github.com/wagmw/MicroCreaditRun-sub000/pkg/schedule"
	"github.com/wagmw/MicroCreaditRun-sub000/pkg/store"
)

// Books handles the business logic for the lending operation.
type Books struct {
	storage store.Storage
}

// NewBooks creates a new Books with a given Storage implementation.
func NewBooks(s store.Storage) *Books {
	return &Books{storage: s}
}

// RegisterCustomer adds a new customer.
func (b *Books) RegisterCustomer(name, phone string) (*models.Customer, error) {
	if name == "" {
		return nil, fmt.Errorf("customer name is required")
	}
	customer := &models.Customer{
		ID:        uuid.New(),
		Name:      name,
		Phone:     phone,
		CreatedAt: time.Now(),
	}
	if err := b.storage.CreateCustomer(customer); err != nil {
		return nil, fmt.Errorf("failed to store customer: %w", err)
	}
	return customer, nil
}

// GetCustomer retrieves a customer by ID.
func (b *Books) GetCustomer(id uuid.UUID) (*models.Customer, error) {
	return b.storage.GetCustomer(id)
}

// GetAllCustomers retrieves all customers.
func (b *Books) GetAllCustomers() ([]*models.Customer, error) {
	return b.storage.GetAllCustomers()
}

// LoanApplication carries the terms of a new loan.
type LoanApplication struct {
	CustomerID     uuid.UUID        `json:"customer_id"`
	Principal      decimal.Decimal  `json:"principal"`
	RatePer30Days  decimal.Decimal  `json:"rate_per_30_days"`
	DurationMonths int              `json:"duration_months,omitempty"`
	DurationDays   int              `json:"duration_days,omitempty"`
	Frequency      models.Frequency `json:"frequency"`
	StartDate      time.Time        `json:"start_date"`
	GuarantorIDs   []uuid.UUID      `json:"guarantor_ids,omitempty"`
}

// CreateLoan records a new loan in APPLIED status. Unless the loan is
// open-ended, the terms are validated by generating the schedule once.
func (b *Books) CreateLoan(app LoanApplication) (*models.Loan, error) {
	if _, err := b.storage.GetCustomer(app.CustomerID); err != nil {
		return nil, err
	}

	loan := &models.Loan{
		ID:             uuid.New(),
		CustomerID:     app.CustomerID,
		Principal:      money.Round(app.Principal),
		RatePer30Days:  app.RatePer30Days,
		DurationMonths: app.DurationMonths,
		DurationDays:   app.DurationDays,
		Frequency:      app.Frequency,
		StartDate:      app.StartDate,
		Status:         models.LoanStatusApplied,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}

	if loan.OpenEnded() {
		if !loan.Principal.IsPositive() {
			return nil, fmt.Errorf("%w: principal must be positive", schedule.ErrInvalidLoanTerms)
		}
	} else {
		if _, err := schedule.Generate(schedule.TermsForLoan(loan)); err != nil {
			return nil, err
		}
	}

	if err := b.storage.CreateLoan(loan); err != nil {
		return nil, fmt.Errorf("failed to store loan: %w", err)
	}

	for _, guarantorID := range app.GuarantorIDs {
		if _, err := b.storage.GetCustomer(guarantorID); err != nil {
			return nil, err
		}
		guarantor := &models.Guarantor{
			ID:         uuid.New(),
			LoanID:     loan.ID,
			CustomerID: guarantorID,
			CreatedAt:  time.Now(),
		}
		if err := b.storage.AddGuarantor(guarantor); err != nil {
			return nil, fmt.Errorf("failed to store guarantor: %w", err)
		}
	}

	return loan, nil
}

// GetLoan retrieves a loan by its ID.
func (b *Books) GetLoan(id uuid.UUID) (*models.Loan, error) {
	return b.storage.GetLoan(id)
}

// GetAllLoans retrieves all loans.
func (b *Books) GetAllLoans() ([]*models.Loan, error) {
	return b.storage.GetAllLoans()
}

// DeleteLoan deletes a loan and its payments.
func (b *Books) DeleteLoan(id uuid.UUID) error {
	return b.storage.DeleteLoan(id)
}

// UpdateLoanStatus moves a loan to a new lifecycle status after checking
// the transition is legal.
func (b *Books) UpdateLoanStatus(id uuid.UUID, status models.LoanStatus) (*models.Loan, error) {
	loan, err := b.storage.GetLoan(id)
	if err != nil {
		return nil, err
	}
	if !loan.Status.CanTransitionTo(status) {
		return nil, fmt.Errorf("illegal status transition %s -> %s", loan.Status, status)
	}
	now := time.Now()
	if err := b.storage.UpdateLoanStatus(id, status, now); err != nil {
		return nil, err
	}
	loan.Status = status
	loan.UpdatedAt = now
	return loan, nil
}

// ActivateLoan moves an APPLIED loan to ACTIVE.
func (b *Books) ActivateLoan(id uuid.UUID) (*models.Loan, error) {
	return b.UpdateLoanStatus(id, models.LoanStatusActive)
}

// RecordPayment processes a cash receipt against an active loan. When the
// resulting outstanding balance reaches zero or below, the loan is moved
// to COMPLETED.
func (b *Books) RecordPayment(loanID uuid.UUID, amount decimal.Decimal, paidAt time.Time) (*models.Payment, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("payment amount must be positive")
	}

	loan, err := b.storage.GetLoan(loanID)
	if err != nil {
		return nil, err
	}
	if loan.Status != models.LoanStatusActive {
		return nil, fmt.Errorf("loan is not active")
	}
	if paidAt.IsZero() {
		paidAt = time.Now()
	}

	payment := &models.Payment{
		ID:         uuid.New(),
		LoanID:     loan.ID,
		CustomerID: loan.CustomerID,
		Amount:     money.Round(amount),
		PaidAt:     paidAt,
	}

	// Open-ended loans have no schedule to settle against.
	if loan.OpenEnded() {
		if err := b.storage.CreatePayment(payment); err != nil {
			return nil, fmt.Errorf("failed to store payment: %w", err)
		}
		return payment, nil
	}

	// Reconcile with the new payment included before anything is written;
	// a failed reconciliation must not leave a payment row behind.
	sched, err := schedule.Generate(schedule.TermsForLoan(loan))
	if err != nil {
		return nil, err
	}
	payments, err := b.storage.GetPaymentsForLoan(loan.ID)
	if err != nil {
		return nil, err
	}
	summary, err := ledger.Reconcile(sched, append(payments, payment))
	if err != nil {
		return nil, err
	}

	if err := b.storage.CreatePayment(payment); err != nil {
		return nil, fmt.Errorf("failed to store payment: %w", err)
	}
	if !summary.Outstanding().IsPositive() {
		if err := b.storage.UpdateLoanStatus(loan.ID, models.LoanStatusCompleted, time.Now()); err != nil {
			return nil, fmt.Errorf("failed to complete loan: %w", err)
		}
	}

	return payment, nil
}

// GetPaymentsForLoan retrieves a loan's payments, oldest first.
func (b *Books) GetPaymentsForLoan(loanID uuid.UUID) ([]*models.Payment, error) {
	return b.storage.GetPaymentsForLoan(loanID)
}

// reconcileLoan reconciles a loan's stored payments against its schedule
// and returns both, so callers never generate the schedule twice.
func (b *Books) reconcileLoan(loan *models.Loan) (*ledger.Summary, *schedule.Schedule, error) {
	var sched *schedule.Schedule
	if !loan.OpenEnded() {
		var err error
		sched, err = schedule.Generate(schedule.TermsForLoan(loan))
		if err != nil {
			return nil, nil, err
		}
	}
	payments, err := b.storage.GetPaymentsForLoan(loan.ID)
	if err != nil {
		return nil, nil, err
	}
	summary, err := ledger.Reconcile(sched, payments)
	if err != nil {
		return nil, nil, err
	}
	return summary, sched, nil
}

// LedgerSummary is the serializable view of a reconciliation.
type LedgerSummary struct {
	TotalPaid             decimal.Decimal `json:"total_paid"`
	TotalExpected         decimal.Decimal `json:"total_expected"`
	Outstanding           decimal.Decimal `json:"outstanding"`
	PaidInstallments      int             `json:"paid_installments"`
	RemainingInstallments int             `json:"remaining_installments"`
	DueToday              bool            `json:"due_today"`
	OverdueCount          int             `json:"overdue_count"`
}

// PaymentPlan is a loan's schedule together with its reconciliation
// state as of a given date.
type PaymentPlan struct {
	Loan     *models.Loan       `json:"loan"`
	Schedule *schedule.Schedule `json:"schedule"`
	Summary  LedgerSummary      `json:"summary"`
}

// GetPaymentPlan returns the payment plan of one loan. Open-ended loans
// have no schedule and fail with ledger.ErrNoScheduleAvailable.
func (b *Books) GetPaymentPlan(loanID uuid.UUID, asOf time.Time) (*PaymentPlan, error) {
	loan, err := b.storage.GetLoan(loanID)
	if err != nil {
		return nil, err
	}
	summary, sched, err := b.reconcileLoan(loan)
	if err != nil {
		return nil, err
	}
	return &PaymentPlan{
		Loan:     loan,
		Schedule: sched,
		Summary: LedgerSummary{
			TotalPaid:             summary.TotalPaid(),
			TotalExpected:         summary.TotalExpected(),
			Outstanding:           summary.Outstanding(),
			PaidInstallments:      summary.PaidInstallmentCount(),
			RemainingInstallments: summary.RemainingInstallmentCount(),
			DueToday:              summary.IsDueToday(asOf),
			OverdueCount:          summary.OverdueCount(asOf),
		},
	}, nil
}

// DuePayments lists the active loans with a payment due or overdue as of
// the given date, most urgent first. Open-ended loans carry no schedule
// and are skipped.
func (b *Books) DuePayments(asOf time.Time) ([]ledger.DueEntry, error) {
	loans, err := b.storage.GetActiveLoans()
	if err != nil {
		return nil, err
	}

	entries := []ledger.DueEntry{}
	for _, loan := range loans {
		if loan.OpenEnded() {
			continue
		}
		summary, _, err := b.reconcileLoan(loan)
		if err != nil {
			return nil, err
		}
		if !summary.Outstanding().IsPositive() {
			continue
		}
		dueToday := summary.IsDueToday(asOf)
		overdue := summary.OverdueCount(asOf)
		if !dueToday && overdue == 0 {
			continue
		}
		customer, err := b.storage.GetCustomer(loan.CustomerID)
		if err != nil {
			return nil, err
		}
		entries = append(entries, ledger.DueEntry{
			Loan:         loan,
			Customer:     customer,
			Outstanding:  summary.Outstanding(),
			DueToday:     dueToday,
			OverdueCount: overdue,
		})
	}

	ledger.SortDueEntries(entries)
	return entries, nil
}

// Predictions forecasts the installments contractually due in the
// inclusive [start, end] window across all active loans.
func (b *Books) Predictions(start, end time.Time) (*forecast.Result, error) {
	loans, err := b.storage.GetActiveLoans()
	if err != nil {
		return nil, err
	}
	pairs := make([]forecast.LoanWithCustomer, 0, len(loans))
	for _, loan := range loans {
		customer, err := b.storage.GetCustomer(loan.CustomerID)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, forecast.LoanWithCustomer{Loan: loan, Customer: customer})
	}
	return forecast.Predict(pairs, start, end)
}

// Overview computes the business-level profit figure: outstanding across
// active loans minus invested funds minus expenses.
func (b *Books) Overview() (ledger.OverviewTotals, error) {
	loans, err := b.storage.GetActiveLoans()
	if err != nil {
		return ledger.OverviewTotals{}, err
	}

	var outstandings []decimal.Decimal
	for _, loan := range loans {
		if loan.OpenEnded() {
			continue
		}
		summary, _, err := b.reconcileLoan(loan)
		if err != nil {
			return ledger.OverviewTotals{}, err
		}
		outstandings = append(outstandings, summary.Outstanding())
	}

	invested, err := b.storage.TotalFunds()
	if err != nil {
		return ledger.OverviewTotals{}, err
	}
	expenses, err := b.storage.TotalExpenses()
	if err != nil {
		return ledger.OverviewTotals{}, err
	}

	return ledger.Profit(outstandings, invested, expenses), nil
}

// AddFund records invested capital.
func (b *Books) AddFund(amount decimal.Decimal, note string, addedAt time.Time) (*models.Fund, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("fund amount must be positive")
	}
	if addedAt.IsZero() {
		addedAt = time.Now()
	}
	fund := &models.Fund{
		ID:      uuid.New(),
		Amount:  money.Round(amount),
		Note:    note,
		AddedAt: addedAt,
	}
	if err := b.storage.CreateFund(fund); err != nil {
		return nil, fmt.Errorf("failed to store fund: %w", err)
	}
	return fund, nil
}

// AddExpense records an operating cost.
func (b *Books) AddExpense(amount decimal.Decimal, description string, spentAt time.Time) (*models.Expense, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("expense amount must be positive")
	}
	if spentAt.IsZero() {
		spentAt = time.Now()
	}
	expense := &models.Expense{
		ID:          uuid.New(),
		Amount:      money.Round(amount),
		Description: description,
		SpentAt:     spentAt,
	}
	if err := b.storage.CreateExpense(expense); err != nil {
		return nil, fmt.Errorf("failed to store expense: %w", err)
	}
	return expense, nil
}

// DepositPayments banks a set of collected payments: it creates a
// BankDeposit for their combined amount and flags each payment as
// banked. Already-banked payments are rejected.
func (b *Books) DepositPayments(paymentIDs []uuid.UUID, note string, depositedAt time.Time) (*models.BankDeposit, error) {
	if len(paymentIDs) == 0 {
		return nil, fmt.Errorf("no payments to deposit")
	}
	if depositedAt.IsZero() {
		depositedAt = time.Now()
	}

	total := decimal.Zero
	for _, id := range paymentIDs {
		payment, err := b.storage.GetPayment(id)
		if err != nil {
			return nil, err
		}
		if payment.Banked {
			return nil, fmt.Errorf("payment %s is already banked", id)
		}
		total = total.Add(payment.Amount)
	}

	deposit := &models.BankDeposit{
		ID:          uuid.New(),
		Amount:      total,
		Note:        note,
		DepositedAt: depositedAt,
	}
	if err := b.storage.CreateBankDeposit(deposit); err != nil {
		return nil, fmt.Errorf("failed to store bank deposit: %w", err)
	}
	if err := b.storage.MarkPaymentsBanked(paymentIDs, deposit.ID); err != nil {
		return nil, fmt.Errorf("failed to flag banked payments: %w", err)
	}
	return deposit, nil
}
