package store

import (
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wagmw/MicroCreaditRun-sub000/pkg/models"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbFile := t.Name() + ".db"
	os.Remove(dbFile)

	s, err := NewSQLiteStore(dbFile)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
		os.Remove(dbFile)
		os.Remove(dbFile + "-wal")
		os.Remove(dbFile + "-shm")
	})
	return s
}

func testCustomer(t *testing.T, s *SQLiteStore) *models.Customer {
	t.Helper()
	customer := &models.Customer{
		ID:        uuid.New(),
		Name:      "Amina",
		Phone:     "0700000000",
		CreatedAt: time.Now(),
	}
	if err := s.CreateCustomer(customer); err != nil {
		t.Fatalf("Failed to create customer: %v", err)
	}
	return customer
}

func testLoan(t *testing.T, s *SQLiteStore, customerID uuid.UUID) *models.Loan {
	t.Helper()
	loan := &models.Loan{
		ID:             uuid.New(),
		CustomerID:     customerID,
		Principal:      decimal.NewFromInt(50000),
		RatePer30Days:  decimal.NewFromInt(10),
		DurationMonths: 2,
		Frequency:      models.FrequencyWeekly,
		StartDate:      time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Status:         models.LoanStatusApplied,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
	if err := s.CreateLoan(loan); err != nil {
		t.Fatalf("Failed to create loan: %v", err)
	}
	return loan
}

func TestSQLiteStore_CreateAndGetLoan(t *testing.T) {
	s := setupTestStore(t)
	customer := testCustomer(t, s)
	loan := testLoan(t, s, customer.ID)

	fetched, err := s.GetLoan(loan.ID)
	if err != nil {
		t.Fatalf("Failed to get loan: %v", err)
	}

	if fetched.ID != loan.ID {
		t.Errorf("Expected ID %s, got %s", loan.ID, fetched.ID)
	}
	if fetched.CustomerID != customer.ID {
		t.Errorf("Expected customer %s, got %s", customer.ID, fetched.CustomerID)
	}
	if !fetched.Principal.Equal(loan.Principal) {
		t.Errorf("Expected principal %s, got %s", loan.Principal, fetched.Principal)
	}
	if !fetched.RatePer30Days.Equal(loan.RatePer30Days) {
		t.Errorf("Expected rate %s, got %s", loan.RatePer30Days, fetched.RatePer30Days)
	}
	if fetched.DurationMonths != 2 || fetched.DurationDays != 0 {
		t.Errorf("Expected duration 2 months, got %d/%d", fetched.DurationMonths, fetched.DurationDays)
	}
	if fetched.Frequency != models.FrequencyWeekly {
		t.Errorf("Expected WEEKLY, got %s", fetched.Frequency)
	}
	if fetched.Status != models.LoanStatusApplied {
		t.Errorf("Expected APPLIED, got %s", fetched.Status)
	}
}

func TestSQLiteStore_UpdateLoanStatus(t *testing.T) {
	s := setupTestStore(t)
	customer := testCustomer(t, s)
	loan := testLoan(t, s, customer.ID)

	updatedAt := time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC)
	if err := s.UpdateLoanStatus(loan.ID, models.LoanStatusActive, updatedAt); err != nil {
		t.Fatalf("Failed to update status: %v", err)
	}

	fetched, err := s.GetLoan(loan.ID)
	if err != nil {
		t.Fatalf("Failed to get loan: %v", err)
	}
	if fetched.Status != models.LoanStatusActive {
		t.Errorf("Expected ACTIVE, got %s", fetched.Status)
	}
	if !fetched.UpdatedAt.Equal(updatedAt) {
		t.Errorf("Expected updated_at %v, got %v", updatedAt, fetched.UpdatedAt)
	}

	if err := s.UpdateLoanStatus(uuid.New(), models.LoanStatusActive, updatedAt); err == nil {
		t.Error("Expected update of unknown loan to fail")
	}
}

func TestSQLiteStore_GetActiveLoans(t *testing.T) {
	s := setupTestStore(t)
	customer := testCustomer(t, s)
	applied := testLoan(t, s, customer.ID)
	active := testLoan(t, s, customer.ID)

	if err := s.UpdateLoanStatus(active.ID, models.LoanStatusActive, time.Now()); err != nil {
		t.Fatalf("Failed to update status: %v", err)
	}

	loans, err := s.GetActiveLoans()
	if err != nil {
		t.Fatalf("Failed to get active loans: %v", err)
	}
	if len(loans) != 1 || loans[0].ID != active.ID {
		t.Errorf("Expected only loan %s active, got %d loans", active.ID, len(loans))
	}
	_ = applied
}

func TestSQLiteStore_PaymentsOrderedByPaidAt(t *testing.T) {
	s := setupTestStore(t)
	customer := testCustomer(t, s)
	loan := testLoan(t, s, customer.ID)

	// Insert out of order; reads must come back oldest first.
	times := []time.Time{
		time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC),
		time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC),
		time.Date(2025, 1, 8, 10, 0, 0, 0, time.UTC),
	}
	for _, paidAt := range times {
		payment := &models.Payment{
			ID:         uuid.New(),
			LoanID:     loan.ID,
			CustomerID: customer.ID,
			Amount:     decimal.RequireFromString("6666.67"),
			PaidAt:     paidAt,
		}
		if err := s.CreatePayment(payment); err != nil {
			t.Fatalf("Failed to create payment: %v", err)
		}
	}

	payments, err := s.GetPaymentsForLoan(loan.ID)
	if err != nil {
		t.Fatalf("Failed to get payments: %v", err)
	}
	if len(payments) != 3 {
		t.Fatalf("Expected 3 payments, got %d", len(payments))
	}
	for i := 1; i < len(payments); i++ {
		if payments[i].PaidAt.Before(payments[i-1].PaidAt) {
			t.Errorf("Payments not ordered by paid_at ascending")
		}
	}
	if !payments[0].Amount.Equal(decimal.RequireFromString("6666.67")) {
		t.Errorf("Expected amount 6666.67, got %s", payments[0].Amount)
	}
}

func TestSQLiteStore_MarkPaymentsBanked(t *testing.T) {
	s := setupTestStore(t)
	customer := testCustomer(t, s)
	loan := testLoan(t, s, customer.ID)

	payment := &models.Payment{
		ID:         uuid.New(),
		LoanID:     loan.ID,
		CustomerID: customer.ID,
		Amount:     decimal.NewFromInt(5000),
		PaidAt:     time.Now(),
	}
	if err := s.CreatePayment(payment); err != nil {
		t.Fatalf("Failed to create payment: %v", err)
	}

	deposit := &models.BankDeposit{
		ID:          uuid.New(),
		Amount:      decimal.NewFromInt(5000),
		DepositedAt: time.Now(),
	}
	if err := s.CreateBankDeposit(deposit); err != nil {
		t.Fatalf("Failed to create deposit: %v", err)
	}
	if err := s.MarkPaymentsBanked([]uuid.UUID{payment.ID}, deposit.ID); err != nil {
		t.Fatalf("Failed to mark banked: %v", err)
	}

	fetched, err := s.GetPayment(payment.ID)
	if err != nil {
		t.Fatalf("Failed to get payment: %v", err)
	}
	if !fetched.Banked {
		t.Error("Expected payment to be banked")
	}
	if fetched.DepositID == nil || *fetched.DepositID != deposit.ID {
		t.Errorf("Expected deposit ID %s, got %v", deposit.ID, fetched.DepositID)
	}
}

func TestSQLiteStore_FundAndExpenseTotals(t *testing.T) {
	s := setupTestStore(t)

	funds := []string{"10000", "5000.50"}
	for _, amount := range funds {
		fund := &models.Fund{
			ID:      uuid.New(),
			Amount:  decimal.RequireFromString(amount),
			AddedAt: time.Now(),
		}
		if err := s.CreateFund(fund); err != nil {
			t.Fatalf("Failed to create fund: %v", err)
		}
	}
	expense := &models.Expense{
		ID:          uuid.New(),
		Amount:      decimal.RequireFromString("1200.25"),
		Description: "office rent",
		SpentAt:     time.Now(),
	}
	if err := s.CreateExpense(expense); err != nil {
		t.Fatalf("Failed to create expense: %v", err)
	}

	totalFunds, err := s.TotalFunds()
	if err != nil {
		t.Fatalf("Failed to total funds: %v", err)
	}
	if !totalFunds.Equal(decimal.RequireFromString("15000.50")) {
		t.Errorf("Expected total funds 15000.50, got %s", totalFunds)
	}

	totalExpenses, err := s.TotalExpenses()
	if err != nil {
		t.Fatalf("Failed to total expenses: %v", err)
	}
	if !totalExpenses.Equal(decimal.RequireFromString("1200.25")) {
		t.Errorf("Expected total expenses 1200.25, got %s", totalExpenses)
	}
}

func TestSQLiteStore_DeleteLoanCascades(t *testing.T) {
	s := setupTestStore(t)
	customer := testCustomer(t, s)
	loan := testLoan(t, s, customer.ID)

	payment := &models.Payment{
		ID:         uuid.New(),
		LoanID:     loan.ID,
		CustomerID: customer.ID,
		Amount:     decimal.NewFromInt(100),
		PaidAt:     time.Now(),
	}
	if err := s.CreatePayment(payment); err != nil {
		t.Fatalf("Failed to create payment: %v", err)
	}

	if err := s.DeleteLoan(loan.ID); err != nil {
		t.Fatalf("Failed to delete loan: %v", err)
	}
	if _, err := s.GetLoan(loan.ID); err == nil {
		t.Error("Expected deleted loan to be gone")
	}
	payments, err := s.GetPaymentsForLoan(loan.ID)
	if err != nil {
		t.Fatalf("Failed to get payments: %v", err)
	}
	if len(payments) != 0 {
		t.Errorf("Expected payments to be deleted, got %d", len(payments))
	}
}

func TestSQLiteStore_Guarantors(t *testing.T) {
	s := setupTestStore(t)
	customer := testCustomer(t, s)
	other := testCustomer(t, s)
	loan := testLoan(t, s, customer.ID)

	guarantor := &models.Guarantor{
		ID:         uuid.New(),
		LoanID:     loan.ID,
		CustomerID: other.ID,
		CreatedAt:  time.Now(),
	}
	if err := s.AddGuarantor(guarantor); err != nil {
		t.Fatalf("Failed to add guarantor: %v", err)
	}

	guarantors, err := s.GetGuarantorsForLoan(loan.ID)
	if err != nil {
		t.Fatalf("Failed to get guarantors: %v", err)
	}
	if len(guarantors) != 1 || guarantors[0].CustomerID != other.ID {
		t.Errorf("Expected guarantor %s, got %v", other.ID, guarantors)
	}
}
