package store

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wagmw/MicroCreaditRun-sub000/pkg/models"
)

// Storage defines the interface for database operations on customers,
// loans, payments and the business bookkeeping tables.
type Storage interface {
	CreateCustomer(customer *models.Customer) error
	GetCustomer(id uuid.UUID) (*models.Customer, error)
	GetAllCustomers() ([]*models.Customer, error)

	CreateLoan(loan *models.Loan) error
	GetLoan(id uuid.UUID) (*models.Loan, error)
	UpdateLoanStatus(id uuid.UUID, status models.LoanStatus, updatedAt time.Time) error
	DeleteLoan(id uuid.UUID) error
	GetAllLoans() ([]*models.Loan, error)
	GetActiveLoans() ([]*models.Loan, error)

	AddGuarantor(guarantor *models.Guarantor) error
	GetGuarantorsForLoan(loanID uuid.UUID) ([]*models.Guarantor, error)

	CreatePayment(payment *models.Payment) error
	GetPayment(id uuid.UUID) (*models.Payment, error)
	GetPaymentsForLoan(loanID uuid.UUID) ([]*models.Payment, error)
	MarkPaymentsBanked(ids []uuid.UUID, depositID uuid.UUID) error

	CreateFund(fund *models.Fund) error
	CreateExpense(expense *models.Expense) error
	CreateBankDeposit(deposit *models.BankDeposit) error
	TotalFunds() (decimal.Decimal, error)
	TotalExpenses() (decimal.Decimal, error)

	Close() error
}
