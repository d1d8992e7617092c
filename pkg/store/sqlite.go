package store

import (
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wagmw/MicroCreaditRun-sub000/pkg/models"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore manages the database connection and operations for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLiteStore and initializes the database.
func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	// Manually enable foreign keys and WAL mode
	_, err = db.Exec("PRAGMA foreign_keys = ON;")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	_, err = db.Exec("PRAGMA journal_mode = WAL;")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("could not initialize schema: %w", err)
	}
	log.Println("Database connection established and schema initialized.")
	return s, nil
}

// initSchema creates the database tables if they don't already exist.
// We use TEXT for decimal fields in SQLite to ensure no precision is lost.
func (s *SQLiteStore) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS customers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		phone TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS loans (
		id TEXT PRIMARY KEY,
		customer_id TEXT NOT NULL,
		principal TEXT NOT NULL,
		rate_per_30_days TEXT NOT NULL,
		duration_months INTEGER NOT NULL DEFAULT 0,
		duration_days INTEGER NOT NULL DEFAULT 0,
		frequency TEXT NOT NULL,
		start_date DATETIME NOT NULL,
		status TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		FOREIGN KEY(customer_id) REFERENCES customers(id)
	);
	CREATE TABLE IF NOT EXISTS guarantors (
		id TEXT PRIMARY KEY,
		loan_id TEXT NOT NULL,
		customer_id TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		FOREIGN KEY(loan_id) REFERENCES loans(id),
		FOREIGN KEY(customer_id) REFERENCES customers(id)
	);
	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		loan_id TEXT NOT NULL,
		customer_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		paid_at DATETIME NOT NULL,
		banked INTEGER NOT NULL DEFAULT 0,
		deposit_id TEXT,
		FOREIGN KEY(loan_id) REFERENCES loans(id)
	);
	CREATE TABLE IF NOT EXISTS funds (
		id TEXT PRIMARY KEY,
		amount TEXT NOT NULL,
		note TEXT NOT NULL DEFAULT '',
		added_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS expenses (
		id TEXT PRIMARY KEY,
		amount TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		spent_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS bank_deposits (
		id TEXT PRIMARY KEY,
		amount TEXT NOT NULL,
		note TEXT NOT NULL DEFAULT '',
		deposited_at DATETIME NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// CreateCustomer inserts a new customer into the database.
func (s *SQLiteStore) CreateCustomer(customer *models.Customer) error {
	_, err := s.db.Exec(
		`INSERT INTO customers (id, name, phone, created_at) VALUES (?, ?, ?, ?)`,
		customer.ID.String(), customer.Name, customer.Phone, customer.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create customer: %w", err)
	}
	return nil
}

// GetCustomer retrieves a customer by ID.
func (s *SQLiteStore) GetCustomer(id uuid.UUID) (*models.Customer, error) {
	var customer models.Customer
	var idStr string

	row := s.db.QueryRow(`SELECT id, name, phone, created_at FROM customers WHERE id = ?`, id.String())
	err := row.Scan(&idStr, &customer.Name, &customer.Phone, &customer.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("customer not found")
		}
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	customer.ID = uuid.MustParse(idStr)
	return &customer, nil
}

// GetAllCustomers retrieves all customers.
func (s *SQLiteStore) GetAllCustomers() ([]*models.Customer, error) {
	rows, err := s.db.Query(`SELECT id, name, phone, created_at FROM customers ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to get all customers: %w", err)
	}
	defer rows.Close()

	var customers []*models.Customer
	for rows.Next() {
		var customer models.Customer
		var idStr string
		if err := rows.Scan(&idStr, &customer.Name, &customer.Phone, &customer.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan customer row: %w", err)
		}
		customer.ID = uuid.MustParse(idStr)
		customers = append(customers, &customer)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return customers, nil
}

// CreateLoan inserts a new loan into the database.
func (s *SQLiteStore) CreateLoan(loan *models.Loan) error {
	_, err := s.db.Exec(
		`INSERT INTO loans (id, customer_id, principal, rate_per_30_days, duration_months, duration_days, frequency, start_date, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		loan.ID.String(), loan.CustomerID.String(), loan.Principal, loan.RatePer30Days, loan.DurationMonths, loan.DurationDays, loan.Frequency, loan.StartDate, loan.Status, loan.CreatedAt, loan.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create loan: %w", err)
	}
	return nil
}

const loanColumns = `id, customer_id, principal, rate_per_30_days, duration_months, duration_days, frequency, start_date, status, created_at, updated_at`

// GetLoan retrieves a loan by its ID.
func (s *SQLiteStore) GetLoan(id uuid.UUID) (*models.Loan, error) {
	row := s.db.QueryRow(`SELECT `+loanColumns+` FROM loans WHERE id = ?`, id.String())
	loan, err := scanLoan(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("loan not found")
		}
		return nil, fmt.Errorf("failed to get loan: %w", err)
	}
	return loan, nil
}

// UpdateLoanStatus moves a loan to a new lifecycle status. The caller
// supplies the timestamp so the record it holds matches the stored row.
func (s *SQLiteStore) UpdateLoanStatus(id uuid.UUID, status models.LoanStatus, updatedAt time.Time) error {
	result, err := s.db.Exec(
		`UPDATE loans SET status = ?, updated_at = ? WHERE id = ?`,
		status, updatedAt, id.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update loan status: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("loan not found")
	}
	return nil
}

// DeleteLoan removes a loan and its dependent rows within a transaction.
func (s *SQLiteStore) DeleteLoan(id uuid.UUID) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`DELETE FROM payments WHERE loan_id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete associated payments: %w", err)
	}

	_, err = tx.Exec(`DELETE FROM guarantors WHERE loan_id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete associated guarantors: %w", err)
	}

	result, err := tx.Exec(`DELETE FROM loans WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete loan: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("loan not found")
	}

	return tx.Commit()
}

// GetAllLoans retrieves all loans.
func (s *SQLiteStore) GetAllLoans() ([]*models.Loan, error) {
	rows, err := s.db.Query(`SELECT ` + loanColumns + ` FROM loans ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to get all loans: %w", err)
	}
	defer rows.Close()

	return scanLoans(rows)
}

// GetActiveLoans retrieves all loans in ACTIVE status.
func (s *SQLiteStore) GetActiveLoans() ([]*models.Loan, error) {
	rows, err := s.db.Query(`SELECT `+loanColumns+` FROM loans WHERE status = ? ORDER BY created_at ASC`, models.LoanStatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to get active loans: %w", err)
	}
	defer rows.Close()

	return scanLoans(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLoan(row rowScanner) (*models.Loan, error) {
	var loan models.Loan
	var idStr, customerIDStr string
	if err := row.Scan(&idStr, &customerIDStr, &loan.Principal, &loan.RatePer30Days, &loan.DurationMonths, &loan.DurationDays, &loan.Frequency, &loan.StartDate, &loan.Status, &loan.CreatedAt, &loan.UpdatedAt); err != nil {
		return nil, err
	}
	loan.ID = uuid.MustParse(idStr)
	loan.CustomerID = uuid.MustParse(customerIDStr)
	return &loan, nil
}

func scanLoans(rows *sql.Rows) ([]*models.Loan, error) {
	var loans []*models.Loan
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan loan row: %w", err)
		}
		loans = append(loans, loan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return loans, nil
}

// AddGuarantor inserts a guarantor relationship for a loan.
func (s *SQLiteStore) AddGuarantor(guarantor *models.Guarantor) error {
	_, err := s.db.Exec(
		`INSERT INTO guarantors (id, loan_id, customer_id, created_at) VALUES (?, ?, ?, ?)`,
		guarantor.ID.String(), guarantor.LoanID.String(), guarantor.CustomerID.String(), guarantor.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to add guarantor: %w", err)
	}
	return nil
}

// GetGuarantorsForLoan retrieves the guarantors of a loan.
func (s *SQLiteStore) GetGuarantorsForLoan(loanID uuid.UUID) ([]*models.Guarantor, error) {
	rows, err := s.db.Query(`SELECT id, loan_id, customer_id, created_at FROM guarantors WHERE loan_id = ?`, loanID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to get guarantors for loan %s: %w", loanID, err)
	}
	defer rows.Close()

	var guarantors []*models.Guarantor
	for rows.Next() {
		var guarantor models.Guarantor
		var idStr, loanIDStr, customerIDStr string
		if err := rows.Scan(&idStr, &loanIDStr, &customerIDStr, &guarantor.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan guarantor row: %w", err)
		}
		guarantor.ID = uuid.MustParse(idStr)
		guarantor.LoanID = uuid.MustParse(loanIDStr)
		guarantor.CustomerID = uuid.MustParse(customerIDStr)
		guarantors = append(guarantors, &guarantor)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return guarantors, nil
}

// CreatePayment inserts a new payment into the database.
func (s *SQLiteStore) CreatePayment(payment *models.Payment) error {
	var depositID any
	if payment.DepositID != nil {
		depositID = payment.DepositID.String()
	}
	_, err := s.db.Exec(
		`INSERT INTO payments (id, loan_id, customer_id, amount, paid_at, banked, deposit_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		payment.ID.String(), payment.LoanID.String(), payment.CustomerID.String(), payment.Amount, payment.PaidAt, payment.Banked, depositID,
	)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

// GetPayment retrieves a payment by ID.
func (s *SQLiteStore) GetPayment(id uuid.UUID) (*models.Payment, error) {
	row := s.db.QueryRow(`SELECT id, loan_id, customer_id, amount, paid_at, banked, deposit_id FROM payments WHERE id = ?`, id.String())
	payment, err := scanPayment(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("payment not found")
		}
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return payment, nil
}

// GetPaymentsForLoan retrieves all payments for a loan, ordered by paid
// date ascending. The ledger depends on this ordering.
func (s *SQLiteStore) GetPaymentsForLoan(loanID uuid.UUID) ([]*models.Payment, error) {
	rows, err := s.db.Query(`SELECT id, loan_id, customer_id, amount, paid_at, banked, deposit_id FROM payments WHERE loan_id = ? ORDER BY paid_at ASC`, loanID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to get payments for loan %s: %w", loanID, err)
	}
	defer rows.Close()

	var payments []*models.Payment
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment row: %w", err)
		}
		payments = append(payments, payment)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration for loan payments: %w", err)
	}
	return payments, nil
}

func scanPayment(row rowScanner) (*models.Payment, error) {
	var payment models.Payment
	var idStr, loanIDStr, customerIDStr string
	var depositID sql.NullString
	if err := row.Scan(&idStr, &loanIDStr, &customerIDStr, &payment.Amount, &payment.PaidAt, &payment.Banked, &depositID); err != nil {
		return nil, err
	}
	payment.ID = uuid.MustParse(idStr)
	payment.LoanID = uuid.MustParse(loanIDStr)
	payment.CustomerID = uuid.MustParse(customerIDStr)
	if depositID.Valid {
		id := uuid.MustParse(depositID.String)
		payment.DepositID = &id
	}
	return &payment, nil
}

// MarkPaymentsBanked flags a set of payments as banked under a deposit.
func (s *SQLiteStore) MarkPaymentsBanked(ids []uuid.UUID, depositID uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, 0, len(ids)+1)
	args = append(args, depositID.String())
	for i, id := range ids {
		placeholders[i] = "?"
		args = append(args, id.String())
	}
	result, err := s.db.Exec(
		`UPDATE payments SET banked = 1, deposit_id = ? WHERE id IN (`+strings.Join(placeholders, ", ")+`)`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("failed to mark payments banked: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected != int64(len(ids)) {
		return fmt.Errorf("payment not found")
	}
	return nil
}

// CreateFund inserts an invested-capital record.
func (s *SQLiteStore) CreateFund(fund *models.Fund) error {
	_, err := s.db.Exec(
		`INSERT INTO funds (id, amount, note, added_at) VALUES (?, ?, ?, ?)`,
		fund.ID.String(), fund.Amount, fund.Note, fund.AddedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create fund: %w", err)
	}
	return nil
}

// CreateExpense inserts an expense record.
func (s *SQLiteStore) CreateExpense(expense *models.Expense) error {
	_, err := s.db.Exec(
		`INSERT INTO expenses (id, amount, description, spent_at) VALUES (?, ?, ?, ?)`,
		expense.ID.String(), expense.Amount, expense.Description, expense.SpentAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create expense: %w", err)
	}
	return nil
}

// CreateBankDeposit inserts a bank deposit record.
func (s *SQLiteStore) CreateBankDeposit(deposit *models.BankDeposit) error {
	_, err := s.db.Exec(
		`INSERT INTO bank_deposits (id, amount, note, deposited_at) VALUES (?, ?, ?, ?)`,
		deposit.ID.String(), deposit.Amount, deposit.Note, deposit.DepositedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create bank deposit: %w", err)
	}
	return nil
}

// TotalFunds sums all invested capital. Amounts are stored as TEXT, so
// the sum happens in Go on decimals rather than in SQLite.
func (s *SQLiteStore) TotalFunds() (decimal.Decimal, error) {
	return s.sumColumn(`SELECT amount FROM funds`)
}

// TotalExpenses sums all recorded expenses.
func (s *SQLiteStore) TotalExpenses() (decimal.Decimal, error) {
	return s.sumColumn(`SELECT amount FROM expenses`)
}

func (s *SQLiteStore) sumColumn(query string) (decimal.Decimal, error) {
	rows, err := s.db.Query(query)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to query amounts: %w", err)
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var amount decimal.Decimal
		if err := rows.Scan(&amount); err != nil {
			return decimal.Zero, fmt.Errorf("failed to scan amount: %w", err)
		}
		total = total.Add(amount)
	}
	if err := rows.Err(); err != nil {
		return decimal.Zero, fmt.Errorf("error during rows iteration: %w", err)
	}
	return total, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
