package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/wagmw/MicroCreaditRun-sub000/pkg/forecast"
	"github.com/wagmw/MicroCreaditRun-sub000/pkg/ledger"
	"github.com/wagmw/MicroCreaditRun-sub000/pkg/models"
	"github.com/wagmw/MicroCreaditRun-sub000/pkg/schedule"
	"github.com/wagmw/MicroCreaditRun-sub000/pkg/service"
	"github.com/wagmw/MicroCreaditRun-sub000/pkg/store"
)

const dateLayout = "2006-01-02"

// Config holds the runtime configuration, read from the environment
// (optionally seeded from a .env file).
type Config struct {
	Port   string
	DBPath string
}

func loadConfig() Config {
	// A missing .env file is fine; plain environment variables still apply.
	_ = godotenv.Load()

	cfg := Config{
		Port:   os.Getenv("PORT"),
		DBPath: os.Getenv("DB_PATH"),
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "microcredit.db"
	}
	return cfg
}

// Server holds the books instance.
type Server struct {
	books   *service.Books
	storage store.Storage
}

func NewServer(s store.Storage) *Server {
	return &Server{
		books:   service.NewBooks(s),
		storage: s,
	}
}

func (s *Server) routes() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/customers", s.listCustomersHandler).Methods("GET")
	router.HandleFunc("/customers", s.createCustomerHandler).Methods("POST")
	router.HandleFunc("/customers/{id}", s.getCustomerHandler).Methods("GET")

	router.HandleFunc("/loans", s.listLoansHandler).Methods("GET")
	router.HandleFunc("/loans", s.createLoanHandler).Methods("POST")
	router.HandleFunc("/loans/{id}", s.getLoanHandler).Methods("GET")
	router.HandleFunc("/loans/{id}", s.deleteLoanHandler).Methods("DELETE")
	router.HandleFunc("/loans/{id}/status", s.updateLoanStatusHandler).Methods("PUT")
	router.HandleFunc("/loans/{id}/plan", s.paymentPlanHandler).Methods("GET")
	router.HandleFunc("/loans/{id}/payments", s.recordPaymentHandler).Methods("POST")
	router.HandleFunc("/loans/{id}/payments", s.listPaymentsHandler).Methods("GET")

	router.HandleFunc("/reports/due", s.duePaymentsHandler).Methods("GET")
	router.HandleFunc("/reports/predictions", s.predictionsHandler).Methods("GET")
	router.HandleFunc("/reports/overview", s.overviewHandler).Methods("GET")

	router.HandleFunc("/funds", s.addFundHandler).Methods("POST")
	router.HandleFunc("/expenses", s.addExpenseHandler).Methods("POST")
	router.HandleFunc("/deposits", s.depositHandler).Methods("POST")

	return router
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps the error taxonomy onto HTTP statuses: caller-input
// errors from the engine become 400, missing records 404, the rest 500.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, schedule.ErrInvalidLoanTerms),
		errors.Is(err, ledger.ErrNoScheduleAvailable),
		errors.Is(err, forecast.ErrInvalidDateRange):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case strings.HasSuffix(err.Error(), "not found"):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func parseID(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(mux.Vars(r)["id"])
}

// parseDateQuery reads a YYYY-MM-DD query parameter, defaulting to today
// when absent.
func parseDateQuery(r *http.Request, name string) (time.Time, error) {
	value := r.URL.Query().Get(name)
	if value == "" {
		return time.Now(), nil
	}
	return time.Parse(dateLayout, value)
}

func (s *Server) createCustomerHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name  string `json:"name"`
		Phone string `json:"phone"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	customer, err := s.books.RegisterCustomer(req.Name, req.Phone)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusCreated, customer)
}

func (s *Server) getCustomerHandler(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		http.Error(w, "Invalid customer ID", http.StatusBadRequest)
		return
	}
	customer, err := s.books.GetCustomer(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, customer)
}

func (s *Server) listCustomersHandler(w http.ResponseWriter, r *http.Request) {
	customers, err := s.books.GetAllCustomers()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, customers)
}

func (s *Server) createLoanHandler(w http.ResponseWriter, r *http.Request) {
	var app service.LoanApplication
	if err := json.NewDecoder(r.Body).Decode(&app); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	loan, err := s.books.CreateLoan(app)
	if err != nil {
		log.Printf("Error creating loan: %v\n", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, loan)
}

func (s *Server) getLoanHandler(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		http.Error(w, "Invalid loan ID", http.StatusBadRequest)
		return
	}
	loan, err := s.books.GetLoan(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

func (s *Server) listLoansHandler(w http.ResponseWriter, r *http.Request) {
	loans, err := s.books.GetAllLoans()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loans)
}

func (s *Server) deleteLoanHandler(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		http.Error(w, "Invalid loan ID", http.StatusBadRequest)
		return
	}
	if err := s.books.DeleteLoan(id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) updateLoanStatusHandler(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		http.Error(w, "Invalid loan ID", http.StatusBadRequest)
		return
	}

	var req struct {
		Status models.LoanStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	loan, err := s.books.UpdateLoanStatus(id, req.Status)
	if err != nil {
		if strings.HasPrefix(err.Error(), "illegal status transition") {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

func (s *Server) paymentPlanHandler(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		http.Error(w, "Invalid loan ID", http.StatusBadRequest)
		return
	}
	asOf, err := parseDateQuery(r, "as_of")
	if err != nil {
		http.Error(w, "Invalid as_of date", http.StatusBadRequest)
		return
	}

	plan, err := s.books.GetPaymentPlan(id, asOf)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

func (s *Server) recordPaymentHandler(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		http.Error(w, "Invalid loan ID", http.StatusBadRequest)
		return
	}

	var req struct {
		Amount decimal.Decimal `json:"amount"`
		PaidAt time.Time       `json:"paid_at"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Amount.LessThanOrEqual(decimal.Zero) {
		http.Error(w, "Amount must be positive", http.StatusBadRequest)
		return
	}

	payment, err := s.books.RecordPayment(id, req.Amount, req.PaidAt)
	if err != nil {
		if err.Error() == "loan is not active" {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, payment)
}

func (s *Server) listPaymentsHandler(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		http.Error(w, "Invalid loan ID", http.StatusBadRequest)
		return
	}
	payments, err := s.books.GetPaymentsForLoan(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payments)
}

func (s *Server) duePaymentsHandler(w http.ResponseWriter, r *http.Request) {
	asOf, err := parseDateQuery(r, "as_of")
	if err != nil {
		http.Error(w, "Invalid as_of date", http.StatusBadRequest)
		return
	}
	entries, err := s.books.DuePayments(asOf)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) predictionsHandler(w http.ResponseWriter, r *http.Request) {
	start, err := time.Parse(dateLayout, r.URL.Query().Get("start"))
	if err != nil {
		http.Error(w, "Invalid start date", http.StatusBadRequest)
		return
	}
	end, err := time.Parse(dateLayout, r.URL.Query().Get("end"))
	if err != nil {
		http.Error(w, "Invalid end date", http.StatusBadRequest)
		return
	}

	result, err := s.books.Predictions(start, end)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) overviewHandler(w http.ResponseWriter, r *http.Request) {
	totals, err := s.books.Overview()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, totals)
}

func (s *Server) addFundHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount decimal.Decimal `json:"amount"`
		Note   string          `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	fund, err := s.books.AddFund(req.Amount, req.Note, time.Now())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusCreated, fund)
}

func (s *Server) addExpenseHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount      decimal.Decimal `json:"amount"`
		Description string          `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	expense, err := s.books.AddExpense(req.Amount, req.Description, time.Now())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusCreated, expense)
}

func (s *Server) depositHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PaymentIDs []uuid.UUID `json:"payment_ids"`
		Note       string      `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	deposit, err := s.books.DepositPayments(req.PaymentIDs, req.Note, time.Now())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, deposit)
}

// logDueSnapshot writes the current due/overdue picture to the log; it
// backs the daily collection round.
func (s *Server) logDueSnapshot() {
	entries, err := s.books.DuePayments(time.Now())
	if err != nil {
		log.Printf("Error computing due-payments snapshot: %v\n", err)
		return
	}
	totalDue := decimal.Zero
	overdueLoans := 0
	for _, entry := range entries {
		totalDue = totalDue.Add(entry.Outstanding)
		if entry.OverdueCount > 0 {
			overdueLoans++
		}
	}
	log.Printf("Due snapshot: %d loans due (%d overdue), %s outstanding\n", len(entries), overdueLoans, totalDue.StringFixed(2))
}

func main() {
	cfg := loadConfig()

	sqliteStore, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to initialize SQLite store: %v", err)
	}
	defer sqliteStore.Close()

	server := NewServer(sqliteStore)
	router := server.routes()

	// Daily due-payments snapshot for the collection round.
	go func() {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()

		for range ticker.C {
			server.logDueSnapshot()
		}
	}()

	log.Printf("Server starting on :%s\n", cfg.Port)
	log.Fatal(http.ListenAndServe(fmt.Sprintf(":%s", cfg.Port), router))
}
