package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/wagmw/MicroCreaditRun-sub000/pkg/models"
	"github.com/wagmw/MicroCreaditRun-sub000/pkg/service"
	"github.com/wagmw/MicroCreaditRun-sub000/pkg/store"
)

func setupTestServer(t *testing.T) *Server {
	t.Helper()
	dbFile := t.Name() + ".db"
	os.Remove(dbFile)

	s, err := store.NewSQLiteStore(dbFile)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	server := NewServer(s)
	t.Cleanup(func() {
		server.storage.Close()
		os.Remove(dbFile)
		os.Remove(dbFile + "-wal")
		os.Remove(dbFile + "-shm")
	})
	return server
}

func doJSON(t *testing.T, server *Server, method, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			t.Fatalf("Failed to encode request: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &body)
	rr := httptest.NewRecorder()
	server.routes().ServeHTTP(rr, req)
	return rr
}

func createActiveLoan(t *testing.T, server *Server) models.Loan {
	t.Helper()

	rr := doJSON(t, server, "POST", "/customers", map[string]any{
		"name":  "Amina",
		"phone": "0700000000",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201 creating customer, got %d. Body: %s", rr.Code, rr.Body.String())
	}
	var customer models.Customer
	json.Unmarshal(rr.Body.Bytes(), &customer)

	rr = doJSON(t, server, "POST", "/loans", map[string]any{
		"customer_id":      customer.ID.String(),
		"principal":        50000,
		"rate_per_30_days": 10,
		"duration_months":  2,
		"frequency":        "WEEKLY",
		"start_date":       "2025-01-01T00:00:00Z",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201 creating loan, got %d. Body: %s", rr.Code, rr.Body.String())
	}
	var loan models.Loan
	json.Unmarshal(rr.Body.Bytes(), &loan)

	rr = doJSON(t, server, "PUT", "/loans/"+loan.ID.String()+"/status", map[string]any{
		"status": "ACTIVE",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200 activating loan, got %d. Body: %s", rr.Code, rr.Body.String())
	}
	json.Unmarshal(rr.Body.Bytes(), &loan)
	return loan
}

func TestAPI_CreateAndGetLoan(t *testing.T) {
	server := setupTestServer(t)
	loan := createActiveLoan(t, server)

	rr := doJSON(t, server, "GET", "/loans/"+loan.ID.String(), nil)
	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rr.Code)
	}

	var fetched models.Loan
	json.Unmarshal(rr.Body.Bytes(), &fetched)
	if fetched.ID != loan.ID {
		t.Errorf("Expected ID %s, got %s", loan.ID, fetched.ID)
	}
	if fetched.Status != models.LoanStatusActive {
		t.Errorf("Expected status ACTIVE, got %s", fetched.Status)
	}
}

func TestAPI_InvalidLoanTerms(t *testing.T) {
	server := setupTestServer(t)

	rr := doJSON(t, server, "POST", "/customers", map[string]any{"name": "Amina"})
	var customer models.Customer
	json.Unmarshal(rr.Body.Bytes(), &customer)

	// Both duration fields set must be rejected.
	rr = doJSON(t, server, "POST", "/loans", map[string]any{
		"customer_id":      customer.ID.String(),
		"principal":        50000,
		"rate_per_30_days": 10,
		"duration_months":  2,
		"duration_days":    60,
		"frequency":        "WEEKLY",
		"start_date":       "2025-01-01T00:00:00Z",
	})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d. Body: %s", rr.Code, rr.Body.String())
	}
}

func TestAPI_RecordPaymentAndPlan(t *testing.T) {
	server := setupTestServer(t)
	loan := createActiveLoan(t, server)

	for i := 0; i < 3; i++ {
		rr := doJSON(t, server, "POST", "/loans/"+loan.ID.String()+"/payments", map[string]any{
			"amount":  6666.67,
			"paid_at": fmt.Sprintf("2025-01-%02dT10:00:00Z", 1+i*7),
		})
		if rr.Code != http.StatusCreated {
			t.Fatalf("Expected status 201, got %d. Body: %s", rr.Code, rr.Body.String())
		}
	}

	rr := doJSON(t, server, "GET", "/loans/"+loan.ID.String()+"/plan?as_of=2025-02-05", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d. Body: %s", rr.Code, rr.Body.String())
	}

	var plan service.PaymentPlan
	json.Unmarshal(rr.Body.Bytes(), &plan)

	if plan.Schedule.Count() != 9 {
		t.Errorf("Expected 9 installments, got %d", plan.Schedule.Count())
	}
	if !plan.Summary.Outstanding.Equal(decimal.RequireFromString("39999.99")) {
		t.Errorf("Expected outstanding 39999.99, got %s", plan.Summary.Outstanding)
	}
	if plan.Summary.PaidInstallments != 3 {
		t.Errorf("Expected 3 paid installments, got %d", plan.Summary.PaidInstallments)
	}
}

func TestAPI_Predictions(t *testing.T) {
	server := setupTestServer(t)
	createActiveLoan(t, server)

	rr := doJSON(t, server, "GET", "/reports/predictions?start=2025-01-01&end=2025-01-31", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d. Body: %s", rr.Code, rr.Body.String())
	}

	var result struct {
		Count                int             `json:"count"`
		TotalPredictedAmount decimal.Decimal `json:"total_predicted_amount"`
	}
	json.Unmarshal(rr.Body.Bytes(), &result)

	// Weekly installments on Jan 1, 8, 15, 22 and 29.
	if result.Count != 5 {
		t.Errorf("Expected 5 predicted installments, got %d", result.Count)
	}
	if !result.TotalPredictedAmount.Equal(decimal.RequireFromString("33333.35")) {
		t.Errorf("Expected predicted total 33333.35, got %s", result.TotalPredictedAmount)
	}

	// Inverted window is a caller error.
	rr = doJSON(t, server, "GET", "/reports/predictions?start=2025-03-01&end=2025-02-01", nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for inverted range, got %d", rr.Code)
	}
}

func TestAPI_DueAndOverview(t *testing.T) {
	server := setupTestServer(t)
	loan := createActiveLoan(t, server)

	doJSON(t, server, "POST", "/funds", map[string]any{"amount": 30000, "note": "seed capital"})
	doJSON(t, server, "POST", "/expenses", map[string]any{"amount": 2500, "description": "office rent"})

	rr := doJSON(t, server, "GET", "/reports/due?as_of=2025-02-05", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d. Body: %s", rr.Code, rr.Body.String())
	}
	var entries []struct {
		Loan         models.Loan `json:"loan"`
		OverdueCount int         `json:"overdue_count"`
	}
	json.Unmarshal(rr.Body.Bytes(), &entries)
	if len(entries) != 1 || entries[0].Loan.ID != loan.ID {
		t.Fatalf("Expected the loan in the due listing, got %d entries", len(entries))
	}
	if entries[0].OverdueCount != 4 {
		t.Errorf("Expected 4 overdue periods, got %d", entries[0].OverdueCount)
	}

	rr = doJSON(t, server, "GET", "/reports/overview", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d. Body: %s", rr.Code, rr.Body.String())
	}
	var totals struct {
		TotalOutstanding decimal.Decimal `json:"total_outstanding"`
		Profit           decimal.Decimal `json:"profit"`
	}
	json.Unmarshal(rr.Body.Bytes(), &totals)
	if !totals.TotalOutstanding.Equal(decimal.NewFromInt(60000)) {
		t.Errorf("Expected outstanding 60000, got %s", totals.TotalOutstanding)
	}
	if !totals.Profit.Equal(decimal.RequireFromString("27500")) {
		t.Errorf("Expected profit 27500, got %s", totals.Profit)
	}
}
