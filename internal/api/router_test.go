package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/dvloznov/finance-ledger/internal/infra/memstore"
	"github.com/dvloznov/finance-ledger/internal/insights"
	"github.com/dvloznov/finance-ledger/internal/jobs"
	"github.com/dvloznov/finance-ledger/internal/jobs/inmemory"
	"github.com/dvloznov/finance-ledger/internal/ledger"
	"github.com/dvloznov/finance-ledger/internal/logger"
	"github.com/shopspring/decimal"
)

const testOwner = "user-1"

type testServer struct {
	t       *testing.T
	mem     *memstore.Store
	handler http.Handler
	queue   *mockPublisher
}

// mockPublisher is a mock implementation of jobs.Publisher for testing.
type mockPublisher struct {
	PublishReconcileFunc func(ctx context.Context, job *jobs.ReconcileJob) error
	published            []*jobs.ReconcileJob
}

func (m *mockPublisher) PublishReconcile(ctx context.Context, job *jobs.ReconcileJob) error {
	if m.PublishReconcileFunc != nil {
		return m.PublishReconcileFunc(ctx, job)
	}
	job.JobID = "job-1"
	job.Status = jobs.JobStatusPending
	m.published = append(m.published, job)
	return nil
}

func (m *mockPublisher) Close() error { return nil }

type mockAdvisor struct {
	InsightsFunc func(ctx context.Context, req insights.InsightsRequest) (string, error)
}

func (m *mockAdvisor) Insights(ctx context.Context, req insights.InsightsRequest) (string, error) {
	return m.InsightsFunc(ctx, req)
}

type mockRefresher struct {
	RefreshFunc func(ctx context.Context, ownerID, invID string) (domain.Investment, error)
}

func (m *mockRefresher) Refresh(ctx context.Context, ownerID, invID string) (domain.Investment, error) {
	return m.RefreshFunc(ctx, ownerID, invID)
}

func newTestServer(t *testing.T, mutate func(*Deps)) *testServer {
	t.Helper()
	log := logger.NewWithWriter(io.Discard)
	mem := memstore.New()
	store := ledger.NewStore(mem, log, ledger.WithBackoff(0))
	pub := &mockPublisher{}
	deps := Deps{
		Service:   ledger.NewService(store, ledger.NewPlanner(), log),
		Checker:   ledger.NewChecker(store, nil, log),
		Publisher: pub,
		JobStore:  inmemory.NewStore(),
		Log:       log,
	}
	if mutate != nil {
		mutate(&deps)
	}
	return &testServer{t: t, mem: mem, handler: NewRouter(deps), queue: pub}
}

func (s *testServer) do(method, path string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			s.t.Fatalf("marshal body: %v", err)
		}
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("X-User-ID", testOwner)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) mutation(method, path string, body any, wantStatus int) mutationBody {
	s.t.Helper()
	rec := s.do(method, path, body)
	if rec.Code != wantStatus {
		s.t.Fatalf("%s %s: status = %d, want %d, body %s", method, path, rec.Code, wantStatus, rec.Body)
	}
	var out mutationBody
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		s.t.Fatalf("decode response: %v", err)
	}
	return out
}

type mutationBody struct {
	ID          string                     `json:"id"`
	Balances    map[string]decimal.Decimal `json:"balances"`
	GoalAmounts map[string]decimal.Decimal `json:"goal_amounts"`
	Error       string                     `json:"error"`
}

func (s *testServer) openChecking(opening string) string {
	s.t.Helper()
	return s.mutation(http.MethodPost, "/api/accounts", map[string]any{
		"name": "Checking", "type": "checking", "currency": "USD", "opening_balance": opening,
	}, http.StatusCreated).ID
}

func TestAccountLifecycle(t *testing.T) {
	s := newTestServer(t, nil)
	acct := s.openChecking("100")

	res := s.mutation(http.MethodPost, "/api/accounts/"+acct+"/fund", map[string]any{"amount": "25.50"}, http.StatusOK)
	if got := res.Balances[acct]; !got.Equal(decimal.RequireFromString("125.50")) {
		t.Errorf("balance after funding = %s, want 125.50", got)
	}

	res = s.mutation(http.MethodPost, "/api/transactions", map[string]any{
		"account_id": acct, "amount": "20", "type": "withdrawal", "category": "Groceries",
	}, http.StatusCreated)
	txnID := res.ID
	if got := res.Balances[acct]; !got.Equal(decimal.RequireFromString("105.50")) {
		t.Errorf("balance after withdrawal = %s, want 105.50", got)
	}

	res = s.mutation(http.MethodPut, "/api/transactions/"+txnID, map[string]any{
		"account_id": acct, "amount": "5", "type": "withdrawal", "category": "Groceries",
	}, http.StatusOK)
	if got := res.Balances[acct]; !got.Equal(decimal.RequireFromString("120.50")) {
		t.Errorf("balance after edit = %s, want 120.50", got)
	}

	res = s.mutation(http.MethodDelete, "/api/transactions/"+txnID, nil, http.StatusOK)
	if got := res.Balances[acct]; !got.Equal(decimal.RequireFromString("125.50")) {
		t.Errorf("balance after delete = %s, want 125.50", got)
	}

	rec := s.do(http.MethodGet, "/api/accounts/"+acct+"/transactions", nil)
	var txns []domain.Transaction
	if err := json.Unmarshal(rec.Body.Bytes(), &txns); err != nil {
		t.Fatalf("decode transactions: %v", err)
	}
	if len(txns) != 2 {
		t.Errorf("got %d transactions, want opening + funding", len(txns))
	}

	rec = s.do(http.MethodGet, "/api/reconcile", nil)
	var recon struct {
		Count   int `json:"count"`
		Drifted int `json:"drifted"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &recon)
	if recon.Count != 1 || recon.Drifted != 0 {
		t.Errorf("reconcile = %+v, want 1 record and no drift", recon)
	}
}

func TestErrorMapping(t *testing.T) {
	s := newTestServer(t, nil)
	acct := s.openChecking("10")

	tests := []struct {
		name       string
		method     string
		path       string
		body       any
		wantStatus int
	}{
		{"validation", http.MethodPost, "/api/transactions",
			map[string]any{"account_id": acct, "amount": "-5", "type": "deposit", "category": "x"}, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/api/transactions",
			map[string]any{"account": acct}, http.StatusBadRequest},
		{"missing reference on write", http.MethodPost, "/api/transactions",
			map[string]any{"account_id": "nope", "amount": "5", "type": "deposit", "category": "x"}, http.StatusConflict},
		{"missing reference on read", http.MethodGet, "/api/accounts/nope", nil, http.StatusNotFound},
		{"insufficient funds", http.MethodPost, "/api/transactions",
			map[string]any{"account_id": acct, "amount": "50", "type": "withdrawal", "category": "x"}, http.StatusUnprocessableEntity},
		{"method not allowed", http.MethodPatch, "/api/accounts", nil, http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(tt.method, tt.path, tt.body)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d, body %s", rec.Code, tt.wantStatus, rec.Body)
			}
		})
	}

	// Nothing above may have changed the balance.
	rec := s.do(http.MethodGet, "/api/accounts/"+acct, nil)
	var a domain.Account
	_ = json.Unmarshal(rec.Body.Bytes(), &a)
	if !a.Balance.Equal(decimal.NewFromInt(10)) {
		t.Errorf("balance = %s, want 10", a.Balance)
	}
}

func TestMissingOwnerIsRejected(t *testing.T) {
	s := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/accounts", nil)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestGoalContributionAndRepair(t *testing.T) {
	s := newTestServer(t, nil)
	acct := s.openChecking("100")

	goal := s.mutation(http.MethodPost, "/api/goals", map[string]any{
		"name": "Holiday", "target_amount": "500", "currency": "USD",
	}, http.StatusCreated).ID

	res := s.mutation(http.MethodPost, "/api/goals/"+goal+"/contribute", map[string]any{
		"account_id": acct, "amount": "30",
	}, http.StatusOK)
	if !res.Balances[acct].Equal(decimal.NewFromInt(70)) || !res.GoalAmounts[goal].Equal(decimal.NewFromInt(30)) {
		t.Errorf("after contribution: balances %v, goals %v", res.Balances, res.GoalAmounts)
	}

	// Corrupt the cached balance outside the ledger.
	err := s.mem.RunAtomic(context.Background(), func(ctx context.Context, tx ledger.Tx) error {
		a, err := tx.GetAccount(ctx, testOwner, acct)
		if err != nil {
			return err
		}
		a.Balance = decimal.NewFromInt(90)
		return tx.PutAccount(ctx, a)
	})
	if err != nil {
		t.Fatalf("corrupting balance: %v", err)
	}

	rec := s.do(http.MethodGet, "/api/accounts/"+acct+"/reconcile", nil)
	var rep ledger.Report
	_ = json.Unmarshal(rec.Body.Bytes(), &rep)
	if !rep.Drift.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("drift = %s, want 20", rep.Drift)
	}

	rec = s.do(http.MethodPost, "/api/accounts/"+acct+"/repair", map[string]any{"actor": "ops"})
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"repaired":true`) {
		t.Fatalf("repair: status %d, body %s", rec.Code, rec.Body)
	}

	rec = s.do(http.MethodGet, "/api/accounts/"+acct, nil)
	var a domain.Account
	_ = json.Unmarshal(rec.Body.Bytes(), &a)
	if !a.Balance.Equal(decimal.NewFromInt(70)) {
		t.Errorf("balance after repair = %s, want 70", a.Balance)
	}

	rec = s.do(http.MethodPost, "/api/goals/"+goal+"/repair", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"repaired":false`) {
		t.Errorf("goal repair without drift: status %d, body %s", rec.Code, rec.Body)
	}
}

func TestInvestmentEndpoints(t *testing.T) {
	var refreshed string
	s := newTestServer(t, func(d *Deps) {
		d.Prices = &mockRefresher{RefreshFunc: func(_ context.Context, _, invID string) (domain.Investment, error) {
			if invID == "bad" {
				return domain.Investment{}, insights.ErrNoPrice
			}
			refreshed = invID
			return domain.Investment{ID: invID, CurrentValue: decimal.NewFromInt(99)}, nil
		}}
	})
	acct := s.openChecking("1000")

	res := s.mutation(http.MethodPost, "/api/investments", map[string]any{
		"account_id": acct, "name": "Index", "ticker": "VWRL", "quantity": "2", "price": "100",
	}, http.StatusCreated)
	inv := res.ID
	if !res.Balances[acct].Equal(decimal.NewFromInt(800)) {
		t.Errorf("balance after purchase = %s, want 800", res.Balances[acct])
	}

	res = s.mutation(http.MethodPut, "/api/investments/"+inv, map[string]any{
		"account_id": acct, "name": "Index", "ticker": "VWRL", "quantity": "3", "price": "100",
	}, http.StatusOK)
	if !res.Balances[acct].Equal(decimal.NewFromInt(700)) {
		t.Errorf("balance after edit = %s, want 700", res.Balances[acct])
	}

	if rec := s.do(http.MethodPost, "/api/investments/"+inv+"/refresh-price", nil); rec.Code != http.StatusOK || refreshed != inv {
		t.Errorf("refresh: status %d, refreshed %q", rec.Code, refreshed)
	}
	if rec := s.do(http.MethodPost, "/api/investments/bad/refresh-price", nil); rec.Code != http.StatusBadGateway {
		t.Errorf("failed refresh status = %d, want 502", rec.Code)
	}

	res = s.mutation(http.MethodDelete, "/api/investments/"+inv, nil, http.StatusOK)
	if !res.Balances[acct].Equal(decimal.NewFromInt(1000)) {
		t.Errorf("balance after delete = %s, want 1000", res.Balances[acct])
	}
}

func TestOptionalServicesUnavailable(t *testing.T) {
	s := newTestServer(t, func(d *Deps) { d.Publisher = nil })

	if rec := s.do(http.MethodPost, "/api/insights", map[string]any{}); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("insights status = %d, want 503", rec.Code)
	}
	if rec := s.do(http.MethodPost, "/api/investments/x/refresh-price", nil); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("refresh status = %d, want 503", rec.Code)
	}
	if rec := s.do(http.MethodPost, "/api/reconcile/jobs", nil); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("enqueue status = %d, want 503", rec.Code)
	}
}

func TestInsightsEndpoint(t *testing.T) {
	s := newTestServer(t, func(d *Deps) {
		d.Advisor = &mockAdvisor{InsightsFunc: func(_ context.Context, req insights.InsightsRequest) (string, error) {
			if err := req.Validate(); err != nil {
				return "", err
			}
			if strings.Contains(req.SpendingHabits, "fail") {
				return "", errors.New("model unavailable")
			}
			return "- Spend less", nil
		}}
	})

	tests := []struct {
		name       string
		body       map[string]any
		wantStatus int
	}{
		{"ok", map[string]any{"spending_habits": "lots of coffee out", "financial_goals": "buy a flat soon"}, http.StatusOK},
		{"too short", map[string]any{"spending_habits": "coffee", "financial_goals": "buy a flat soon"}, http.StatusBadRequest},
		{"model failure", map[string]any{"spending_habits": "fail fail fail", "financial_goals": "buy a flat soon"}, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := s.do(http.MethodPost, "/api/insights", tt.body); rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d, body %s", rec.Code, tt.wantStatus, rec.Body)
			}
		})
	}
}

func TestJobsEndpoints(t *testing.T) {
	store := inmemory.NewStore()
	s := newTestServer(t, func(d *Deps) { d.JobStore = store })

	rec := s.do(http.MethodPost, "/api/reconcile/jobs", nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("enqueue status = %d, body %s", rec.Code, rec.Body)
	}
	if len(s.queue.published) != 1 || s.queue.published[0].OwnerID != testOwner {
		t.Fatalf("published = %+v", s.queue.published)
	}

	ctx := context.Background()
	_ = store.SaveJob(ctx, &jobs.ReconcileJob{JobID: "mine", OwnerID: testOwner, Status: jobs.JobStatusCompleted})
	_ = store.SaveJob(ctx, &jobs.ReconcileJob{JobID: "theirs", OwnerID: "someone-else", Status: jobs.JobStatusCompleted})

	if rec := s.do(http.MethodGet, "/api/jobs/mine", nil); rec.Code != http.StatusOK {
		t.Errorf("own job status = %d", rec.Code)
	}
	if rec := s.do(http.MethodGet, "/api/jobs/theirs", nil); rec.Code != http.StatusNotFound {
		t.Errorf("other owner's job status = %d, want 404", rec.Code)
	}

	rec = s.do(http.MethodGet, "/api/jobs", nil)
	var list struct {
		Count int `json:"count"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &list)
	if list.Count != 1 {
		t.Errorf("listed %d jobs, want 1", list.Count)
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}
