package api

import (
	"net/http"
	"time"

	"github.com/dvloznov/finance-ledger/internal/api/handlers"
	"github.com/dvloznov/finance-ledger/internal/api/middleware"
	"github.com/dvloznov/finance-ledger/internal/jobs"
	"github.com/dvloznov/finance-ledger/internal/ledger"
	"github.com/rs/zerolog"
)

// Deps are the services behind the HTTP API. Publisher, JobStore, Prices
// and Advisor are optional; their endpoints answer 503 when unset.
type Deps struct {
	Service   *ledger.Service
	Checker   *ledger.Checker
	Publisher jobs.Publisher
	JobStore  jobs.JobStore
	Prices    handlers.PriceRefresher
	Advisor   handlers.Advisor
	Log       zerolog.Logger
}

// NewRouter builds the HTTP handler with the standard middleware chain.
func NewRouter(d Deps) http.Handler {
	accounts := handlers.NewAccountsHandler(d.Service, d.Log)
	transactions := handlers.NewTransactionsHandler(d.Service, d.Log)
	goals := handlers.NewGoalsHandler(d.Service, d.Log)
	investments := handlers.NewInvestmentsHandler(d.Service, d.Prices, d.Log)
	reconcile := handlers.NewReconcileHandler(d.Checker, d.Publisher, d.Log)
	insights := handlers.NewInsightsHandler(d.Advisor, d.Log)

	mux := http.NewServeMux()

	// Accounts
	mux.HandleFunc("GET /api/accounts", accounts.ListAccounts)
	mux.HandleFunc("POST /api/accounts", accounts.OpenAccount)
	mux.HandleFunc("GET /api/accounts/{id}", accounts.GetAccount)
	mux.HandleFunc("POST /api/accounts/{id}/fund", accounts.FundAccount)
	mux.HandleFunc("GET /api/accounts/{id}/transactions", accounts.ListTransactions)
	mux.HandleFunc("GET /api/accounts/{id}/reconcile", reconcile.ReconcileAccount)
	mux.HandleFunc("POST /api/accounts/{id}/repair", reconcile.RepairAccount)

	// Transactions
	mux.HandleFunc("POST /api/transactions", transactions.CreateTransaction)
	mux.HandleFunc("PUT /api/transactions/{id}", transactions.EditTransaction)
	mux.HandleFunc("DELETE /api/transactions/{id}", transactions.DeleteTransaction)

	// Savings goals
	mux.HandleFunc("GET /api/goals", goals.ListGoals)
	mux.HandleFunc("POST /api/goals", goals.CreateGoal)
	mux.HandleFunc("PUT /api/goals/{id}", goals.UpdateGoal)
	mux.HandleFunc("DELETE /api/goals/{id}", goals.DeleteGoal)
	mux.HandleFunc("POST /api/goals/{id}/contribute", goals.Contribute)
	mux.HandleFunc("GET /api/goals/{id}/reconcile", reconcile.ReconcileGoal)
	mux.HandleFunc("POST /api/goals/{id}/repair", reconcile.RepairGoal)

	// Investments
	mux.HandleFunc("GET /api/investments", investments.ListInvestments)
	mux.HandleFunc("POST /api/investments", investments.PurchaseInvestment)
	mux.HandleFunc("PUT /api/investments/{id}", investments.EditInvestment)
	mux.HandleFunc("DELETE /api/investments/{id}", investments.DeleteInvestment)
	mux.HandleFunc("POST /api/investments/{id}/refresh-price", investments.RefreshPrice)

	// Reconciliation
	mux.HandleFunc("GET /api/reconcile", reconcile.ReconcileOwner)
	mux.HandleFunc("POST /api/reconcile/jobs", reconcile.EnqueueReconcile)

	// Jobs
	if d.JobStore != nil {
		jobsHandler := handlers.NewJobsHandler(d.JobStore, d.Log)
		mux.HandleFunc("GET /api/jobs", jobsHandler.ListJobs)
		mux.HandleFunc("GET /api/jobs/{id}", jobsHandler.GetJob)
	}

	// Insights
	mux.HandleFunc("POST /api/insights", insights.GetInsights)

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	return middleware.Chain(mux, d.Log)
}
