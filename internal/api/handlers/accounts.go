package handlers

import (
	"net/http"

	"github.com/dvloznov/finance-ledger/internal/api/middleware"
	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/dvloznov/finance-ledger/internal/ledger"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// AccountsHandler handles account endpoints.
type AccountsHandler struct {
	svc *ledger.Service
	log zerolog.Logger
}

// NewAccountsHandler creates a new accounts handler.
func NewAccountsHandler(svc *ledger.Service, log zerolog.Logger) *AccountsHandler {
	return &AccountsHandler{svc: svc, log: log}
}

// ListAccounts handles GET /api/accounts
func (h *AccountsHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.svc.Accounts(r.Context(), owner(r))
	if err != nil {
		writeLedgerError(w, r, err, "Failed to list accounts")
		return
	}
	if accounts == nil {
		accounts = []domain.Account{}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"accounts": accounts,
		"count":    len(accounts),
	})
}

// GetAccount handles GET /api/accounts/{id}
func (h *AccountsHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	acct, err := h.svc.Account(r.Context(), owner(r), r.PathValue("id"))
	if err != nil {
		writeLedgerError(w, r, err, "Failed to get account")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, acct)
}

// OpenAccount handles POST /api/accounts
func (h *AccountsHandler) OpenAccount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name           string          `json:"name"`
		Type           string          `json:"type"`
		Currency       string          `json:"currency"`
		OpeningBalance decimal.Decimal `json:"opening_balance"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.svc.OpenAccount(r.Context(), owner(r), ledger.AccountInput{
		Name:           req.Name,
		Type:           domain.AccountType(req.Type),
		Currency:       req.Currency,
		OpeningBalance: req.OpeningBalance,
	})
	if err != nil {
		writeLedgerError(w, r, err, "Failed to open account")
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, newMutationResponse(res))
}

// FundAccount handles POST /api/accounts/{id}/fund
func (h *AccountsHandler) FundAccount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount decimal.Decimal `json:"amount"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.svc.FundAccount(r.Context(), owner(r), r.PathValue("id"), req.Amount)
	if err != nil {
		writeLedgerError(w, r, err, "Failed to fund account")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, newMutationResponse(res))
}

// ListTransactions handles GET /api/accounts/{id}/transactions
func (h *AccountsHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	txns, err := h.svc.Transactions(r.Context(), owner(r), r.PathValue("id"))
	if err != nil {
		writeLedgerError(w, r, err, "Failed to list transactions")
		return
	}
	// Return array directly for frontend compatibility
	if txns == nil {
		txns = []domain.Transaction{}
	}
	middleware.WriteJSON(w, http.StatusOK, txns)
}
