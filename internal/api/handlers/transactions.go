package handlers

import (
	"net/http"
	"time"

	"github.com/dvloznov/finance-ledger/internal/api/middleware"
	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/dvloznov/finance-ledger/internal/ledger"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// TransactionsHandler handles transaction endpoints.
type TransactionsHandler struct {
	svc *ledger.Service
	log zerolog.Logger
}

// NewTransactionsHandler creates a new transactions handler.
func NewTransactionsHandler(svc *ledger.Service, log zerolog.Logger) *TransactionsHandler {
	return &TransactionsHandler{svc: svc, log: log}
}

type transactionRequest struct {
	AccountID   string          `json:"account_id"`
	Amount      decimal.Decimal `json:"amount"`
	Type        string          `json:"type"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

func (req transactionRequest) input() ledger.TransactionInput {
	return ledger.TransactionInput{
		AccountID:   req.AccountID,
		Amount:      req.Amount,
		Type:        domain.TransactionType(req.Type),
		Category:    req.Category,
		Description: req.Description,
		OccurredAt:  req.OccurredAt,
	}
}

// CreateTransaction handles POST /api/transactions
func (h *TransactionsHandler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.svc.CreateTransaction(r.Context(), owner(r), req.input())
	if err != nil {
		writeLedgerError(w, r, err, "Failed to create transaction")
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, newMutationResponse(res))
}

// EditTransaction handles PUT /api/transactions/{id}
func (h *TransactionsHandler) EditTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.svc.EditTransaction(r.Context(), owner(r), r.PathValue("id"), req.input())
	if err != nil {
		writeLedgerError(w, r, err, "Failed to edit transaction")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, newMutationResponse(res))
}

// DeleteTransaction handles DELETE /api/transactions/{id}
func (h *TransactionsHandler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.DeleteTransaction(r.Context(), owner(r), r.PathValue("id"))
	if err != nil {
		writeLedgerError(w, r, err, "Failed to delete transaction")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, newMutationResponse(res))
}
