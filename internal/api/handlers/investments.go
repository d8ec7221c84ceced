package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dvloznov/finance-ledger/internal/api/middleware"
	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/dvloznov/finance-ledger/internal/ledger"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// PriceRefresher updates an investment's current value from market data.
type PriceRefresher interface {
	Refresh(ctx context.Context, ownerID, invID string) (domain.Investment, error)
}

// InvestmentsHandler handles investment endpoints.
type InvestmentsHandler struct {
	svc    *ledger.Service
	prices PriceRefresher
	log    zerolog.Logger
}

// NewInvestmentsHandler creates a new investments handler. prices may be
// nil when no market data source is configured.
func NewInvestmentsHandler(svc *ledger.Service, prices PriceRefresher, log zerolog.Logger) *InvestmentsHandler {
	return &InvestmentsHandler{svc: svc, prices: prices, log: log}
}

type investmentRequest struct {
	AccountID    string          `json:"account_id"`
	Name         string          `json:"name"`
	Ticker       string          `json:"ticker"`
	Kind         string          `json:"kind"`
	Quantity     decimal.Decimal `json:"quantity"`
	Price        decimal.Decimal `json:"price"`
	PurchaseDate time.Time       `json:"purchase_date"`
}

func (req investmentRequest) input() ledger.InvestmentInput {
	return ledger.InvestmentInput{
		AccountID:    req.AccountID,
		Name:         req.Name,
		Ticker:       req.Ticker,
		Kind:         req.Kind,
		Quantity:     req.Quantity,
		Price:        req.Price,
		PurchaseDate: req.PurchaseDate,
	}
}

// ListInvestments handles GET /api/investments
func (h *InvestmentsHandler) ListInvestments(w http.ResponseWriter, r *http.Request) {
	invs, err := h.svc.Investments(r.Context(), owner(r))
	if err != nil {
		writeLedgerError(w, r, err, "Failed to list investments")
		return
	}
	if invs == nil {
		invs = []domain.Investment{}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"investments": invs,
		"count":       len(invs),
	})
}

// PurchaseInvestment handles POST /api/investments
func (h *InvestmentsHandler) PurchaseInvestment(w http.ResponseWriter, r *http.Request) {
	var req investmentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.svc.PurchaseInvestment(r.Context(), owner(r), req.input())
	if err != nil {
		writeLedgerError(w, r, err, "Failed to purchase investment")
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, newMutationResponse(res))
}

// EditInvestment handles PUT /api/investments/{id}
func (h *InvestmentsHandler) EditInvestment(w http.ResponseWriter, r *http.Request) {
	var req investmentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.svc.EditInvestment(r.Context(), owner(r), r.PathValue("id"), req.input())
	if err != nil {
		writeLedgerError(w, r, err, "Failed to edit investment")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, newMutationResponse(res))
}

// DeleteInvestment handles DELETE /api/investments/{id}
func (h *InvestmentsHandler) DeleteInvestment(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.DeleteInvestment(r.Context(), owner(r), r.PathValue("id"))
	if err != nil {
		writeLedgerError(w, r, err, "Failed to delete investment")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, newMutationResponse(res))
}

// RefreshPrice handles POST /api/investments/{id}/refresh-price
func (h *InvestmentsHandler) RefreshPrice(w http.ResponseWriter, r *http.Request) {
	if h.prices == nil {
		middleware.WriteError(w, http.StatusServiceUnavailable, "Market data is not configured")
		return
	}

	inv, err := h.prices.Refresh(r.Context(), owner(r), r.PathValue("id"))
	if err != nil {
		if ledger.IsUserError(err) || errors.Is(err, ledger.ErrAborted) {
			writeLedgerError(w, r, err, "Failed to refresh price")
			return
		}
		// The stored value is untouched; report the upstream failure.
		h.log.Warn().Err(err).Str("investment_id", r.PathValue("id")).Msg("Price refresh failed")
		middleware.WriteError(w, http.StatusBadGateway, "Failed to fetch real-time price. Please try again.")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, inv)
}
