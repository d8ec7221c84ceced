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

// GoalsHandler handles savings goal endpoints.
type GoalsHandler struct {
	svc *ledger.Service
	log zerolog.Logger
}

// NewGoalsHandler creates a new goals handler.
func NewGoalsHandler(svc *ledger.Service, log zerolog.Logger) *GoalsHandler {
	return &GoalsHandler{svc: svc, log: log}
}

type goalRequest struct {
	Name         string          `json:"name"`
	TargetAmount decimal.Decimal `json:"target_amount"`
	Currency     string          `json:"currency"`
	TargetDate   time.Time       `json:"target_date"`
}

func (req goalRequest) input() ledger.GoalInput {
	return ledger.GoalInput{
		Name:         req.Name,
		TargetAmount: req.TargetAmount,
		Currency:     req.Currency,
		TargetDate:   req.TargetDate,
	}
}

// ListGoals handles GET /api/goals
func (h *GoalsHandler) ListGoals(w http.ResponseWriter, r *http.Request) {
	goals, err := h.svc.Goals(r.Context(), owner(r))
	if err != nil {
		writeLedgerError(w, r, err, "Failed to list goals")
		return
	}
	if goals == nil {
		goals = []domain.SavingsGoal{}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"goals": goals,
		"count": len(goals),
	})
}

// CreateGoal handles POST /api/goals
func (h *GoalsHandler) CreateGoal(w http.ResponseWriter, r *http.Request) {
	var req goalRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.svc.CreateGoal(r.Context(), owner(r), req.input())
	if err != nil {
		writeLedgerError(w, r, err, "Failed to create goal")
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, newMutationResponse(res))
}

// UpdateGoal handles PUT /api/goals/{id}
func (h *GoalsHandler) UpdateGoal(w http.ResponseWriter, r *http.Request) {
	var req goalRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.svc.UpdateGoal(r.Context(), owner(r), r.PathValue("id"), req.input())
	if err != nil {
		writeLedgerError(w, r, err, "Failed to update goal")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, newMutationResponse(res))
}

// DeleteGoal handles DELETE /api/goals/{id}
func (h *GoalsHandler) DeleteGoal(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.DeleteGoal(r.Context(), owner(r), r.PathValue("id"))
	if err != nil {
		writeLedgerError(w, r, err, "Failed to delete goal")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, newMutationResponse(res))
}

// Contribute handles POST /api/goals/{id}/contribute
func (h *GoalsHandler) Contribute(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccountID string          `json:"account_id"`
		Amount    decimal.Decimal `json:"amount"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.svc.ContributeToGoal(r.Context(), owner(r), r.PathValue("id"), req.AccountID, req.Amount)
	if err != nil {
		writeLedgerError(w, r, err, "Failed to contribute to goal")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, newMutationResponse(res))
}
