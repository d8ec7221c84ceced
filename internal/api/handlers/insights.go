package handlers

import (
	"context"
	"net/http"

	"github.com/dvloznov/finance-ledger/internal/api/middleware"
	"github.com/dvloznov/finance-ledger/internal/insights"
	"github.com/dvloznov/finance-ledger/internal/ledger"
	"github.com/rs/zerolog"
)

// Advisor generates personalized financial insights.
type Advisor interface {
	Insights(ctx context.Context, req insights.InsightsRequest) (string, error)
}

// InsightsHandler handles the insights endpoint.
type InsightsHandler struct {
	advisor Advisor
	log     zerolog.Logger
}

// NewInsightsHandler creates a new insights handler. advisor may be nil
// when no model is configured.
func NewInsightsHandler(advisor Advisor, log zerolog.Logger) *InsightsHandler {
	return &InsightsHandler{advisor: advisor, log: log}
}

// GetInsights handles POST /api/insights
func (h *InsightsHandler) GetInsights(w http.ResponseWriter, r *http.Request) {
	if h.advisor == nil {
		middleware.WriteError(w, http.StatusServiceUnavailable, "Insights are not configured")
		return
	}

	var req insights.InsightsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	text, err := h.advisor.Insights(r.Context(), req)
	if err != nil {
		if ledger.IsUserError(err) {
			writeLedgerError(w, r, err, "Invalid input")
			return
		}
		h.log.Error().Err(err).Msg("Failed to generate insights")
		middleware.WriteError(w, http.StatusBadGateway, "Failed to generate insights. Please try again.")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]string{"insights": text})
}
