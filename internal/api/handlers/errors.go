package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/dvloznov/finance-ledger/internal/api/middleware"
	"github.com/dvloznov/finance-ledger/internal/ledger"
	"github.com/dvloznov/finance-ledger/internal/logger"
	"github.com/shopspring/decimal"
)

// statusFor maps ledger errors to HTTP status codes. A missing reference
// is a conflict for writes (the UI should refresh) and 404 for reads.
func statusFor(r *http.Request, err error) int {
	switch {
	case errors.Is(err, ledger.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrReferenceNotFound):
		if r.Method == http.MethodGet {
			return http.StatusNotFound
		}
		return http.StatusConflict
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ledger.ErrAborted):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeLedgerError logs err and writes the mapped response. User errors
// carry their message; anything else gets the generic message.
func writeLedgerError(w http.ResponseWriter, r *http.Request, err error, message string) {
	status := statusFor(r, err)
	log := logger.FromContext(r.Context())

	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Int("status", status).Msg(message)
	} else {
		log.Warn().Err(err).Int("status", status).Msg(message)
	}

	if ledger.IsUserError(err) {
		middleware.WriteError(w, status, err.Error())
		return
	}
	middleware.WriteError(w, status, message)
}

func jsonDecoder(r io.Reader) *json.Decoder {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	return dec
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := jsonDecoder(r.Body).Decode(dst); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// mutationResponse is the body returned by every ledger write.
type mutationResponse struct {
	ID          string                     `json:"id,omitempty"`
	Balances    map[string]decimal.Decimal `json:"balances,omitempty"`
	GoalAmounts map[string]decimal.Decimal `json:"goal_amounts,omitempty"`
	Attempts    int                        `json:"attempts"`
}

func newMutationResponse(res ledger.Result) mutationResponse {
	return mutationResponse{
		ID:          res.RecordID,
		Balances:    res.Balances,
		GoalAmounts: res.GoalAmounts,
		Attempts:    res.Attempts,
	}
}

func owner(r *http.Request) string {
	return middleware.OwnerIDFromContext(r.Context())
}
