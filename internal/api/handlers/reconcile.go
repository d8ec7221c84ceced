package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/dvloznov/finance-ledger/internal/api/middleware"
	"github.com/dvloznov/finance-ledger/internal/jobs"
	"github.com/dvloznov/finance-ledger/internal/ledger"
	"github.com/rs/zerolog"
)

// ReconcileHandler exposes drift reports and explicit repairs.
type ReconcileHandler struct {
	checker   *ledger.Checker
	publisher jobs.Publisher
	log       zerolog.Logger
}

// NewReconcileHandler creates a new reconcile handler. publisher may be nil,
// in which case background runs cannot be requested.
func NewReconcileHandler(checker *ledger.Checker, publisher jobs.Publisher, log zerolog.Logger) *ReconcileHandler {
	return &ReconcileHandler{checker: checker, publisher: publisher, log: log}
}

// ReconcileOwner handles GET /api/reconcile
func (h *ReconcileHandler) ReconcileOwner(w http.ResponseWriter, r *http.Request) {
	reports, err := h.checker.ReconcileOwner(r.Context(), owner(r))
	if err != nil {
		writeLedgerError(w, r, err, "Failed to reconcile")
		return
	}
	if reports == nil {
		reports = []ledger.Report{}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"reports": reports,
		"count":   len(reports),
		"drifted": len(ledger.Drifted(reports)),
	})
}

// ReconcileAccount handles GET /api/accounts/{id}/reconcile
func (h *ReconcileHandler) ReconcileAccount(w http.ResponseWriter, r *http.Request) {
	h.report(w, r, h.checker.Reconcile)
}

// ReconcileGoal handles GET /api/goals/{id}/reconcile
func (h *ReconcileHandler) ReconcileGoal(w http.ResponseWriter, r *http.Request) {
	h.report(w, r, h.checker.ReconcileGoal)
}

// RepairAccount handles POST /api/accounts/{id}/repair
func (h *ReconcileHandler) RepairAccount(w http.ResponseWriter, r *http.Request) {
	h.repair(w, r, h.checker.Repair)
}

// RepairGoal handles POST /api/goals/{id}/repair
func (h *ReconcileHandler) RepairGoal(w http.ResponseWriter, r *http.Request) {
	h.repair(w, r, h.checker.RepairGoal)
}

func (h *ReconcileHandler) report(w http.ResponseWriter, r *http.Request,
	fn func(ctx context.Context, ownerID, id string) (ledger.Report, error)) {
	rep, err := fn(r.Context(), owner(r), r.PathValue("id"))
	if err != nil {
		writeLedgerError(w, r, err, "Failed to reconcile")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, rep)
}

func (h *ReconcileHandler) repair(w http.ResponseWriter, r *http.Request,
	fn func(ctx context.Context, ownerID, id, actor string) (ledger.Report, error)) {
	var req struct {
		Actor string `json:"actor"`
	}
	// An empty body is allowed; the owner is then recorded as the actor.
	if r.ContentLength != 0 {
		if err := decodeBody(r, &req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}
	actor := req.Actor
	if actor == "" {
		actor = owner(r)
	}

	before, err := fn(r.Context(), owner(r), r.PathValue("id"), actor)
	if err != nil {
		writeLedgerError(w, r, err, "Failed to repair")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"repaired": before.HasDrift(),
		"before":   before,
	})
}

// EnqueueReconcile handles POST /api/reconcile/jobs
func (h *ReconcileHandler) EnqueueReconcile(w http.ResponseWriter, r *http.Request) {
	if h.publisher == nil {
		middleware.WriteError(w, http.StatusServiceUnavailable, "Background reconciliation is not configured")
		return
	}

	job := &jobs.ReconcileJob{OwnerID: owner(r)}
	if err := h.publisher.PublishReconcile(r.Context(), job); err != nil {
		h.log.Error().Err(err).Str("owner_id", job.OwnerID).Msg("Failed to enqueue reconciliation job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue reconciliation job")
		return
	}

	h.log.Info().Str("job_id", job.JobID).Str("owner_id", job.OwnerID).Msg("Reconciliation job enqueued")
	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.JobID,
		"status": string(job.Status),
	})
}

func decodeBody(r *http.Request, dst any) error {
	err := jsonDecoder(r.Body).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
