package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// NewReconcileHandler returns a JobHandler that reconciles the job's owner
// and hands the reports to every sink. A sink failure fails the job so the
// queue retries it; reconciliation itself is read-only, so retries are safe.
func NewReconcileHandler(r Reconciler, sinks []ReportSink, log zerolog.Logger) JobHandler {
	return func(ctx context.Context, job Job) error {
		rj, ok := job.(*ReconcileJob)
		if !ok {
			return fmt.Errorf("ReconcileHandler: unsupported job type %q", job.GetType())
		}

		jlog := log.With().
			Str("job_id", rj.JobID).
			Str("owner_id", rj.OwnerID).
			Str("run_id", rj.RunID).
			Logger()

		reports, err := r.ReconcileOwner(ctx, rj.OwnerID)
		if err != nil {
			jlog.Error().Err(err).Msg("Reconciliation failed")
			return fmt.Errorf("ReconcileHandler: reconciling owner %s: %w", rj.OwnerID, err)
		}

		rj.Checked = len(reports)
		rj.Drifted = 0
		for _, rep := range reports {
			if rep.HasDrift() {
				rj.Drifted++
			}
		}

		runID := rj.RunID
		if runID == "" {
			runID = rj.JobID
		}

		var errs []error
		for _, sink := range sinks {
			if err := sink.WriteReports(ctx, runID, reports); err != nil {
				jlog.Error().Err(err).Msg("Failed to write reconciliation reports")
				errs = append(errs, err)
			}
		}
		if err := errors.Join(errs...); err != nil {
			return fmt.Errorf("ReconcileHandler: writing reports: %w", err)
		}

		jlog.Info().
			Int("checked", rj.Checked).
			Int("drifted", rj.Drifted).
			Msg("Reconciliation job finished")
		return nil
	}
}
