package jobs

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Scheduler publishes one ReconcileJob per owner on every tick.
type Scheduler struct {
	pub      Publisher
	owners   []string
	interval time.Duration
	log      zerolog.Logger
}

// NewScheduler creates a scheduler for a fixed set of owners.
func NewScheduler(pub Publisher, owners []string, interval time.Duration, log zerolog.Logger) *Scheduler {
	return &Scheduler{pub: pub, owners: owners, interval: interval, log: log}
}

// Tick publishes a job for every owner and returns the run ID they share.
// Publishing continues past individual failures.
func (s *Scheduler) Tick(ctx context.Context) (string, error) {
	runID := uuid.New().String()
	var firstErr error
	for _, owner := range s.owners {
		job := &ReconcileJob{OwnerID: owner, RunID: runID}
		if err := s.pub.PublishReconcile(ctx, job); err != nil {
			s.log.Error().Err(err).Str("owner_id", owner).Msg("Failed to publish reconciliation job")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	s.log.Info().Str("run_id", runID).Int("owners", len(s.owners)).Msg("Reconciliation run scheduled")
	return runID, firstErr
}

// Run ticks immediately and then every interval until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	if _, err := s.Tick(ctx); err != nil && ctx.Err() != nil {
		return ctx.Err()
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			_, _ = s.Tick(ctx)
		}
	}
}
