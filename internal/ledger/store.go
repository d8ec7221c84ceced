package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	// DefaultMaxAttempts bounds how often a contended unit is retried.
	DefaultMaxAttempts = 5
	// DefaultBackoff is the base delay between attempts; attempt n waits n×base.
	DefaultBackoff = 20 * time.Millisecond
)

// Result is what a committed unit reports back: the new balances of every
// account and goal it touched.
type Result struct {
	RecordID    string
	Balances    map[string]decimal.Decimal
	GoalAmounts map[string]decimal.Decimal
	Attempts    int
}

// Balance returns the post-commit balance of accountID.
func (r Result) Balance(accountID string) (decimal.Decimal, bool) {
	b, ok := r.Balances[accountID]
	return b, ok
}

// PlanFunc reads the snapshots it needs from r and returns the plan to
// apply in the same atomic unit.
type PlanFunc func(ctx context.Context, r Reader) (*Plan, error)

// Store applies plans atomically against a Backend.
type Store struct {
	backend     Backend
	log         zerolog.Logger
	maxAttempts int
	backoff     time.Duration
	now         func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithMaxAttempts sets the attempt bound (minimum 1).
func WithMaxAttempts(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithBackoff sets the base retry delay.
func WithBackoff(d time.Duration) Option {
	return func(s *Store) {
		if d >= 0 {
			s.backoff = d
		}
	}
}

// WithClock overrides the clock used for UpdatedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates a Store over backend.
func NewStore(backend Backend, log zerolog.Logger, opts ...Option) *Store {
	s := &Store{
		backend:     backend,
		log:         log.With().Str("component", "ledger").Logger(),
		maxAttempts: DefaultMaxAttempts,
		backoff:     DefaultBackoff,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ApplyAtomic applies a precomputed plan as one unit. Balance deltas are
// added to the values read inside the unit, so contention is retried with
// the same plan; a plan whose version expectations no longer hold aborts.
func (s *Store) ApplyAtomic(ctx context.Context, plan *Plan) (Result, error) {
	if plan == nil {
		return Result{}, invalid("plan", "is required")
	}
	return s.execute(ctx, plan.OwnerID, plan.Intent, func(context.Context, Reader) (*Plan, error) {
		return plan, nil
	}, false)
}

// Mutate reads, plans and applies inside one unit, re-planning from fresh
// snapshots whenever the unit loses a race.
func (s *Store) Mutate(ctx context.Context, ownerID, intent string, fn PlanFunc) (Result, error) {
	return s.execute(ctx, ownerID, intent, fn, true)
}

// execute is the shared retry loop. replan controls whether ErrStalePlan
// is retried.
func (s *Store) execute(ctx context.Context, ownerID, intent string, fn PlanFunc, replan bool) (Result, error) {
	log := s.log.With().Str("owner_id", ownerID).Str("intent", intent).Logger()

	var res Result
	attempts, err := s.retry(ctx, log, replan, func(unitCtx context.Context, tx Tx) error {
		plan, err := fn(unitCtx, tx)
		if err != nil {
			return err
		}
		if plan.OwnerID != ownerID {
			return invalid("plan", "owner %q does not match %q", plan.OwnerID, ownerID)
		}
		r, err := apply(unitCtx, tx, plan, s.now().UTC())
		if err != nil {
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	res.Attempts = attempts
	log.Debug().Int("attempts", attempts).Str("record_id", res.RecordID).Msg("Ledger mutation committed")
	return res, nil
}

// View runs a read-only function inside one unit so that everything it
// reads is mutually consistent.
func (s *Store) View(ctx context.Context, fn func(ctx context.Context, r Reader) error) error {
	_, err := s.retry(ctx, s.log, false, func(unitCtx context.Context, tx Tx) error {
		return fn(unitCtx, tx)
	})
	return err
}

// retry runs unit until it commits, fails for a non-transient reason, or
// the attempt bound is hit. Cancellation is honoured only between
// attempts: a submitted unit runs to completion.
func (s *Store) retry(ctx context.Context, log zerolog.Logger, replan bool, unit func(context.Context, Tx) error) (int, error) {
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			if attempt == 1 {
				return 0, fmt.Errorf("ledger: not started: %w", err)
			}
			return attempt - 1, &AbortedError{Reason: "cancelled while retrying", Attempts: attempt - 1, Err: err}
		}

		err := s.backend.RunAtomic(context.WithoutCancel(ctx), unit)
		if err == nil {
			return attempt, nil
		}

		transient := errors.Is(err, ErrConflict) || (replan && errors.Is(err, ErrStalePlan))
		switch {
		case IsUserError(err):
			return attempt, err
		case !replan && errors.Is(err, ErrStalePlan):
			log.Warn().Err(err).Msg("Plan is stale, aborting")
			return attempt, &AbortedError{Reason: "stale plan", Attempts: attempt, Err: err}
		case !transient:
			log.Error().Err(err).Int("attempt", attempt).Msg("Atomic unit rejected by store")
			return attempt, &AbortedError{Reason: "store rejected the unit", Attempts: attempt, Err: err}
		case attempt >= s.maxAttempts:
			log.Warn().Err(err).Int("attempts", attempt).Msg("Contention retries exhausted")
			return attempt, &AbortedError{Reason: "contention retries exhausted", Attempts: attempt, Err: err}
		}

		log.Debug().Err(err).Int("attempt", attempt).Msg("Atomic unit contended or stale, retrying")
		if s.backoff > 0 {
			timer := time.NewTimer(time.Duration(attempt) * s.backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return attempt, &AbortedError{Reason: "cancelled while retrying", Attempts: attempt, Err: ctx.Err()}
			case <-timer.C:
			}
		}
	}
}
