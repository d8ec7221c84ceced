package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// RecordKind names the cached aggregate a Report is about.
type RecordKind string

const (
	KindAccount RecordKind = "account"
	KindGoal    RecordKind = "goal"
)

// Report compares a cached aggregate with the value recomputed from its
// transactions.
type Report struct {
	OwnerID      string          `json:"owner_id"`
	Kind         RecordKind      `json:"kind"`
	RecordID     string          `json:"record_id"`
	Name         string          `json:"name"`
	Currency     string          `json:"currency"`
	Stored       decimal.Decimal `json:"stored"`
	Computed     decimal.Decimal `json:"computed"`
	Drift        decimal.Decimal `json:"drift"` // Stored - Computed
	Transactions int             `json:"transactions"`
	CheckedAt    time.Time       `json:"checked_at"`
}

// HasDrift reports whether the cached value is wrong.
func (r Report) HasDrift() bool { return !r.Drift.IsZero() }

// Err returns an error matching ErrDriftDetected when the report drifted.
func (r Report) Err() error {
	if !r.HasDrift() {
		return nil
	}
	return fmt.Errorf("%s %q stores %s, transactions sum to %s: %w", r.Kind, r.RecordID, r.Stored, r.Computed, ErrDriftDetected)
}

// Drifted filters reports down to the ones with drift.
func Drifted(reports []Report) []Report {
	var out []Report
	for _, r := range reports {
		if r.HasDrift() {
			out = append(out, r)
		}
	}
	return out
}

// RepairRecord is the audit trail of one explicit repair.
type RepairRecord struct {
	ID         string          `json:"id"`
	OwnerID    string          `json:"owner_id"`
	Kind       RecordKind      `json:"kind"`
	RecordID   string          `json:"record_id"`
	Actor      string          `json:"actor"`
	Before     decimal.Decimal `json:"before"`
	After      decimal.Decimal `json:"after"`
	Drift      decimal.Decimal `json:"drift"`
	RepairedAt time.Time       `json:"repaired_at"`
}

// AuditSink persists repair records.
type AuditSink interface {
	RecordRepair(ctx context.Context, rec RepairRecord) error
}

// NopAuditSink discards records; the log entry is still written.
type NopAuditSink struct{}

func (NopAuditSink) RecordRepair(context.Context, RepairRecord) error { return nil }

// Checker recomputes cached balances and goal amounts from transaction
// history. It reports drift; it only changes data through Repair.
type Checker struct {
	store *Store
	audit AuditSink
	log   zerolog.Logger
	now   func() time.Time
}

// NewChecker creates a Checker. A nil audit sink is replaced by
// NopAuditSink.
func NewChecker(store *Store, audit AuditSink, log zerolog.Logger) *Checker {
	if audit == nil {
		audit = NopAuditSink{}
	}
	return &Checker{
		store: store,
		audit: audit,
		log:   log.With().Str("component", "reconcile").Logger(),
		now:   time.Now,
	}
}

func accountReport(a domain.Account, txns []domain.Transaction, at time.Time) Report {
	computed := decimal.Zero
	n := 0
	for _, t := range txns {
		if t.AccountID != a.ID {
			continue
		}
		computed = computed.Add(a.Effect(t))
		n++
	}
	return Report{
		OwnerID:      a.OwnerID,
		Kind:         KindAccount,
		RecordID:     a.ID,
		Name:         a.Name,
		Currency:     a.Currency,
		Stored:       a.Balance,
		Computed:     computed,
		Drift:        a.Balance.Sub(computed),
		Transactions: n,
		CheckedAt:    at,
	}
}

func goalReport(g domain.SavingsGoal, txns []domain.Transaction, at time.Time) Report {
	link := domain.GoalContribution(g.ID)
	computed := decimal.Zero
	n := 0
	for _, t := range txns {
		if t.Link != link {
			continue
		}
		computed = computed.Add(t.Amount.Abs())
		n++
	}
	return Report{
		OwnerID:      g.OwnerID,
		Kind:         KindGoal,
		RecordID:     g.ID,
		Name:         g.Name,
		Currency:     g.Currency,
		Stored:       g.CurrentAmount,
		Computed:     computed,
		Drift:        g.CurrentAmount.Sub(computed),
		Transactions: n,
		CheckedAt:    at,
	}
}

func (c *Checker) warn(r Report) {
	if !r.HasDrift() {
		return
	}
	c.log.Warn().
		Err(r.Err()).
		Str("owner_id", r.OwnerID).
		Str("kind", string(r.Kind)).
		Str("record_id", r.RecordID).
		Str("stored", r.Stored.String()).
		Str("computed", r.Computed.String()).
		Str("drift", r.Drift.String()).
		Msg("Drift detected")
}

// Reconcile recomputes one account's balance. It never writes.
func (c *Checker) Reconcile(ctx context.Context, ownerID, accountID string) (Report, error) {
	var rep Report
	err := c.store.View(ctx, func(ctx context.Context, r Reader) error {
		a, err := getAccount(ctx, r, ownerID, accountID)
		if err != nil {
			return err
		}
		txns, err := r.ListTransactions(ctx, ownerID, accountID)
		if err != nil {
			return fmt.Errorf("listing transactions: %w", err)
		}
		rep = accountReport(a, txns, c.now().UTC())
		return nil
	})
	if err != nil {
		return Report{}, fmt.Errorf("Reconcile: %w", err)
	}
	c.warn(rep)
	return rep, nil
}

// ReconcileGoal recomputes one goal's CurrentAmount. It never writes.
func (c *Checker) ReconcileGoal(ctx context.Context, ownerID, goalID string) (Report, error) {
	var rep Report
	err := c.store.View(ctx, func(ctx context.Context, r Reader) error {
		g, err := getGoal(ctx, r, ownerID, goalID)
		if err != nil {
			return err
		}
		txns, err := r.ListLinkedTransactions(ctx, ownerID, domain.GoalContribution(goalID))
		if err != nil {
			return fmt.Errorf("listing contributions: %w", err)
		}
		rep = goalReport(g, txns, c.now().UTC())
		return nil
	})
	if err != nil {
		return Report{}, fmt.Errorf("ReconcileGoal: %w", err)
	}
	c.warn(rep)
	return rep, nil
}

// ReconcileOwner checks every account and goal of one owner against a
// single consistent snapshot. Drift is logged, not returned as an error.
func (c *Checker) ReconcileOwner(ctx context.Context, ownerID string) ([]Report, error) {
	var reports []Report
	err := c.store.View(ctx, func(ctx context.Context, r Reader) error {
		reports = reports[:0]
		accounts, err := r.ListAccounts(ctx, ownerID)
		if err != nil {
			return fmt.Errorf("listing accounts: %w", err)
		}
		goals, err := r.ListGoals(ctx, ownerID)
		if err != nil {
			return fmt.Errorf("listing goals: %w", err)
		}
		txns, err := r.ListTransactions(ctx, ownerID, "")
		if err != nil {
			return fmt.Errorf("listing transactions: %w", err)
		}
		at := c.now().UTC()
		for _, a := range accounts {
			reports = append(reports, accountReport(a, txns, at))
		}
		for _, g := range goals {
			reports = append(reports, goalReport(g, txns, at))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ReconcileOwner: %w", err)
	}
	sort.SliceStable(reports, func(i, j int) bool {
		if reports[i].Kind != reports[j].Kind {
			return reports[i].Kind < reports[j].Kind
		}
		return reports[i].RecordID < reports[j].RecordID
	})

	drifted := 0
	for _, rep := range reports {
		if rep.HasDrift() {
			drifted++
			c.warn(rep)
		}
	}
	c.log.Info().
		Str("owner_id", ownerID).
		Int("checked", len(reports)).
		Int("drifted", drifted).
		Msg("Reconciliation finished")
	return reports, nil
}

// Repair sets an account's balance to the value recomputed from its
// transactions, inside one atomic unit. actor is recorded in the audit
// trail. The returned report describes the state before the repair.
func (c *Checker) Repair(ctx context.Context, ownerID, accountID, actor string) (Report, error) {
	if err := requireID("account_id", accountID); err != nil {
		return Report{}, err
	}
	var rep Report
	_, err := c.store.Mutate(ctx, ownerID, "repair account", func(ctx context.Context, r Reader) (*Plan, error) {
		a, err := getAccount(ctx, r, ownerID, accountID)
		if err != nil {
			return nil, err
		}
		txns, err := r.ListTransactions(ctx, ownerID, accountID)
		if err != nil {
			return nil, fmt.Errorf("listing transactions: %w", err)
		}
		rep = accountReport(a, txns, c.now().UTC())
		plan := newPlan(ownerID, "repair account", accountID)
		plan.adjust(accountID, rep.Drift.Neg())
		return plan, nil
	})
	if err != nil {
		return Report{}, fmt.Errorf("Repair: %w", err)
	}
	c.recordRepair(ctx, rep, actor)
	return rep, nil
}

// RepairGoal sets a goal's CurrentAmount to the sum of its contributions.
func (c *Checker) RepairGoal(ctx context.Context, ownerID, goalID, actor string) (Report, error) {
	if err := requireID("goal_id", goalID); err != nil {
		return Report{}, err
	}
	var rep Report
	_, err := c.store.Mutate(ctx, ownerID, "repair goal", func(ctx context.Context, r Reader) (*Plan, error) {
		g, err := getGoal(ctx, r, ownerID, goalID)
		if err != nil {
			return nil, err
		}
		txns, err := r.ListLinkedTransactions(ctx, ownerID, domain.GoalContribution(goalID))
		if err != nil {
			return nil, fmt.Errorf("listing contributions: %w", err)
		}
		rep = goalReport(g, txns, c.now().UTC())
		plan := newPlan(ownerID, "repair goal", goalID)
		if rep.HasDrift() {
			plan.add(AdjustGoal{GoalID: goalID, Delta: rep.Drift.Neg()})
		}
		return plan, nil
	})
	if err != nil {
		return Report{}, fmt.Errorf("RepairGoal: %w", err)
	}
	c.recordRepair(ctx, rep, actor)
	return rep, nil
}

func (c *Checker) recordRepair(ctx context.Context, rep Report, actor string) {
	log := c.log.With().
		Str("owner_id", rep.OwnerID).
		Str("kind", string(rep.Kind)).
		Str("record_id", rep.RecordID).
		Str("actor", actor).
		Logger()
	if !rep.HasDrift() {
		log.Info().Str("balance", rep.Stored.String()).Msg("Repair requested, no drift found")
		return
	}

	rec := RepairRecord{
		ID:         uuid.NewString(),
		OwnerID:    rep.OwnerID,
		Kind:       rep.Kind,
		RecordID:   rep.RecordID,
		Actor:      actor,
		Before:     rep.Stored,
		After:      rep.Computed,
		Drift:      rep.Drift,
		RepairedAt: c.now().UTC(),
	}
	log.Warn().
		Str("repair_id", rec.ID).
		Str("before", rec.Before.String()).
		Str("after", rec.After.String()).
		Str("drift", rec.Drift.String()).
		Msg("Cached value repaired")

	// The repair has committed; a failed audit write is logged but does
	// not undo it.
	if err := c.audit.RecordRepair(context.WithoutCancel(ctx), rec); err != nil {
		log.Error().Err(err).Str("repair_id", rec.ID).Msg("Failed to record repair audit entry")
	}
}
