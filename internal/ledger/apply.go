package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/shopspring/decimal"
)

// entry is the working copy of one document during apply.
type entry[T any] struct {
	val    T
	stored bool // present when read
	exists bool // present after the writes applied so far
	dirty  bool
}

type workingSet struct {
	ownerID     string
	accounts    map[string]*entry[domain.Account]
	txns        map[string]*entry[domain.Transaction]
	goals       map[string]*entry[domain.SavingsGoal]
	investments map[string]*entry[domain.Investment]
}

func load[T any](ctx context.Context, m map[string]*entry[T], id string, get func(context.Context, string, string) (T, error), ownerID string) error {
	if id == "" {
		return invalid("id", "is required")
	}
	if _, ok := m[id]; ok {
		return nil
	}
	v, err := get(ctx, ownerID, id)
	switch {
	case err == nil:
		m[id] = &entry[T]{val: v, stored: true, exists: true}
	case isNotFound(err):
		m[id] = &entry[T]{}
	default:
		return err
	}
	return nil
}

// readAll loads every document the plan touches. All reads happen before
// any write is buffered.
func readAll(ctx context.Context, tx Tx, plan *Plan) (*workingSet, error) {
	ws := &workingSet{
		ownerID:     plan.OwnerID,
		accounts:    make(map[string]*entry[domain.Account]),
		txns:        make(map[string]*entry[domain.Transaction]),
		goals:       make(map[string]*entry[domain.SavingsGoal]),
		investments: make(map[string]*entry[domain.Investment]),
	}
	acct := func(id string) error { return load(ctx, ws.accounts, id, tx.GetAccount, plan.OwnerID) }
	txn := func(id string) error { return load(ctx, ws.txns, id, tx.GetTransaction, plan.OwnerID) }
	goal := func(id string) error { return load(ctx, ws.goals, id, tx.GetGoal, plan.OwnerID) }
	inv := func(id string) error { return load(ctx, ws.investments, id, tx.GetInvestment, plan.OwnerID) }

	for _, c := range plan.Checks {
		if err := acct(c.AccountID); err != nil {
			return nil, err
		}
	}
	for _, w := range plan.Writes {
		var err error
		switch w := w.(type) {
		case InsertAccount:
			err = acct(w.Account.ID)
		case InsertTransaction:
			if err = txn(w.Transaction.ID); err == nil {
				err = acct(w.Transaction.AccountID)
			}
		case UpdateTransaction:
			if err = txn(w.Transaction.ID); err == nil {
				err = acct(w.Transaction.AccountID)
			}
		case DeleteTransaction:
			err = txn(w.ID)
		case InsertInvestment:
			err = inv(w.Investment.ID)
		case UpdateInvestment:
			err = inv(w.Investment.ID)
		case DeleteInvestment:
			err = inv(w.ID)
		case SetInvestmentValue:
			err = inv(w.ID)
		case InsertGoal:
			err = goal(w.Goal.ID)
		case UpdateGoal:
			err = goal(w.Goal.ID)
		case DeleteGoal:
			err = goal(w.ID)
		case AdjustBalance:
			err = acct(w.AccountID)
		case AdjustGoal:
			err = goal(w.GoalID)
		default:
			err = fmt.Errorf("unsupported write %T", w)
		}
		if err != nil {
			return nil, fmt.Errorf("readAll: %w", err)
		}
	}
	return ws, nil
}

func mustExist[T any](e *entry[T], kind, id string) error {
	if !e.exists {
		return fmt.Errorf("%s %q: %w", kind, id, ErrReferenceNotFound)
	}
	return nil
}

func mustBeNew[T any](e *entry[T], kind, id string) error {
	if e.exists {
		return fmt.Errorf("%s %q already exists: %w", kind, id, ErrStalePlan)
	}
	return nil
}

func checkVersion(kind, id string, got, want int64) error {
	if got != want {
		return fmt.Errorf("%s %q is at version %d, plan expected %d: %w", kind, id, got, want, ErrStalePlan)
	}
	return nil
}

// mutate applies the plan to the working set in order.
func (ws *workingSet) mutate(plan *Plan) error {
	for _, c := range plan.Checks {
		e := ws.accounts[c.AccountID]
		if err := mustExist(e, "account", c.AccountID); err != nil {
			return err
		}
		if !e.val.CanCover(c.Amount) {
			return insufficient(e.val, c.Amount)
		}
	}

	for _, w := range plan.Writes {
		switch w := w.(type) {
		case InsertAccount:
			e := ws.accounts[w.Account.ID]
			if err := mustBeNew(e, "account", w.Account.ID); err != nil {
				return err
			}
			e.val = w.Account
			e.val.OwnerID = ws.ownerID
			e.val.Balance = decimal.Zero
			e.val.Version = 0
			e.exists, e.dirty = true, true

		case InsertTransaction:
			e := ws.txns[w.Transaction.ID]
			if err := mustBeNew(e, "transaction", w.Transaction.ID); err != nil {
				return err
			}
			if err := mustExist(ws.accounts[w.Transaction.AccountID], "account", w.Transaction.AccountID); err != nil {
				return err
			}
			e.val = w.Transaction
			e.val.OwnerID = ws.ownerID
			e.val.Version = 0
			e.exists, e.dirty = true, true

		case UpdateTransaction:
			e := ws.txns[w.Transaction.ID]
			if err := mustExist(e, "transaction", w.Transaction.ID); err != nil {
				return err
			}
			if err := checkVersion("transaction", w.Transaction.ID, e.val.Version, w.ExpectedVersion); err != nil {
				return err
			}
			if err := mustExist(ws.accounts[w.Transaction.AccountID], "account", w.Transaction.AccountID); err != nil {
				return err
			}
			created := e.val.CreatedAt
			e.val = w.Transaction
			e.val.OwnerID = ws.ownerID
			e.val.Version = w.ExpectedVersion
			e.val.CreatedAt = created
			e.dirty = true

		case DeleteTransaction:
			e := ws.txns[w.ID]
			if err := mustExist(e, "transaction", w.ID); err != nil {
				return err
			}
			if err := checkVersion("transaction", w.ID, e.val.Version, w.ExpectedVersion); err != nil {
				return err
			}
			e.exists, e.dirty = false, true

		case InsertInvestment:
			e := ws.investments[w.Investment.ID]
			if err := mustBeNew(e, "investment", w.Investment.ID); err != nil {
				return err
			}
			e.val = w.Investment
			e.val.OwnerID = ws.ownerID
			e.val.Version = 0
			e.exists, e.dirty = true, true

		case UpdateInvestment:
			e := ws.investments[w.Investment.ID]
			if err := mustExist(e, "investment", w.Investment.ID); err != nil {
				return err
			}
			if err := checkVersion("investment", w.Investment.ID, e.val.Version, w.ExpectedVersion); err != nil {
				return err
			}
			created := e.val.CreatedAt
			e.val = w.Investment
			e.val.OwnerID = ws.ownerID
			e.val.Version = w.ExpectedVersion
			e.val.CreatedAt = created
			e.dirty = true

		case DeleteInvestment:
			e := ws.investments[w.ID]
			if err := mustExist(e, "investment", w.ID); err != nil {
				return err
			}
			if err := checkVersion("investment", w.ID, e.val.Version, w.ExpectedVersion); err != nil {
				return err
			}
			e.exists, e.dirty = false, true

		case SetInvestmentValue:
			e := ws.investments[w.ID]
			if err := mustExist(e, "investment", w.ID); err != nil {
				return err
			}
			e.val.CurrentValue = w.Value
			e.dirty = true

		case InsertGoal:
			e := ws.goals[w.Goal.ID]
			if err := mustBeNew(e, "goal", w.Goal.ID); err != nil {
				return err
			}
			e.val = w.Goal
			e.val.OwnerID = ws.ownerID
			e.val.CurrentAmount = decimal.Zero
			e.val.Version = 0
			e.exists, e.dirty = true, true

		case UpdateGoal:
			e := ws.goals[w.Goal.ID]
			if err := mustExist(e, "goal", w.Goal.ID); err != nil {
				return err
			}
			if err := checkVersion("goal", w.Goal.ID, e.val.Version, w.ExpectedVersion); err != nil {
				return err
			}
			e.val.Name = w.Goal.Name
			e.val.TargetAmount = w.Goal.TargetAmount
			e.val.Currency = w.Goal.Currency
			e.val.TargetDate = w.Goal.TargetDate
			e.dirty = true

		case DeleteGoal:
			e := ws.goals[w.ID]
			if err := mustExist(e, "goal", w.ID); err != nil {
				return err
			}
			if err := checkVersion("goal", w.ID, e.val.Version, w.ExpectedVersion); err != nil {
				return err
			}
			e.exists, e.dirty = false, true

		case AdjustBalance:
			e := ws.accounts[w.AccountID]
			if err := mustExist(e, "account", w.AccountID); err != nil {
				return err
			}
			e.val.Balance = e.val.Balance.Add(w.Delta)
			e.dirty = true

		case AdjustGoal:
			e := ws.goals[w.GoalID]
			if err := mustExist(e, "goal", w.GoalID); err != nil {
				return err
			}
			e.val.CurrentAmount = e.val.CurrentAmount.Add(w.Delta)
			e.dirty = true
		}
	}
	return nil
}

func flush[T any](ctx context.Context, m map[string]*entry[T], touch func(*T), put func(context.Context, T) error, del func(context.Context, string, string) error, ownerID string) error {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		e := m[id]
		if !e.dirty {
			continue
		}
		switch {
		case e.exists:
			touch(&e.val)
			if err := put(ctx, e.val); err != nil {
				return err
			}
		case e.stored:
			if err := del(ctx, ownerID, id); err != nil {
				return err
			}
		}
	}
	return nil
}

// write buffers every dirty document in the unit. Versions are bumped once
// per document per plan.
func (ws *workingSet) write(ctx context.Context, tx Tx, now time.Time) error {
	if err := flush(ctx, ws.accounts, func(a *domain.Account) {
		a.Version++
		a.UpdatedAt = now
	}, tx.PutAccount, nil, ws.ownerID); err != nil {
		return fmt.Errorf("write accounts: %w", err)
	}
	if err := flush(ctx, ws.txns, func(t *domain.Transaction) {
		t.Version++
		t.UpdatedAt = now
	}, tx.PutTransaction, tx.DeleteTransaction, ws.ownerID); err != nil {
		return fmt.Errorf("write transactions: %w", err)
	}
	if err := flush(ctx, ws.goals, func(g *domain.SavingsGoal) {
		g.Version++
		g.UpdatedAt = now
	}, tx.PutGoal, tx.DeleteGoal, ws.ownerID); err != nil {
		return fmt.Errorf("write goals: %w", err)
	}
	if err := flush(ctx, ws.investments, func(inv *domain.Investment) {
		inv.Version++
		inv.UpdatedAt = now
	}, tx.PutInvestment, tx.DeleteInvestment, ws.ownerID); err != nil {
		return fmt.Errorf("write investments: %w", err)
	}
	return nil
}

func (ws *workingSet) result(plan *Plan) Result {
	res := Result{
		RecordID:    plan.RecordID,
		Balances:    make(map[string]decimal.Decimal),
		GoalAmounts: make(map[string]decimal.Decimal),
	}
	for id, e := range ws.accounts {
		if e.exists {
			res.Balances[id] = e.val.Balance
		}
	}
	for id, e := range ws.goals {
		if e.exists {
			res.GoalAmounts[id] = e.val.CurrentAmount
		}
	}
	return res
}

// apply runs plan against tx: read, check, mutate, write.
func apply(ctx context.Context, tx Tx, plan *Plan, now time.Time) (Result, error) {
	if plan == nil || plan.OwnerID == "" {
		return Result{}, invalid("plan", "owner is required")
	}
	ws, err := readAll(ctx, tx, plan)
	if err != nil {
		return Result{}, err
	}
	if err := ws.mutate(plan); err != nil {
		return Result{}, err
	}
	if err := ws.write(ctx, tx, now); err != nil {
		return Result{}, err
	}
	return ws.result(plan), nil
}
