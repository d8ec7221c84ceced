package ledger_test

import (
	"context"
	"errors"
	"testing"

	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/dvloznov/finance-ledger/internal/ledger"
)

type mockAuditSink struct {
	RecordRepairFunc func(ctx context.Context, rec ledger.RepairRecord) error
	records          []ledger.RepairRecord
}

func (m *mockAuditSink) RecordRepair(ctx context.Context, rec ledger.RepairRecord) error {
	m.records = append(m.records, rec)
	if m.RecordRepairFunc != nil {
		return m.RecordRepairFunc(ctx, rec)
	}
	return nil
}

// corruptBalance overwrites a cached balance outside the ledger, the way a
// manual data edit would.
func (f *fixture) corruptBalance(t *testing.T, id, balance string) {
	t.Helper()
	err := f.mem.RunAtomic(context.Background(), func(ctx context.Context, tx ledger.Tx) error {
		a, err := tx.GetAccount(ctx, owner, id)
		if err != nil {
			return err
		}
		a.Balance = d(balance)
		return tx.PutAccount(ctx, a)
	})
	if err != nil {
		t.Fatalf("corrupting balance: %v", err)
	}
}

func (f *fixture) corruptGoal(t *testing.T, id, amount string) {
	t.Helper()
	err := f.mem.RunAtomic(context.Background(), func(ctx context.Context, tx ledger.Tx) error {
		g, err := tx.GetGoal(ctx, owner, id)
		if err != nil {
			return err
		}
		g.CurrentAmount = d(amount)
		return tx.PutGoal(ctx, g)
	})
	if err != nil {
		t.Fatalf("corrupting goal: %v", err)
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acct := f.open(t, domain.AccountChecking, "100")
	f.deposit(t, acct, "40")
	f.corruptBalance(t, acct, "150")

	first, err := f.checker.Reconcile(ctx, owner, acct)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	second, err := f.checker.Reconcile(ctx, owner, acct)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if !first.Computed.Equal(second.Computed) || !first.Drift.Equal(second.Drift) {
		t.Errorf("reconcile not idempotent: %+v vs %+v", first, second)
	}
	if !first.Computed.Equal(d("140")) || !first.Drift.Equal(d("10")) {
		t.Errorf("report = computed %s drift %s, want 140 / 10", first.Computed, first.Drift)
	}
	if !errors.Is(first.Err(), ledger.ErrDriftDetected) {
		t.Errorf("Err() = %v, want ErrDriftDetected", first.Err())
	}
	// Reconcile never repairs.
	f.wantBalance(t, acct, "150")
}

func TestRepairAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	audit := &mockAuditSink{}
	f.checker = ledger.NewChecker(f.store, audit, logDiscard())

	card := f.open(t, domain.AccountCreditCard, "60")
	f.withdraw(t, card, "15")
	f.corruptBalance(t, card, "0")

	rep, err := f.checker.Repair(ctx, owner, card, "ops@example.com")
	if err != nil {
		t.Fatalf("Repair: %v", err)
	}
	if !rep.Stored.Equal(d("0")) || !rep.Computed.Equal(d("45")) {
		t.Errorf("report = %+v, want stored 0 computed 45", rep)
	}
	f.wantBalance(t, card, "45")

	if len(audit.records) != 1 {
		t.Fatalf("got %d audit records, want 1", len(audit.records))
	}
	rec := audit.records[0]
	if rec.Actor != "ops@example.com" || !rec.Before.Equal(d("0")) || !rec.After.Equal(d("45")) {
		t.Errorf("audit record = %+v", rec)
	}

	// A second repair finds nothing to do and writes no audit record.
	rep, err = f.checker.Repair(ctx, owner, card, "ops@example.com")
	if err != nil {
		t.Fatalf("Repair: %v", err)
	}
	if rep.HasDrift() {
		t.Errorf("drift after repair: %s", rep.Drift)
	}
	if len(audit.records) != 1 {
		t.Errorf("got %d audit records, want 1", len(audit.records))
	}
	f.assertConsistent(t)
}

func TestRepairSurvivesAuditFailure(t *testing.T) {
	f := newFixture(t)
	audit := &mockAuditSink{
		RecordRepairFunc: func(context.Context, ledger.RepairRecord) error {
			return errors.New("bigquery unavailable")
		},
	}
	f.checker = ledger.NewChecker(f.store, audit, logDiscard())
	acct := f.open(t, domain.AccountSavings, "10")
	f.corruptBalance(t, acct, "11")

	if _, err := f.checker.Repair(context.Background(), owner, acct, "tester"); err != nil {
		t.Fatalf("Repair: %v", err)
	}
	f.wantBalance(t, acct, "10")
}

func TestRepairGoal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acct := f.open(t, domain.AccountChecking, "100")
	goal, err := f.svc.CreateGoal(ctx, owner, ledger.GoalInput{Name: "Bike", TargetAmount: d("300"), Currency: "USD"})
	if err != nil {
		t.Fatalf("CreateGoal: %v", err)
	}
	if _, err := f.svc.ContributeToGoal(ctx, owner, goal.RecordID, acct, d("30")); err != nil {
		t.Fatalf("ContributeToGoal: %v", err)
	}
	f.corruptGoal(t, goal.RecordID, "45")

	rep, err := f.checker.ReconcileGoal(ctx, owner, goal.RecordID)
	if err != nil {
		t.Fatalf("ReconcileGoal: %v", err)
	}
	if !rep.Drift.Equal(d("15")) {
		t.Errorf("drift = %s, want 15", rep.Drift)
	}
	if _, err := f.checker.RepairGoal(ctx, owner, goal.RecordID, "tester"); err != nil {
		t.Fatalf("RepairGoal: %v", err)
	}
	goals, _ := f.svc.Goals(ctx, owner)
	if len(goals) != 1 || !goals[0].CurrentAmount.Equal(d("30")) {
		t.Errorf("goals = %+v, want current amount 30", goals)
	}
}

func TestReconcileOwnerFindsOnlyDriftedRecords(t *testing.T) {
	f := newFixture(t)
	a := f.open(t, domain.AccountChecking, "10")
	b := f.open(t, domain.AccountSavings, "20")
	f.corruptBalance(t, b, "25")

	reports, err := f.checker.ReconcileOwner(context.Background(), owner)
	if err != nil {
		t.Fatalf("ReconcileOwner: %v", err)
	}
	if len(reports) != 2 {
		t.Fatalf("got %d reports, want 2", len(reports))
	}
	drifted := ledger.Drifted(reports)
	if len(drifted) != 1 || drifted[0].RecordID != b {
		t.Errorf("drifted = %+v, want only %s", drifted, b)
	}
	f.wantBalance(t, a, "10")
}

func TestReconcileUnknownAccount(t *testing.T) {
	f := newFixture(t)
	_, err := f.checker.Reconcile(context.Background(), owner, "missing")
	if !errors.Is(err, ledger.ErrReferenceNotFound) {
		t.Errorf("err = %v, want ErrReferenceNotFound", err)
	}
}
