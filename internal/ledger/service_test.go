package ledger_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/dvloznov/finance-ledger/internal/infra/memstore"
	"github.com/dvloznov/finance-ledger/internal/ledger"
	"github.com/dvloznov/finance-ledger/internal/logger"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const owner = "user-1"

type fixture struct {
	mem     *memstore.Store
	store   *ledger.Store
	svc     *ledger.Service
	checker *ledger.Checker
}

func logDiscard() zerolog.Logger { return logger.NewWithWriter(io.Discard) }

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := logDiscard()
	mem := memstore.New()
	store := ledger.NewStore(mem, log, ledger.WithBackoff(0), ledger.WithMaxAttempts(50))
	return &fixture{
		mem:     mem,
		store:   store,
		svc:     ledger.NewService(store, ledger.NewPlanner(), log),
		checker: ledger.NewChecker(store, nil, log),
	}
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func (f *fixture) open(t *testing.T, typ domain.AccountType, opening string) string {
	t.Helper()
	res, err := f.svc.OpenAccount(context.Background(), owner, ledger.AccountInput{
		Name: string(typ), Type: typ, Currency: "USD", OpeningBalance: d(opening),
	})
	if err != nil {
		t.Fatalf("OpenAccount: %v", err)
	}
	return res.RecordID
}

func (f *fixture) balance(t *testing.T, id string) decimal.Decimal {
	t.Helper()
	a, err := f.svc.Account(context.Background(), owner, id)
	if err != nil {
		t.Fatalf("Account(%s): %v", id, err)
	}
	return a.Balance
}

func (f *fixture) wantBalance(t *testing.T, id, want string) {
	t.Helper()
	if got := f.balance(t, id); !got.Equal(d(want)) {
		t.Errorf("balance of %s = %s, want %s", id, got, want)
	}
}

// assertConsistent checks every cached balance and goal amount against the
// transaction history.
func (f *fixture) assertConsistent(t *testing.T) {
	t.Helper()
	reports, err := f.checker.ReconcileOwner(context.Background(), owner)
	if err != nil {
		t.Fatalf("ReconcileOwner: %v", err)
	}
	for _, r := range ledger.Drifted(reports) {
		t.Errorf("%s %s drifted: stored %s, computed %s", r.Kind, r.RecordID, r.Stored, r.Computed)
	}
}

func (f *fixture) deposit(t *testing.T, acct, amount string) string {
	t.Helper()
	res, err := f.svc.CreateTransaction(context.Background(), owner, ledger.TransactionInput{
		AccountID: acct, Amount: d(amount), Type: domain.TransactionDeposit, Category: "income",
	})
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	return res.RecordID
}

func (f *fixture) withdraw(t *testing.T, acct, amount string) string {
	t.Helper()
	res, err := f.svc.CreateTransaction(context.Background(), owner, ledger.TransactionInput{
		AccountID: acct, Amount: d(amount), Type: domain.TransactionWithdrawal, Category: "spending",
	})
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	return res.RecordID
}

func TestScenarioA_DepositOnEmptyAccount(t *testing.T) {
	f := newFixture(t)
	acct := f.open(t, domain.AccountChecking, "0")

	res, err := f.svc.CreateTransaction(context.Background(), owner, ledger.TransactionInput{
		AccountID: acct, Amount: d("500"), Type: domain.TransactionDeposit, Category: "salary",
	})
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	if got, _ := res.Balance(acct); !got.Equal(d("500")) {
		t.Errorf("result balance = %s, want 500", got)
	}
	f.wantBalance(t, acct, "500")
	f.assertConsistent(t)
}

func TestScenarioB_ContributeToGoal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acct := f.open(t, domain.AccountChecking, "500")
	goalRes, err := f.svc.CreateGoal(ctx, owner, ledger.GoalInput{Name: "Holiday", TargetAmount: d("1000"), Currency: "USD"})
	if err != nil {
		t.Fatalf("CreateGoal: %v", err)
	}
	goalID := goalRes.RecordID

	res, err := f.svc.ContributeToGoal(ctx, owner, goalID, acct, d("100"))
	if err != nil {
		t.Fatalf("ContributeToGoal: %v", err)
	}
	if got := res.GoalAmounts[goalID]; !got.Equal(d("100")) {
		t.Errorf("goal amount = %s, want 100", got)
	}
	f.wantBalance(t, acct, "400")

	linked, err := f.svc.Transactions(ctx, owner, acct)
	if err != nil {
		t.Fatalf("Transactions: %v", err)
	}
	var found bool
	for _, tr := range linked {
		if tr.Link == domain.GoalContribution(goalID) {
			found = true
			if !tr.Amount.Equal(d("-100")) {
				t.Errorf("contribution amount = %s, want -100", tr.Amount)
			}
		}
	}
	if !found {
		t.Error("no linked contribution transaction")
	}
	f.assertConsistent(t)
}

func TestScenarioC_PurchaseWithInsufficientFunds(t *testing.T) {
	f := newFixture(t)
	acct := f.open(t, domain.AccountChecking, "40")
	before := f.mem.Revision()

	_, err := f.svc.PurchaseInvestment(context.Background(), owner, ledger.InvestmentInput{
		AccountID: acct, Ticker: "VTI", Quantity: d("2"), Price: d("50"),
	})
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}
	if f.mem.Revision() != before {
		t.Error("documents were written")
	}
	invs, _ := f.svc.Investments(context.Background(), owner)
	if len(invs) != 0 {
		t.Errorf("got %d investments, want 0", len(invs))
	}
	f.wantBalance(t, acct, "40")
}

func TestScenarioD_MoveTransactionBetweenAccounts(t *testing.T) {
	f := newFixture(t)
	x := f.open(t, domain.AccountChecking, "250")
	y := f.open(t, domain.AccountChecking, "10")
	txn := f.withdraw(t, x, "50")
	f.wantBalance(t, x, "200")

	_, err := f.svc.EditTransaction(context.Background(), owner, txn, ledger.TransactionInput{
		AccountID: y, Amount: d("50"), Type: domain.TransactionWithdrawal, Category: "spending",
	})
	if err != nil {
		t.Fatalf("EditTransaction: %v", err)
	}
	f.wantBalance(t, x, "250")
	f.wantBalance(t, y, "-40")
	f.assertConsistent(t)
}

func TestScenarioE_DeleteInvestment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acct := f.open(t, domain.AccountChecking, "320")
	res, err := f.svc.PurchaseInvestment(ctx, owner, ledger.InvestmentInput{
		AccountID: acct, Ticker: "VTI", Quantity: d("3"), Price: d("100"),
	})
	if err != nil {
		t.Fatalf("PurchaseInvestment: %v", err)
	}
	f.wantBalance(t, acct, "20")
	inv, err := f.svc.Investment(ctx, owner, res.RecordID)
	if err != nil {
		t.Fatalf("Investment: %v", err)
	}

	if _, err := f.svc.DeleteInvestment(ctx, owner, inv.ID); err != nil {
		t.Fatalf("DeleteInvestment: %v", err)
	}
	f.wantBalance(t, acct, "320")
	if _, err := f.svc.Investment(ctx, owner, inv.ID); !errors.Is(err, ledger.ErrReferenceNotFound) {
		t.Errorf("investment still readable: %v", err)
	}
	txns, _ := f.svc.Transactions(ctx, owner, acct)
	for _, tr := range txns {
		if tr.ID == inv.LinkedTransactionID {
			t.Error("purchase transaction was not deleted")
		}
	}
	f.assertConsistent(t)
}

func TestCreditCardDebtGrows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	card := f.open(t, domain.AccountCreditCard, "0")
	goal, err := f.svc.CreateGoal(ctx, owner, ledger.GoalInput{Name: "Car", TargetAmount: d("5000"), Currency: "USD"})
	if err != nil {
		t.Fatalf("CreateGoal: %v", err)
	}

	if _, err := f.svc.ContributeToGoal(ctx, owner, goal.RecordID, card, d("100")); err != nil {
		t.Fatalf("ContributeToGoal: %v", err)
	}
	f.wantBalance(t, card, "100")

	if _, err := f.svc.PurchaseInvestment(ctx, owner, ledger.InvestmentInput{
		AccountID: card, Ticker: "BTC", Quantity: d("0.5"), Price: d("200"),
	}); err != nil {
		t.Fatalf("PurchaseInvestment: %v", err)
	}
	f.wantBalance(t, card, "200")

	if _, err := f.svc.FundAccount(ctx, owner, card, d("150")); err != nil {
		t.Fatalf("FundAccount: %v", err)
	}
	f.wantBalance(t, card, "50")
	f.assertConsistent(t)
}

func TestCreditCardManualTransactionsUseSignedAmount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	card := f.open(t, domain.AccountCreditCard, "0")

	res, err := f.svc.CreateTransaction(ctx, owner, ledger.TransactionInput{
		AccountID: card, Amount: d("500"), Type: domain.TransactionDeposit, Category: "refund",
	})
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	if got, _ := res.Balance(card); !got.Equal(d("500")) {
		t.Errorf("result balance = %s, want 500", got)
	}
	f.withdraw(t, card, "120")
	f.wantBalance(t, card, "380")

	txns, err := f.svc.Transactions(ctx, owner, card)
	if err != nil {
		t.Fatalf("Transactions: %v", err)
	}
	sum := decimal.Zero
	for _, tr := range txns {
		sum = sum.Add(tr.Amount)
	}
	if got := f.balance(t, card); !got.Equal(sum) {
		t.Errorf("balance = %s, sum of amounts = %s", got, sum)
	}
	f.assertConsistent(t)
}

func TestCreditCardFundingIsPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	card := f.open(t, domain.AccountCreditCard, "300")

	res, err := f.svc.FundAccount(ctx, owner, card, d("100"))
	if err != nil {
		t.Fatalf("FundAccount: %v", err)
	}
	f.wantBalance(t, card, "200")

	txn := findTransaction(t, f, card, res.RecordID)
	if txn.Type != domain.TransactionPayment || !txn.Amount.Equal(d("-100")) {
		t.Errorf("funding = %s %s, want payment of -100", txn.Type, txn.Amount)
	}
	f.assertConsistent(t)
}

func TestDeleteGoalKeepsCardContributionEffect(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	card := f.open(t, domain.AccountCreditCard, "0")
	goal, err := f.svc.CreateGoal(ctx, owner, ledger.GoalInput{Name: "Bike", TargetAmount: d("800"), Currency: "USD"})
	if err != nil {
		t.Fatalf("CreateGoal: %v", err)
	}
	res, err := f.svc.ContributeToGoal(ctx, owner, goal.RecordID, card, d("30"))
	if err != nil {
		t.Fatalf("ContributeToGoal: %v", err)
	}
	f.wantBalance(t, card, "30")

	if _, err := f.svc.DeleteGoal(ctx, owner, goal.RecordID); err != nil {
		t.Fatalf("DeleteGoal: %v", err)
	}
	f.wantBalance(t, card, "30")

	txn := findTransaction(t, f, card, res.RecordID)
	if txn.IsLinked() || !txn.Amount.Equal(d("30")) {
		t.Errorf("contribution after delete = %+v, want unlinked amount 30", txn)
	}
	f.assertConsistent(t)
}

func findTransaction(t *testing.T, f *fixture, accountID, id string) domain.Transaction {
	t.Helper()
	txns, err := f.svc.Transactions(context.Background(), owner, accountID)
	if err != nil {
		t.Fatalf("Transactions: %v", err)
	}
	for _, tr := range txns {
		if tr.ID == id {
			return tr
		}
	}
	t.Fatalf("transaction %s not found on %s", id, accountID)
	return domain.Transaction{}
}

func TestApplyAtomicAddsDeltasToFreshBalances(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acct := f.open(t, domain.AccountChecking, "100")
	snap, err := f.svc.Account(ctx, owner, acct)
	if err != nil {
		t.Fatalf("Account: %v", err)
	}
	plan, err := ledger.NewPlanner().PlanCreateTransaction(snap, ledger.TransactionInput{
		AccountID: acct, Amount: d("10"), Type: domain.TransactionDeposit, Category: "income",
	})
	if err != nil {
		t.Fatalf("PlanCreateTransaction: %v", err)
	}

	// Another commit lands between planning and applying.
	f.deposit(t, acct, "5")

	res, err := f.store.ApplyAtomic(ctx, plan)
	if err != nil {
		t.Fatalf("ApplyAtomic: %v", err)
	}
	if got, _ := res.Balance(acct); !got.Equal(d("115")) {
		t.Errorf("result balance = %s, want 115", got)
	}
	f.wantBalance(t, acct, "115")
	f.assertConsistent(t)
}

func TestApplyAtomicAbortsStalePlan(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acct := f.open(t, domain.AccountChecking, "100")
	txnID := f.withdraw(t, acct, "20")
	snap, err := f.svc.Account(ctx, owner, acct)
	if err != nil {
		t.Fatalf("Account: %v", err)
	}
	existing := findTransaction(t, f, acct, txnID)
	plan, err := ledger.NewPlanner().PlanEditTransaction(existing, snap, snap, ledger.TransactionInput{
		Amount: d("30"), Type: domain.TransactionWithdrawal, Category: "spending",
	})
	if err != nil {
		t.Fatalf("PlanEditTransaction: %v", err)
	}

	if _, err := f.svc.EditTransaction(ctx, owner, txnID, ledger.TransactionInput{
		Amount: d("25"), Type: domain.TransactionWithdrawal, Category: "spending",
	}); err != nil {
		t.Fatalf("EditTransaction: %v", err)
	}
	before := f.mem.Revision()

	_, err = f.store.ApplyAtomic(ctx, plan)
	if !errors.Is(err, ledger.ErrAborted) || !errors.Is(err, ledger.ErrStalePlan) {
		t.Fatalf("err = %v, want aborted stale plan", err)
	}
	if f.mem.Revision() != before {
		t.Error("stale plan wrote documents")
	}
	f.wantBalance(t, acct, "75")
	f.assertConsistent(t)
}

func TestMutateReplansAfterStaleSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acct := f.open(t, domain.AccountChecking, "100")
	txnID := f.withdraw(t, acct, "20")
	stale := findTransaction(t, f, acct, txnID)
	if _, err := f.svc.EditTransaction(ctx, owner, txnID, ledger.TransactionInput{
		Amount: d("25"), Type: domain.TransactionWithdrawal, Category: "spending",
	}); err != nil {
		t.Fatalf("EditTransaction: %v", err)
	}

	calls := 0
	res, err := f.store.Mutate(ctx, owner, "edit transaction", func(ctx context.Context, r ledger.Reader) (*ledger.Plan, error) {
		calls++
		existing := stale
		if calls > 1 {
			fresh, err := r.GetTransaction(ctx, owner, txnID)
			if err != nil {
				return nil, err
			}
			existing = fresh
		}
		a, err := r.GetAccount(ctx, owner, acct)
		if err != nil {
			return nil, err
		}
		return ledger.NewPlanner().PlanEditTransaction(existing, a, a, ledger.TransactionInput{
			Amount: d("30"), Type: domain.TransactionWithdrawal, Category: "spending",
		})
	})
	if err != nil {
		t.Fatalf("Mutate: %v", err)
	}
	if calls != 2 || res.Attempts != 2 {
		t.Errorf("calls = %d, attempts = %d, want 2 and 2", calls, res.Attempts)
	}
	f.wantBalance(t, acct, "70")
	f.assertConsistent(t)
}

func TestBalancesMatchTransactionsAfterMixedSequence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	checking := f.open(t, domain.AccountChecking, "1000")
	savings := f.open(t, domain.AccountSavings, "0")
	card := f.open(t, domain.AccountCreditCard, "120")

	t1 := f.deposit(t, checking, "250.50")
	t2 := f.withdraw(t, checking, "75.25")
	f.withdraw(t, card, "40")
	f.deposit(t, savings, "300")

	goal, err := f.svc.CreateGoal(ctx, owner, ledger.GoalInput{Name: "Emergency", TargetAmount: d("2000"), Currency: "usd"})
	if err != nil {
		t.Fatalf("CreateGoal: %v", err)
	}
	for _, src := range []string{checking, savings, card} {
		if _, err := f.svc.ContributeToGoal(ctx, owner, goal.RecordID, src, d("25")); err != nil {
			t.Fatalf("ContributeToGoal(%s): %v", src, err)
		}
	}
	inv, err := f.svc.PurchaseInvestment(ctx, owner, ledger.InvestmentInput{AccountID: checking, Ticker: "VOO", Quantity: d("1.5"), Price: d("400")})
	if err != nil {
		t.Fatalf("PurchaseInvestment: %v", err)
	}
	if _, err := f.svc.EditInvestment(ctx, owner, inv.RecordID, ledger.InvestmentInput{AccountID: savings, Ticker: "VOO", Quantity: d("0.5"), Price: d("410")}); err != nil {
		t.Fatalf("EditInvestment: %v", err)
	}
	if _, err := f.svc.EditTransaction(ctx, owner, t1, ledger.TransactionInput{AccountID: card, Amount: d("20"), Type: domain.TransactionPayment, Category: "fees"}); err != nil {
		t.Fatalf("EditTransaction: %v", err)
	}
	if _, err := f.svc.DeleteTransaction(ctx, owner, t2); err != nil {
		t.Fatalf("DeleteTransaction: %v", err)
	}
	if _, err := f.svc.RevalueInvestment(ctx, owner, inv.RecordID, d("500")); err != nil {
		t.Fatalf("RevalueInvestment: %v", err)
	}
	f.assertConsistent(t)

	if _, err := f.svc.DeleteGoal(ctx, owner, goal.RecordID); err != nil {
		t.Fatalf("DeleteGoal: %v", err)
	}
	f.assertConsistent(t)
	txns, _ := f.svc.Transactions(ctx, owner, "")
	for _, tr := range txns {
		if tr.Link == domain.GoalContribution(goal.RecordID) {
			t.Errorf("transaction %s still linked to deleted goal", tr.ID)
		}
	}

	// checking: 1000 + 250.50 - 75.25 - 25 - 600 + 600, then t1 moves away
	// and t2 is deleted.
	f.wantBalance(t, checking, "975")
	// savings: 300 - 25 - 205
	f.wantBalance(t, savings, "70")
	// card: 120 - 40 + 25 - 20; the contribution keeps its effect after
	// the goal is deleted.
	f.wantBalance(t, card, "85")
}

func TestLinkedTransactionsAreProtected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acct := f.open(t, domain.AccountChecking, "500")
	res, err := f.svc.PurchaseInvestment(ctx, owner, ledger.InvestmentInput{AccountID: acct, Ticker: "VTI", Quantity: d("1"), Price: d("100")})
	if err != nil {
		t.Fatalf("PurchaseInvestment: %v", err)
	}
	inv, _ := f.svc.Investment(ctx, owner, res.RecordID)

	if _, err := f.svc.DeleteTransaction(ctx, owner, inv.LinkedTransactionID); !errors.Is(err, ledger.ErrValidation) {
		t.Errorf("DeleteTransaction on purchase: err = %v, want ErrValidation", err)
	}
	_, err = f.svc.EditTransaction(ctx, owner, inv.LinkedTransactionID, ledger.TransactionInput{Amount: d("1"), Type: domain.TransactionWithdrawal, Category: "x"})
	if !errors.Is(err, ledger.ErrValidation) {
		t.Errorf("EditTransaction on purchase: err = %v, want ErrValidation", err)
	}
	f.wantBalance(t, acct, "400")
}

func TestMissingReferences(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acct := f.open(t, domain.AccountChecking, "100")

	tests := []struct {
		name string
		call func() error
	}{
		{"transaction on unknown account", func() error {
			_, err := f.svc.CreateTransaction(ctx, owner, ledger.TransactionInput{AccountID: "nope", Amount: d("1"), Type: domain.TransactionDeposit, Category: "x"})
			return err
		}},
		{"edit unknown transaction", func() error {
			_, err := f.svc.EditTransaction(ctx, owner, "nope", ledger.TransactionInput{Amount: d("1"), Type: domain.TransactionDeposit, Category: "x"})
			return err
		}},
		{"contribute to unknown goal", func() error {
			_, err := f.svc.ContributeToGoal(ctx, owner, "nope", acct, d("1"))
			return err
		}},
		{"delete unknown investment", func() error {
			_, err := f.svc.DeleteInvestment(ctx, owner, "nope")
			return err
		}},
		{"other owner's account", func() error {
			_, err := f.svc.FundAccount(ctx, "user-2", acct, d("1"))
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, ledger.ErrReferenceNotFound) {
				t.Errorf("err = %v, want ErrReferenceNotFound", err)
			}
		})
	}
}

func TestValidationHappensBeforeIO(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	fail := errors.New("store touched")
	f.mem.SetFault(func(memstore.Op) error { return fail })
	before := f.mem.Revision()

	_, err := f.svc.CreateTransaction(ctx, owner, ledger.TransactionInput{AccountID: "a", Amount: d("-1"), Type: domain.TransactionDeposit, Category: "x"})
	if !errors.Is(err, ledger.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
	if f.mem.Revision() != before {
		t.Error("store was written")
	}
}

func TestAtomicityOnFailedCommit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	x := f.open(t, domain.AccountChecking, "200")
	y := f.open(t, domain.AccountChecking, "10")
	txn := f.withdraw(t, x, "50")

	snapshot := func() ([]domain.Account, []domain.Transaction) {
		accts, err := f.svc.Accounts(ctx, owner)
		if err != nil {
			t.Fatalf("Accounts: %v", err)
		}
		txns, err := f.svc.Transactions(ctx, owner, "")
		if err != nil {
			t.Fatalf("Transactions: %v", err)
		}
		return accts, txns
	}
	beforeAccts, beforeTxns := snapshot()

	crash := errors.New("simulated crash")
	f.mem.SetFault(func(op memstore.Op) error {
		if op.Index >= 1 {
			return crash
		}
		return nil
	})
	_, err := f.svc.EditTransaction(ctx, owner, txn, ledger.TransactionInput{AccountID: y, Amount: d("50"), Type: domain.TransactionWithdrawal, Category: "spending"})
	if !errors.Is(err, ledger.ErrAborted) {
		t.Fatalf("err = %v, want ErrAborted", err)
	}
	if !errors.Is(err, crash) {
		t.Errorf("err = %v, want it to wrap the crash", err)
	}
	f.mem.SetFault(nil)

	afterAccts, afterTxns := snapshot()
	for i := range beforeAccts {
		if !beforeAccts[i].Balance.Equal(afterAccts[i].Balance) || beforeAccts[i].Version != afterAccts[i].Version {
			t.Errorf("account %s changed: %+v -> %+v", beforeAccts[i].ID, beforeAccts[i], afterAccts[i])
		}
	}
	for i := range beforeTxns {
		if beforeTxns[i].AccountID != afterTxns[i].AccountID || beforeTxns[i].Version != afterTxns[i].Version {
			t.Errorf("transaction %s changed", beforeTxns[i].ID)
		}
	}
	f.assertConsistent(t)
}

func TestConcurrentMutationsDoNotLoseUpdates(t *testing.T) {
	for run := 0; run < 20; run++ {
		f := newFixture(t)
		acct := f.open(t, domain.AccountChecking, "100")

		var wg sync.WaitGroup
		start := make(chan struct{})
		errs := make(chan error, 2)
		for _, in := range []ledger.TransactionInput{
			{AccountID: acct, Amount: d("10"), Type: domain.TransactionDeposit, Category: "a"},
			{AccountID: acct, Amount: d("3"), Type: domain.TransactionWithdrawal, Category: "b"},
		} {
			wg.Add(1)
			go func(in ledger.TransactionInput) {
				defer wg.Done()
				<-start
				_, err := f.svc.CreateTransaction(context.Background(), owner, in)
				errs <- err
			}(in)
		}
		close(start)
		wg.Wait()
		close(errs)
		for err := range errs {
			if err != nil {
				t.Fatalf("run %d: %v", run, err)
			}
		}
		f.wantBalance(t, acct, "107")
	}
}

func TestConcurrentManyWriters(t *testing.T) {
	f := newFixture(t)
	acct := f.open(t, domain.AccountChecking, "0")

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.CreateTransaction(context.Background(), owner, ledger.TransactionInput{
				AccountID: acct, Amount: d("2"), Type: domain.TransactionDeposit, Category: "tip",
			})
			if err != nil {
				t.Errorf("CreateTransaction: %v", err)
			}
		}()
	}
	wg.Wait()
	f.wantBalance(t, acct, "50")
	f.assertConsistent(t)
}

func TestCancelledBeforeStart(t *testing.T) {
	f := newFixture(t)
	acct := f.open(t, domain.AccountChecking, "100")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.svc.FundAccount(ctx, owner, acct, d("5"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	f.wantBalance(t, acct, "100")
}
