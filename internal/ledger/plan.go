package ledger

import (
	"fmt"
	"strings"

	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/shopspring/decimal"
)

// Write is one typed document mutation inside a Plan.
type Write interface {
	describe() string
}

// InsertAccount creates an account. Its balance starts at zero; opening
// balances arrive through an AdjustBalance in the same plan.
type InsertAccount struct{ Account domain.Account }

// InsertTransaction creates a transaction document.
type InsertTransaction struct{ Transaction domain.Transaction }

// UpdateTransaction replaces a transaction that must still be at
// ExpectedVersion.
type UpdateTransaction struct {
	Transaction     domain.Transaction
	ExpectedVersion int64
}

// DeleteTransaction removes a transaction that must still be at
// ExpectedVersion.
type DeleteTransaction struct {
	ID              string
	ExpectedVersion int64
}

// InsertInvestment creates an investment document.
type InsertInvestment struct{ Investment domain.Investment }

// UpdateInvestment replaces an investment that must still be at
// ExpectedVersion.
type UpdateInvestment struct {
	Investment      domain.Investment
	ExpectedVersion int64
}

// DeleteInvestment removes an investment that must still be at
// ExpectedVersion.
type DeleteInvestment struct {
	ID              string
	ExpectedVersion int64
}

// SetInvestmentValue overwrites CurrentValue on the freshly read document.
// It is not version checked: a refresh never races a ledger write.
type SetInvestmentValue struct {
	ID    string
	Value decimal.Decimal
}

// InsertGoal creates a savings goal with a zero CurrentAmount.
type InsertGoal struct{ Goal domain.SavingsGoal }

// UpdateGoal copies the goal's metadata (name, target, date) onto the
// stored document. CurrentAmount is never taken from the plan.
type UpdateGoal struct {
	Goal            domain.SavingsGoal
	ExpectedVersion int64
}

// DeleteGoal removes a goal that must still be at ExpectedVersion.
type DeleteGoal struct {
	ID              string
	ExpectedVersion int64
}

// AdjustBalance adds Delta to the account's balance as read inside the
// atomic unit.
type AdjustBalance struct {
	AccountID string
	Delta     decimal.Decimal
}

// AdjustGoal adds Delta to the goal's CurrentAmount as read inside the
// atomic unit.
type AdjustGoal struct {
	GoalID string
	Delta  decimal.Decimal
}

func (w InsertAccount) describe() string     { return "insert account " + w.Account.ID }
func (w InsertTransaction) describe() string { return "insert transaction " + w.Transaction.ID }
func (w UpdateTransaction) describe() string { return "update transaction " + w.Transaction.ID }
func (w DeleteTransaction) describe() string { return "delete transaction " + w.ID }
func (w InsertInvestment) describe() string  { return "insert investment " + w.Investment.ID }
func (w UpdateInvestment) describe() string  { return "update investment " + w.Investment.ID }
func (w DeleteInvestment) describe() string  { return "delete investment " + w.ID }
func (w SetInvestmentValue) describe() string {
	return "revalue investment " + w.ID + " to " + w.Value.String()
}
func (w InsertGoal) describe() string { return "insert goal " + w.Goal.ID }
func (w UpdateGoal) describe() string { return "update goal " + w.Goal.ID }
func (w DeleteGoal) describe() string { return "delete goal " + w.ID }
func (w AdjustBalance) describe() string {
	return fmt.Sprintf("adjust account %s by %s", w.AccountID, w.Delta)
}
func (w AdjustGoal) describe() string {
	return fmt.Sprintf("adjust goal %s by %s", w.GoalID, w.Delta)
}

// RequireFunds is a precondition checked against the balance read inside
// the atomic unit, before any of the plan's writes. Credit cards pass.
type RequireFunds struct {
	AccountID string
	Amount    decimal.Decimal
}

// Plan is an ordered, all-or-nothing set of writes for one owner.
type Plan struct {
	OwnerID string
	Intent  string
	// RecordID is the primary record the intent created or changed.
	RecordID string
	Checks   []RequireFunds
	Writes   []Write
}

func newPlan(ownerID, intent, recordID string) *Plan {
	return &Plan{OwnerID: ownerID, Intent: intent, RecordID: recordID}
}

func (p *Plan) add(w ...Write) { p.Writes = append(p.Writes, w...) }

// adjust appends a balance adjustment unless delta is zero.
func (p *Plan) adjust(accountID string, delta decimal.Decimal) {
	if delta.IsZero() {
		return
	}
	p.add(AdjustBalance{AccountID: accountID, Delta: delta})
}

func (p *Plan) requireFunds(accountID string, amount decimal.Decimal) {
	p.Checks = append(p.Checks, RequireFunds{AccountID: accountID, Amount: amount})
}

// BalanceDeltas sums the plan's balance adjustments per account.
func (p *Plan) BalanceDeltas() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	for _, w := range p.Writes {
		if adj, ok := w.(AdjustBalance); ok {
			out[adj.AccountID] = out[adj.AccountID].Add(adj.Delta)
		}
	}
	return out
}

func (p *Plan) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (owner %s)", p.Intent, p.OwnerID)
	for _, c := range p.Checks {
		fmt.Fprintf(&b, "\n  require %s on account %s", c.Amount, c.AccountID)
	}
	for _, w := range p.Writes {
		b.WriteString("\n  ")
		b.WriteString(w.describe())
	}
	return b.String()
}
