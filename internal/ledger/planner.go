package ledger

import (
	"strings"
	"time"

	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	categoryOpening    = "opening balance"
	categoryDeposit    = "deposit"
	categoryPayment    = "payment"
	categorySavings    = "savings"
	categoryInvestment = "investment"
)

// TransactionInput is the user-editable part of a transaction. Amount is
// a positive magnitude; the sign comes from Type.
type TransactionInput struct {
	AccountID   string
	Amount      decimal.Decimal
	Type        domain.TransactionType
	Category    string
	Description string
	OccurredAt  time.Time
}

// Validate checks the parts of the input that do not depend on the
// account, so callers can reject bad requests before any I/O.
func (in TransactionInput) Validate() error {
	if _, err := domain.ParseTransactionType(string(in.Type)); err != nil {
		return invalid("type", "%v", err)
	}
	if !in.Amount.IsPositive() {
		return invalid("amount", "must be greater than 0")
	}
	if strings.TrimSpace(in.Category) == "" {
		return invalid("category", "is required")
	}
	return nil
}

// AccountInput describes a new account. OpeningBalance is the amount held
// (or, for a credit card, owed) at creation.
type AccountInput struct {
	Name           string
	Type           domain.AccountType
	Currency       string
	OpeningBalance decimal.Decimal
}

// GoalInput is the editable metadata of a savings goal.
type GoalInput struct {
	Name         string
	TargetAmount decimal.Decimal
	Currency     string
	TargetDate   time.Time
}

// InvestmentInput describes a purchase. AccountID is the funding account.
type InvestmentInput struct {
	AccountID    string
	Name         string
	Ticker       string
	Kind         string
	Quantity     decimal.Decimal
	Price        decimal.Decimal
	PurchaseDate time.Time
}

// Validate checks the parts of the input that do not depend on the
// account.
func (in InvestmentInput) Validate() error {
	if strings.TrimSpace(in.Ticker) == "" {
		return invalid("ticker", "is required")
	}
	if !in.Quantity.IsPositive() {
		return invalid("quantity", "must be greater than 0")
	}
	if !in.Price.IsPositive() {
		return invalid("price", "must be greater than 0")
	}
	return nil
}

// Planner turns intents into Plans. It never touches storage: callers hand
// it snapshots read inside the atomic unit that will apply the plan.
type Planner struct {
	NewID func() string
	Now   func() time.Time
}

// NewPlanner returns a Planner that uses random UUIDs and the wall clock.
func NewPlanner() *Planner {
	return &Planner{NewID: uuid.NewString, Now: time.Now}
}

func (p *Planner) now() time.Time { return p.Now().UTC() }

// PlanOpenAccount creates an account and records a non-zero opening
// balance as its first transaction.
func (p *Planner) PlanOpenAccount(ownerID string, in AccountInput) (*Plan, error) {
	if ownerID == "" {
		return nil, invalid("owner_id", "is required")
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, invalid("name", "is required")
	}
	if _, err := domain.ParseAccountType(string(in.Type)); err != nil {
		return nil, invalid("type", "%v", err)
	}
	currency, err := domain.NormalizeCurrency(in.Currency)
	if err != nil {
		return nil, invalid("currency", "%v", err)
	}
	if in.OpeningBalance.IsNegative() {
		return nil, invalid("opening_balance", "must not be negative")
	}
	if !domain.FitsCurrency(in.OpeningBalance, currency) {
		return nil, invalid("opening_balance", "too many decimal places for %s", currency)
	}

	now := p.now()
	acct := domain.Account{
		ID:        p.NewID(),
		OwnerID:   ownerID,
		Name:      name,
		Type:      in.Type,
		Balance:   decimal.Zero,
		Currency:  currency,
		CreatedAt: now,
		UpdatedAt: now,
	}
	plan := newPlan(ownerID, "open account", acct.ID)
	plan.add(InsertAccount{Account: acct})

	if in.OpeningBalance.IsPositive() {
		txn := p.newTransaction(ownerID, acct.ID, in.OpeningBalance, domain.TransactionDeposit, categoryOpening,
			"Opening balance for "+name, now, domain.NoLink)
		plan.add(InsertTransaction{Transaction: txn})
		plan.adjust(acct.ID, acct.Effect(txn))
	}
	return plan, nil
}

// PlanFundAccount adds money to an account. For a credit card this is a
// payment of -amount toward the card, which lowers the amount owed.
func (p *Planner) PlanFundAccount(acct domain.Account, amount decimal.Decimal) (*Plan, error) {
	if err := checkAmount("amount", amount, acct.Currency); err != nil {
		return nil, err
	}
	typ, category, desc := domain.TransactionDeposit, categoryDeposit, "Deposit to "+acct.Name
	if acct.Type.IsLiability() {
		typ, category, desc = domain.TransactionPayment, categoryPayment, "Payment to "+acct.Name
	}
	txn := p.newTransaction(acct.OwnerID, acct.ID, typ.Signed(amount), typ, category, desc, p.now(), domain.NoLink)

	plan := newPlan(acct.OwnerID, "fund account", txn.ID)
	plan.add(InsertTransaction{Transaction: txn})
	plan.adjust(acct.ID, acct.Effect(txn))
	return plan, nil
}

// PlanCreateTransaction records a manual transaction on acct.
func (p *Planner) PlanCreateTransaction(acct domain.Account, in TransactionInput) (*Plan, error) {
	if err := p.checkTransactionInput(acct, &in); err != nil {
		return nil, err
	}
	txn := p.newTransaction(acct.OwnerID, acct.ID, in.Type.Signed(in.Amount), in.Type, in.Category, in.Description, in.OccurredAt, domain.NoLink)

	plan := newPlan(acct.OwnerID, "create transaction", txn.ID)
	plan.add(InsertTransaction{Transaction: txn})
	plan.adjust(acct.ID, acct.Effect(txn))
	return plan, nil
}

// PlanEditTransaction rewrites existing with in. oldAcct owns existing;
// newAcct is the target account and equals oldAcct unless the transaction
// moves.
func (p *Planner) PlanEditTransaction(existing domain.Transaction, oldAcct, newAcct domain.Account, in TransactionInput) (*Plan, error) {
	if existing.IsLinked() {
		return nil, invalid("transaction", "is managed by its %s record", existing.Link.Kind)
	}
	if in.AccountID == "" {
		in.AccountID = existing.AccountID
	}
	if oldAcct.ID != existing.AccountID || newAcct.ID != in.AccountID {
		return nil, invalid("account_id", "snapshot does not match the transaction")
	}
	if err := p.checkTransactionInput(newAcct, &in); err != nil {
		return nil, err
	}
	moved := oldAcct.ID != newAcct.ID
	if moved && oldAcct.Currency != newAcct.Currency {
		return nil, invalid("account_id", "cannot move a %s transaction to a %s account", oldAcct.Currency, newAcct.Currency)
	}

	updated := existing
	updated.AccountID = newAcct.ID
	updated.Amount = in.Type.Signed(in.Amount)
	updated.Type = in.Type
	updated.Category = in.Category
	updated.Description = in.Description
	updated.OccurredAt = in.OccurredAt
	updated.UpdatedAt = p.now()

	plan := newPlan(existing.OwnerID, "edit transaction", existing.ID)
	plan.add(UpdateTransaction{Transaction: updated, ExpectedVersion: existing.Version})
	if !moved {
		plan.adjust(oldAcct.ID, oldAcct.Effect(updated).Sub(oldAcct.Effect(existing)))
		return plan, nil
	}
	plan.adjust(oldAcct.ID, oldAcct.Effect(existing).Neg())
	plan.adjust(newAcct.ID, newAcct.Effect(updated))
	return plan, nil
}

// PlanDeleteTransaction removes existing and reverses its balance effect.
func (p *Planner) PlanDeleteTransaction(existing domain.Transaction, acct domain.Account) (*Plan, error) {
	if existing.IsLinked() {
		return nil, invalid("transaction", "is managed by its %s record", existing.Link.Kind)
	}
	if acct.ID != existing.AccountID {
		return nil, invalid("account_id", "snapshot does not match the transaction")
	}
	plan := newPlan(existing.OwnerID, "delete transaction", existing.ID)
	plan.add(DeleteTransaction{ID: existing.ID, ExpectedVersion: existing.Version})
	plan.adjust(acct.ID, acct.Effect(existing).Neg())
	return plan, nil
}

// PlanCreateGoal creates an empty savings goal.
func (p *Planner) PlanCreateGoal(ownerID string, in GoalInput) (*Plan, error) {
	if ownerID == "" {
		return nil, invalid("owner_id", "is required")
	}
	if err := checkGoalInput(&in); err != nil {
		return nil, err
	}
	now := p.now()
	goal := domain.SavingsGoal{
		ID:            p.NewID(),
		OwnerID:       ownerID,
		Name:          in.Name,
		TargetAmount:  in.TargetAmount,
		CurrentAmount: decimal.Zero,
		Currency:      in.Currency,
		TargetDate:    in.TargetDate,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	plan := newPlan(ownerID, "create goal", goal.ID)
	plan.add(InsertGoal{Goal: goal})
	return plan, nil
}

// PlanUpdateGoal changes a goal's metadata. Its currency is fixed once it
// has contributions.
func (p *Planner) PlanUpdateGoal(existing domain.SavingsGoal, in GoalInput) (*Plan, error) {
	if in.Currency == "" {
		in.Currency = existing.Currency
	}
	if err := checkGoalInput(&in); err != nil {
		return nil, err
	}
	if in.Currency != existing.Currency && !existing.CurrentAmount.IsZero() {
		return nil, invalid("currency", "cannot change once contributions exist")
	}
	updated := existing
	updated.Name = in.Name
	updated.TargetAmount = in.TargetAmount
	updated.Currency = in.Currency
	updated.TargetDate = in.TargetDate
	updated.UpdatedAt = p.now()

	plan := newPlan(existing.OwnerID, "update goal", existing.ID)
	plan.add(UpdateGoal{Goal: updated, ExpectedVersion: existing.Version})
	return plan, nil
}

// PlanDeleteGoal removes a goal. Its contributions stay on their accounts
// as ordinary transactions and no balance changes. accounts holds the
// source account of every contribution. A contribution charged to a credit
// card becomes a deposit of the amount it added to the card balance.
func (p *Planner) PlanDeleteGoal(existing domain.SavingsGoal, contributions []domain.Transaction, accounts map[string]domain.Account) (*Plan, error) {
	plan := newPlan(existing.OwnerID, "delete goal", existing.ID)
	now := p.now()
	for _, t := range contributions {
		if t.Link != domain.GoalContribution(existing.ID) {
			return nil, invalid("contributions", "transaction %s is not linked to goal %s", t.ID, existing.ID)
		}
		acct, ok := accounts[t.AccountID]
		if !ok {
			return nil, invalid("contributions", "no account snapshot for transaction %s", t.ID)
		}
		unlinked := t
		unlinked.Link = domain.NoLink
		unlinked.UpdatedAt = now
		if effect := acct.Effect(t); !effect.Equal(t.Amount) {
			unlinked.Amount = effect
			unlinked.Type = domain.TransactionDeposit
		}
		plan.add(UpdateTransaction{Transaction: unlinked, ExpectedVersion: t.Version})
	}
	plan.add(DeleteGoal{ID: existing.ID, ExpectedVersion: existing.Version})
	return plan, nil
}

// PlanContributeToGoal moves amount from source into goal: a linked
// withdrawal on source plus the matching goal increment.
func (p *Planner) PlanContributeToGoal(goal domain.SavingsGoal, source domain.Account, amount decimal.Decimal) (*Plan, error) {
	if err := checkAmount("amount", amount, source.Currency); err != nil {
		return nil, err
	}
	if goal.Currency != "" && goal.Currency != source.Currency {
		return nil, invalid("account_id", "goal is in %s but account is in %s", goal.Currency, source.Currency)
	}
	if !source.CanCover(amount) {
		return nil, insufficient(source, amount)
	}

	txn := p.newTransaction(source.OwnerID, source.ID, amount.Neg(), domain.TransactionWithdrawal, categorySavings,
		"Contribution to "+goal.Name, p.now(), domain.GoalContribution(goal.ID))

	plan := newPlan(goal.OwnerID, "contribute to goal", txn.ID)
	plan.requireFunds(source.ID, amount)
	plan.add(
		InsertTransaction{Transaction: txn},
		AdjustGoal{GoalID: goal.ID, Delta: amount},
	)
	plan.adjust(source.ID, source.Effect(txn))
	return plan, nil
}

// PlanPurchaseInvestment buys quantity × price from source.
func (p *Planner) PlanPurchaseInvestment(source domain.Account, in InvestmentInput) (*Plan, error) {
	if err := p.checkInvestmentInput(source, &in); err != nil {
		return nil, err
	}
	cost := domain.Cost(in.Quantity, in.Price, source.Currency)
	if !source.CanCover(cost) {
		return nil, insufficient(source, cost)
	}

	now := p.now()
	invID := p.NewID()
	txn := p.newTransaction(source.OwnerID, source.ID, cost.Neg(), domain.TransactionWithdrawal, categoryInvestment,
		purchaseDescription(in), in.PurchaseDate, domain.InvestmentPurchase(invID))
	inv := domain.Investment{
		ID:                  invID,
		OwnerID:             source.OwnerID,
		Name:                in.Name,
		Ticker:              in.Ticker,
		Kind:                in.Kind,
		Quantity:            in.Quantity,
		PurchasePrice:       in.Price,
		PurchaseDate:        in.PurchaseDate,
		CurrentValue:        cost,
		Currency:            source.Currency,
		LinkedTransactionID: txn.ID,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	plan := newPlan(source.OwnerID, "purchase investment", invID)
	plan.requireFunds(source.ID, cost)
	plan.add(InsertTransaction{Transaction: txn}, InsertInvestment{Investment: inv})
	plan.adjust(source.ID, source.Effect(txn))
	return plan, nil
}

// PlanEditInvestment re-prices an investment and its purchase transaction.
// oldAcct funded the original purchase; newAcct funds the edited one.
func (p *Planner) PlanEditInvestment(existing domain.Investment, linked domain.Transaction, oldAcct, newAcct domain.Account, in InvestmentInput) (*Plan, error) {
	if err := checkPurchaseLink(existing, linked); err != nil {
		return nil, err
	}
	if in.AccountID == "" {
		in.AccountID = linked.AccountID
	}
	if oldAcct.ID != linked.AccountID || newAcct.ID != in.AccountID {
		return nil, invalid("account_id", "snapshot does not match the purchase")
	}
	if err := p.checkInvestmentInput(newAcct, &in); err != nil {
		return nil, err
	}
	moved := oldAcct.ID != newAcct.ID
	if moved && oldAcct.Currency != newAcct.Currency {
		return nil, invalid("account_id", "cannot move a %s purchase to a %s account", oldAcct.Currency, newAcct.Currency)
	}

	oldCost := linked.Amount.Abs()
	newCost := domain.Cost(in.Quantity, in.Price, newAcct.Currency)
	now := p.now()

	txn := linked
	txn.AccountID = newAcct.ID
	txn.Amount = newCost.Neg()
	txn.Description = purchaseDescription(in)
	txn.OccurredAt = in.PurchaseDate
	txn.UpdatedAt = now

	inv := existing
	inv.Name = in.Name
	inv.Ticker = in.Ticker
	inv.Kind = in.Kind
	inv.Quantity = in.Quantity
	inv.PurchasePrice = in.Price
	inv.PurchaseDate = in.PurchaseDate
	inv.CurrentValue = newCost // until the next price refresh
	inv.Currency = newAcct.Currency
	inv.UpdatedAt = now

	plan := newPlan(existing.OwnerID, "edit investment", existing.ID)
	if !moved {
		if increase := newCost.Sub(oldCost); increase.IsPositive() {
			if !oldAcct.CanCover(increase) {
				return nil, insufficient(oldAcct, increase)
			}
			plan.requireFunds(oldAcct.ID, increase)
		}
	} else {
		if !newAcct.CanCover(newCost) {
			return nil, insufficient(newAcct, newCost)
		}
		plan.requireFunds(newAcct.ID, newCost)
	}

	plan.add(
		UpdateTransaction{Transaction: txn, ExpectedVersion: linked.Version},
		UpdateInvestment{Investment: inv, ExpectedVersion: existing.Version},
	)
	if !moved {
		plan.adjust(oldAcct.ID, oldAcct.Effect(txn).Sub(oldAcct.Effect(linked)))
		return plan, nil
	}
	plan.adjust(oldAcct.ID, oldAcct.Effect(linked).Neg())
	plan.adjust(newAcct.ID, newAcct.Effect(txn))
	return plan, nil
}

// PlanDeleteInvestment removes the investment and its purchase and
// reverses the original debit.
func (p *Planner) PlanDeleteInvestment(existing domain.Investment, linked domain.Transaction, acct domain.Account) (*Plan, error) {
	if err := checkPurchaseLink(existing, linked); err != nil {
		return nil, err
	}
	if acct.ID != linked.AccountID {
		return nil, invalid("account_id", "snapshot does not match the purchase")
	}
	plan := newPlan(existing.OwnerID, "delete investment", existing.ID)
	plan.add(
		DeleteTransaction{ID: linked.ID, ExpectedVersion: linked.Version},
		DeleteInvestment{ID: existing.ID, ExpectedVersion: existing.Version},
	)
	plan.adjust(acct.ID, acct.Effect(linked).Neg())
	return plan, nil
}

// PlanRevalueInvestment sets CurrentValue from a market price. It does not
// touch any balance.
func (p *Planner) PlanRevalueInvestment(existing domain.Investment, price decimal.Decimal) (*Plan, error) {
	if !price.IsPositive() {
		return nil, invalid("price", "must be greater than 0")
	}
	value := domain.RoundAmount(existing.Quantity.Mul(price), existing.Currency)
	plan := newPlan(existing.OwnerID, "revalue investment", existing.ID)
	plan.add(SetInvestmentValue{ID: existing.ID, Value: value})
	return plan, nil
}

func (p *Planner) newTransaction(ownerID, accountID string, amount decimal.Decimal, typ domain.TransactionType,
	category, desc string, occurredAt time.Time, link domain.Link) domain.Transaction {
	now := p.now()
	if occurredAt.IsZero() {
		occurredAt = now
	}
	return domain.Transaction{
		ID:          p.NewID(),
		OwnerID:     ownerID,
		AccountID:   accountID,
		Amount:      amount,
		Type:        typ,
		Category:    category,
		Description: desc,
		OccurredAt:  occurredAt,
		Link:        link,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (p *Planner) checkTransactionInput(acct domain.Account, in *TransactionInput) error {
	if _, err := domain.ParseTransactionType(string(in.Type)); err != nil {
		return invalid("type", "%v", err)
	}
	if err := checkAmount("amount", in.Amount, acct.Currency); err != nil {
		return err
	}
	in.Category = strings.TrimSpace(in.Category)
	if in.Category == "" {
		return invalid("category", "is required")
	}
	in.Description = strings.TrimSpace(in.Description)
	if in.OccurredAt.IsZero() {
		in.OccurredAt = p.now()
	}
	return nil
}

func (p *Planner) checkInvestmentInput(source domain.Account, in *InvestmentInput) error {
	in.Ticker = strings.ToUpper(strings.TrimSpace(in.Ticker))
	if in.Ticker == "" {
		return invalid("ticker", "is required")
	}
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		in.Name = in.Ticker
	}
	in.Kind = strings.TrimSpace(in.Kind)
	if !in.Quantity.IsPositive() {
		return invalid("quantity", "must be greater than 0")
	}
	if !in.Price.IsPositive() {
		return invalid("price", "must be greater than 0")
	}
	if domain.Cost(in.Quantity, in.Price, source.Currency).IsZero() {
		return invalid("price", "purchase cost rounds to zero in %s", source.Currency)
	}
	if in.PurchaseDate.IsZero() {
		in.PurchaseDate = p.now()
	}
	return nil
}

func checkGoalInput(in *GoalInput) error {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return invalid("name", "is required")
	}
	currency, err := domain.NormalizeCurrency(in.Currency)
	if err != nil {
		return invalid("currency", "%v", err)
	}
	in.Currency = currency
	if err := checkAmount("target_amount", in.TargetAmount, currency); err != nil {
		return err
	}
	return nil
}

func checkAmount(field string, amount decimal.Decimal, currency string) error {
	if !amount.IsPositive() {
		return invalid(field, "must be greater than 0")
	}
	if !domain.FitsCurrency(amount, currency) {
		return invalid(field, "too many decimal places for %s", currency)
	}
	return nil
}

func checkPurchaseLink(inv domain.Investment, linked domain.Transaction) error {
	if linked.ID != inv.LinkedTransactionID || linked.Link != domain.InvestmentPurchase(inv.ID) {
		return invalid("investment", "purchase transaction %s does not belong to investment %s", linked.ID, inv.ID)
	}
	return nil
}

func purchaseDescription(in InvestmentInput) string {
	return "Purchase of " + in.Quantity.String() + " " + in.Ticker
}
