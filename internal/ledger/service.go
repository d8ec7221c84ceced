package ledger

import (
	"context"
	"strings"

	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Service is the entry point for UI action handlers. Every mutation reads
// its snapshots, plans and applies inside a single atomic unit.
type Service struct {
	store   *Store
	planner *Planner
	log     zerolog.Logger
}

// NewService wires a Service.
func NewService(store *Store, planner *Planner, log zerolog.Logger) *Service {
	return &Service{store: store, planner: planner, log: log}
}

// Store returns the underlying ledger store.
func (s *Service) Store() *Store { return s.store }

func (s *Service) mutate(ctx context.Context, ownerID, intent string, fn PlanFunc) (Result, error) {
	if strings.TrimSpace(ownerID) == "" {
		return Result{}, invalid("owner_id", "is required")
	}
	res, err := s.store.Mutate(ctx, ownerID, intent, fn)
	if err != nil {
		return Result{}, err
	}
	s.log.Info().
		Str("owner_id", ownerID).
		Str("intent", intent).
		Str("record_id", res.RecordID).
		Int("attempts", res.Attempts).
		Msg("Ledger updated")
	return res, nil
}

func getAccount(ctx context.Context, r Reader, ownerID, id string) (domain.Account, error) {
	a, err := r.GetAccount(ctx, ownerID, id)
	if err != nil {
		return domain.Account{}, notFound("account", id, err)
	}
	return a, nil
}

func getTransaction(ctx context.Context, r Reader, ownerID, id string) (domain.Transaction, error) {
	t, err := r.GetTransaction(ctx, ownerID, id)
	if err != nil {
		return domain.Transaction{}, notFound("transaction", id, err)
	}
	return t, nil
}

func getGoal(ctx context.Context, r Reader, ownerID, id string) (domain.SavingsGoal, error) {
	g, err := r.GetGoal(ctx, ownerID, id)
	if err != nil {
		return domain.SavingsGoal{}, notFound("goal", id, err)
	}
	return g, nil
}

func getInvestment(ctx context.Context, r Reader, ownerID, id string) (domain.Investment, error) {
	inv, err := r.GetInvestment(ctx, ownerID, id)
	if err != nil {
		return domain.Investment{}, notFound("investment", id, err)
	}
	return inv, nil
}

func requireID(field, id string) error {
	if strings.TrimSpace(id) == "" {
		return invalid(field, "is required")
	}
	return nil
}

// OpenAccount creates an account with an optional opening balance.
func (s *Service) OpenAccount(ctx context.Context, ownerID string, in AccountInput) (Result, error) {
	if _, err := s.planner.PlanOpenAccount(ownerID, in); err != nil {
		return Result{}, err
	}
	return s.mutate(ctx, ownerID, "open account", func(context.Context, Reader) (*Plan, error) {
		return s.planner.PlanOpenAccount(ownerID, in)
	})
}

// FundAccount adds money to an account (or pays down a card).
func (s *Service) FundAccount(ctx context.Context, ownerID, accountID string, amount decimal.Decimal) (Result, error) {
	if err := requireID("account_id", accountID); err != nil {
		return Result{}, err
	}
	if !amount.IsPositive() {
		return Result{}, invalid("amount", "must be greater than 0")
	}
	return s.mutate(ctx, ownerID, "fund account", func(ctx context.Context, r Reader) (*Plan, error) {
		acct, err := getAccount(ctx, r, ownerID, accountID)
		if err != nil {
			return nil, err
		}
		return s.planner.PlanFundAccount(acct, amount)
	})
}

// CreateTransaction records a manual transaction.
func (s *Service) CreateTransaction(ctx context.Context, ownerID string, in TransactionInput) (Result, error) {
	if err := in.Validate(); err != nil {
		return Result{}, err
	}
	if err := requireID("account_id", in.AccountID); err != nil {
		return Result{}, err
	}
	return s.mutate(ctx, ownerID, "create transaction", func(ctx context.Context, r Reader) (*Plan, error) {
		acct, err := getAccount(ctx, r, ownerID, in.AccountID)
		if err != nil {
			return nil, err
		}
		return s.planner.PlanCreateTransaction(acct, in)
	})
}

// EditTransaction changes a manual transaction, possibly moving it to
// another account.
func (s *Service) EditTransaction(ctx context.Context, ownerID, txnID string, in TransactionInput) (Result, error) {
	if err := requireID("transaction_id", txnID); err != nil {
		return Result{}, err
	}
	if err := in.Validate(); err != nil {
		return Result{}, err
	}
	return s.mutate(ctx, ownerID, "edit transaction", func(ctx context.Context, r Reader) (*Plan, error) {
		existing, err := getTransaction(ctx, r, ownerID, txnID)
		if err != nil {
			return nil, err
		}
		oldAcct, err := getAccount(ctx, r, ownerID, existing.AccountID)
		if err != nil {
			return nil, err
		}
		newAcct := oldAcct
		if in.AccountID != "" && in.AccountID != existing.AccountID {
			if newAcct, err = getAccount(ctx, r, ownerID, in.AccountID); err != nil {
				return nil, err
			}
		}
		return s.planner.PlanEditTransaction(existing, oldAcct, newAcct, in)
	})
}

// DeleteTransaction removes a manual transaction.
func (s *Service) DeleteTransaction(ctx context.Context, ownerID, txnID string) (Result, error) {
	if err := requireID("transaction_id", txnID); err != nil {
		return Result{}, err
	}
	return s.mutate(ctx, ownerID, "delete transaction", func(ctx context.Context, r Reader) (*Plan, error) {
		existing, err := getTransaction(ctx, r, ownerID, txnID)
		if err != nil {
			return nil, err
		}
		acct, err := getAccount(ctx, r, ownerID, existing.AccountID)
		if err != nil {
			return nil, err
		}
		return s.planner.PlanDeleteTransaction(existing, acct)
	})
}

// CreateGoal creates a savings goal.
func (s *Service) CreateGoal(ctx context.Context, ownerID string, in GoalInput) (Result, error) {
	if _, err := s.planner.PlanCreateGoal(ownerID, in); err != nil {
		return Result{}, err
	}
	return s.mutate(ctx, ownerID, "create goal", func(context.Context, Reader) (*Plan, error) {
		return s.planner.PlanCreateGoal(ownerID, in)
	})
}

// UpdateGoal edits a goal's metadata.
func (s *Service) UpdateGoal(ctx context.Context, ownerID, goalID string, in GoalInput) (Result, error) {
	if err := requireID("goal_id", goalID); err != nil {
		return Result{}, err
	}
	return s.mutate(ctx, ownerID, "update goal", func(ctx context.Context, r Reader) (*Plan, error) {
		goal, err := getGoal(ctx, r, ownerID, goalID)
		if err != nil {
			return nil, err
		}
		return s.planner.PlanUpdateGoal(goal, in)
	})
}

// DeleteGoal removes a goal and unlinks its contributions.
func (s *Service) DeleteGoal(ctx context.Context, ownerID, goalID string) (Result, error) {
	if err := requireID("goal_id", goalID); err != nil {
		return Result{}, err
	}
	return s.mutate(ctx, ownerID, "delete goal", func(ctx context.Context, r Reader) (*Plan, error) {
		goal, err := getGoal(ctx, r, ownerID, goalID)
		if err != nil {
			return nil, err
		}
		contributions, err := r.ListLinkedTransactions(ctx, ownerID, domain.GoalContribution(goalID))
		if err != nil {
			return nil, err
		}
		accounts := make(map[string]domain.Account)
		for _, t := range contributions {
			if _, ok := accounts[t.AccountID]; ok {
				continue
			}
			a, err := getAccount(ctx, r, ownerID, t.AccountID)
			if err != nil {
				return nil, err
			}
			accounts[t.AccountID] = a
		}
		return s.planner.PlanDeleteGoal(goal, contributions, accounts)
	})
}

// ContributeToGoal moves amount from an account into a goal.
func (s *Service) ContributeToGoal(ctx context.Context, ownerID, goalID, accountID string, amount decimal.Decimal) (Result, error) {
	if err := requireID("goal_id", goalID); err != nil {
		return Result{}, err
	}
	if err := requireID("account_id", accountID); err != nil {
		return Result{}, err
	}
	if !amount.IsPositive() {
		return Result{}, invalid("amount", "must be greater than 0")
	}
	return s.mutate(ctx, ownerID, "contribute to goal", func(ctx context.Context, r Reader) (*Plan, error) {
		goal, err := getGoal(ctx, r, ownerID, goalID)
		if err != nil {
			return nil, err
		}
		source, err := getAccount(ctx, r, ownerID, accountID)
		if err != nil {
			return nil, err
		}
		return s.planner.PlanContributeToGoal(goal, source, amount)
	})
}

// PurchaseInvestment buys an investment from a funding account.
func (s *Service) PurchaseInvestment(ctx context.Context, ownerID string, in InvestmentInput) (Result, error) {
	if err := in.Validate(); err != nil {
		return Result{}, err
	}
	if err := requireID("account_id", in.AccountID); err != nil {
		return Result{}, err
	}
	return s.mutate(ctx, ownerID, "purchase investment", func(ctx context.Context, r Reader) (*Plan, error) {
		source, err := getAccount(ctx, r, ownerID, in.AccountID)
		if err != nil {
			return nil, err
		}
		return s.planner.PlanPurchaseInvestment(source, in)
	})
}

func (s *Service) purchaseSnapshot(ctx context.Context, r Reader, ownerID, invID string) (domain.Investment, domain.Transaction, domain.Account, error) {
	inv, err := getInvestment(ctx, r, ownerID, invID)
	if err != nil {
		return domain.Investment{}, domain.Transaction{}, domain.Account{}, err
	}
	linked, err := getTransaction(ctx, r, ownerID, inv.LinkedTransactionID)
	if err != nil {
		return domain.Investment{}, domain.Transaction{}, domain.Account{}, err
	}
	acct, err := getAccount(ctx, r, ownerID, linked.AccountID)
	if err != nil {
		return domain.Investment{}, domain.Transaction{}, domain.Account{}, err
	}
	return inv, linked, acct, nil
}

// EditInvestment re-prices an investment and its purchase.
func (s *Service) EditInvestment(ctx context.Context, ownerID, invID string, in InvestmentInput) (Result, error) {
	if err := requireID("investment_id", invID); err != nil {
		return Result{}, err
	}
	if err := in.Validate(); err != nil {
		return Result{}, err
	}
	return s.mutate(ctx, ownerID, "edit investment", func(ctx context.Context, r Reader) (*Plan, error) {
		inv, linked, oldAcct, err := s.purchaseSnapshot(ctx, r, ownerID, invID)
		if err != nil {
			return nil, err
		}
		newAcct := oldAcct
		if in.AccountID != "" && in.AccountID != oldAcct.ID {
			if newAcct, err = getAccount(ctx, r, ownerID, in.AccountID); err != nil {
				return nil, err
			}
		}
		return s.planner.PlanEditInvestment(inv, linked, oldAcct, newAcct, in)
	})
}

// DeleteInvestment removes an investment and refunds its purchase.
func (s *Service) DeleteInvestment(ctx context.Context, ownerID, invID string) (Result, error) {
	if err := requireID("investment_id", invID); err != nil {
		return Result{}, err
	}
	return s.mutate(ctx, ownerID, "delete investment", func(ctx context.Context, r Reader) (*Plan, error) {
		inv, linked, acct, err := s.purchaseSnapshot(ctx, r, ownerID, invID)
		if err != nil {
			return nil, err
		}
		return s.planner.PlanDeleteInvestment(inv, linked, acct)
	})
}

// RevalueInvestment stores a new market value for an investment.
func (s *Service) RevalueInvestment(ctx context.Context, ownerID, invID string, price decimal.Decimal) (Result, error) {
	if err := requireID("investment_id", invID); err != nil {
		return Result{}, err
	}
	return s.mutate(ctx, ownerID, "revalue investment", func(ctx context.Context, r Reader) (*Plan, error) {
		inv, err := getInvestment(ctx, r, ownerID, invID)
		if err != nil {
			return nil, err
		}
		return s.planner.PlanRevalueInvestment(inv, price)
	})
}

// Account returns one account.
func (s *Service) Account(ctx context.Context, ownerID, id string) (domain.Account, error) {
	var out domain.Account
	err := s.store.View(ctx, func(ctx context.Context, r Reader) error {
		a, err := getAccount(ctx, r, ownerID, id)
		out = a
		return err
	})
	return out, err
}

// Investment returns one investment.
func (s *Service) Investment(ctx context.Context, ownerID, id string) (domain.Investment, error) {
	var out domain.Investment
	err := s.store.View(ctx, func(ctx context.Context, r Reader) error {
		inv, err := getInvestment(ctx, r, ownerID, id)
		out = inv
		return err
	})
	return out, err
}

// Accounts lists the owner's accounts.
func (s *Service) Accounts(ctx context.Context, ownerID string) ([]domain.Account, error) {
	var out []domain.Account
	err := s.store.View(ctx, func(ctx context.Context, r Reader) (err error) {
		out, err = r.ListAccounts(ctx, ownerID)
		return err
	})
	return out, err
}

// Transactions lists transactions, optionally for a single account.
func (s *Service) Transactions(ctx context.Context, ownerID, accountID string) ([]domain.Transaction, error) {
	var out []domain.Transaction
	err := s.store.View(ctx, func(ctx context.Context, r Reader) (err error) {
		out, err = r.ListTransactions(ctx, ownerID, accountID)
		return err
	})
	return out, err
}

// Goals lists savings goals.
func (s *Service) Goals(ctx context.Context, ownerID string) ([]domain.SavingsGoal, error) {
	var out []domain.SavingsGoal
	err := s.store.View(ctx, func(ctx context.Context, r Reader) (err error) {
		out, err = r.ListGoals(ctx, ownerID)
		return err
	})
	return out, err
}

// Investments lists investments.
func (s *Service) Investments(ctx context.Context, ownerID string) ([]domain.Investment, error) {
	var out []domain.Investment
	err := s.store.View(ctx, func(ctx context.Context, r Reader) (err error) {
		out, err = r.ListInvestments(ctx, ownerID)
		return err
	})
	return out, err
}
