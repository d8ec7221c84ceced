package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// AccountType classifies an account. Credit cards hold an amount owed and
// are never blocked for lack of funds.
type AccountType string

const (
	AccountChecking   AccountType = "checking"
	AccountSavings    AccountType = "savings"
	AccountCreditCard AccountType = "credit_card"
	AccountInvestment AccountType = "investment"
)

// ParseAccountType validates s as an AccountType.
func ParseAccountType(s string) (AccountType, error) {
	switch t := AccountType(s); t {
	case AccountChecking, AccountSavings, AccountCreditCard, AccountInvestment:
		return t, nil
	default:
		return "", fmt.Errorf("unknown account type %q", s)
	}
}

// IsLiability reports whether a positive balance means money owed.
func (t AccountType) IsLiability() bool {
	return t == AccountCreditCard
}

// Account is a user's money container. Balance is a cache of the
// transactions recorded against it and is only written by the ledger.
type Account struct {
	ID        string          `json:"id"`
	OwnerID   string          `json:"owner_id"`
	Name      string          `json:"name"`
	Type      AccountType     `json:"type"`
	Balance   decimal.Decimal `json:"balance"`
	Currency  string          `json:"currency"`
	Version   int64           `json:"version"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Effect is the change in Balance caused by t. Every transaction moves the
// balance by its signed amount, except a goal contribution or investment
// purchase charged to a credit card: that grows the amount owed.
func (a Account) Effect(t Transaction) decimal.Decimal {
	if a.Type.IsLiability() && t.IsLinked() {
		return t.Amount.Neg()
	}
	return t.Amount
}

// CanCover reports whether the account may fund an outflow of amount.
// Credit cards are never blocked.
func (a Account) CanCover(amount decimal.Decimal) bool {
	if a.Type.IsLiability() {
		return true
	}
	return a.Balance.GreaterThanOrEqual(amount)
}
