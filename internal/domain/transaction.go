package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType is the user-facing kind of a money movement.
type TransactionType string

const (
	TransactionDeposit    TransactionType = "deposit"
	TransactionWithdrawal TransactionType = "withdrawal"
	TransactionPayment    TransactionType = "payment"
)

// ParseTransactionType validates s as a TransactionType.
func ParseTransactionType(s string) (TransactionType, error) {
	switch t := TransactionType(s); t {
	case TransactionDeposit, TransactionWithdrawal, TransactionPayment:
		return t, nil
	default:
		return "", fmt.Errorf("unknown transaction type %q", s)
	}
}

// Signed returns amount with the sign implied by the type: deposits are
// inflows, everything else is an outflow. amount is expected positive.
func (t TransactionType) Signed(amount decimal.Decimal) decimal.Decimal {
	if t == TransactionDeposit {
		return amount.Abs()
	}
	return amount.Abs().Neg()
}

// Transaction is one money movement on an account.
type Transaction struct {
	ID          string          `json:"id"`
	OwnerID     string          `json:"owner_id"`
	AccountID   string          `json:"account_id"`
	Amount      decimal.Decimal `json:"amount"` // positive=inflow, negative=outflow
	Type        TransactionType `json:"type"`
	Category    string          `json:"category"`
	Description string          `json:"description,omitempty"`
	OccurredAt  time.Time       `json:"occurred_at"`
	Link        Link            `json:"link"`
	Version     int64           `json:"version"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// IsLinked reports whether the transaction belongs to another record.
func (t Transaction) IsLinked() bool {
	return t.Link.Kind != LinkNone
}
