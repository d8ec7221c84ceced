package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SavingsGoal tracks money set aside toward a target. CurrentAmount is a
// cache of the absolute amounts of its contribution transactions.
type SavingsGoal struct {
	ID            string          `json:"id"`
	OwnerID       string          `json:"owner_id"`
	Name          string          `json:"name"`
	TargetAmount  decimal.Decimal `json:"target_amount"`
	CurrentAmount decimal.Decimal `json:"current_amount"`
	Currency      string          `json:"currency"`
	TargetDate    time.Time       `json:"target_date"`
	Version       int64           `json:"version"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Remaining is how much is still needed to reach the target, floored at 0.
func (g SavingsGoal) Remaining() decimal.Decimal {
	r := g.TargetAmount.Sub(g.CurrentAmount)
	if r.IsNegative() {
		return decimal.Zero
	}
	return r
}
