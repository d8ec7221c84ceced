package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Investment is a holding bought from a source account. The purchase is
// recorded as the linked withdrawal transaction.
type Investment struct {
	ID                  string          `json:"id"`
	OwnerID             string          `json:"owner_id"`
	Name                string          `json:"name"`
	Ticker              string          `json:"ticker"`
	Kind                string          `json:"kind,omitempty"`
	Quantity            decimal.Decimal `json:"quantity"`
	PurchasePrice       decimal.Decimal `json:"purchase_price"`
	PurchaseDate        time.Time       `json:"purchase_date"`
	CurrentValue        decimal.Decimal `json:"current_value"`
	Currency            string          `json:"currency"`
	LinkedTransactionID string          `json:"linked_transaction_id"`
	Version             int64           `json:"version"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// Cost is quantity × purchase price rounded to the currency's minor unit.
func Cost(quantity, price decimal.Decimal, currency string) decimal.Decimal {
	return RoundAmount(quantity.Mul(price), currency)
}
