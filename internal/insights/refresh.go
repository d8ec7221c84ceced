package insights

import (
	"context"
	"fmt"

	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/dvloznov/finance-ledger/internal/ledger"
	"github.com/shopspring/decimal"
)

// PriceSource returns the current unit price of a ticker.
type PriceSource interface {
	MarketPrice(ctx context.Context, ticker string) (decimal.Decimal, error)
}

// InvestmentStore is the part of the ledger service used by the refresher.
type InvestmentStore interface {
	Investment(ctx context.Context, ownerID, id string) (domain.Investment, error)
	RevalueInvestment(ctx context.Context, ownerID, invID string, price decimal.Decimal) (ledger.Result, error)
}

// PriceRefresher revalues investments from a PriceSource.
type PriceRefresher struct {
	prices PriceSource
	store  InvestmentStore
}

// NewPriceRefresher creates a PriceRefresher.
func NewPriceRefresher(prices PriceSource, store InvestmentStore) *PriceRefresher {
	return &PriceRefresher{prices: prices, store: store}
}

// Refresh fetches the ticker price for an investment and stores the new
// current value. When the price cannot be fetched nothing is written and
// the investment keeps its previous CurrentValue.
func (p *PriceRefresher) Refresh(ctx context.Context, ownerID, invID string) (domain.Investment, error) {
	inv, err := p.store.Investment(ctx, ownerID, invID)
	if err != nil {
		return domain.Investment{}, fmt.Errorf("Refresh: loading investment: %w", err)
	}

	price, err := p.prices.MarketPrice(ctx, inv.Ticker)
	if err != nil {
		return inv, fmt.Errorf("Refresh: %w", err)
	}

	if _, err := p.store.RevalueInvestment(ctx, ownerID, invID, price); err != nil {
		return inv, fmt.Errorf("Refresh: revaluing investment: %w", err)
	}
	return p.store.Investment(ctx, ownerID, invID)
}

// Ensure the ledger service satisfies InvestmentStore.
var _ InvestmentStore = (*ledger.Service)(nil)
