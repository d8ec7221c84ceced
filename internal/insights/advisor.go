package insights

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/dvloznov/finance-ledger/internal/ledger"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// minDescriptionLen is the shortest spending or goals description accepted.
const minDescriptionLen = 10

// ErrNoPrice means the model did not return a usable price.
var ErrNoPrice = errors.New("no market price available")

// InsightsRequest describes the user's situation in free text.
type InsightsRequest struct {
	SpendingHabits string `json:"spending_habits"`
	FinancialGoals string `json:"financial_goals"`
}

// Validate checks both descriptions before any model call.
func (r InsightsRequest) Validate() error {
	if utf8.RuneCountInString(strings.TrimSpace(r.SpendingHabits)) < minDescriptionLen {
		return &ledger.ValidationError{Field: "spending_habits", Message: "please describe your spending habits in more detail"}
	}
	if utf8.RuneCountInString(strings.TrimSpace(r.FinancialGoals)) < minDescriptionLen {
		return &ledger.ValidationError{Field: "financial_goals", Message: "please describe your financial goals in more detail"}
	}
	return nil
}

// Advisor produces personalized insights and market prices from a Generator.
type Advisor struct {
	gen Generator
	log zerolog.Logger
}

// NewAdvisor creates an Advisor.
func NewAdvisor(gen Generator, log zerolog.Logger) *Advisor {
	return &Advisor{gen: gen, log: log}
}

// Insights returns Markdown recommendations for the request.
func (a *Advisor) Insights(ctx context.Context, req InsightsRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	text, err := a.gen.Generate(ctx, buildInsightsPrompt(req))
	if err != nil {
		a.log.Error().Err(err).Msg("Failed to generate insights")
		return "", fmt.Errorf("Insights: %w", err)
	}
	return strings.TrimSpace(text), nil
}

// MarketPrice returns the current price of one unit of ticker.
func (a *Advisor) MarketPrice(ctx context.Context, ticker string) (decimal.Decimal, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return decimal.Zero, &ledger.ValidationError{Field: "ticker", Message: "is required"}
	}

	text, err := a.gen.Generate(ctx, buildPricePrompt(ticker))
	if err != nil {
		return decimal.Zero, fmt.Errorf("MarketPrice: %w", err)
	}

	price, err := parsePrice(text)
	if err != nil {
		a.log.Warn().Err(err).Str("ticker", ticker).Str("raw", text).Msg("Unusable market price response")
		return decimal.Zero, fmt.Errorf("MarketPrice: %s: %w", ticker, err)
	}

	a.log.Debug().Str("ticker", ticker).Stringer("price", price).Msg("Market price fetched")
	return price, nil
}

func parsePrice(raw string) (decimal.Decimal, error) {
	var out struct {
		Price json.Number `json:"price"`
	}
	dec := json.NewDecoder(strings.NewReader(cleanModelJSON(raw)))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return decimal.Zero, fmt.Errorf("%w: decoding response: %v", ErrNoPrice, err)
	}
	if out.Price == "" {
		return decimal.Zero, fmt.Errorf("%w: missing price field", ErrNoPrice)
	}
	price, err := decimal.NewFromString(out.Price.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrNoPrice, err)
	}
	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: price %s is not positive", ErrNoPrice, price)
	}
	return price, nil
}

func buildInsightsPrompt(req InsightsRequest) string {
	var b strings.Builder
	b.WriteString("You are a financial advisor providing personalized financial insights and recommendations.\n\n")
	b.WriteString("Based on the user's spending habits and financial goals, provide actionable insights ")
	b.WriteString("and recommendations to improve their financial well-being.\n")
	b.WriteString("Answer in Markdown with short sections and bullet points.\n\n")
	b.WriteString("Spending Habits: " + strings.TrimSpace(req.SpendingHabits) + "\n")
	b.WriteString("Financial Goals: " + strings.TrimSpace(req.FinancialGoals) + "\n\n")
	b.WriteString("Insights:")
	return b.String()
}

func buildPricePrompt(ticker string) string {
	return "You are a financial data service.\n\n" +
		"Task:\n" +
		"- Give the latest known market price for one unit of the instrument with ticker symbol " + ticker + ".\n" +
		"- Output STRICT JSON only: {\"price\": number}\n\n" +
		"Return ONLY valid raw JSON.\n" +
		"Do NOT wrap the response in code fences.\n"
}
