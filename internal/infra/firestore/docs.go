package firestore

import (
	"fmt"
	"time"

	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/shopspring/decimal"
)

// Amounts are stored as decimal strings: Firestore numbers are float64 and
// would lose cents.

type accountDoc struct {
	ID        string    `firestore:"id"`
	OwnerID   string    `firestore:"ownerId"`
	Name      string    `firestore:"name"`
	Type      string    `firestore:"type"`
	Balance   string    `firestore:"balance"`
	Currency  string    `firestore:"currency"`
	Version   int64     `firestore:"version"`
	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

type transactionDoc struct {
	ID             string    `firestore:"id"`
	OwnerID        string    `firestore:"ownerId"`
	AccountID      string    `firestore:"accountId"`
	Amount         string    `firestore:"amount"`
	Type           string    `firestore:"type"`
	Category       string    `firestore:"category"`
	Description    string    `firestore:"description,omitempty"`
	OccurredAt     time.Time `firestore:"occurredAt"`
	LinkKind       string    `firestore:"linkKind"`
	LinkedRecordID string    `firestore:"linkedRecordId"`
	Version        int64     `firestore:"version"`
	CreatedAt      time.Time `firestore:"createdAt"`
	UpdatedAt      time.Time `firestore:"updatedAt"`
}

type goalDoc struct {
	ID            string    `firestore:"id"`
	OwnerID       string    `firestore:"ownerId"`
	Name          string    `firestore:"name"`
	TargetAmount  string    `firestore:"targetAmount"`
	CurrentAmount string    `firestore:"currentAmount"`
	Currency      string    `firestore:"currency"`
	TargetDate    time.Time `firestore:"targetDate,omitempty"`
	Version       int64     `firestore:"version"`
	CreatedAt     time.Time `firestore:"createdAt"`
	UpdatedAt     time.Time `firestore:"updatedAt"`
}

type investmentDoc struct {
	ID                  string    `firestore:"id"`
	OwnerID             string    `firestore:"ownerId"`
	Name                string    `firestore:"name"`
	Ticker              string    `firestore:"ticker"`
	Kind                string    `firestore:"kind,omitempty"`
	Quantity            string    `firestore:"quantity"`
	PurchasePrice       string    `firestore:"purchasePrice"`
	PurchaseDate        time.Time `firestore:"purchaseDate"`
	CurrentValue        string    `firestore:"currentValue"`
	Currency            string    `firestore:"currency"`
	LinkedTransactionID string    `firestore:"linkedTransactionId"`
	Version             int64     `firestore:"version"`
	CreatedAt           time.Time `firestore:"createdAt"`
	UpdatedAt           time.Time `firestore:"updatedAt"`
}

type amountField struct {
	name string
	raw  string
	dst  *decimal.Decimal
}

// parseAmounts parses each decimal string into its destination and
// reports the first failure. An empty string reads as zero.
func parseAmounts(fields ...amountField) error {
	for _, f := range fields {
		if f.raw == "" {
			*f.dst = decimal.Zero
			continue
		}
		v, err := decimal.NewFromString(f.raw)
		if err != nil {
			return fmt.Errorf("field %s: %w", f.name, err)
		}
		*f.dst = v
	}
	return nil
}

func fromAccount(a domain.Account) accountDoc {
	return accountDoc{
		ID:        a.ID,
		OwnerID:   a.OwnerID,
		Name:      a.Name,
		Type:      string(a.Type),
		Balance:   a.Balance.String(),
		Currency:  a.Currency,
		Version:   a.Version,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

func (d accountDoc) toDomain() (domain.Account, error) {
	typ, err := domain.ParseAccountType(d.Type)
	if err != nil {
		return domain.Account{}, fmt.Errorf("account %s: %w", d.ID, err)
	}
	a := domain.Account{
		ID:        d.ID,
		OwnerID:   d.OwnerID,
		Name:      d.Name,
		Type:      typ,
		Currency:  d.Currency,
		Version:   d.Version,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
	if err := parseAmounts(amountField{"balance", d.Balance, &a.Balance}); err != nil {
		return domain.Account{}, fmt.Errorf("account %s: %w", d.ID, err)
	}
	return a, nil
}

func fromTransaction(t domain.Transaction) transactionDoc {
	return transactionDoc{
		ID:             t.ID,
		OwnerID:        t.OwnerID,
		AccountID:      t.AccountID,
		Amount:         t.Amount.String(),
		Type:           string(t.Type),
		Category:       t.Category,
		Description:    t.Description,
		OccurredAt:     t.OccurredAt,
		LinkKind:       string(t.Link.Kind),
		LinkedRecordID: t.Link.RecordID,
		Version:        t.Version,
		CreatedAt:      t.CreatedAt,
		UpdatedAt:      t.UpdatedAt,
	}
}

func (d transactionDoc) toDomain() (domain.Transaction, error) {
	typ, err := domain.ParseTransactionType(d.Type)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("transaction %s: %w", d.ID, err)
	}
	link := domain.Link{Kind: domain.LinkKind(d.LinkKind), RecordID: d.LinkedRecordID}
	if err := link.Validate(); err != nil {
		return domain.Transaction{}, fmt.Errorf("transaction %s: %w", d.ID, err)
	}
	t := domain.Transaction{
		ID:          d.ID,
		OwnerID:     d.OwnerID,
		AccountID:   d.AccountID,
		Type:        typ,
		Category:    d.Category,
		Description: d.Description,
		OccurredAt:  d.OccurredAt,
		Link:        link,
		Version:     d.Version,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
	if err := parseAmounts(amountField{"amount", d.Amount, &t.Amount}); err != nil {
		return domain.Transaction{}, fmt.Errorf("transaction %s: %w", d.ID, err)
	}
	return t, nil
}

func fromGoal(g domain.SavingsGoal) goalDoc {
	return goalDoc{
		ID:            g.ID,
		OwnerID:       g.OwnerID,
		Name:          g.Name,
		TargetAmount:  g.TargetAmount.String(),
		CurrentAmount: g.CurrentAmount.String(),
		Currency:      g.Currency,
		TargetDate:    g.TargetDate,
		Version:       g.Version,
		CreatedAt:     g.CreatedAt,
		UpdatedAt:     g.UpdatedAt,
	}
}

func (d goalDoc) toDomain() (domain.SavingsGoal, error) {
	g := domain.SavingsGoal{
		ID:         d.ID,
		OwnerID:    d.OwnerID,
		Name:       d.Name,
		Currency:   d.Currency,
		TargetDate: d.TargetDate,
		Version:    d.Version,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
	err := parseAmounts(
		amountField{"targetAmount", d.TargetAmount, &g.TargetAmount},
		amountField{"currentAmount", d.CurrentAmount, &g.CurrentAmount},
	)
	if err != nil {
		return domain.SavingsGoal{}, fmt.Errorf("goal %s: %w", d.ID, err)
	}
	return g, nil
}

func fromInvestment(inv domain.Investment) investmentDoc {
	return investmentDoc{
		ID:                  inv.ID,
		OwnerID:             inv.OwnerID,
		Name:                inv.Name,
		Ticker:              inv.Ticker,
		Kind:                inv.Kind,
		Quantity:            inv.Quantity.String(),
		PurchasePrice:       inv.PurchasePrice.String(),
		PurchaseDate:        inv.PurchaseDate,
		CurrentValue:        inv.CurrentValue.String(),
		Currency:            inv.Currency,
		LinkedTransactionID: inv.LinkedTransactionID,
		Version:             inv.Version,
		CreatedAt:           inv.CreatedAt,
		UpdatedAt:           inv.UpdatedAt,
	}
}

func (d investmentDoc) toDomain() (domain.Investment, error) {
	inv := domain.Investment{
		ID:                  d.ID,
		OwnerID:             d.OwnerID,
		Name:                d.Name,
		Ticker:              d.Ticker,
		Kind:                d.Kind,
		PurchaseDate:        d.PurchaseDate,
		Currency:            d.Currency,
		LinkedTransactionID: d.LinkedTransactionID,
		Version:             d.Version,
		CreatedAt:           d.CreatedAt,
		UpdatedAt:           d.UpdatedAt,
	}
	err := parseAmounts(
		amountField{"quantity", d.Quantity, &inv.Quantity},
		amountField{"purchasePrice", d.PurchasePrice, &inv.PurchasePrice},
		amountField{"currentValue", d.CurrentValue, &inv.CurrentValue},
	)
	if err != nil {
		return domain.Investment{}, fmt.Errorf("investment %s: %w", d.ID, err)
	}
	return inv, nil
}
