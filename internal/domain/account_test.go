package domain

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestAccountEffect(t *testing.T) {
	tests := []struct {
		name   string
		typ    AccountType
		amount string
		link   Link
		want   string
	}{
		{name: "checking deposit", typ: AccountChecking, amount: "500", want: "500"},
		{name: "checking withdrawal", typ: AccountChecking, amount: "-20", want: "-20"},
		{name: "checking goal contribution", typ: AccountChecking, amount: "-20", link: GoalContribution("g1"), want: "-20"},
		{name: "card deposit", typ: AccountCreditCard, amount: "500", want: "500"},
		{name: "card payment", typ: AccountCreditCard, amount: "-40", want: "-40"},
		{name: "card goal contribution grows debt", typ: AccountCreditCard, amount: "-25", link: GoalContribution("g1"), want: "25"},
		{name: "card investment purchase grows debt", typ: AccountCreditCard, amount: "-100", link: InvestmentPurchase("i1"), want: "100"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := Account{ID: "a", Type: tt.typ}
			txn := Transaction{AccountID: "a", Amount: decimal.RequireFromString(tt.amount), Link: tt.link}
			if got := a.Effect(txn); !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("Effect = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestAccountCanCover(t *testing.T) {
	checking := Account{Type: AccountChecking, Balance: decimal.NewFromInt(50)}
	if !checking.CanCover(decimal.NewFromInt(50)) {
		t.Error("checking should cover its exact balance")
	}
	if checking.CanCover(decimal.NewFromInt(51)) {
		t.Error("checking should not cover more than its balance")
	}
	card := Account{Type: AccountCreditCard}
	if !card.CanCover(decimal.NewFromInt(1000)) {
		t.Error("credit card should never be blocked")
	}
}
