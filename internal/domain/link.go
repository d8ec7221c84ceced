package domain

import "fmt"

// LinkKind tags what owns a linked transaction.
type LinkKind string

const (
	LinkNone               LinkKind = ""
	LinkGoalContribution   LinkKind = "goal_contribution"
	LinkInvestmentPurchase LinkKind = "investment_purchase"
)

// Link ties a transaction to the record that created it. RecordID is empty
// iff Kind is LinkNone.
type Link struct {
	Kind     LinkKind `json:"kind,omitempty"`
	RecordID string   `json:"record_id,omitempty"`
}

// NoLink is the zero Link.
var NoLink = Link{}

// GoalContribution links a transaction to a savings goal.
func GoalContribution(goalID string) Link {
	return Link{Kind: LinkGoalContribution, RecordID: goalID}
}

// InvestmentPurchase links a transaction to an investment.
func InvestmentPurchase(investmentID string) Link {
	return Link{Kind: LinkInvestmentPurchase, RecordID: investmentID}
}

// Validate checks the Kind/RecordID pairing.
func (l Link) Validate() error {
	switch l.Kind {
	case LinkNone:
		if l.RecordID != "" {
			return fmt.Errorf("unlinked transaction carries record id %q", l.RecordID)
		}
	case LinkGoalContribution, LinkInvestmentPurchase:
		if l.RecordID == "" {
			return fmt.Errorf("%s link without record id", l.Kind)
		}
	default:
		return fmt.Errorf("unknown link kind %q", l.Kind)
	}
	return nil
}

func (l Link) String() string {
	if l.Kind == LinkNone {
		return "none"
	}
	return string(l.Kind) + ":" + l.RecordID
}
