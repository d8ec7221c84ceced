package main

import (
	"fmt"
	"strings"

	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/dvloznov/finance-ledger/internal/ledger"
	"github.com/shopspring/decimal"
)

func reportsMarkdown(owner string, reports []ledger.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Reconciliation for %s\n\n", owner)
	if len(reports) == 0 {
		b.WriteString("No accounts or goals.\n")
		return b.String()
	}

	b.WriteString("| Kind | Name | Stored | Computed | Drift | Txns |\n")
	b.WriteString("|---|---|---:|---:|---:|---:|\n")
	for _, r := range reports {
		drift := "0"
		if r.HasDrift() {
			drift = "**" + r.Drift.String() + "**"
		}
		fmt.Fprintf(&b, "| %s | %s | %s %s | %s | %s | %d |\n",
			r.Kind, label(r), r.Stored, r.Currency, r.Computed, drift, r.Transactions)
	}

	if n := len(ledger.Drifted(reports)); n > 0 {
		fmt.Fprintf(&b, "\n%d of %d records drifted. Run `ledgerctl repair` to fix them.\n", n, len(reports))
	} else {
		fmt.Fprintf(&b, "\nAll %d records are consistent.\n", len(reports))
	}
	return b.String()
}

func repairMarkdown(before ledger.Report) string {
	if !before.HasDrift() {
		return fmt.Sprintf("# Nothing to repair\n\n%s `%s` already matches its transactions (%s).\n",
			before.Kind, label(before), before.Stored)
	}
	return fmt.Sprintf("# Repaired %s `%s`\n\n- Before: %s\n- After: %s\n- Drift removed: %s\n",
		before.Kind, label(before), before.Stored, before.Computed, before.Drift)
}

func historyMarkdown(owner string, recs []ledger.RepairRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Repairs for %s\n\n", owner)
	if len(recs) == 0 {
		b.WriteString("No repairs recorded.\n")
		return b.String()
	}
	b.WriteString("| When | Kind | Record | Actor | Before | After | Drift |\n")
	b.WriteString("|---|---|---|---|---:|---:|---:|\n")
	for _, r := range recs {
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s | %s |\n",
			r.RepairedAt.Format("2006-01-02 15:04"), r.Kind, r.RecordID, r.Actor, r.Before, r.After, r.Drift)
	}
	return b.String()
}

func priceMarkdown(ticker string, price decimal.Decimal) string {
	return fmt.Sprintf("# %s\n\nCurrent price: **%s**\n", strings.ToUpper(strings.TrimSpace(ticker)), price)
}

func investmentMarkdown(inv domain.Investment) string {
	return fmt.Sprintf("# %s (%s)\n\n- Quantity: %s\n- Current value: **%s %s**\n",
		inv.Name, inv.Ticker, inv.Quantity, inv.CurrentValue, inv.Currency)
}

func label(r ledger.Report) string {
	if r.Name != "" {
		return r.Name
	}
	return r.RecordID
}
