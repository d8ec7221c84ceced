package main

import (
	"context"
	"errors"
	"flag"
	"os"

	"github.com/dvloznov/finance-ledger/internal/insights"
	"github.com/dvloznov/finance-ledger/internal/ledger"
	"github.com/google/subcommands"
)

type reconcileCmd struct {
	owner   string
	account string
	goal    string
}

func (*reconcileCmd) Name() string     { return "reconcile" }
func (*reconcileCmd) Synopsis() string { return "compare cached balances with their transactions" }
func (*reconcileCmd) Usage() string {
	return `ledgerctl reconcile -owner <id> [-account <id> | -goal <id>]

  Recomputes balances from transactions and reports any drift. Nothing is
  written; use repair to fix a drifted record.
`
}

func (c *reconcileCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.owner, "owner", "", "Owner (user) ID")
	f.StringVar(&c.account, "account", "", "Reconcile a single account")
	f.StringVar(&c.goal, "goal", "", "Reconcile a single savings goal")
}

func (c *reconcileCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.owner == "" || (c.account != "" && c.goal != "") {
		f.Usage()
		return subcommands.ExitUsageError
	}
	a, _, err := openApp(ctx)
	if err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	var reports []ledger.Report
	switch {
	case c.account != "":
		rep, err := a.Checker.Reconcile(ctx, c.owner, c.account)
		if err != nil {
			fail("%v", err)
			return subcommands.ExitFailure
		}
		reports = []ledger.Report{rep}
	case c.goal != "":
		rep, err := a.Checker.ReconcileGoal(ctx, c.owner, c.goal)
		if err != nil {
			fail("%v", err)
			return subcommands.ExitFailure
		}
		reports = []ledger.Report{rep}
	default:
		reports, err = a.Checker.ReconcileOwner(ctx, c.owner)
		if err != nil {
			fail("%v", err)
			return subcommands.ExitFailure
		}
	}

	printMarkdown(reportsMarkdown(c.owner, reports))
	if len(ledger.Drifted(reports)) > 0 {
		// Non-zero so scripts notice drift.
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type repairCmd struct {
	owner   string
	account string
	goal    string
	actor   string
}

func (*repairCmd) Name() string     { return "repair" }
func (*repairCmd) Synopsis() string { return "reset a drifted balance to its recomputed value" }
func (*repairCmd) Usage() string {
	return `ledgerctl repair -owner <id> (-account <id> | -goal <id>) [-actor <name>]

  Sets the cached balance of one account or goal to the sum of its
  transactions and records the repair in the audit log.
`
}

func (c *repairCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.owner, "owner", "", "Owner (user) ID")
	f.StringVar(&c.account, "account", "", "Account to repair")
	f.StringVar(&c.goal, "goal", "", "Savings goal to repair")
	f.StringVar(&c.actor, "actor", os.Getenv("USER"), "Who is performing the repair")
}

func (c *repairCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.owner == "" || (c.account == "") == (c.goal == "") || c.actor == "" {
		f.Usage()
		return subcommands.ExitUsageError
	}
	a, _, err := openApp(ctx)
	if err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	var before ledger.Report
	if c.account != "" {
		before, err = a.Checker.Repair(ctx, c.owner, c.account, c.actor)
	} else {
		before, err = a.Checker.RepairGoal(ctx, c.owner, c.goal, c.actor)
	}
	if err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}

	printMarkdown(repairMarkdown(before))
	return subcommands.ExitSuccess
}

type historyCmd struct {
	owner string
	limit int
}

func (*historyCmd) Name() string     { return "history" }
func (*historyCmd) Synopsis() string { return "list recent repairs from the audit log" }
func (*historyCmd) Usage() string {
	return `ledgerctl history -owner <id> [-n <limit>]

  Lists the most recent repairs recorded in BigQuery.
`
}

func (c *historyCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.owner, "owner", "", "Owner (user) ID")
	f.IntVar(&c.limit, "n", 20, "Maximum number of repairs to show")
}

func (c *historyCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.owner == "" {
		f.Usage()
		return subcommands.ExitUsageError
	}
	a, _, err := openApp(ctx)
	if err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	if a.Audit == nil {
		fail("the audit log needs BigQuery: set GCP_PROJECT and BQ_DATASET")
		return subcommands.ExitFailure
	}
	recs, err := a.Audit.ListRepairs(ctx, c.owner, c.limit)
	if err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}

	printMarkdown(historyMarkdown(c.owner, recs))
	return subcommands.ExitSuccess
}

type insightsCmd struct {
	spending string
	goals    string
}

func (*insightsCmd) Name() string     { return "insights" }
func (*insightsCmd) Synopsis() string { return "get personalized financial recommendations" }
func (*insightsCmd) Usage() string {
	return `ledgerctl insights -spending <text> -goals <text>

  Asks the model for recommendations based on a description of spending
  habits and financial goals (at least 10 characters each).
`
}

func (c *insightsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.spending, "spending", "", "Description of your spending habits")
	f.StringVar(&c.goals, "goals", "", "Description of your financial goals")
}

func (c *insightsCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	req := insights.InsightsRequest{SpendingHabits: c.spending, FinancialGoals: c.goals}
	if err := req.Validate(); err != nil {
		fail("%v", err)
		return subcommands.ExitUsageError
	}
	a, _, err := openApp(ctx)
	if err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	if a.Advisor == nil {
		fail("insights need a Gemini API key (GOOGLE_API_KEY)")
		return subcommands.ExitFailure
	}
	text, err := a.Advisor.Insights(ctx, req)
	if err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}

	printMarkdown("# Insights\n\n" + text + "\n")
	return subcommands.ExitSuccess
}

type priceCmd struct {
	ticker     string
	owner      string
	investment string
}

func (*priceCmd) Name() string     { return "price" }
func (*priceCmd) Synopsis() string { return "fetch a market price, optionally revaluing an investment" }
func (*priceCmd) Usage() string {
	return `ledgerctl price -ticker <symbol>
ledgerctl price -owner <id> -investment <id>

  With -ticker, prints the current price. With -owner and -investment,
  fetches the price for the investment's ticker and stores its new value.
  When the price cannot be fetched the stored value is left unchanged.
`
}

func (c *priceCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.ticker, "ticker", "", "Ticker symbol, e.g. GOOGL")
	f.StringVar(&c.owner, "owner", "", "Owner (user) ID")
	f.StringVar(&c.investment, "investment", "", "Investment to revalue")
}

func (c *priceCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	revalue := c.owner != "" && c.investment != ""
	if !revalue && c.ticker == "" {
		f.Usage()
		return subcommands.ExitUsageError
	}
	a, _, err := openApp(ctx)
	if err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	if a.Advisor == nil {
		fail("market prices need a Gemini API key (GOOGLE_API_KEY)")
		return subcommands.ExitFailure
	}

	if !revalue {
		price, err := a.Advisor.MarketPrice(ctx, c.ticker)
		if err != nil {
			fail("%v", err)
			return subcommands.ExitFailure
		}
		printMarkdown(priceMarkdown(c.ticker, price))
		return subcommands.ExitSuccess
	}

	inv, err := a.Prices.Refresh(ctx, c.owner, c.investment)
	if err != nil {
		if errors.Is(err, insights.ErrNoPrice) {
			fail("no price available; %s keeps its value of %s", inv.Ticker, inv.CurrentValue)
		} else {
			fail("%v", err)
		}
		return subcommands.ExitFailure
	}
	printMarkdown(investmentMarkdown(inv))
	return subcommands.ExitSuccess
}
