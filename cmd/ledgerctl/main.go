// Command ledgerctl is the operator CLI for the ledger: drift reports,
// explicit repairs, repair history, insights and market prices.
package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/google/subcommands"
)

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")

	for _, c := range commands {
		commander.Register(c, "")
	}

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}

var commands = []subcommands.Command{
	&reconcileCmd{},
	&repairCmd{},
	&historyCmd{},
	&insightsCmd{},
	&priceCmd{},
}
