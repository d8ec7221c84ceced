package main

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/glamour"
	"github.com/dvloznov/finance-ledger/internal/app"
	"github.com/dvloznov/finance-ledger/internal/config"
	"github.com/dvloznov/finance-ledger/internal/logger"
	"github.com/rs/zerolog"
)

// openApp loads configuration and wires the ledger. Logs go to stderr so
// that stdout only carries the report.
func openApp(ctx context.Context) (*app.App, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	log, err := logger.NewWithOptions(os.Stderr, logger.Options{Level: cfg.LogLevel, JSON: cfg.LogJSON, Service: "ledgerctl"})
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	a, err := app.New(logger.WithContext(ctx, log), cfg, log)
	if err != nil {
		return nil, log, err
	}
	return a, log, nil
}

func printMarkdown(md string) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		fmt.Print(md)
		return
	}
	out, err := r.Render(md)
	if err != nil {
		fmt.Print(md)
		return
	}
	fmt.Print(out)
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}
