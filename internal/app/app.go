// Package app wires the ledger and its optional cloud collaborators from a
// config.Config. Every binary under cmd/ starts here.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/finance-ledger/internal/config"
	"github.com/dvloznov/finance-ledger/internal/gcsexport"
	infraBQ "github.com/dvloznov/finance-ledger/internal/infra/bigquery"
	"github.com/dvloznov/finance-ledger/internal/infra/firestore"
	"github.com/dvloznov/finance-ledger/internal/infra/memstore"
	"github.com/dvloznov/finance-ledger/internal/insights"
	"github.com/dvloznov/finance-ledger/internal/jobs"
	"github.com/dvloznov/finance-ledger/internal/ledger"
	"github.com/rs/zerolog"
)

// App holds the ledger services for one process.
type App struct {
	Store   *ledger.Store
	Service *ledger.Service
	Checker *ledger.Checker

	// Audit is nil unless BigQuery is configured.
	Audit *infraBQ.AuditRepository
	// Sinks receive scheduled reconciliation reports.
	Sinks []jobs.ReportSink
	// Advisor and Prices are nil when no model client could be created.
	Advisor *insights.Advisor
	Prices  *insights.PriceRefresher

	closers []func() error
}

// New builds an App. Optional integrations that fail to start are logged
// and left disabled; only the ledger backend is required.
func New(ctx context.Context, cfg config.Config, log zerolog.Logger) (*App, error) {
	a := &App{}

	backend, err := a.openBackend(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	var audit ledger.AuditSink = ledger.NopAuditSink{}
	if cfg.BigQueryEnabled() {
		repo, err := infraBQ.NewAuditRepository(ctx, cfg.ProjectID, cfg.BQDataset)
		if err != nil {
			log.Warn().Err(err).Msg("BigQuery unavailable - repair audit and report export disabled")
		} else {
			a.Audit = repo
			audit = repo
			a.Sinks = append(a.Sinks, repo)
			a.closers = append(a.closers, repo.Close)
		}
	}

	if cfg.GCSEnabled() {
		store, err := gcsexport.NewGCSObjectStore(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("GCS unavailable - report export disabled")
		} else {
			a.Sinks = append(a.Sinks, gcsexport.NewReportExporter(store, cfg.GCSBucket))
			a.closers = append(a.closers, store.Close)
		}
	}

	a.Store = ledger.NewStore(backend, log,
		ledger.WithMaxAttempts(cfg.MaxAttempts),
		ledger.WithBackoff(cfg.RetryBackoff),
	)
	a.Service = ledger.NewService(a.Store, ledger.NewPlanner(), log)
	a.Checker = ledger.NewChecker(a.Store, audit, log)

	gen, err := insights.NewGeminiGenerator(ctx, cfg.GeminiModel)
	if err != nil {
		log.Warn().Err(err).Msg("Gemini unavailable - insights and price refresh disabled")
	} else {
		a.Advisor = insights.NewAdvisor(gen, log)
		a.Prices = insights.NewPriceRefresher(a.Advisor, a.Service)
	}

	return a, nil
}

func (a *App) openBackend(ctx context.Context, cfg config.Config, log zerolog.Logger) (ledger.Backend, error) {
	switch cfg.Backend {
	case config.BackendFirestore:
		fs, err := firestore.NewFirestoreBackend(ctx, cfg.ProjectID, cfg.FirestoreDB)
		if err != nil {
			return nil, fmt.Errorf("New: opening firestore: %w", err)
		}
		a.closers = append(a.closers, fs.Close)
		log.Info().Str("project", cfg.ProjectID).Str("database", cfg.FirestoreDB).Msg("Using Firestore backend")
		return fs, nil
	case config.BackendMemory:
		log.Warn().Msg("Using in-memory backend - data is lost on exit")
		return memstore.New(), nil
	default:
		return nil, fmt.Errorf("New: unknown backend %q", cfg.Backend)
	}
}

// Close releases every client opened by New.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
