package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dvloznov/finance-ledger/internal/app"
	"github.com/dvloznov/finance-ledger/internal/config"
	"github.com/dvloznov/finance-ledger/internal/jobs"
	"github.com/dvloznov/finance-ledger/internal/jobs/inmemory"
	"github.com/dvloznov/finance-ledger/internal/logger"
	"github.com/google/uuid"
)

// The worker reconciles every configured owner on a schedule and exports
// the reports. It never repairs: drift is reported for a human to act on.
func main() {
	boot := logger.New()

	cfg, err := config.Load()
	if err != nil {
		boot.Fatal().Err(err).Msg("Invalid configuration")
	}

	var (
		owners   = flag.String("owners", strings.Join(cfg.ReconcileOwners, ","), "Comma-separated owner IDs (or set RECONCILE_OWNERS env)")
		interval = flag.Duration("interval", cfg.ReconcileInterval, "Time between runs (or set RECONCILE_INTERVAL env)")
		once     = flag.Bool("once", false, "Run a single reconciliation pass and exit")
	)
	flag.Parse()

	log, err := logger.NewWithOptions(os.Stdout, logger.Options{Level: cfg.LogLevel, JSON: cfg.LogJSON, Service: "ledger-worker"})
	if err != nil {
		boot.Fatal().Err(err).Msg("Invalid log settings")
	}

	var ownerIDs []string
	for _, o := range strings.Split(*owners, ",") {
		if o = strings.TrimSpace(o); o != "" {
			ownerIDs = append(ownerIDs, o)
		}
	}
	if len(ownerIDs) == 0 {
		log.Fatal().Msg("No owners to reconcile - set RECONCILE_OWNERS or -owners")
	}

	ctx, cancel := context.WithCancel(logger.WithContext(context.Background(), log))
	defer cancel()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize ledger")
	}
	defer a.Close()

	handler := jobs.NewReconcileHandler(a.Checker, a.Sinks, log)

	if *once {
		runID := uuid.New().String()
		failed := 0
		for _, owner := range ownerIDs {
			job := &jobs.ReconcileJob{JobID: uuid.New().String(), OwnerID: owner, RunID: runID}
			if err := handler(ctx, job); err != nil {
				failed++
			}
		}
		log.Info().Str("run_id", runID).Int("owners", len(ownerIDs)).Int("failed", failed).Msg("Reconciliation pass finished")
		if failed > 0 {
			os.Exit(1)
		}
		return
	}

	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(len(ownerIDs)+10, jobStore)

	if err := jobQueue.Start(ctx, handler); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	scheduler := jobs.NewScheduler(jobQueue, ownerIDs, *interval, log)
	go func() {
		if err := scheduler.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("Scheduler stopped")
		}
	}()

	log.Info().Int("owners", len(ownerIDs)).Dur("interval", *interval).Msg("Worker service started")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down worker service...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}

	log.Info().Msg("Worker service exited")
}
