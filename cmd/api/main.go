package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/finance-ledger/internal/api"
	"github.com/dvloznov/finance-ledger/internal/app"
	"github.com/dvloznov/finance-ledger/internal/config"
	"github.com/dvloznov/finance-ledger/internal/jobs"
	"github.com/dvloznov/finance-ledger/internal/jobs/inmemory"
	"github.com/dvloznov/finance-ledger/internal/logger"
)

func main() {
	boot := logger.New()

	cfg, err := config.Load()
	if err != nil {
		boot.Fatal().Err(err).Msg("Invalid configuration")
	}

	// Parse command-line flags; they override the environment.
	var (
		port    = flag.String("port", cfg.Port, "HTTP server port (or set PORT env)")
		backend = flag.String("backend", cfg.Backend, "Ledger backend: memory or firestore (or set LEDGER_BACKEND env)")
	)
	flag.Parse()
	cfg.Port = *port
	cfg.Backend = *backend

	log, err := logger.NewWithOptions(os.Stdout, logger.Options{Level: cfg.LogLevel, JSON: cfg.LogJSON, Service: "ledger-api"})
	if err != nil {
		boot.Fatal().Err(err).Msg("Invalid log settings")
	}

	ctx := logger.WithContext(context.Background(), log)

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize ledger")
	}
	defer a.Close()

	// Initialize job infrastructure
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(100, jobStore)

	// Start worker in background to process on-demand reconciliation jobs
	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	handler := jobs.NewReconcileHandler(a.Checker, a.Sinks, log)
	if err := jobQueue.Start(workerCtx, handler); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job worker")
	}

	deps := api.Deps{
		Service:   a.Service,
		Checker:   a.Checker,
		Publisher: jobQueue,
		JobStore:  jobStore,
		Log:       log,
	}
	// Assign only when set so the interfaces stay nil.
	if a.Advisor != nil {
		deps.Advisor = a.Advisor
	}
	if a.Prices != nil {
		deps.Prices = a.Prices
	}

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      api.NewRouter(deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Str("backend", cfg.Backend).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stop job queue and wait for in-flight jobs
	cancelWorker()
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}

	log.Info().Msg("Server exited")
}
