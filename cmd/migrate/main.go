// Command migrate applies the BigQuery migrations for the repair audit log
// and reconciliation report tables.
package main

import (
	"context"
	"flag"
	"io/fs"
	"os"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/finance-ledger/internal/config"
	infraBQ "github.com/dvloznov/finance-ledger/internal/infra/bigquery"
	"github.com/dvloznov/finance-ledger/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log := logger.New()
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	projectID := flag.String("project", cfg.ProjectID, "GCP project ID (defaults to GCP_PROJECT)")
	datasetID := flag.String("dataset", cfg.BQDataset, "BigQuery dataset ID (defaults to BQ_DATASET)")
	appliedBy := flag.String("applied-by", "migrate-cli", "Name of the tool applying migrations")
	dir := flag.String("dir", "", "Read migrations from this directory instead of the embedded set")
	flag.Parse()

	log, err := logger.NewWithOptions(os.Stdout, logger.Options{Level: cfg.LogLevel, JSON: cfg.LogJSON, Service: "migrate"})
	if err != nil {
		log = logger.New()
		log.Fatal().Err(err).Msg("Invalid log configuration")
	}

	if *projectID == "" || *datasetID == "" {
		log.Fatal().Msg("-project and -dataset are required (or set GCP_PROJECT and BQ_DATASET)")
	}

	ctx := logger.WithContext(context.Background(), log)

	client, err := bigquery.NewClient(ctx, *projectID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create BigQuery client")
	}
	defer client.Close()

	log.Info().Str("project", *projectID).Str("dataset", *datasetID).Msg("Connected to BigQuery")

	m := infraBQ.NewMigrator(client, *projectID, *datasetID, *appliedBy, log)
	applied, err := m.Run(ctx, migrationsFS(*dir))
	if err != nil {
		log.Fatal().Err(err).Msg("Migration failed")
	}

	if applied == 0 {
		log.Info().Msg("No new migrations to apply. Dataset is up to date.")
	} else {
		log.Info().Int("applied", applied).Msg("Successfully applied migrations")
	}
}

// migrationsFS returns the embedded migrations unless dir is set.
func migrationsFS(dir string) fs.FS {
	if dir == "" {
		return infraBQ.Migrations()
	}
	return os.DirFS(dir)
}
