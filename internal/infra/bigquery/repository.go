package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/finance-ledger/internal/ledger"
)

// AuditRepository stores repair audit rows and reconciliation reports in
// BigQuery. It holds a shared client to avoid creating a new connection
// for each operation.
type AuditRepository struct {
	client    *bigquery.Client
	datasetID string
}

// NewAuditRepository creates an AuditRepository with its own client.
func NewAuditRepository(ctx context.Context, projectID, datasetID string) (*AuditRepository, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewAuditRepository: creating client: %w", err)
	}
	return &AuditRepository{client: client, datasetID: datasetID}, nil
}

// NewAuditRepositoryWithClient wraps an existing client.
func NewAuditRepositoryWithClient(client *bigquery.Client, datasetID string) *AuditRepository {
	return &AuditRepository{client: client, datasetID: datasetID}
}

// Close closes the BigQuery client connection.
func (r *AuditRepository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// RecordRepair implements ledger.AuditSink.
func (r *AuditRepository) RecordRepair(ctx context.Context, rec ledger.RepairRecord) error {
	return InsertRepairWithClient(ctx, r.client, r.datasetID, RepairRowFromRecord(rec))
}

// WriteReports stores one reconciliation run.
func (r *AuditRepository) WriteReports(ctx context.Context, runID string, reports []ledger.Report) error {
	return InsertReportsWithClient(ctx, r.client, r.datasetID, ReportRowsFromReports(runID, reports))
}

// ListRepairs returns the owner's most recent repairs.
func (r *AuditRepository) ListRepairs(ctx context.Context, ownerID string, limit int) ([]ledger.RepairRecord, error) {
	rows, err := ListRepairsWithClient(ctx, r.client, r.datasetID, ownerID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]ledger.RepairRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := row.ToRecord()
		if err != nil {
			return nil, fmt.Errorf("ListRepairs: %w", err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// Ensure AuditRepository implements ledger.AuditSink.
var _ ledger.AuditSink = (*AuditRepository)(nil)
