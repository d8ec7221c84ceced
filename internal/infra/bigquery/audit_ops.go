package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/finance-ledger/internal/logger"
	"google.golang.org/api/iterator"
)

// InsertRepairWithClient records one repair with a DML insert so that the
// row is immediately visible to queries.
func InsertRepairWithClient(ctx context.Context, client *bigquery.Client, datasetID string, row RepairAuditRow) error {
	q := client.Query(fmt.Sprintf(`
		INSERT %s.%s (
			repair_id,
			owner_id,
			record_kind,
			record_id,
			actor,
			value_before,
			value_after,
			drift,
			repaired_ts
		)
		VALUES (
			@repair_id,
			@owner_id,
			@record_kind,
			@record_id,
			@actor,
			@value_before,
			@value_after,
			@drift,
			@repaired_ts
		)
	`, datasetID, repairAuditTable))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "repair_id", Value: row.RepairID},
		{Name: "owner_id", Value: row.OwnerID},
		{Name: "record_kind", Value: row.RecordKind},
		{Name: "record_id", Value: row.RecordID},
		{Name: "actor", Value: row.Actor},
		{Name: "value_before", Value: row.Before},
		{Name: "value_after", Value: row.After},
		{Name: "drift", Value: row.Drift},
		{Name: "repaired_ts", Value: row.RepairedTS},
	}

	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("InsertRepair: running insert query: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("InsertRepair: waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("InsertRepair: job error: %w", err)
	}

	logger.FromContext(ctx).Debug().
		Str("repair_id", row.RepairID).
		Str("record_id", row.RecordID).
		Msg("Repair audit row inserted")
	return nil
}

// InsertReportsWithClient streams the rows of one reconciliation run.
func InsertReportsWithClient(ctx context.Context, client *bigquery.Client, datasetID string, rows []*ReportRow) error {
	if len(rows) == 0 {
		return nil
	}
	inserter := client.Dataset(datasetID).Table(reportsTable).Inserter()
	if err := inserter.Put(ctx, rows); err != nil {
		return fmt.Errorf("InsertReports: inserting rows: %w", err)
	}
	return nil
}

// ListRepairsWithClient returns the most recent repairs for an owner,
// newest first.
func ListRepairsWithClient(ctx context.Context, client *bigquery.Client, datasetID, ownerID string, limit int) ([]RepairAuditRow, error) {
	if limit <= 0 {
		limit = 50
	}
	q := client.Query(fmt.Sprintf(`
		SELECT
			repair_id,
			owner_id,
			record_kind,
			record_id,
			actor,
			value_before,
			value_after,
			drift,
			repaired_ts
		FROM %s.%s
		WHERE owner_id = @owner_id
		ORDER BY repaired_ts DESC
		LIMIT @limit
	`, datasetID, repairAuditTable))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "owner_id", Value: ownerID},
		{Name: "limit", Value: limit},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListRepairs: running query: %w", err)
	}

	var rows []RepairAuditRow
	for {
		var row RepairAuditRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListRepairs: iterating rows: %w", err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}
