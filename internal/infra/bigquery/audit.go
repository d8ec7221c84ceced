package bigquery

import (
	"fmt"
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-ledger/internal/ledger"
	"github.com/shopspring/decimal"
)

const (
	repairAuditTable = "repair_audit"
	reportsTable     = "reconciliation_reports"

	// numericScale is the scale of a BigQuery NUMERIC column.
	numericScale = 9
)

// RepairAuditRow is one explicit balance repair.
type RepairAuditRow struct {
	RepairID   string    `bigquery:"repair_id"`    // REQUIRED
	OwnerID    string    `bigquery:"owner_id"`     // REQUIRED
	RecordKind string    `bigquery:"record_kind"`  // REQUIRED: account | goal
	RecordID   string    `bigquery:"record_id"`    // REQUIRED
	Actor      string    `bigquery:"actor"`        // REQUIRED
	Before     *big.Rat  `bigquery:"value_before"` // NUMERIC
	After      *big.Rat  `bigquery:"value_after"`  // NUMERIC
	Drift      *big.Rat  `bigquery:"drift"`        // NUMERIC
	RepairedTS time.Time `bigquery:"repaired_ts"`  // TIMESTAMP
}

// ReportRow is one line of a reconciliation run.
type ReportRow struct {
	RunID            string              `bigquery:"run_id"`      // REQUIRED
	OwnerID          string              `bigquery:"owner_id"`    // REQUIRED
	RecordKind       string              `bigquery:"record_kind"` // REQUIRED
	RecordID         string              `bigquery:"record_id"`   // REQUIRED
	Name             bigquery.NullString `bigquery:"name"`        // NULLABLE
	Currency         string              `bigquery:"currency"`
	Stored           *big.Rat            `bigquery:"stored"`   // NUMERIC
	Computed         *big.Rat            `bigquery:"computed"` // NUMERIC
	Drift            *big.Rat            `bigquery:"drift"`    // NUMERIC
	HasDrift         bool                `bigquery:"has_drift"`
	TransactionCount int64               `bigquery:"transaction_count"`
	CheckedTS        time.Time           `bigquery:"checked_ts"`
	RunDate          civil.Date          `bigquery:"run_date"` // partition key, UTC
}

func toNumeric(d decimal.Decimal) *big.Rat {
	return d.Round(numericScale).Rat()
}

func fromNumeric(r *big.Rat) (decimal.Decimal, error) {
	if r == nil {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(r.FloatString(numericScale))
}

// RepairRowFromRecord converts a ledger repair record to its table row.
func RepairRowFromRecord(rec ledger.RepairRecord) RepairAuditRow {
	return RepairAuditRow{
		RepairID:   rec.ID,
		OwnerID:    rec.OwnerID,
		RecordKind: string(rec.Kind),
		RecordID:   rec.RecordID,
		Actor:      rec.Actor,
		Before:     toNumeric(rec.Before),
		After:      toNumeric(rec.After),
		Drift:      toNumeric(rec.Drift),
		RepairedTS: rec.RepairedAt,
	}
}

// ToRecord converts a table row back to a ledger repair record.
func (r RepairAuditRow) ToRecord() (ledger.RepairRecord, error) {
	rec := ledger.RepairRecord{
		ID:         r.RepairID,
		OwnerID:    r.OwnerID,
		Kind:       ledger.RecordKind(r.RecordKind),
		RecordID:   r.RecordID,
		Actor:      r.Actor,
		RepairedAt: r.RepairedTS,
	}
	var err error
	if rec.Before, err = fromNumeric(r.Before); err != nil {
		return ledger.RepairRecord{}, fmt.Errorf("ToRecord: value_before: %w", err)
	}
	if rec.After, err = fromNumeric(r.After); err != nil {
		return ledger.RepairRecord{}, fmt.Errorf("ToRecord: value_after: %w", err)
	}
	if rec.Drift, err = fromNumeric(r.Drift); err != nil {
		return ledger.RepairRecord{}, fmt.Errorf("ToRecord: drift: %w", err)
	}
	return rec, nil
}

// ReportRowsFromReports converts one reconciliation run to table rows.
func ReportRowsFromReports(runID string, reports []ledger.Report) []*ReportRow {
	rows := make([]*ReportRow, 0, len(reports))
	for _, r := range reports {
		rows = append(rows, &ReportRow{
			RunID:            runID,
			OwnerID:          r.OwnerID,
			RecordKind:       string(r.Kind),
			RecordID:         r.RecordID,
			Name:             bigquery.NullString{StringVal: r.Name, Valid: r.Name != ""},
			Currency:         r.Currency,
			Stored:           toNumeric(r.Stored),
			Computed:         toNumeric(r.Computed),
			Drift:            toNumeric(r.Drift),
			HasDrift:         r.HasDrift(),
			TransactionCount: int64(r.Transactions),
			CheckedTS:        r.CheckedAt,
			RunDate:          civil.DateOf(r.CheckedAt.UTC()),
		})
	}
	return rows
}
