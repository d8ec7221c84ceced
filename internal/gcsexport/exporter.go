package gcsexport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dvloznov/finance-ledger/internal/ledger"
	"github.com/dvloznov/finance-ledger/internal/logger"
)

const jsonlContentType = "application/x-ndjson"

// ReportExporter writes reconciliation runs to object storage as JSON lines,
// one report per line.
type ReportExporter struct {
	store  ObjectStore
	bucket string
	now    func() time.Time
}

// NewReportExporter creates an exporter that writes into bucket.
func NewReportExporter(store ObjectStore, bucket string) *ReportExporter {
	return &ReportExporter{store: store, bucket: bucket, now: time.Now}
}

// ObjectName returns where a run is stored: reconciliation/YYYY/MM/DD/{runID}.jsonl
func ObjectName(runID string, at time.Time) string {
	return fmt.Sprintf("reconciliation/%s/%s.jsonl", at.UTC().Format("2006/01/02"), runID)
}

// WriteReports stores one run. An empty run still writes an empty object so
// every scheduled run leaves a trace.
func (e *ReportExporter) WriteReports(ctx context.Context, runID string, reports []ledger.Report) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range reports {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("WriteReports: encoding report %s: %w", r.RecordID, err)
		}
	}

	object := ObjectName(runID, e.now())
	if err := e.store.WriteObject(ctx, e.bucket, object, jsonlContentType, buf.Bytes()); err != nil {
		return fmt.Errorf("WriteReports: %w", err)
	}

	logger.FromContext(ctx).Info().
		Str("run_id", runID).
		Str("uri", "gs://"+e.bucket+"/"+object).
		Int("reports", len(reports)).
		Msg("Reconciliation run exported")
	return nil
}

// ReadReports loads a run previously written by WriteReports.
func (e *ReportExporter) ReadReports(ctx context.Context, uri string) ([]ledger.Report, error) {
	bucket, object, err := ParseURI(uri)
	if err != nil {
		return nil, fmt.Errorf("ReadReports: %w", err)
	}
	data, err := e.store.ReadObject(ctx, bucket, object)
	if err != nil {
		return nil, fmt.Errorf("ReadReports: %w", err)
	}

	var reports []ledger.Report
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for line := 1; sc.Scan(); line++ {
		if len(bytes.TrimSpace(sc.Bytes())) == 0 {
			continue
		}
		var r ledger.Report
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			return nil, fmt.Errorf("ReadReports: line %d: %w", line, err)
		}
		reports = append(reports, r)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("ReadReports: scanning: %w", err)
	}
	return reports, nil
}
