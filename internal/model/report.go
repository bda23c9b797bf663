package model

import "time"

// Flag marks why a row is present in a report.
type Flag string

const (
	// FlagOriginal marks a row answering a barcode that was explicitly
	// requested in the input.
	FlagOriginal Flag = "original"

	// FlagAdded marks a sibling copy reported because it is not on the
	// shelf, even though its barcode was never requested.
	FlagAdded Flag = "added"
)

// OutputRow is one line of a reconciliation report.
type OutputRow struct {
	Flag Flag `json:"flag"`
	HoldingRecord
}

// RunStats summarizes one reconciliation run. Requested counts input
// occurrences; the resolved/missing/failed counters describe the unique
// lookups behind them.
type RunStats struct {
	BarcodesRequested int           `json:"barcodes_requested"`
	BarcodesResolved  int           `json:"barcodes_resolved"`
	BarcodesMissing   int           `json:"barcodes_missing"`
	BarcodesFailed    int           `json:"barcodes_failed"`
	OriginalRows      int           `json:"original_rows"`
	AddedRows         int           `json:"added_rows"`
	StartedAt         time.Time     `json:"started_at"`
	Duration          time.Duration `json:"duration"`
}
