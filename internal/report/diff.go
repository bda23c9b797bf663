package report

import (
	"errors"
	"os"

	"github.com/caltechlibrary/checkit/internal/model"
)

// Discrepancies filters report rows to those describing a copy that is off
// the shelf.
func Discrepancies(rows []model.OutputRow, statuses model.StatusSet) []model.OutputRow {
	var out []model.OutputRow
	for _, row := range rows {
		if !statuses.OnShelf(row.Status) {
			out = append(out, row)
		}
	}
	return out
}

// Diff returns the rows of fresh whose barcodes do not appear in tracking,
// in fresh order, one row per barcode.
func Diff(fresh, tracking []model.OutputRow) []model.OutputRow {
	known := make(map[string]bool, len(tracking))
	for _, row := range tracking {
		known[row.Barcode] = true
	}

	var added []model.OutputRow
	for _, row := range fresh {
		if known[row.Barcode] {
			continue
		}
		known[row.Barcode] = true
		added = append(added, row)
	}
	return added
}

// TrackingUpdate summarizes an UpdateTracking call.
type TrackingUpdate struct {
	Added   int
	Tracked int
}

// UpdateTracking folds the discrepancies of a fresh report into a tracking
// file: rows for barcodes not yet tracked are appended behind the existing
// ones, and the file is rewritten atomically. A missing tracking file starts
// empty; when nothing new turns up the file is left alone.
func UpdateTracking(trackingPath string, fresh []model.OutputRow, statuses model.StatusSet) (TrackingUpdate, error) {
	tracked, err := ReadReport(trackingPath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return TrackingUpdate{}, err
	}

	added := Diff(Discrepancies(fresh, statuses), tracked)
	if len(added) > 0 {
		if err := WriteCSV(trackingPath, append(tracked, added...)); err != nil {
			return TrackingUpdate{}, err
		}
	}

	return TrackingUpdate{Added: len(added), Tracked: len(tracked) + len(added)}, nil
}
