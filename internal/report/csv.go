// Package report writes and reads "Check It!" reconciliation reports. The
// CSV layout is fixed so reports from different runs line up in a
// spreadsheet, and every write is atomic so a failed run never leaves a
// truncated report behind.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/caltechlibrary/checkit/internal/model"
)

// Header is the fixed column set of a reconciliation report.
var Header = []string{
	"Flag",
	"Barcode",
	"Status",
	"Call number",
	"Copy number",
	"Location code",
	"Location name",
	"TIND id",
	"Item type",
	"Holdings total",
}

func rowFields(row model.OutputRow) []string {
	return []string{
		string(row.Flag),
		row.Barcode,
		row.Status,
		row.CallNumber,
		row.CopyNumber,
		row.LocationCode,
		row.LocationName,
		row.TindID,
		row.ItemType,
		strconv.Itoa(row.HoldingsTotal),
	}
}

// WriteCSV writes the report rows to path. The rows land in a temporary
// file beside the destination, which is fsynced and renamed into place only
// once complete; on any failure the previous file, if one existed, is left
// untouched.
func WriteCSV(path string, rows []model.OutputRow) error {
	return writeAtomic(path, 0o644, func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write(Header); err != nil {
			return err
		}
		for _, row := range rows {
			if err := cw.Write(rowFields(row)); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	})
}

// ReadReport parses a report CSV written by WriteCSV back into rows.
func ReadReport(path string) ([]model.OutputRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open report: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = len(Header)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read report header: %w", err)
	}
	if !slices.Equal(header, Header) {
		return nil, fmt.Errorf("file %s is not a reconciliation report", path)
	}

	var rows []model.OutputRow
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read report row: %w", err)
		}

		total, err := strconv.Atoi(record[9])
		if err != nil {
			return nil, fmt.Errorf("report row for barcode %s: holdings total %q is not a number", record[1], record[9])
		}
		rows = append(rows, model.OutputRow{
			Flag: model.Flag(record[0]),
			HoldingRecord: model.HoldingRecord{
				Barcode:       record[1],
				Status:        record[2],
				CallNumber:    record[3],
				CopyNumber:    record[4],
				LocationCode:  record[5],
				LocationName:  record[6],
				TindID:        record[7],
				ItemType:      record[8],
				HoldingsTotal: total,
			},
		})
	}

	return rows, nil
}

// CheckWritable verifies the destination can be written, before the run
// spends minutes on lookups only to fail at the end.
func CheckWritable(path string) error {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return NewOutputWriteError(path, fmt.Errorf("is a directory"))
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return NewOutputWriteError(path, err)
	}
	tmp.Close()
	os.Remove(tmp.Name())
	return nil
}

// writeAtomic streams content into a temporary file in the destination
// directory and renames it over path once fsynced.
func writeAtomic(path string, mode os.FileMode, fill func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return NewOutputWriteError(path, err)
	}
	name := tmp.Name()

	write := func() error {
		if err := fill(tmp); err != nil {
			return err
		}
		if err := tmp.Sync(); err != nil {
			return err
		}
		if err := tmp.Chmod(mode); err != nil {
			return err
		}
		return tmp.Close()
	}

	if err := write(); err != nil {
		tmp.Close()
		os.Remove(name)
		return NewOutputWriteError(path, err)
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return NewOutputWriteError(path, err)
	}
	return nil
}
