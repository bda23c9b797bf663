// Package input reads shelf scan files: the barcodes a human walked the
// stacks with, one item per line, as plain text or as the first column of a
// CSV export.
package input

import (
	"encoding/csv"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Read returns the barcodes listed in the scan file, in file order. Blank
// lines and # comments are skipped, a non-barcode first line is taken for a
// column header, and any other line that does not look like a barcode is
// skipped with a warning. A file yielding no barcodes at all is an
// InputFormatError.
func Read(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, NewInputFormatError(path, "cannot open", err)
	}
	defer f.Close()

	return parse(f, path)
}

func parse(r io.Reader, path string) ([]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.Comment = '#'
	reader.TrimLeadingSpace = true
	reader.LazyQuotes = true

	var barcodes []string
	first := true
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, NewInputFormatError(path, "cannot parse", err)
		}

		value := strings.TrimSpace(record[0])
		isFirst := first
		first = false
		if value == "" {
			continue
		}
		if !IsBarcode(value) {
			if isFirst {
				slog.Debug("skipping header line", "file", path, "value", value)
				continue
			}
			line, _ := reader.FieldPos(0)
			slog.Warn("skipping line that is not a barcode", "file", path, "line", line, "value", value)
			continue
		}
		barcodes = append(barcodes, value)
	}

	if len(barcodes) == 0 {
		return nil, NewInputFormatError(path, "no barcodes found", nil)
	}

	slog.Debug("read scan file", "file", path, "barcodes", len(barcodes))
	return barcodes, nil
}

// IsBarcode reports whether a value looks like an item barcode: all digits,
// or carrying the placeholder prefix the catalog uses for items that have
// none.
func IsBarcode(value string) bool {
	if value == "" {
		return false
	}
	if strings.HasPrefix(strings.ToLower(value), "nobarcode") {
		return true
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
