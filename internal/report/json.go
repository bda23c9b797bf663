package report

import (
	"encoding/json"
	"io"

	"github.com/caltechlibrary/checkit/internal/model"
)

// JSONReport pairs the report rows with the run summary.
type JSONReport struct {
	Rows  []model.OutputRow `json:"rows"`
	Stats model.RunStats    `json:"stats"`
}

// WriteJSON writes the rows and run summary as an indented JSON document,
// with the same atomicity as WriteCSV.
func WriteJSON(path string, rows []model.OutputRow, stats model.RunStats) error {
	return writeAtomic(path, 0o644, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(JSONReport{Rows: rows, Stats: stats})
	})
}
