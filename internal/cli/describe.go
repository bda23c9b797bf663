package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/caltechlibrary/checkit/internal/model"
	"github.com/caltechlibrary/checkit/internal/report"
)

var (
	freshPath    string
	trackingPath string
)

// describeCmd represents the describe command
var describeCmd = &cobra.Command{
	Use:   "describe",
	Short: "Fold a report's discrepancies into a tracking file",
	Long: `Describe reads a reconciliation report, keeps the rows whose copies are
not on the shelf, and appends the ones not already tracked to a
tracking file. Repeated runs grow a stable list of items needing
attention: rows are never reordered or dropped, and a barcode is
tracked at most once.

Example:
  checkit describe --report report.csv --tracking missing.csv`,
	RunE: runDescribe,
}

func init() {
	rootCmd.AddCommand(describeCmd)

	describeCmd.Flags().StringVar(&freshPath, "report", "", "reconciliation report to read")
	describeCmd.Flags().StringVar(&trackingPath, "tracking", "", "tracking file to update (created when missing)")

	_ = describeCmd.MarkFlagRequired("report")
	_ = describeCmd.MarkFlagRequired("tracking")
}

func runDescribe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	rows, err := report.ReadReport(freshPath)
	if err != nil {
		return err
	}

	update, err := report.UpdateTracking(trackingPath, rows, model.NewStatusSet(&cfg.Statuses))
	if err != nil {
		return err
	}

	slog.Info("tracking updated",
		"report", freshPath,
		"tracking", trackingPath,
		"added", update.Added,
		"tracked", update.Tracked)
	return nil
}
