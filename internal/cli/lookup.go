package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/caltechlibrary/checkit/internal/input"
)

// lookupCmd represents the lookup command
var lookupCmd = &cobra.Command{
	Use:   "lookup <barcode>",
	Short: "Look up one barcode and list every copy of its item",
	Long: `Lookup queries the catalog for a single barcode and lists all copies
of the owning item, including the ones not on the shelf.

Example:
  checkit lookup 35047019626837`,
	Args: cobra.ExactArgs(1),
	RunE: runLookup,
}

func init() {
	rootCmd.AddCommand(lookupCmd)

	// Credential and catalog flags shared with check
	lookupCmd.Flags().StringVarP(&userFlag, "user", "u", "", "catalog user name (default: CHECKIT_USER or stored credentials)")
	lookupCmd.Flags().StringVarP(&passFlag, "password", "p", "", "catalog password (default: CHECKIT_PASSWORD or stored credentials)")
	lookupCmd.Flags().BoolVar(&noStore, "no-store", false, "do not read or update stored credentials")
	lookupCmd.Flags().BoolVar(&noCache, "no-cache", false, "disable the on-disk catalog answer cache")
	lookupCmd.Flags().DurationVar(&httpTimeout, "timeout", 0, "timeout per catalog request")
}

func runLookup(cmd *cobra.Command, args []string) error {
	barcode := strings.TrimSpace(args[0])
	if !input.IsBarcode(barcode) {
		return fmt.Errorf("%q does not look like an item barcode", barcode)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyCatalogFlags(cmd, cfg)

	ctx := context.Background()
	client, provider, err := newCatalogClient(ctx, cfg)
	if err != nil {
		return err
	}
	if err := client.Login(ctx); err != nil {
		return err
	}
	if err := provider.MarkValidated(); err != nil {
		return err
	}

	holdings, err := client.Lookup(ctx, barcode)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "BARCODE\tSTATUS\tLOCATION\tCALL NUMBER\tCOPY")
	for _, h := range holdings {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", h.Barcode, h.Status, h.LocationName, h.CallNumber, h.CopyNumber)
	}
	return w.Flush()
}
