package cli

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/caltechlibrary/checkit/internal/cache"
	"github.com/caltechlibrary/checkit/internal/credentials"
	"github.com/caltechlibrary/checkit/internal/engine"
	"github.com/caltechlibrary/checkit/internal/input"
	"github.com/caltechlibrary/checkit/internal/model"
	"github.com/caltechlibrary/checkit/internal/report"
	"github.com/caltechlibrary/checkit/internal/tind"
)

var (
	inputPath   string
	outputPath  string
	jsonPath    string
	userFlag    string
	passFlag    string
	noStore     bool
	workers     int
	noCache     bool
	cacheDir    string
	httpTimeout time.Duration
)

// checkCmd represents the check command
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Reconcile a file of scanned barcodes against the catalog",
	Long: `Check looks up every scanned barcode, classifies the copies of the
owning items, and writes a CSV report:
- Each scanned barcode contributes one row flagged "original"
- Copies of the same items that are not on the shelf follow, flagged
  "added", each copy at most once per run
- Barcodes the catalog does not know contribute no rows

Credentials come from the flags, the CHECKIT_USER/CHECKIT_PASSWORD
environment, the credential store, or an interactive prompt, in that
order.

Example:
  checkit check -i scanned.csv -o report.csv
  checkit check -i scanned.csv -o report.csv --json report.json --workers 4
  checkit check -i scanned.csv -o report.csv -u librarian@library.example.edu`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)

	// Input/output flags
	checkCmd.Flags().StringVarP(&inputPath, "input", "i", "", "file of scanned barcodes (CSV first column, or one per line)")
	checkCmd.Flags().StringVarP(&outputPath, "output", "o", "", "CSV report destination")
	checkCmd.Flags().StringVar(&jsonPath, "json", "", "also write a JSON report with run statistics (optional)")

	// Credential flags
	checkCmd.Flags().StringVarP(&userFlag, "user", "u", "", "catalog user name (default: CHECKIT_USER or stored credentials)")
	checkCmd.Flags().StringVarP(&passFlag, "password", "p", "", "catalog password (default: CHECKIT_PASSWORD or stored credentials)")
	checkCmd.Flags().BoolVar(&noStore, "no-store", false, "do not read or update stored credentials")

	// Catalog flags
	checkCmd.Flags().IntVar(&workers, "workers", 1, "number of concurrent catalog lookups")
	checkCmd.Flags().BoolVar(&noCache, "no-cache", false, "disable the on-disk catalog answer cache")
	checkCmd.Flags().StringVar(&cacheDir, "cache-dir", "", "directory for the on-disk cache (default: OS cache dir)")
	checkCmd.Flags().DurationVar(&httpTimeout, "timeout", 30*time.Second, "timeout per catalog request")

	_ = checkCmd.MarkFlagRequired("input")
	_ = checkCmd.MarkFlagRequired("output")
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyCatalogFlags(cmd, cfg)
	if cmd.Flags().Changed("workers") {
		cfg.Concurrency.LookupWorkers = workers
	}
	if cmd.Flags().Changed("cache-dir") {
		cfg.Cache.Dir = cacheDir
	}

	barcodes, err := input.Read(inputPath)
	if err != nil {
		return err
	}
	slog.Info("input read", "path", inputPath, "barcodes", len(barcodes))

	// Fail on an unwritable destination before any catalog work.
	if err := report.CheckWritable(outputPath); err != nil {
		return err
	}
	if jsonPath != "" {
		if err := report.CheckWritable(jsonPath); err != nil {
			return err
		}
	}

	client, provider, err := newCatalogClient(ctx, cfg)
	if err != nil {
		return err
	}
	if err := client.Login(ctx); err != nil {
		return err
	}
	if err := provider.MarkValidated(); err != nil {
		slog.Warn("could not store credentials", "error", err)
	}

	// One bulk search warms the cache for the whole run; a failure here is
	// not fatal because per-barcode lookups carry their own retries.
	if found, err := client.Prefetch(ctx, barcodes); err != nil {
		if tind.IsAuthenticationError(err) || tind.IsServiceError(err) {
			return err
		}
		slog.Warn("bulk prefetch failed, falling back to per-barcode lookups", "error", err)
	} else {
		slog.Debug("prefetched catalog records", "found", found)
	}

	statuses := model.NewStatusSet(&cfg.Statuses)
	rows, stats, err := engine.Run(ctx, client, barcodes, engine.Options{
		Workers:  cfg.Concurrency.LookupWorkers,
		Statuses: &statuses,
		Progress: logProgress,
	})
	if err != nil {
		return err
	}

	if err := report.WriteCSV(outputPath, rows); err != nil {
		return err
	}
	if jsonPath != "" {
		if err := report.WriteJSON(jsonPath, rows, stats); err != nil {
			return err
		}
	}

	slog.Info("report written",
		"path", outputPath,
		"rows", len(rows),
		"original", stats.OriginalRows,
		"added", stats.AddedRows,
		"duration", stats.Duration.Round(time.Millisecond))
	if stats.BarcodesMissing > 0 || stats.BarcodesFailed > 0 {
		slog.Warn("some barcodes contributed no rows",
			"not_found", stats.BarcodesMissing,
			"failed", stats.BarcodesFailed)
	}
	return nil
}

// applyCatalogFlags folds the catalog flags shared by check and lookup into
// the configuration.
func applyCatalogFlags(cmd *cobra.Command, cfg *model.Config) {
	if cmd.Flags().Changed("timeout") {
		cfg.HTTP.Timeout = httpTimeout
	}
	if noCache {
		cfg.Cache.Enabled = false
	}
}

// newCatalogClient resolves credentials and builds the authenticated catalog
// client shared by check and lookup.
func newCatalogClient(ctx context.Context, cfg *model.Config) (*tind.Client, *credentials.Provider, error) {
	user := userFlag
	if user == "" {
		user = viper.GetString("user")
	}
	password := passFlag
	if password == "" {
		password = viper.GetString("password")
	}

	provider := &credentials.Provider{
		Explicit: credentials.Credentials{User: user, Password: password},
		Prompter: &credentials.TerminalPrompter{},
		Persist:  !noStore,
	}
	if !noStore {
		if path, err := credentials.DefaultStorePath(); err == nil {
			provider.Store = credentials.NewFileStore(path)
		} else {
			slog.Debug("credential store unavailable", "error", err)
		}
	}

	creds, source, err := provider.Obtain(ctx)
	if err != nil {
		return nil, nil, err
	}
	slog.Debug("credentials resolved", "user", creds.User, "source", source)

	client, err := tind.NewClient(cfg, creds.User, creds.Password, newStore(cfg))
	if err != nil {
		return nil, nil, err
	}
	return client, provider, nil
}

// newStore builds the catalog answer cache. A memory layer always backs the
// run so sibling copies of an already-seen item are free; the disk layer
// carries answers across runs and is what --no-cache switches off.
func newStore(cfg *model.Config) cache.Cache {
	if !cfg.Cache.Enabled {
		return cache.NewMemoryCache(cfg.Cache.TTL, 10*time.Minute)
	}
	dir := cfg.Cache.Dir
	if dir == "" {
		base, err := os.UserCacheDir()
		if err != nil {
			slog.Debug("user cache directory unavailable", "error", err)
			return cache.NewMemoryCache(cfg.Cache.TTL, 10*time.Minute)
		}
		dir = filepath.Join(base, "checkit")
	}
	return cache.NewLayeredCache(cfg.Cache.TTL, dir, cfg.Cache.TTL)
}

// logProgress narrates engine events. With several workers it is called
// from several goroutines; slog handlers serialize writes themselves.
func logProgress(ev engine.Event) {
	switch ev.Kind {
	case engine.EventStarted:
		slog.Info("looking up barcodes", "unique", ev.Total)
	case engine.EventResolved:
		slog.Debug("barcode resolved", "barcode", ev.Barcode, "copies", ev.Holdings)
	case engine.EventNotFound:
		slog.Warn("barcode not in catalog", "barcode", ev.Barcode)
	case engine.EventFailed:
		slog.Warn("lookup failed", "barcode", ev.Barcode, "error", ev.Err)
	case engine.EventFinished:
		slog.Debug("lookups finished")
	}
}
