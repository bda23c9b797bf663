package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/caltechlibrary/checkit/internal/model"
)

const version = "0.2.1"

var (
	cfgFile   string
	noColor   bool
	quiet     bool
	debugDest string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "checkit",
	Short: "Check It! - reconcile shelf inventories against the TIND catalog",
	Long: `Check It! reads a list of scanned item barcodes, looks each one up in
the library's TIND catalog, and writes a CSV report of the shelf's
expected state.

Every scanned barcode appears in the report. When the catalog shows
that another copy of the same item is not on the shelf (on loan, lost,
in processing, ...), that copy is appended to the report as well, so
staff reading the report learn about every copy they should not expect
to find in the stacks.`,
	Version:       version,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Load .env file if present (ignore errors)
		_ = godotenv.Load()
		return initLogging()
	},
}

// Execute runs the root command
func Execute() error {
	err := rootCmd.Execute()
	closeLogging()
	return err
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Display the version number and build information for Check It!.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("checkit v" + version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.checkit/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&noColor, "no-color", "C", false, "log without colors")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "only log warnings and errors")
	rootCmd.PersistentFlags().StringVar(&debugDest, "debug", "", "write a debug trace to FILE ('-' traces to the console)")

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
}

// initConfig reads in config file and ENV variables
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}

		// Search for config in home directory
		viper.AddConfigPath(filepath.Join(home, ".checkit"))
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// Read in environment variables that match CHECKIT_*
	viper.SetEnvPrefix("CHECKIT")
	viper.AutomaticEnv()

	// Logging is not up yet; a found config file is reported by initLogging.
	_ = viper.ReadInConfig()
}

// loadConfig layers the config file and CHECKIT_* environment over the
// built-in defaults.
func loadConfig() (*model.Config, error) {
	cfg := model.DefaultConfig()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse configuration: %w", err)
	}
	return cfg, nil
}
