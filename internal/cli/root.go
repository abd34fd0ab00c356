package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/vvka-141/fanload/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "fanload",
	Short: "Parallel bulk loader coordinated through a database work ledger",
	Long: `fanload loads a large corpus of CSV files into one destination table.

Files are registered once in a work ledger table. Any number of fanload
processes may then claim PENDING files with FOR UPDATE SKIP LOCKED, serve them
through a fleet of fast-load servers (gpfdist), ingest them through transient
external tables and record the verified outcome in the same transaction.

Typical flow:
  fanload register /data/ghcnd_all -d climate
  fanload load -d climate -n 5000 -g 8 --progress
  fanload status -d climate --failed

Exit Codes:
  0  - Success (per-file failures are recorded in the ledger)
  1  - General error
  2  - CLI usage error (invalid arguments or flags)
  3  - Panic or unexpected system error
  10 - Invalid configuration or parameters
  11 - Database connection failed
  12 - User denied ledger reset
  13 - No fast-load server could be started
  14 - Ledger operation failed and the run was aborted`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		printVersionInfo()
		return nil
	}
	return rootCmd.Execute()
}

func init() {
	// -h is the PostgreSQL host flag, so help is long-only.
	rootCmd.PersistentFlags().Bool("help", false, "Help for fanload")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output for all commands")
	rootCmd.PersistentFlags().Bool("debug", false, "Trace every claimed file (implies --verbose)")
}

// getVerboseFlag safely retrieves the verbose flag value
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Failed to get verbose flag: %v\n", err)
		return false
	}
	return verbose
}

func getDebugFlag(cmd *cobra.Command) bool {
	debug, err := cmd.Flags().GetBool("debug")
	if err != nil {
		return false
	}
	return debug
}

// newLogger builds the console logger for cmd's verbosity flags.
func newLogger(cmd *cobra.Command) *logging.ConsoleLogger {
	debug := getDebugFlag(cmd)
	return logging.NewConsoleLogger(getVerboseFlag(cmd) || debug, debug)
}
