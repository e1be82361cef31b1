package cmd

import (
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/ledgerline/chronicle/internal/config"
	"github.com/ledgerline/chronicle/internal/logging"
	"github.com/ledgerline/chronicle/internal/printer"
	"github.com/spf13/cobra"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "View chronicle logs",
	Long: `Read and filter the chronicle log file.

Examples:
  # Show all log entries
  chronicle logs

  # Only warnings and errors
  chronicle logs --level warn

  # One component, last hour, as CSV
  chronicle logs --component gitstore --since 1h --format csv`,
	RunE: runLogs,
}

var (
	logsLevel     string
	logsComponent string
	logsSince     string
	logsFormat    string
)

func init() {
	rootCmd.AddCommand(logsCmd)

	logsCmd.Flags().StringVar(&logsLevel, "level", "", "Minimum level (debug/info/warn/error)")
	logsCmd.Flags().StringVar(&logsComponent, "component", "", "Only entries from this component")
	logsCmd.Flags().StringVar(&logsSince, "since", "", "Only entries newer than this duration (e.g. 1h, 30m)")
	logsCmd.Flags().StringVar(&logsFormat, "format", "text", "Output format: text, json, or csv")
}

func runLogs(cmd *cobra.Command, args []string) error {
	if !slices.Contains([]string{"text", "json", "csv"}, logsFormat) {
		return printer.Error("Invalid format", fmt.Sprintf("%q is not a supported format", logsFormat), []string{
			"Use one of: text, json, csv",
		})
	}

	// Only the config is needed here: opening the full pipeline would
	// open the very log file being read.
	cfg, err := config.Load()
	if err != nil {
		return printer.Error("Failed to load configuration", err.Error(), nil)
	}

	logPath := cfg.LogFile()
	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		printer.Info("no log file yet at %s\n", logPath)
		return nil
	}

	entries, err := logging.ReadLog(logPath)
	if err != nil {
		return printer.Error("Failed to read log file", err.Error(), nil)
	}

	filter := logging.LogFilter{
		Component: logsComponent,
	}
	if logsLevel != "" {
		filter.Level = logging.ParseLevel(logsLevel)
	}
	if logsSince != "" {
		duration, err := time.ParseDuration(logsSince)
		if err != nil {
			return printer.Error("Invalid duration", fmt.Sprintf("%q is not a duration like 1h or 30m", logsSince), nil)
		}
		filter.StartTime = time.Now().Add(-duration)
	}

	filtered := logging.FilterLogs(entries, filter)
	if len(filtered) == 0 {
		printer.Info("no matching log entries\n")
		return nil
	}

	return logging.ExportLogEntries(os.Stdout, filtered, logsFormat)
}
