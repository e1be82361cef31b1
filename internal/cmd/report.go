package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ledgerline/chronicle/internal/batch"
	"github.com/ledgerline/chronicle/internal/printer"
	"github.com/spf13/cobra"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Build an activity report for one day",
	Long: `Assemble a per-day activity report from pending and collected batch
documents. Events are grouped into time buckets, then by branch and
project directory, with duplicate files collapsed per bucket.

The report is read-only: building it consumes nothing.

Examples:
  chronicle report
  chronicle report --day 2026-02-15 --bucket 30`,
	RunE: runReport,
}

var (
	reportDay    string
	reportBucket int
)

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().StringVarP(&reportDay, "day", "d", "", "Day to report on, YYYY-MM-DD (default: today)")
	reportCmd.Flags().IntVar(&reportBucket, "bucket", 0, "Bucket width in minutes (default: bucket_minutes from config)")
}

func runReport(cmd *cobra.Command, args []string) error {
	app, err := buildApp()
	if err != nil {
		return printer.Error("Failed to initialize", err.Error(), nil)
	}
	defer app.Close()

	day := time.Now()
	if reportDay != "" {
		day, err = time.ParseInLocation("2006-01-02", reportDay, time.Local)
		if err != nil {
			return printer.Error("Invalid day", fmt.Sprintf("%q is not a YYYY-MM-DD date", reportDay), nil)
		}
	}
	bucket := reportBucket
	if bucket <= 0 {
		bucket = app.cfg.BucketMinutes
	}

	report := batch.NewReport()
	processed := make(map[string]bool)
	folded, err := app.agg.MergeIntoReport(report, day, bucket, processed)
	if err != nil {
		return printer.Error("Failed to build report", err.Error(), []string{
			"Check the log file for details",
		})
	}

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	fmt.Println(string(out))

	app.logger.Debug("report assembled",
		"day", day.Format("2006-01-02"),
		"bucket_minutes", bucket,
		"documents_folded", folded,
	)
	return nil
}
